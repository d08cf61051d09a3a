package viz

import (
	"math"
	"strings"
)

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank rune = 0x2800

// Canvas is a grid of braille cells addressed in dot coordinates; its
// resolution is (Width*2) x (Height*4).
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights one dot. Dots outside the canvas are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= pixelMap[y%4][x%2]
}

// Lit reports whether the dot at (x, y) is set.
func (c *Canvas) Lit(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&pixelMap[y%4][x%2] != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawMoments lays the sites out row by row and draws each moment as a
// needle from its cell centre, projected onto the x-z plane with z up.
// Needle length is relative to the largest magnitude.
func (c *Canvas) DrawMoments(moments []float64) {
	n := len(moments) / 3
	if n == 0 {
		return
	}
	cw, ch := c.Width*2, c.Height*4
	cols := int(math.Ceil(math.Sqrt(float64(n) * float64(cw) / float64(ch))))
	cols = max(cols, 1)
	rows := (n + cols - 1) / cols
	cell := min(cw/cols, ch/rows)
	if cell < 2 {
		cell = 2
	}

	norm := 0.0
	for i := 0; i < n; i++ {
		if a := magnitude(moments[3*i:]); finite(a) {
			norm = math.Max(norm, a)
		}
	}
	if norm == 0 {
		norm = 1
	}

	reach := 0.45 * float64(cell)
	for i := 0; i < n; i++ {
		cx := (i%cols)*cell + cell/2
		cy := (i/cols)*cell + cell/2
		if !finite(magnitude(moments[3*i:])) {
			c.Set(cx, cy)
			continue
		}
		mx, mz := moments[3*i]/norm, moments[3*i+2]/norm
		x1 := clampInt(cx+int(math.Round(mx*reach)), 0, cw-1)
		y1 := clampInt(cy-int(math.Round(mz*reach)), 0, ch-1)
		c.DrawLine(cx, cy, x1, y1)
	}
}

func magnitude(v []float64) float64 {
	return math.Hypot(v[0], math.Hypot(v[1], v[2]))
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func clampInt(x, lo, hi int) int {
	return max(lo, min(hi, x))
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
