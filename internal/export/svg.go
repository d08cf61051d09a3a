// Package export renders stored configurations and traces as SVG.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/magmc/internal/viz"
)

const svgHeader = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`

// CanvasToSVG draws every lit dot of a braille canvas as a circle of
// diameter ~0.8 scale.
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}
	w, h := canvas.Width*2, canvas.Height*4
	sw, sh := int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale))

	var sb strings.Builder
	fmt.Fprintf(&sb, svgHeader, sw, sh, sw, sh)
	sb.WriteString("<g fill=\"#00ffff\">\n")
	r := scale * 0.4
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if canvas.Lit(x, y) {
				fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n",
					(float64(x)+0.5)*scale, (float64(y)+0.5)*scale, r)
			}
		}
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// MomentsToSVG renders a flat moment array (x0 y0 z0 x1 ...) the way the
// live view draws it.
func MomentsToSVG(moments []float64, cols, rows int, scale float64) string {
	c := viz.NewCanvas(cols, rows)
	c.DrawMoments(moments)
	return CanvasToSVG(c, scale)
}

// TraceToSVG plots y against its index as a polyline with 10% padding.
func TraceToSVG(y []float64, width, height int, strokeColor string) string {
	if len(y) < 2 {
		return ""
	}

	minY, maxY := y[0], y[0]
	for _, v := range y {
		minY = math.Min(minY, v)
		maxY = math.Max(maxY, v)
	}
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	rangeY *= 1.2
	dx := float64(width) / float64(len(y)-1)

	var sb strings.Builder
	fmt.Fprintf(&sb, svgHeader, width, height, width, height)
	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, strokeColor)
	for i, v := range y {
		px := float64(i) * dx
		py := float64(height) - (v-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", px, py)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", px, py)
		}
	}
	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
