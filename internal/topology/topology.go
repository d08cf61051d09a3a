// Package topology reads and writes neighbour lists.
//
// A neighbour list is plain text with one directed pair per line,
//
//	i j [shell]
//
// where i and j are zero-based site indices and shell (default 0) groups
// pairs that share a coupling constant. Blank lines and text after '#'
// are ignored.
package topology

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("topology: malformed neighbour list")

type Pair struct {
	I, J  int
	Shell int
}

type List struct {
	Pairs []Pair
}

func Read(r io.Reader) (*List, error) {
	l := &List{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if k := strings.IndexByte(text, '#'); k >= 0 {
			text = text[:k]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("line %d: want 2 or 3 fields, got %d: %w", line, len(fields), ErrMalformed)
		}
		var v [3]int
		for k, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("line %d: field %q: %w", line, f, ErrMalformed)
			}
			v[k] = n
		}
		l.Pairs = append(l.Pairs, Pair{I: v[0], J: v[1], Shell: v[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func (l *List) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range l.Pairs {
		if _, err := fmt.Fprintf(bw, "%d %d %d\n", p.I, p.J, p.Shell); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Ring couples every site to both ring neighbours in both directions.
func Ring(n int) *List {
	l := &List{}
	if n < 2 {
		return l
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		l.Pairs = append(l.Pairs, Pair{I: i, J: j}, Pair{I: j, J: i})
	}
	return l
}

// Sites is one past the largest index referenced.
func (l *List) Sites() int {
	n := 0
	for _, p := range l.Pairs {
		n = max(n, p.I+1, p.J+1)
	}
	return n
}

// Shells returns the distinct shells in ascending order.
func (l *List) Shells() []int {
	var out []int
	for _, p := range l.Pairs {
		if !slices.Contains(out, p.Shell) {
			out = append(out, p.Shell)
		}
	}
	slices.Sort(out)
	return out
}

// Shell returns the pairs of one shell as parallel source and target
// slices.
func (l *List) Shell(shell int) (i, j []int) {
	for _, p := range l.Pairs {
		if p.Shell == shell {
			i = append(i, p.I)
			j = append(j, p.J)
		}
	}
	return i, j
}

// Symmetrize returns a copy with the reverse of every pair present.
func (l *List) Symmetrize() *List {
	seen := make(map[Pair]bool, 2*len(l.Pairs))
	out := &List{}
	add := func(p Pair) {
		if !seen[p] {
			seen[p] = true
			out.Pairs = append(out.Pairs, p)
		}
	}
	for _, p := range l.Pairs {
		add(p)
		add(Pair{I: p.J, J: p.I, Shell: p.Shell})
	}
	return out
}
