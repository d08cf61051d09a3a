// Package terms holds the stateless functional forms the spin Hamiltonian is
// built from.
//
// Two closed families exist:
//
//   - [Landau]: on-site polynomials |m|^n for n in {2,4,6,8,10}
//   - [Exchange]: pair products -|a|^(n-1) (a·b) for n in {1,3,5}
//
// Values of both types are plain constants, immutable and safe to share
// between any number of moments and goroutines.
package terms

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

var ErrInvalidDegree = errors.New("terms: invalid polynomial degree")

// Magnitude is an on-site term depending only on the moment length.
type Magnitude interface {
	Degree() int
	Value(abs float64) float64
	// Gradient is the derivative of Value(|m|) with respect to m.
	Gradient(m r3.Vec) r3.Vec
}

// Product is a pair term coupling a moment a to a partner b.
type Product interface {
	Degree() int
	Value(a, b r3.Vec) float64
	// Diff is the exact change of Value when a moves from prev to a while b
	// stays fixed.
	Diff(a, prev, b r3.Vec) float64
	// Gradient is the derivative of Value with respect to a.
	Gradient(a, b r3.Vec) r3.Vec
}

type Landau int

const (
	Square  Landau = 2
	Quartic Landau = 4
	Sextic  Landau = 6
	Octic   Landau = 8
	Decic   Landau = 10
)

type Exchange int

const (
	LinLin Exchange = 1
	CubLin Exchange = 3
	QuiLin Exchange = 5
)

// LandauTerm returns the on-site term of the given degree.
func LandauTerm(degree int) (Magnitude, error) {
	switch l := Landau(degree); l {
	case Square, Quartic, Sextic, Octic, Decic:
		return l, nil
	}
	return nil, fmt.Errorf("landau degree %d: %w", degree, ErrInvalidDegree)
}

// ExchangeTerm returns the pair term of the given degree.
func ExchangeTerm(degree int) (Product, error) {
	switch e := Exchange(degree); e {
	case LinLin, CubLin, QuiLin:
		return e, nil
	}
	return nil, fmt.Errorf("heisenberg degree %d: %w", degree, ErrInvalidDegree)
}

func (l Landau) Degree() int { return int(l) }

func (l Landau) Value(abs float64) float64 {
	return power(abs, int(l))
}

func (l Landau) Gradient(m r3.Vec) r3.Vec {
	n := int(l)
	return r3.Scale(float64(n)*power(r3.Norm2(m), n/2-1), m)
}

func (l Landau) String() string {
	switch l {
	case Square:
		return "square"
	case Quartic:
		return "quartic"
	case Sextic:
		return "sextic"
	case Octic:
		return "octic"
	case Decic:
		return "decic"
	}
	return fmt.Sprintf("landau(%d)", int(l))
}

func (e Exchange) Degree() int { return int(e) }

// weight is |a|^(n-1), computed from |a|^2 so no square root is taken.
func (e Exchange) weight(a r3.Vec) float64 {
	return power(r3.Norm2(a), (int(e)-1)/2)
}

func (e Exchange) Value(a, b r3.Vec) float64 {
	return -e.weight(a) * r3.Dot(a, b)
}

func (e Exchange) Diff(a, prev, b r3.Vec) float64 {
	d := r3.Sub(r3.Scale(e.weight(a), a), r3.Scale(e.weight(prev), prev))
	return -r3.Dot(d, b)
}

func (e Exchange) Gradient(a, b r3.Vec) r3.Vec {
	g := r3.Scale(e.weight(a), b)
	if p := int(e) - 1; p > 0 {
		g = r3.Add(g, r3.Scale(float64(p)*power(r3.Norm2(a), p/2-1)*r3.Dot(a, b), a))
	}
	return r3.Scale(-1, g)
}

func (e Exchange) String() string {
	switch e {
	case LinLin:
		return "lin_lin"
	case CubLin:
		return "cub_lin"
	case QuiLin:
		return "qui_lin"
	}
	return fmt.Sprintf("exchange(%d)", int(e))
}

func power(x float64, n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= x
	}
	return v
}
