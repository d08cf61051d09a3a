package spin

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Dynamics holds the parameters of one Landau-Lifshitz-Gilbert step.
type Dynamics struct {
	Gamma   float64
	Dt      float64
	MuS     float64
	Damping float64
	Lambda  float64
	// Field is added to the energy gradient, e.g. the force of a bias
	// potential.
	Field r3.Vec
}

// CalcSpinDynamics stages the next moment under
// dm/dt = -gamma m x H - gamma*damping m x (m x H), H = -grad/mu_s,
// reading partner moments without modifying any site. The precession
// part is applied as an exact rotation about H so that it preserves |m|.
func (a *Moment) CalcSpinDynamics(p Dynamics, sites []*Moment) {
	g := r3.Add(a.Gradient(p.Lambda, sites), p.Field)
	h := r3.Scale(-1/p.MuS, g)

	m := rotate(a.m, h, p.Gamma*p.Dt)
	if p.Damping != 0 {
		m = r3.Sub(m, r3.Scale(p.Gamma*p.Damping*p.Dt, r3.Cross(a.m, r3.Cross(a.m, h))))
	}
	a.staged = m
}

// UpdateSpinDynamics commits the staged moment. With rescale the previous
// length is restored, removing the drift introduced by damping.
func (a *Moment) UpdateSpinDynamics(rescale bool) {
	a.prev, a.absPrev = a.m, a.abs
	a.m = a.staged
	a.abs = r3.Norm(a.m)
	if rescale && a.abs > 0 {
		a.m = r3.Scale(a.absPrev/a.abs, a.m)
		a.abs = a.absPrev
	}
	a.pending = false
	a.Touch()
}

// rotate turns m about field by angle factor*|field| (Rodrigues formula).
func rotate(m, field r3.Vec, factor float64) r3.Vec {
	n := r3.Norm(field)
	if n == 0 {
		return m
	}
	u := r3.Scale(1/n, field)
	theta := factor * n
	sin, cos := math.Sincos(theta)
	return r3.Add(
		r3.Add(r3.Scale(cos, m), r3.Scale(sin, r3.Cross(u, m))),
		r3.Scale(r3.Dot(u, m)*(1-cos), u),
	)
}

// RunGradientDescent moves m by -step times the mixed gradient plus field
// and returns the gradient norm before the move.
func (a *Moment) RunGradientDescent(step, lambda float64, field r3.Vec, sites []*Moment) float64 {
	g := r3.Add(a.Gradient(lambda, sites), field)
	a.prev, a.absPrev = a.m, a.abs
	a.m = r3.Sub(a.m, r3.Scale(step, g))
	a.abs = r3.Norm(a.m)
	a.pending = false
	a.Touch()
	return r3.Norm(g)
}
