package spin

import (
	"fmt"
	"math"

	"github.com/san-kum/magmc/internal/terms"
	"gonum.org/v1/gonum/spatial/r3"
)

func (a *Moment) SetLandauCoeff(coeff float64, degree, channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	term, err := terms.LandauTerm(degree)
	if err != nil {
		return err
	}
	a.landau[channel] = append(a.landau[channel], onsite{coeff: coeff, term: term})
	a.Touch()
	return nil
}

func (a *Moment) ClearLandauCoeff(channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	a.landau[channel] = nil
	a.Touch()
	return nil
}

// SetHeisenbergCoeff appends a pair term towards the site at index partner.
// The coupling is one-directional; the partner is not modified.
func (a *Moment) SetHeisenbergCoeff(partner int, coeff float64, degree, channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	term, err := terms.ExchangeTerm(degree)
	if err != nil {
		return err
	}
	a.links[channel] = append(a.links[channel], Link{Site: partner, Coeff: coeff, Term: term})
	a.Touch()
	return nil
}

func (a *Moment) ClearHeisenbergCoeff(channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	a.links[channel] = nil
	a.Touch()
	return nil
}

// Links returns the pair terms of a channel. The slice must not be modified.
func (a *Moment) Links(channel int) []Link { return a.links[channel] }

// HasLandau reports whether any channel carries an on-site term.
func (a *Moment) HasLandau() bool {
	for c := 0; c < Channels; c++ {
		if len(a.landau[c]) > 0 {
			return true
		}
	}
	return false
}

// E returns the site energy of a channel: its Landau terms plus every pair
// term in its own link list.
func (a *Moment) E(channel int, sites []*Moment, force bool) float64 {
	if force || !a.energyFresh[channel] {
		a.energy[channel] = a.energyAt(channel, a.m, a.abs, sites)
		a.energyFresh[channel] = true
	}
	return a.energy[channel]
}

// DE returns the change of the site energy between m_prev and m, summed
// term by term from each term's exact difference.
func (a *Moment) DE(channel int, sites []*Moment, force bool) float64 {
	if force || !a.deltaFresh[channel] {
		a.delta[channel] = a.deltaAt(channel, sites)
		a.deltaFresh[channel] = true
	}
	return a.delta[channel]
}

// OnSite returns the Landau part of the site energy.
func (a *Moment) OnSite(channel int) float64 {
	e := 0.0
	for _, t := range a.landau[channel] {
		e += t.coeff * t.term.Value(a.abs)
	}
	return e
}

func (a *Moment) energyAt(channel int, m r3.Vec, abs float64, sites []*Moment) float64 {
	e := 0.0
	for _, t := range a.landau[channel] {
		e += t.coeff * t.term.Value(abs)
	}
	for _, l := range a.links[channel] {
		e += l.Coeff * l.Term.Value(m, sites[l.Site].m)
	}
	return e
}

func (a *Moment) deltaAt(channel int, sites []*Moment) float64 {
	d := 0.0
	if a.abs != a.absPrev {
		for _, t := range a.landau[channel] {
			d += t.coeff * (t.term.Value(a.abs) - t.term.Value(a.absPrev))
		}
	}
	for _, l := range a.links[channel] {
		d += l.Coeff * l.Term.Diff(a.m, a.prev, sites[l.Site].m)
	}
	return d
}

// Gradient returns dE/dm mixed between the channels as
// (1-lambda)*g0 + lambda*g1.
func (a *Moment) Gradient(lambda float64, sites []*Moment) r3.Vec {
	g := r3.Scale(1-lambda, a.channelGradient(0, sites))
	if lambda != 0 {
		g = r3.Add(g, r3.Scale(lambda, a.channelGradient(1, sites)))
	}
	return g
}

func (a *Moment) channelGradient(channel int, sites []*Moment) r3.Vec {
	var g r3.Vec
	for _, t := range a.landau[channel] {
		g = r3.Add(g, r3.Scale(t.coeff, t.term.Gradient(a.m)))
	}
	for _, l := range a.links[channel] {
		g = r3.Add(g, r3.Scale(l.Coeff, l.Term.Gradient(a.m, sites[l.Site].m)))
	}
	return g
}

// CheckConsistency recomputes every fresh cache from scratch and verifies
// that DE agrees with E(m) - E(m_prev). It is meant for debug runs.
func (a *Moment) CheckConsistency(sites []*Moment) error {
	if !finite(a.m) || math.IsNaN(a.abs) || math.IsInf(a.abs, 0) {
		return fmt.Errorf("m=%v: %w", a.m, ErrNonFinite)
	}
	for c := 0; c < Channels; c++ {
		full := a.energyAt(c, a.m, a.abs, sites)
		if a.energyFresh[c] && !near(a.energy[c], full) {
			return fmt.Errorf("channel %d: E cached %g, recomputed %g: %w", c, a.energy[c], full, ErrInconsistent)
		}
		delta := a.deltaAt(c, sites)
		if a.deltaFresh[c] && !near(a.delta[c], delta) {
			return fmt.Errorf("channel %d: dE cached %g, recomputed %g: %w", c, a.delta[c], delta, ErrInconsistent)
		}
		before := a.energyAt(c, a.prev, a.absPrev, sites)
		if !near(delta, full-before) {
			return fmt.Errorf("channel %d: dE %g, E difference %g: %w", c, delta, full-before, ErrInconsistent)
		}
	}
	return nil
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= consistencyTolerance*(1+math.Abs(b))
}

func finite(v r3.Vec) bool {
	for _, x := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
