// Package sim drives an ensemble of classical spins.
//
// An [Ensemble] owns the moment slice and is its only mutator. It runs
// Metropolis sweeps, synchronous Landau-Lifshitz-Gilbert steps and gradient
// descent over the same energy model, mixes two Hamiltonian channels with
// a thermodynamic-integration parameter lambda, and adds an optional
// metadynamics bias on the magnetization.
//
// Couplings are stored on the site that owns them and are one-directional:
// setting a coupling from i to j leaves j untouched. The energy bookkeeping
// assumes symmetric couplings, so callers set both directions.
//
// An Ensemble is not safe for concurrent use.
package sim

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/magmc/internal/metadynamics"
	"github.com/san-kum/magmc/internal/metrics"
	"github.com/san-kum/magmc/internal/rng"
	"github.com/san-kum/magmc/internal/spin"
	"github.com/san-kum/magmc/internal/terms"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// KB is the Boltzmann constant in eV/K.
	KB = 8.617333262145e-5
	// Hbar is the reduced Planck constant in eV fs.
	Hbar = 0.6582119569

	DefaultDamping = 8e-3
	DefaultDt      = 1e-3
)

type Ensemble struct {
	sites []*spin.Moment
	// dependents[j] lists the sites holding a coupling towards j.
	dependents [][]int
	selectable []int
	colors     [][]int

	src     *rng.Rand
	workers []*rng.Rand

	lambda float64
	total  r3.Vec

	stats      *metrics.RunningEnergy
	acceptance *metrics.Acceptance
	history    []float64
	bias       *metadynamics.Bias

	spinDynamics bool
	dynamics     spin.Dynamics
	rescale      bool

	debug          bool
	sweeps         int
	stepsPerSecond float64
}

// New creates an ensemble of n decoupled unit moments along +z driven by
// src. A nil src is replaced by a generator seeded with 0.
func New(n int, src *rng.Rand) *Ensemble {
	if src == nil {
		src = rng.New(0)
	}
	e := &Ensemble{
		src:        src,
		stats:      metrics.NewRunningEnergy(),
		acceptance: metrics.NewAcceptance(),
		bias:       metadynamics.New(),
		dynamics: spin.Dynamics{
			Gamma:   1 / Hbar,
			Dt:      DefaultDt,
			MuS:     1,
			Damping: DefaultDamping,
		},
	}
	e.CreateAtoms(n)
	return e
}

// CreateAtoms replaces every site by n decoupled moments and clears all
// statistics. Lambda, the bias and the run mode are kept.
func (e *Ensemble) CreateAtoms(n int) {
	n = max(n, 0)
	e.sites = make([]*spin.Moment, n)
	for i := range e.sites {
		e.sites[i] = spin.New()
	}
	e.dependents = make([][]int, n)
	e.selectable = make([]int, n)
	for i := range e.selectable {
		e.selectable[i] = i
	}
	e.colors = nil
	e.total = e.sumMoments()
	e.stats.Set(0, 0)
	e.Reset()
}

func (e *Ensemble) NumberOfAtoms() int { return len(e.sites) }

func (e *Ensemble) checkIndex(i int) error {
	if i < 0 || i >= len(e.sites) {
		return fmt.Errorf("index %d with %d sites: %w", i, len(e.sites), ErrIndexOutOfRange)
	}
	return nil
}

func checkChannel(channel int) error {
	if channel < 0 || channel >= spin.Channels {
		return fmt.Errorf("channel %d: %w", channel, ErrInvalidChannel)
	}
	return nil
}

// broadcast checks that values has one entry per item or a single entry
// shared by all, and returns the accessor.
func broadcast[T any](values []T, n int, what string) (func(int) T, error) {
	switch len(values) {
	case n:
		return func(i int) T { return values[i] }, nil
	case 1:
		return func(int) T { return values[0] }, nil
	}
	return nil, fmt.Errorf("%s: %d values for %d entries: %w", what, len(values), n, ErrLengthMismatch)
}

// SetLandauCoeff appends the on-site term coeffs[i]*|m_i|^degree to every
// site. coeffs holds one value per site or a single shared value.
func (e *Ensemble) SetLandauCoeff(coeffs []float64, degree, channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if _, err := terms.LandauTerm(degree); err != nil {
		return err
	}
	coeff, err := broadcast(coeffs, len(e.sites), "landau coefficients")
	if err != nil {
		return err
	}
	for i, a := range e.sites {
		if err := a.SetLandauCoeff(coeff(i), degree, channel); err != nil {
			return err
		}
	}
	return nil
}

// SetHeisenbergCoeff appends the pair term coeffs[k]*f(m_i[k], m_j[k]) to
// site i[k] for every k. Only the i side receives the term, and i[k] must
// differ from j[k].
func (e *Ensemble) SetHeisenbergCoeff(coeffs []float64, i, j []int, degree, channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if _, err := terms.ExchangeTerm(degree); err != nil {
		return err
	}
	if len(i) != len(j) {
		return fmt.Errorf("heisenberg pairs: %d sources, %d targets: %w", len(i), len(j), ErrLengthMismatch)
	}
	coeff, err := broadcast(coeffs, len(i), "heisenberg coefficients")
	if err != nil {
		return err
	}
	for k := range i {
		if err := e.checkIndex(i[k]); err != nil {
			return err
		}
		if err := e.checkIndex(j[k]); err != nil {
			return err
		}
		if i[k] == j[k] {
			return fmt.Errorf("heisenberg pair %d: site %d: %w", k, i[k], ErrSelfCoupling)
		}
	}
	for k := range i {
		if err := e.sites[i[k]].SetHeisenbergCoeff(j[k], coeff(k), degree, channel); err != nil {
			return err
		}
		if !slices.Contains(e.dependents[j[k]], i[k]) {
			e.dependents[j[k]] = append(e.dependents[j[k]], i[k])
		}
	}
	e.colors = nil
	return nil
}

func (e *Ensemble) ClearLandauCoeff(channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	for _, a := range e.sites {
		if err := a.ClearLandauCoeff(channel); err != nil {
			return err
		}
	}
	return nil
}

func (e *Ensemble) ClearHeisenbergCoeff(channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	for _, a := range e.sites {
		if err := a.ClearHeisenbergCoeff(channel); err != nil {
			return err
		}
	}
	e.rebuildDependents()
	return nil
}

func (e *Ensemble) rebuildDependents() {
	for j := range e.dependents {
		e.dependents[j] = e.dependents[j][:0]
	}
	for i, a := range e.sites {
		for c := 0; c < spin.Channels; c++ {
			for _, l := range a.Links(c) {
				if !slices.Contains(e.dependents[l.Site], i) {
					e.dependents[l.Site] = append(e.dependents[l.Site], i)
				}
			}
		}
	}
	e.colors = nil
}

// touch invalidates the caches of every site whose energy depends on i.
func (e *Ensemble) touch(i int) {
	for _, k := range e.dependents[i] {
		e.sites[k].Touch()
	}
}

// SetLambda sets the weight of channel 1 in the mixed Hamiltonian
// (1-lambda)*H0 + lambda*H1.
func (e *Ensemble) SetLambda(lambda float64) error {
	if !(lambda >= 0 && lambda <= 1) {
		return fmt.Errorf("lambda %g: %w", lambda, ErrInvalidLambda)
	}
	e.lambda = lambda
	return nil
}

func (e *Ensemble) Lambda() float64 { return e.lambda }

// SelectID restricts Monte Carlo sweeps to ids, visited in the given
// order. Other sites are frozen. Spin dynamics and gradient descent always
// act on every site. Each id may appear once.
func (e *Ensemble) SelectID(ids []int) error {
	seen := make(map[int]bool, len(ids))
	for _, i := range ids {
		if err := e.checkIndex(i); err != nil {
			return err
		}
		if seen[i] {
			return fmt.Errorf("select: site %d: %w", i, ErrDuplicateID)
		}
		seen[i] = true
	}
	e.selectable = slices.Clone(ids)
	e.colors = nil
	return nil
}

// SelectAll makes every site eligible for Monte Carlo sweeps again.
func (e *Ensemble) SelectAll() {
	ids := make([]int, len(e.sites))
	for i := range ids {
		ids[i] = i
	}
	e.selectable = ids
	e.colors = nil
}

func (e *Ensemble) Selected() []int { return slices.Clone(e.selectable) }

// SetProposalSteps sets the magnitude and orientation trial steps. Each
// slice holds one value per site or a single shared value.
func (e *Ensemble) SetProposalSteps(dm, dphi []float64) error {
	stepM, err := broadcast(dm, len(e.sites), "magnitude steps")
	if err != nil {
		return err
	}
	stepPhi, err := broadcast(dphi, len(e.sites), "orientation steps")
	if err != nil {
		return err
	}
	for i, a := range e.sites {
		a.SetProposal(stepM(i), stepPhi(i))
	}
	return nil
}

// SetMetadynamics activates the magnetization bias. The order parameter
// is |M|/n, or M_z/n for a double-sided bias.
func (e *Ensemble) SetMetadynamics(cfg metadynamics.Config) error {
	return e.bias.Set(cfg)
}

// SwitchSpinDynamics selects between Metropolis sweeps and LLG steps for
// subsequent runs. With rescale every step restores the previous |m_i|.
func (e *Ensemble) SwitchSpinDynamics(on bool, damping, dt float64, rescale bool) error {
	if on && (!(dt > 0) || !(damping >= 0)) {
		return fmt.Errorf("damping %g, dt %g: %w", damping, dt, ErrInvalidTimestep)
	}
	e.spinDynamics = on
	if on {
		e.dynamics.Damping = damping
		e.dynamics.Dt = dt
		e.rescale = rescale
	}
	return nil
}

func (e *Ensemble) SpinDynamics() bool { return e.spinDynamics }

// ActivateDebug enables a consistency check after every proposal. A failed
// check aborts the run with a *SiteError.
func (e *Ensemble) ActivateDebug(on bool) { e.debug = on }

// Reset clears the running statistics, all acceptance counters and the
// magnetization history. Moments and coefficients are kept.
func (e *Ensemble) Reset() {
	e.stats.Reset()
	e.acceptance.Reset()
	for _, a := range e.sites {
		a.ResetCounters()
	}
	e.history = nil
	e.sweeps = 0
}

// MagneticMoments returns all moments flattened as x0 y0 z0 x1 ...
func (e *Ensemble) MagneticMoments() []float64 {
	out := make([]float64, 0, 3*len(e.sites))
	for _, a := range e.sites {
		m := a.M()
		out = append(out, m.X, m.Y, m.Z)
	}
	return out
}

// SetMagneticMoments overwrites all moments from a flat slice of length 3n.
func (e *Ensemble) SetMagneticMoments(values []float64) error {
	if len(values) != 3*len(e.sites) {
		return fmt.Errorf("moments: %d values for %d sites: %w", len(values), len(e.sites), ErrLengthMismatch)
	}
	for i, a := range e.sites {
		a.SetM(r3.Vec{X: values[3*i], Y: values[3*i+1], Z: values[3*i+2]})
	}
	e.resync()
	return nil
}

// SetMagnitudes rescales every moment to values[i], reversing it where
// flip[i] is set. old[i] is the reference length the pending move is
// measured from; a nil old uses the current lengths and a nil flip keeps
// every orientation. Each slice holds one entry per site or a single
// shared entry.
func (e *Ensemble) SetMagnitudes(values, old []float64, flip []bool) error {
	n := len(e.sites)
	abs, err := broadcast(values, n, "magnitudes")
	if err != nil {
		return err
	}
	ref := func(i int) float64 { return e.sites[i].Magnitude(1, false) }
	if old != nil {
		if ref, err = broadcast(old, n, "previous magnitudes"); err != nil {
			return err
		}
	}
	reverse := func(int) bool { return false }
	if flip != nil {
		if reverse, err = broadcast(flip, n, "flips"); err != nil {
			return err
		}
	}
	for i, a := range e.sites {
		a.SetMagnitude(abs(i), ref(i), reverse(i))
	}
	for i := range e.sites {
		e.touch(i)
	}
	e.resync()
	return nil
}

// MagneticGradients returns dE/dm_i under the current lambda, including
// the bias force, flattened like MagneticMoments.
func (e *Ensemble) MagneticGradients() []float64 {
	field := e.biasField()
	out := make([]float64, 0, 3*len(e.sites))
	for _, a := range e.sites {
		g := r3.Add(a.Gradient(e.lambda, e.sites), field)
		out = append(out, g.X, g.Y, g.Z)
	}
	return out
}

// Energy recomputes the system energy sum_i [L_i + H_i/2] of a channel.
func (e *Ensemble) Energy(channel int) (float64, error) {
	if err := checkChannel(channel); err != nil {
		return 0, err
	}
	return e.energy(channel), nil
}

func (e *Ensemble) energy(channel int) float64 {
	total := 0.0
	for _, a := range e.sites {
		total += 0.5 * (a.E(channel, e.sites, true) + a.OnSite(channel))
	}
	return total
}

// CurrentEnergy returns the incrementally tracked energy of a channel.
func (e *Ensemble) CurrentEnergy(channel int) float64 { return e.stats.Current(channel) }

func (e *Ensemble) MeanEnergy(channel int) float64     { return e.stats.Mean(channel) }
func (e *Ensemble) EnergyVariance(channel int) float64 { return e.stats.Variance(channel) }

// MeanEnergyDifference is <E1 - E0>, the integrand of thermodynamic
// integration at the current lambda.
func (e *Ensemble) MeanEnergyDifference() float64 { return e.stats.MeanDifference() }

func (e *Ensemble) Samples() int { return e.stats.Count() }

// AcceptanceRatio is accepted over attempted moves across all sites.
func (e *Ensemble) AcceptanceRatio() float64 { return e.acceptance.Value() }

func (e *Ensemble) AcceptanceRatios() []float64 {
	out := make([]float64, len(e.sites))
	for i, a := range e.sites {
		out[i] = a.AcceptanceRatio()
	}
	return out
}

// StepsPerSecond reports site updates per second of the last run.
func (e *Ensemble) StepsPerSecond() float64 { return e.stepsPerSecond }

// Magnetization returns the order parameter recorded after each sweep
// since the last Reset.
func (e *Ensemble) Magnetization() []float64 { return slices.Clone(e.history) }

// OrderParameter is the current value of the quantity the bias acts on.
func (e *Ensemble) OrderParameter() float64 { return e.order(e.total) }

// TotalMoment returns sum_i m_i.
func (e *Ensemble) TotalMoment() r3.Vec { return e.total }

// Histogram samples the bias potential; it is empty without a bias.
func (e *Ensemble) Histogram(resolution int) (x, v []float64) {
	return e.bias.Histogram(resolution)
}

func (e *Ensemble) FreeEnergy(resolution int) (x, f []float64) {
	return e.bias.FreeEnergy(resolution)
}

func (e *Ensemble) sumMoments() r3.Vec {
	var m r3.Vec
	for _, a := range e.sites {
		m = r3.Add(m, a.M())
	}
	return m
}

// resync recomputes the tracked magnetization and energies from scratch.
func (e *Ensemble) resync() {
	e.total = e.sumMoments()
	e.stats.Set(e.energy(0), e.energy(1))
}

// order maps a total moment to the order parameter of the bias.
func (e *Ensemble) order(total r3.Vec) float64 {
	n := float64(max(len(e.sites), 1))
	if e.bias.DoubleSided() {
		return total.Z / n
	}
	return r3.Norm(total) / n
}

// biasField is the bias force on any single moment, d(n*V(x))/dm_i.
func (e *Ensemble) biasField() r3.Vec {
	if !e.bias.Initialized() {
		return r3.Vec{}
	}
	g := e.bias.Gradient(e.order(e.total))
	if e.bias.DoubleSided() {
		return r3.Vec{Z: g}
	}
	norm := r3.Norm(e.total)
	if norm == 0 || math.IsNaN(norm) {
		return r3.Vec{}
	}
	return r3.Scale(g/norm, e.total)
}
