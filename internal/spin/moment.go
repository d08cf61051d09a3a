package spin

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/magmc/internal/rng"
	"github.com/san-kum/magmc/internal/terms"
	"gonum.org/v1/gonum/spatial/r3"
)

// Channels is the number of Hamiltonians a moment carries for
// thermodynamic integration.
const Channels = 2

const consistencyTolerance = 1e-8

var (
	ErrInvalidChannel = errors.New("spin: channel out of range")
	ErrInconsistent   = errors.New("spin: cached energy diverged from recomputation")
	ErrNonFinite      = errors.New("spin: non-finite moment")
)

type onsite struct {
	coeff float64
	term  terms.Magnitude
}

// Link couples a moment to the partner stored at index Site.
type Link struct {
	Site  int
	Coeff float64
	Term  terms.Product
}

type Moment struct {
	m, prev      r3.Vec
	abs, absPrev float64
	staged       r3.Vec

	energy      [Channels]float64
	delta       [Channels]float64
	energyFresh [Channels]bool
	deltaFresh  [Channels]bool

	savedEnergy [Channels]float64
	savedFresh  [Channels]bool
	pending     bool

	landau [Channels][]onsite
	links  [Channels][]Link

	dm, dphi float64

	accepted, attempts int
}

// New returns a decoupled unit moment along +z.
func New() *Moment {
	up := r3.Vec{Z: 1}
	return &Moment{m: up, prev: up, abs: 1, absPrev: 1, dm: 0.1}
}

func (a *Moment) M() r3.Vec    { return a.m }
func (a *Moment) Prev() r3.Vec { return a.prev }

// Magnitude returns |m|^exponent, or the pre-move value when old is set.
func (a *Moment) Magnitude(exponent int, old bool) float64 {
	x := a.abs
	if old {
		x = a.absPrev
	}
	return math.Pow(x, float64(exponent))
}

// Pending reports whether a proposal is awaiting Accept or Revoke.
func (a *Moment) Pending() bool { return a.pending }

// SetM overwrites the moment and discards any pending proposal.
func (a *Moment) SetM(v r3.Vec) {
	a.m, a.prev = v, v
	a.abs = r3.Norm(v)
	a.absPrev = a.abs
	a.pending = false
	a.Touch()
}

// SetProposal sets the trial step sizes: dm for magnitude moves (used only
// when the site has a Landau term) and dphi for orientation moves; dphi <= 0
// redraws the orientation uniformly on the sphere.
func (a *Moment) SetProposal(dm, dphi float64) {
	a.dm, a.dphi = dm, dphi
}

// Touch invalidates the energy caches. It must be called whenever a pair
// partner changes its moment.
func (a *Moment) Touch() {
	for c := 0; c < Channels; c++ {
		a.energyFresh[c] = false
		a.deltaFresh[c] = false
	}
}

func (a *Moment) begin() {
	a.prev, a.absPrev = a.m, a.abs
	a.savedEnergy, a.savedFresh = a.energy, a.energyFresh
	a.pending = true
}

// Propose replaces m by a trial state drawn from src, keeping the current
// state for Revoke.
func (a *Moment) Propose(src rng.Source) {
	a.begin()
	a.attempts++

	abs := a.abs
	if a.dm > 0 && a.HasLandau() {
		abs = math.Abs(abs + a.dm*src.Uniform(true, 1))
	}

	var dir r3.Vec
	if a.dphi > 0 && a.abs > 0 {
		dir = r3.Unit(r3.Add(r3.Scale(1/a.abs, a.m), r3.Scale(a.dphi, sphere(src))))
	} else {
		dir = sphere(src)
	}

	a.m = r3.Scale(abs, dir)
	a.abs = abs
	a.Touch()
}

// Accept commits the pending proposal.
func (a *Moment) Accept() {
	a.pending = false
	a.accepted++
}

// Revoke restores the state held before the last Propose or SetMagnitude.
// Calling it without a pending proposal is a programming error and panics.
func (a *Moment) Revoke() {
	if !a.pending {
		panic("spin: Revoke called without a pending proposal")
	}
	a.m, a.abs = a.prev, a.absPrev
	a.energy, a.energyFresh = a.savedEnergy, a.savedFresh
	for c := 0; c < Channels; c++ {
		a.deltaFresh[c] = false
	}
	a.pending = false
}

// SetMagnitude rescales m to newValue, reversing it when flip is set, and
// leaves a pending move whose reference state is the current orientation
// at length oldValue. DE then measures the change between the two lengths
// and Revoke returns to the reference.
func (a *Moment) SetMagnitude(newValue, oldValue float64, flip bool) {
	dir := r3.Vec{Z: 1}
	if a.abs > 0 {
		dir = r3.Scale(1/a.abs, a.m)
	}
	a.begin()
	a.prev = r3.Scale(oldValue, dir)
	a.absPrev = math.Abs(oldValue)
	a.savedFresh = [Channels]bool{}
	if flip {
		dir = r3.Scale(-1, dir)
	}
	a.m = r3.Scale(newValue, dir)
	a.abs = math.Abs(newValue)
	a.Touch()
}

func (a *Moment) AcceptanceRatio() float64 {
	if a.attempts == 0 {
		return 0
	}
	return float64(a.accepted) / float64(a.attempts)
}

func (a *Moment) ResetCounters() {
	a.accepted, a.attempts = 0, 0
}

func sphere(src rng.Source) r3.Vec {
	v := src.OnSphere(3)
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func checkChannel(c int) error {
	if c < 0 || c >= Channels {
		return fmt.Errorf("channel %d: %w", c, ErrInvalidChannel)
	}
	return nil
}
