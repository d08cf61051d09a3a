// Package metadynamics implements a one-dimensional history-dependent bias
// potential over an order parameter.
//
// Every call to [Bias.Append] deposits a Gaussian kernel at the visited
// value; the accumulated potential discourages the chain from revisiting
// it. The potential is stored on a fixed grid and read back by linear
// interpolation.
package metadynamics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var ErrInvalidConfig = errors.New("metadynamics: invalid configuration")

type Config struct {
	// MaxRange bounds the grid to [-MaxRange, MaxRange] when DoubleSided,
	// else [0, MaxRange].
	MaxRange        float64
	EnergyIncrement float64
	LengthScale     float64
	Bins            int
	// Cutoff is the kernel support in units of LengthScale.
	Cutoff      float64
	DoubleSided bool
	// UseDerivative approximates bias changes by V'(x_old)*(x_new-x_old).
	UseDerivative bool
}

func DefaultConfig(maxRange float64) Config {
	return Config{
		MaxRange:        maxRange,
		EnergyIncrement: 0.001,
		LengthScale:     maxRange / 100,
		Bins:            1000,
		Cutoff:          3,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxRange <= 0:
		return fmt.Errorf("max range %g must be positive: %w", c.MaxRange, ErrInvalidConfig)
	case c.LengthScale <= 0:
		return fmt.Errorf("length scale %g must be positive: %w", c.LengthScale, ErrInvalidConfig)
	case c.Bins < 2:
		return fmt.Errorf("need at least 2 bins, got %d: %w", c.Bins, ErrInvalidConfig)
	case c.Cutoff <= 0:
		return fmt.Errorf("cutoff %g must be positive: %w", c.Cutoff, ErrInvalidConfig)
	case c.EnergyIncrement < 0:
		return fmt.Errorf("energy increment %g must not be negative: %w", c.EnergyIncrement, ErrInvalidConfig)
	}
	return nil
}

type Bias struct {
	hist          []float64
	lo, hi, dx    float64
	denominator   float64
	height        float64
	cutoff        float64
	doubleSided   bool
	useDerivative bool
	initialized   bool
	deposits      int
}

// New returns an uninitialized bias; it contributes nothing until Set.
func New() *Bias {
	return &Bias{}
}

// Set configures the grid and kernel and clears any accumulated potential.
func (b *Bias) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.lo, b.hi = 0, cfg.MaxRange
	if cfg.DoubleSided {
		b.lo = -cfg.MaxRange
	}
	b.hist = make([]float64, cfg.Bins)
	b.dx = (b.hi - b.lo) / float64(cfg.Bins-1)
	b.denominator = 2 * cfg.LengthScale * cfg.LengthScale
	b.height = cfg.EnergyIncrement
	b.cutoff = cfg.Cutoff * cfg.LengthScale
	b.doubleSided = cfg.DoubleSided
	b.useDerivative = cfg.UseDerivative
	b.deposits = 0
	b.initialized = true
	return nil
}

func (b *Bias) Initialized() bool { return b.initialized }
func (b *Bias) DoubleSided() bool { return b.doubleSided }
func (b *Bias) Deposits() int     { return b.deposits }

func (b *Bias) clamp(x float64) float64 {
	return math.Max(b.lo, math.Min(b.hi, x))
}

func (b *Bias) iMin(x float64) int {
	return max(0, int(math.Ceil((x-b.cutoff-b.lo)/b.dx)))
}

func (b *Bias) iMax(x float64) int {
	return min(len(b.hist)-1, int(math.Floor((x+b.cutoff-b.lo)/b.dx)))
}

// Append deposits one kernel centred at x, touching only the bins inside
// the kernel support. A NaN centre deposits nothing.
func (b *Bias) Append(x float64) {
	if !b.initialized || math.IsNaN(x) {
		return
	}
	x = b.clamp(x)
	for i := b.iMin(x); i <= b.iMax(x); i++ {
		d := x - (b.lo + float64(i)*b.dx)
		b.hist[i] += b.height * math.Exp(-d*d/b.denominator)
	}
	b.deposits++
}

// Energy returns scale times the potential at x. Values beyond the grid
// read the boundary bin. NaN propagates.
func (b *Bias) Energy(x, scale float64) float64 {
	if !b.initialized {
		return 0
	}
	if math.IsNaN(x) {
		return math.NaN()
	}
	t := (b.clamp(x) - b.lo) / b.dx
	i := int(t)
	if i >= len(b.hist)-1 {
		return scale * b.hist[len(b.hist)-1]
	}
	frac := t - float64(i)
	return scale * (b.hist[i]*(1-frac) + b.hist[i+1]*frac)
}

// Gradient returns dV/dx at x; it is zero outside the grid where the
// potential saturates.
func (b *Bias) Gradient(x float64) float64 {
	if !b.initialized || x < b.lo || x > b.hi {
		return 0
	}
	if math.IsNaN(x) {
		return math.NaN()
	}
	i := min(int((x-b.lo)/b.dx), len(b.hist)-2)
	return (b.hist[i+1] - b.hist[i]) / b.dx
}

// Delta is the scaled bias change for a move of the order parameter from
// xOld to xNew.
func (b *Bias) Delta(xNew, xOld, scale float64) float64 {
	if !b.initialized {
		return 0
	}
	if b.useDerivative {
		return scale * b.Gradient(xOld) * (xNew - xOld)
	}
	return b.Energy(xNew, scale) - b.Energy(xOld, scale)
}

// Histogram samples the potential on resolution evenly spaced points
// spanning the grid.
func (b *Bias) Histogram(resolution int) (x, v []float64) {
	if !b.initialized {
		return nil, nil
	}
	if resolution < 2 {
		resolution = len(b.hist)
	}
	x = floats.Span(make([]float64, resolution), b.lo, b.hi)
	v = make([]float64, resolution)
	for i, xi := range x {
		v[i] = b.Energy(xi, 1)
	}
	return x, v
}

// FreeEnergy estimates the free-energy profile as the negated potential.
func (b *Bias) FreeEnergy(resolution int) (x, f []float64) {
	x, f = b.Histogram(resolution)
	floats.Scale(-1, f)
	return x, f
}
