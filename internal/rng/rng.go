// Package rng supplies the random-number capability consumed by the
// Monte Carlo engine.
//
// The engine only needs three draws: uniform reals, standard-normal reals
// and uniformly distributed points on a unit sphere. [Source] captures that
// contract so an ensemble can be driven by any generator; [Rand] is the
// seeded default.
package rng

import (
	"math"
	"math/rand"
)

// Source is the random capability required by the engine.
type Source interface {
	// Uniform returns a value in [-max, max) when symmetric, else [0, max).
	Uniform(symmetric bool, max float64) float64
	// Normal returns a standard-normal sample.
	Normal() float64
	// OnSphere returns a point uniformly distributed on the unit sphere in
	// dim dimensions, or nil when dim < 1.
	OnSphere(dim int) []float64
}

// Rand is a seeded Source. It is not safe for concurrent use; parallel
// workers take their own stream from Spawn.
type Rand struct {
	seed int64
	r    *rand.Rand
}

func New(seed int64) *Rand {
	return &Rand{seed: seed, r: rand.New(rand.NewSource(seed))}
}

func (g *Rand) Seed() int64 { return g.seed }

func (g *Rand) Uniform(symmetric bool, max float64) float64 {
	if symmetric {
		return max * (2*g.r.Float64() - 1)
	}
	return max * g.r.Float64()
}

func (g *Rand) Normal() float64 {
	return g.r.NormFloat64()
}

func (g *Rand) OnSphere(dim int) []float64 {
	if dim < 1 {
		return nil
	}
	v := make([]float64, dim)
	for {
		norm := 0.0
		for i := range v {
			v[i] = g.r.NormFloat64()
			norm += v[i] * v[i]
		}
		if norm > 1e-24 {
			norm = math.Sqrt(norm)
			for i := range v {
				v[i] /= norm
			}
			return v
		}
	}
}

// Spawn derives n independent generators whose seeds are drawn from g, so
// a fixed parent seed reproduces the whole family.
func (g *Rand) Spawn(n int) []*Rand {
	out := make([]*Rand, n)
	for i := range out {
		out[i] = New(g.r.Int63())
	}
	return out
}
