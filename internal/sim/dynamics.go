package sim

import (
	"math"
	"time"
)

// runSpinDynamics advances all sites by one synchronous LLG step per
// iteration. Every site is staged against the same snapshot before any
// moment is committed.
func (e *Ensemble) runSpinDynamics(iterations, threads int) (int, error) {
	n := len(e.sites)
	for it := 0; it < iterations; it++ {
		p := e.dynamics
		p.Lambda = e.lambda
		p.Field = e.biasField()

		parallelFor(n, threads, func(_, start, end int) {
			for _, a := range e.sites[start:end] {
				a.CalcSpinDynamics(p, e.sites)
			}
		})
		parallelFor(n, threads, func(_, start, end int) {
			for _, a := range e.sites[start:end] {
				a.UpdateSpinDynamics(e.rescale)
			}
		})

		e.resync()
		e.endSweep()
	}
	return iterations * n, nil
}

// RunGradientDescent relaxes every site along the mixed energy gradient,
// one site after the other. The step shrinks by the factor (1 - decrement)
// after each iteration and the loop stops once the residual, the norm of
// the stacked per-site gradients, drops below diff. It returns the last
// residual, measured before the final update.
func (e *Ensemble) RunGradientDescent(iterations int, step, decrement, diff float64) float64 {
	start := time.Now()
	residual := math.Inf(1)
	it := 0
	for ; it < iterations; it++ {
		field := e.biasField()
		sq := 0.0
		for i, a := range e.sites {
			g := a.RunGradientDescent(step, e.lambda, field, e.sites)
			e.touch(i)
			sq += g * g
		}
		residual = math.Sqrt(sq)
		e.total = e.sumMoments()
		if residual < diff {
			it++
			break
		}
		step *= 1 - decrement
	}
	e.resync()
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		e.stepsPerSecond = float64(it*len(e.sites)) / elapsed
	}
	return residual
}
