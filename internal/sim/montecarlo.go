package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/magmc/internal/rng"
	"gonum.org/v1/gonum/spatial/r3"
)

// Run performs iterations sweeps at temperature (K). In Metropolis mode a
// sweep visits every selected site once, in selection order; in
// spin-dynamics mode it is one synchronous LLG step of all sites.
//
// threads > 1 splits Metropolis sweeps over a colouring of the coupling
// graph so that no two sites updated at once are coupled. Biased and debug
// runs are always sequential. LLG steps split their stage and commit
// phases over threads.
func (e *Ensemble) Run(temperature float64, iterations, threads int) error {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) || temperature < 0 {
		return fmt.Errorf("temperature %g: %w", temperature, ErrInvalidTemperature)
	}
	if iterations < 0 {
		return fmt.Errorf("iterations %d: %w", iterations, ErrInvalidIterations)
	}
	threads = max(threads, 1)
	e.resync()

	start := time.Now()
	var steps int
	var err error
	if e.spinDynamics {
		steps, err = e.runSpinDynamics(iterations, threads)
	} else {
		steps, err = e.runMetropolis(temperature, iterations, threads)
	}
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		e.stepsPerSecond = float64(steps) / elapsed
	}
	return err
}

func (e *Ensemble) runMetropolis(temperature float64, iterations, threads int) (int, error) {
	parallel := threads > 1 && !e.debug && !e.bias.Initialized()
	if parallel && len(e.workers) < threads {
		e.workers = e.src.Spawn(threads)
	}
	steps := 0
	for it := 0; it < iterations; it++ {
		if parallel {
			e.parallelSweep(temperature, threads)
		} else if err := e.sweep(temperature); err != nil {
			return steps, err
		}
		steps += len(e.selectable)
		e.endSweep()
	}
	return steps, nil
}

// endSweep records the per-sweep observables and deposits a bias kernel.
func (e *Ensemble) endSweep() {
	x := e.order(e.total)
	e.bias.Append(x)
	e.history = append(e.history, x)
	e.stats.Record()
	e.sweeps++
}

func (e *Ensemble) sweep(temperature float64) error {
	for _, i := range e.selectable {
		if err := e.step(i, temperature); err != nil {
			return err
		}
	}
	return nil
}

// step proposes, tests and commits or revokes one move of site i.
func (e *Ensemble) step(i int, temperature float64) error {
	a := e.sites[i]
	a.Propose(e.src)
	e.touch(i)
	if e.debug {
		if err := a.CheckConsistency(e.sites); err != nil {
			a.Revoke()
			e.touch(i)
			return &SiteError{Sweep: e.sweeps, Site: i, Wrapped: err}
		}
	}

	d0 := a.DE(0, e.sites, false)
	d1 := a.DE(1, e.sites, false)
	dE := (1-e.lambda)*d0 + e.lambda*d1

	moved := r3.Sub(a.M(), a.Prev())
	next := r3.Add(e.total, moved)
	if e.bias.Initialized() {
		dE += e.bias.Delta(e.order(next), e.order(e.total), float64(len(e.sites)))
	}

	if metropolis(dE, temperature, e.src) {
		a.Accept()
		e.total = next
		e.stats.Shift(0, d0)
		e.stats.Shift(1, d1)
		e.acceptance.Observe(true)
		return nil
	}
	a.Revoke()
	e.touch(i)
	e.acceptance.Observe(false)
	return nil
}

// metropolis reports whether a move changing the energy by dE (eV) is
// accepted at temperature (K). At zero temperature only non-increasing
// moves pass.
func metropolis(dE, temperature float64, src rng.Source) bool {
	if dE <= 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return src.Uniform(false, 1) < math.Exp(-dE/(KB*temperature))
}
