package sim

import (
	"sync"

	"github.com/san-kum/magmc/internal/rng"
	"github.com/san-kum/magmc/internal/spin"
	"gonum.org/v1/gonum/spatial/r3"
)

// parallelFor runs fn over [0, n) split into at most workers contiguous
// chunks. fn receives the index of its chunk.
func parallelFor(n, workers int, fn func(worker, start, end int)) {
	if n == 0 {
		return
	}
	workers = max(min(workers, n), 1)
	if workers == 1 {
		fn(0, 0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		if start >= n {
			break
		}
		end := min(start+chunkSize, n)

		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			fn(w, s, e)
		}(w, start, end)
	}
	wg.Wait()
}

// colorSelected partitions the selected sites into classes with no
// coupling in either direction between members of the same class. Frozen
// sites never move and impose no constraint.
func (e *Ensemble) colorSelected() [][]int {
	color := make(map[int]int, len(e.selectable))
	var classes [][]int
	for _, i := range e.selectable {
		if _, done := color[i]; done {
			continue
		}
		used := make(map[int]bool)
		for _, k := range e.coupled(i) {
			if c, ok := color[k]; ok {
				used[c] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		color[i] = c
		if c == len(classes) {
			classes = append(classes, nil)
		}
		classes[c] = append(classes[c], i)
	}
	return classes
}

// coupled lists the sites sharing a coupling with i in either direction.
func (e *Ensemble) coupled(i int) []int {
	out := append([]int(nil), e.dependents[i]...)
	for c := 0; c < spin.Channels; c++ {
		for _, l := range e.sites[i].Links(c) {
			out = append(out, l.Site)
		}
	}
	return out
}

// partial collects what one worker changed during a colour phase.
type partial struct {
	d0, d1             float64
	moment             r3.Vec
	accepted, attempts int64
	moved              []int
}

func (p *partial) reset() {
	p.d0, p.d1 = 0, 0
	p.moment = r3.Vec{}
	p.accepted, p.attempts = 0, 0
	p.moved = p.moved[:0]
}

// parallelSweep updates one colour class at a time. Within a class every
// site reads only partners that do not move, so workers share no mutable
// state; cache invalidation and the tracked observables are merged after
// each class.
func (e *Ensemble) parallelSweep(temperature float64, threads int) {
	if e.colors == nil {
		e.colors = e.colorSelected()
	}
	parts := make([]partial, threads)
	for _, class := range e.colors {
		for w := range parts {
			parts[w].reset()
		}
		parallelFor(len(class), threads, func(w, start, end int) {
			p, src := &parts[w], e.workers[w]
			for _, i := range class[start:end] {
				e.trial(p, i, temperature, src)
			}
		})
		for w := range parts {
			p := &parts[w]
			e.total = r3.Add(e.total, p.moment)
			e.stats.Shift(0, p.d0)
			e.stats.Shift(1, p.d1)
			e.acceptance.Merge(p.accepted, p.attempts)
			for _, i := range p.moved {
				e.touch(i)
			}
		}
	}
}

func (e *Ensemble) trial(p *partial, i int, temperature float64, src *rng.Rand) {
	a := e.sites[i]
	a.Propose(src)
	p.attempts++

	d0 := a.DE(0, e.sites, false)
	d1 := a.DE(1, e.sites, false)
	if metropolis((1-e.lambda)*d0+e.lambda*d1, temperature, src) {
		a.Accept()
		p.accepted++
		p.d0 += d0
		p.d1 += d1
		p.moment = r3.Add(p.moment, r3.Sub(a.M(), a.Prev()))
		p.moved = append(p.moved, i)
		return
	}
	a.Revoke()
}
