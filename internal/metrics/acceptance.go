package metrics

// Acceptance counts accepted Metropolis moves.
type Acceptance struct {
	accepted int64
	attempts int64
}

func NewAcceptance() *Acceptance {
	return &Acceptance{}
}

func (a *Acceptance) Name() string { return "acceptance" }

func (a *Acceptance) Observe(accepted bool) {
	a.attempts++
	if accepted {
		a.accepted++
	}
}

func (a *Acceptance) Attempts() int64 { return a.attempts }

func (a *Acceptance) Value() float64 {
	if a.attempts == 0 {
		return 0
	}
	return float64(a.accepted) / float64(a.attempts)
}

func (a *Acceptance) Reset() {
	a.accepted = 0
	a.attempts = 0
}

// Merge folds counts gathered elsewhere, e.g. by a parallel worker.
func (a *Acceptance) Merge(accepted, attempts int64) {
	a.accepted += accepted
	a.attempts += attempts
}
