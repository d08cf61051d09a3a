// Package spin implements the per-site state machine of the Monte Carlo
// engine.
//
// A [Moment] owns one magnetic moment vector together with its on-site
// (Landau) and pair (Heisenberg) term lists for two Hamiltonian channels.
// Pair partners are referenced by index into the site slice owned by the
// ensemble; every method that needs a partner state takes that slice.
//
// # Lifecycle of a move
//
//	a.Propose(src)         // m_prev <- m, m <- trial
//	dE := a.DE(0, sites, false)
//	if accept {
//	    a.Accept()
//	} else {
//	    a.Revoke()         // m <- m_prev, caches restored
//	}
//
// Energy caches are memoised per channel and invalidated on every change of
// the moment itself. A partner's change is not tracked here: the owner of
// the site slice calls [Moment.Touch] on every site coupled to a moved one.
//
// # Thread Safety
//
// A Moment has a single writer. Concurrent proposals on different moments
// are safe only when none of them is a pair partner of another.
package spin
