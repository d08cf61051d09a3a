// Package viz provides a terminal view of a running Monte Carlo chain.
//
// [Model] is a Bubble Tea program that advances an [sim.Ensemble] a few
// sweeps per frame and draws the in-plane projection of every moment on a
// braille [Canvas], next to energy and order-parameter graphs.
//
// # Key Bindings
//
//	Space - Pause/Resume sampling
//	Up/K  - Raise temperature (+10%)
//	Down/J- Lower temperature (-10%)
//	+/-   - More/fewer sweeps per frame
//	R     - Reset statistics
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz
