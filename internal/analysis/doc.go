// Package analysis post-processes Monte Carlo and spin-dynamics traces.
//
// The package includes:
//
//   - [ThermodynamicIntegration]: free-energy difference from a lambda scan
//   - [Autocorrelation] and [IntegratedTime]: correlation of a sampled trace
//   - [StandardError]: error of a correlated mean
//   - [PowerSpectrum] and [DominantFrequency]: precession frequency of a
//     spin-dynamics trajectory
//
// # Free-Energy Differences
//
// Sampling <E1 - E0> at a set of lambda values and integrating over lambda
// gives F1 - F0:
//
//	dF, err := analysis.ThermodynamicIntegration(lambdas, meanDifferences)
package analysis
