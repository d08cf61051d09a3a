package analysis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/integrate"
)

var (
	ErrTooFewPoints = errors.New("analysis: need at least two points")
	ErrUnsorted     = errors.New("analysis: abscissae must be strictly increasing")
	ErrLength       = errors.New("analysis: abscissae and values differ in length")
)

// ThermodynamicIntegration integrates <dH/dlambda> = <E1 - E0> over lambda
// with the trapezoidal rule.
func ThermodynamicIntegration(lambdas, integrand []float64) (float64, error) {
	if len(lambdas) != len(integrand) {
		return 0, fmt.Errorf("%d lambdas, %d values: %w", len(lambdas), len(integrand), ErrLength)
	}
	if len(lambdas) < 2 {
		return 0, ErrTooFewPoints
	}
	for i := 1; i < len(lambdas); i++ {
		if lambdas[i] <= lambdas[i-1] {
			return 0, fmt.Errorf("lambda[%d] = %g after %g: %w", i, lambdas[i], lambdas[i-1], ErrUnsorted)
		}
	}
	return integrate.Trapezoidal(lambdas, integrand), nil
}
