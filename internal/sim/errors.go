package sim

import (
	"errors"
	"fmt"

	"github.com/san-kum/magmc/internal/spin"
	"github.com/san-kum/magmc/internal/terms"
)

// Configuration errors are returned by the setter that received the bad
// input; nothing is applied when a setter fails.
var (
	// ErrLengthMismatch indicates parallel argument slices of different length.
	ErrLengthMismatch = errors.New("sim: argument length mismatch")

	// ErrIndexOutOfRange indicates a site index outside [0, n).
	ErrIndexOutOfRange = errors.New("sim: site index out of range")

	// ErrSelfCoupling indicates a pair term linking a site to itself.
	ErrSelfCoupling = errors.New("sim: site coupled to itself")

	// ErrDuplicateID indicates a site selected more than once.
	ErrDuplicateID = errors.New("sim: duplicate site id")

	// ErrInvalidLambda indicates a mixing parameter outside [0, 1].
	ErrInvalidLambda = errors.New("sim: lambda outside [0, 1]")

	// ErrInvalidTemperature indicates a negative or non-finite temperature.
	ErrInvalidTemperature = errors.New("sim: invalid temperature")

	// ErrInvalidIterations indicates a negative sweep count.
	ErrInvalidIterations = errors.New("sim: negative iteration count")

	// ErrInvalidTimestep indicates a non-positive spin-dynamics timestep or
	// a negative damping.
	ErrInvalidTimestep = errors.New("sim: invalid spin dynamics parameters")

	ErrInvalidChannel = spin.ErrInvalidChannel
	ErrInvalidDegree  = terms.ErrInvalidDegree
)

// SiteError reports a failed consistency check during a debug run.
type SiteError struct {
	Sweep   int
	Site    int
	Wrapped error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("sim: site %d in sweep %d: %v", e.Site, e.Sweep, e.Wrapped)
}

func (e *SiteError) Unwrap() error {
	return e.Wrapped
}
