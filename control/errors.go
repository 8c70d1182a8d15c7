package control

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSaturation is matched by every *SaturationError
	ErrSaturation = errors.New("control signal would leave the actuator range")

	// ErrInvalidInput is generated when a control call is configured in a way
	// that cannot work, such as an odd number of points for a symmetric gain
	// estimate
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoHardware is generated when a Handle is missing its wavemeter or actuator
	ErrNoHardware = errors.New("handle needs both a wavemeter and an actuator")
)

// SaturationError is returned when the next signal computed by a control loop
// falls outside [0, Max].  The actuator is left at Signal.
type SaturationError struct {
	// Signal is the last signal that was applied, in mV
	Signal float64

	// Step is the increment that was rejected, in mV
	Step float64

	// Candidate is Signal+Step
	Candidate float64

	// Max is the upper bound of the actuator
	Max float64
}

func (e *SaturationError) Error() string {
	return fmt.Sprintf("signal %.4f mV + step %.4f mV = %.4f mV, outside [0, %g]",
		e.Signal, e.Step, e.Candidate, e.Max)
}

// Is makes errors.Is(err, ErrSaturation) true
func (e *SaturationError) Is(target error) bool {
	return target == ErrSaturation
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
