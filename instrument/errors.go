package instrument

import (
	"errors"
	"fmt"
)

// ReadError is a fault reported instead of a wavemeter reading.  The codes
// follow the convention of HighFinesse meters, where a reading <= 0 is an
// error code rather than a value.
type ReadError int

// SetError is a fault reported when a set-point or setting is rejected
type SetError int

// Codes a wavemeter reports instead of a reading
const (
	// ErrNoValue means no measurement is available yet
	ErrNoValue ReadError = 0

	// ErrNoSignal means no light reaches the meter
	ErrNoSignal ReadError = -1

	// ErrBadSignal means the interferogram cannot be evaluated
	ErrBadSignal ReadError = -2

	// ErrLowSignal means the signal is too weak for a reliable result
	ErrLowSignal ReadError = -3

	// ErrBigSignal means the detector is saturated
	ErrBigSignal ReadError = -4

	// ErrMeterMissing means the meter is not running
	ErrMeterMissing ReadError = -5

	// ErrNotAvailable means the channel does not exist on this meter
	ErrNotAvailable ReadError = -6

	// ErrNoPulse means a pulsed signal could not be separated into pulses
	ErrNoPulse ReadError = -8
)

// Codes a device returns when a setting is rejected
const (
	// ErrWlmMissing means the meter is not instantiated
	ErrWlmMissing SetError = -1

	// ErrCouldNotSet means the value was not applied
	ErrCouldNotSet SetError = -2

	// ErrOutOfRange means the value lies outside the device range
	ErrOutOfRange SetError = -3

	// ErrOutOfResources means the device ran out of memory or handles
	ErrOutOfResources SetError = -4

	// ErrInternal is a device internal error
	ErrInternal SetError = -5

	// ErrSetNotAvailable means the channel does not exist on this device
	ErrSetNotAvailable SetError = -6

	// ErrBusy means the device is busy with another request
	ErrBusy SetError = -7

	// ErrNotInMeasurement means the setting needs measurement mode
	ErrNotInMeasurement SetError = -8

	// ErrOnlyInMeasurement means the setting is only allowed while measuring
	ErrOnlyInMeasurement SetError = -9

	// ErrChannelUnavailable means the channel is not available
	ErrChannelUnavailable SetError = -10

	// ErrChannelTempUnavail means the channel is temporarily unavailable
	ErrChannelTempUnavail SetError = -11

	// ErrUnitNotAvailable means the requested unit is not supported
	ErrUnitNotAvailable SetError = -15

	// ErrInterruptedByUser means an operator aborted the request
	ErrInterruptedByUser SetError = -30
)

var (
	readMessages = map[ReadError]string{
		ErrNoValue:      "no value",
		ErrNoSignal:     "the wavelength meter has not detected any signal",
		ErrBadSignal:    "the wavelength meter has not detected a calculable signal",
		ErrLowSignal:    "the signal is too small to be calculated properly",
		ErrBigSignal:    "the signal is too large to be calculated properly, the amplitude may be electronically cut",
		ErrMeterMissing: "the wavelength meter is not active",
		ErrNotAvailable: "the specified channel or array index is not available for this wavelength meter",
		ErrNoPulse:      "the detected signal could not be divided into separated pulses",
	}

	setMessages = map[SetError]string{
		ErrWlmMissing:         "the wavelength meter is not instantiated",
		ErrCouldNotSet:        "the value has not been set",
		ErrOutOfRange:         "parameters are out of range",
		ErrOutOfResources:     "the wavelength meter is out of resources",
		ErrInternal:           "wavelength meter internal error",
		ErrSetNotAvailable:    "the specified channel or array index is not available for this wavelength meter",
		ErrBusy:               "the wavelength meter is busy",
		ErrNotInMeasurement:   "the wavelength meter is not in measurement mode",
		ErrOnlyInMeasurement:  "only allowed in measurement mode",
		ErrChannelUnavailable: "the channel is not available",
		ErrChannelTempUnavail: "the channel is temporarily not available",
		ErrUnitNotAvailable:   "the unit is not available",
		ErrInterruptedByUser:  "interrupted by user",
	}
)

// Error satisfies the error interface
func (e ReadError) Error() string {
	if s, ok := readMessages[e]; ok {
		return fmt.Sprintf("read error %d - %s", int(e), s)
	}
	return fmt.Sprintf("read error %d - UNKNOWN ERROR CODE", int(e))
}

// Error satisfies the error interface
func (e SetError) Error() string {
	if s, ok := setMessages[e]; ok {
		return fmt.Sprintf("set error %d - %s", int(e), s)
	}
	return fmt.Sprintf("set error %d - UNKNOWN ERROR CODE", int(e))
}

// CheckReading splits a raw reading into a value or a ReadError.  Readings
// greater than zero are values; anything else is an error code.
func CheckReading(v float64) (float64, error) {
	if v > 0 {
		return v, nil
	}
	return 0, ReadError(int(v))
}

// CheckSet converts the return code of a set call into an error, 0 is success
func CheckSet(code int) error {
	if code == 0 {
		return nil
	}
	return SetError(code)
}

// IsDeviceFault returns true if err is, or wraps, a ReadError or SetError
func IsDeviceFault(err error) bool {
	var re ReadError
	if errors.As(err, &re) {
		return true
	}
	var se SetError
	return errors.As(err, &se)
}
