// Package instrument describes the hardware a frequency lock is built from:
// a wavemeter that reports where the laser is, an actuator that moves it, and
// optionally a power meter and exposure control on the wavemeter.
//
// Implementations live in the vendor packages (bristol, agilent, thorlabs) and
// in sim.  All calls block; implementations are responsible for their own I/O
// timeouts.
package instrument

import "context"

// Wavemeter reports the optical frequency of a channel
type Wavemeter interface {
	// Frequency returns the current reading in THz
	Frequency(ctx context.Context, channel int) (float64, error)

	// Wavelength returns the current reading in nm (vacuum)
	Wavelength(ctx context.Context, channel int) (float64, error)
}

// Actuator holds the single millivolt set-point that tunes the laser
type Actuator interface {
	// Signal returns the present set-point in mV
	Signal(ctx context.Context, channel int) (float64, error)

	// SetSignal commands a new set-point in mV
	SetSignal(ctx context.Context, channel int, mV float64) error
}

// PowerMeter reads optical power
type PowerMeter interface {
	// Power returns the current reading in W
	Power(ctx context.Context) (float64, error)
}

// ExposureController is implemented by wavemeters with adjustable CCD exposure
type ExposureController interface {
	// Exposure returns the exposure time of a channel in ms
	Exposure(ctx context.Context, channel int) (float64, error)

	// SetExposure sets the exposure time of a channel in ms
	SetExposure(ctx context.Context, channel int, ms float64) error

	// ExposureRange returns the minimum and maximum exposure in ms
	ExposureRange(ctx context.Context) (float64, float64, error)

	// SetAutoExposure turns automatic exposure on or off for a channel
	SetAutoExposure(ctx context.Context, channel int, auto bool) error
}

// SetExposureChecked sets the exposure after checking it against the range
// reported by the device.  Values outside the range fail with ErrOutOfRange
// and are never sent.
func SetExposureChecked(ctx context.Context, ec ExposureController, channel int, ms float64) error {
	lo, hi, err := ec.ExposureRange(ctx)
	if err != nil {
		return err
	}
	if ms < lo || ms > hi {
		return ErrOutOfRange
	}
	return ec.SetExposure(ctx, channel, ms)
}
