package control

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/units"
)

const (
	// MaxSignal is the upper bound of the actuator range in mV
	MaxSignal = 4096

	// DefaultGain is the response of the reference laser in THz/mV, measured
	// at 2.23 MHz/mV and scaled by the installed detuning ratio
	DefaultGain = -2.23e-6 * 1.5225

	// ExposureSettleFactor is the multiple of the wavemeter exposure used as a
	// settle time when none is configured
	ExposureSettleFactor = 1.2
)

var (
	defaultClock = clock.New()
	nopLogger    = zap.NewNop().Sugar()
)

// Handle bundles the devices and ambient services a control call borrows.
// Only Meter and Actuator are required; the zero value of every other field
// picks a sensible default.
type Handle struct {
	Meter    instrument.Wavemeter
	Actuator instrument.Actuator

	// Power is optional; without it traces record zero power
	Power instrument.PowerMeter

	// Converter turns wavemeter readings into THz, units.Vacuum if nil
	Converter units.Converter

	// Read is the unit the wavemeter is read in.  Readings are converted to
	// THz immediately.
	Read units.Unit

	// Channel is the wavemeter channel, SignalChannel the actuator channel
	Channel       int
	SignalChannel int

	// MaxSignal overrides the upper actuator bound when nonzero
	MaxSignal float64

	Clock   clock.Clock
	Logger  *zap.SugaredLogger
	Limiter *rate.Limiter
}

// Validate checks that the required devices are present
func (h *Handle) Validate() error {
	if h == nil || h.Meter == nil || h.Actuator == nil {
		return ErrNoHardware
	}
	return nil
}

// clock, log and limiter never write to h, which is shared between the HTTP
// handlers and a running job
func (h *Handle) clock() clock.Clock {
	if h.Clock == nil {
		return defaultClock
	}
	return h.Clock
}

func (h *Handle) log() *zap.SugaredLogger {
	if h.Logger == nil {
		return nopLogger
	}
	return h.Logger
}

func (h *Handle) limiter() *rate.Limiter {
	if h.Limiter == nil {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return h.Limiter
}

func (h *Handle) max() float64 {
	if h.MaxSignal > 0 {
		return h.MaxSignal
	}
	return MaxSignal
}

// Frequency reads the wavemeter and returns the result in THz
func (h *Handle) Frequency(ctx context.Context) (float64, error) {
	var (
		v   float64
		err error
	)
	if h.Read == units.WavelengthVac {
		v, err = h.Meter.Wavelength(ctx, h.Channel)
	} else {
		v, err = h.Meter.Frequency(ctx, h.Channel)
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading wavemeter")
	}
	conv := h.Converter
	if conv == nil {
		conv = units.Vacuum{}
	}
	f, err := conv.Convert(v, h.Read, units.Frequency)
	if err != nil {
		return 0, errors.Wrapf(err, "converting reading %g %v", v, h.Read)
	}
	return f, nil
}

// Signal returns the present actuator set-point in mV
func (h *Handle) Signal(ctx context.Context) (float64, error) {
	v, err := h.Actuator.Signal(ctx, h.SignalChannel)
	return v, errors.Wrap(err, "reading actuator signal")
}

// SetSignal writes a set-point in mV after checking it against the actuator
// range.  A rejected set-point is reported as a step from the present signal.
func (h *Handle) SetSignal(ctx context.Context, mV float64) error {
	if mV < 0 || mV > h.max() {
		c, err := h.Signal(ctx)
		if err != nil {
			return multierr.Append(&SaturationError{Signal: math.NaN(), Step: math.NaN(), Candidate: mV, Max: h.max()}, err)
		}
		return &SaturationError{Signal: c, Step: mV - c, Candidate: mV, Max: h.max()}
	}
	return errors.Wrap(h.Actuator.SetSignal(ctx, h.SignalChannel, mV), "writing actuator signal")
}

// PowerReading returns the optical power in W, zero when there is no power meter
func (h *Handle) PowerReading(ctx context.Context) (float64, error) {
	if h.Power == nil {
		return 0, nil
	}
	p, err := h.Power.Power(ctx)
	return p, errors.Wrap(err, "reading power")
}

// next checks c+step against the actuator range
func (h *Handle) next(c, step float64) (float64, error) {
	cand := c + step
	if cand < 0 || cand > h.max() {
		return c, &SaturationError{Signal: c, Step: step, Candidate: cand, Max: h.max()}
	}
	return cand, nil
}

func (h *Handle) sleep(d time.Duration) {
	if d > 0 {
		h.clock().Sleep(d)
	}
}

// settle resolves a configured settle time.  Zero means derive it from the
// wavemeter exposure when the meter reports one; negative means no settling.
func (h *Handle) settle(ctx context.Context, d time.Duration) time.Duration {
	if d != 0 {
		return d
	}
	ec, ok := h.Meter.(instrument.ExposureController)
	if !ok {
		return 0
	}
	ms, err := ec.Exposure(ctx, h.Channel)
	if err != nil {
		h.log().Warnw("could not read exposure for settle time", "err", err)
		return 0
	}
	return time.Duration(ms * ExposureSettleFactor * float64(time.Millisecond))
}
