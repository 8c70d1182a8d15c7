package agilent

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/scpi"
)

// Actuator drives a laser tuning input with the DC level of a function
// generator.  It satisfies instrument.Actuator; signals are in mV.
type Actuator struct {
	*FunctionGenerator

	// VoltsPerMilliVolt scales the control signal onto the output, for
	// laser controllers whose tuning input is divided or amplified.  Zero
	// means 1e-3, a plain mV to V conversion.
	VoltsPerMilliVolt float64
}

func (a *Actuator) scale() float64 {
	if a.VoltsPerMilliVolt == 0 {
		return 1e-3
	}
	return a.VoltsPerMilliVolt
}

// Prepare switches the output to a DC level into a high impedance load and
// turns it on
func (a *Actuator) Prepare(ctx context.Context, channel int) error {
	if err := a.SetFunction(ctx, channel, "DC"); err != nil {
		return errors.Wrap(err, "selecting DC function")
	}
	if err := a.SetOutputLoad(ctx, channel, "INF"); err != nil {
		return errors.Wrap(err, "setting output load")
	}
	return errors.Wrap(a.SetOutput(ctx, channel, true), "enabling output")
}

// Signal satisfies instrument.Actuator
func (a *Actuator) Signal(ctx context.Context, channel int) (float64, error) {
	v, err := a.Offset(ctx, channel)
	if err != nil {
		return 0, err
	}
	return v / a.scale(), nil
}

// SetSignal satisfies instrument.Actuator.  A set-point the generator refuses
// is reported as instrument.ErrOutOfRange.
func (a *Actuator) SetSignal(ctx context.Context, channel int, mV float64) error {
	err := a.SetOffset(ctx, channel, mV*a.scale())
	var serr scpi.Error
	if errors.As(err, &serr) && (serr.Code == -222 || serr.Code == -221) {
		return errors.Wrapf(instrument.ErrOutOfRange, "offset for %g mV: %v", mV, serr)
	}
	return err
}
