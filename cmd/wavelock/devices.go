package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/wavelock/agilent"
	"github.com/nasa-jpl/wavelock/bristol"
	"github.com/nasa-jpl/wavelock/comm"
	"github.com/nasa-jpl/wavelock/control"
	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/sim"
	"github.com/nasa-jpl/wavelock/thorlabs"
	"github.com/nasa-jpl/wavelock/units"
)

// Rig is the set of devices a handle borrows, and how to let go of them
type Rig struct {
	Handle *control.Handle
	pools  []*comm.Pool
}

// Close releases every connection the rig opened
func (r *Rig) Close() error {
	var err error
	for _, p := range r.pools {
		err = multierr.Append(err, p.Close())
	}
	return err
}

func limiter(hz float64) *rate.Limiter {
	if hz <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(hz), 1)
}

// BuildRig connects the devices of the config, or simulates them when Mock
// is set
func BuildRig(ctx context.Context, c Config, log *zap.SugaredLogger) (*Rig, error) {
	read, err := units.Parse(c.Wavemeter.Read)
	if err != nil {
		return nil, errors.Wrap(err, "wavemeter read unit")
	}
	h := &control.Handle{
		Read:          read,
		Channel:       c.Wavemeter.Channel,
		SignalChannel: c.Actuator.Channel,
		MaxSignal:     c.Control.MaxSignal,
		Logger:        log,
		Limiter:       limiter(c.Control.PollHz),
	}
	rig := &Rig{Handle: h}

	if c.Mock {
		l := sim.New(c.Sim)
		h.Meter, h.Actuator, h.Power = l, l, l
		log.Infow("using a simulated laser", "origin", c.Sim.Origin, "gain", c.Sim.Gain)
		return rig, nil
	}

	meter := bristol.NewWavemeter(c.Wavemeter.Addr, c.Wavemeter.Serial)
	rig.pools = append(rig.pools, meter.Pool)
	h.Meter = meter

	gen := agilent.NewFunctionGenerator(c.Actuator.Addr, c.Actuator.Serial)
	rig.pools = append(rig.pools, gen.Pool)
	act := &agilent.Actuator{FunctionGenerator: gen, VoltsPerMilliVolt: c.Actuator.VoltsPerMilliVolt}
	h.Actuator = act
	if c.Actuator.Prepare {
		if err := act.Prepare(ctx, c.Actuator.Channel); err != nil {
			return rig, multierr.Append(errors.Wrap(err, "preparing actuator"), rig.Close())
		}
	}

	var pm instrument.PowerMeter
	switch strings.ToLower(c.PowerMeter.Type) {
	case "pm100d", "pm100":
		pm = configurePM100(ctx, rig, thorlabs.NewPM100(thorlabs.PM100DPID), c.PowerMeter, log)
	case "pm100usb":
		pm = configurePM100(ctx, rig, thorlabs.NewPM100(thorlabs.PM100USBPID), c.PowerMeter, log)
	case "wavemeter":
		pm = meter
	case "none", "":
	default:
		return rig, multierr.Append(errors.Errorf("power meter type %q not understood", c.PowerMeter.Type), rig.Close())
	}
	h.Power = pm
	return rig, nil
}

func configurePM100(ctx context.Context, rig *Rig, p *thorlabs.PM100, c PowerMeter, log *zap.SugaredLogger) *thorlabs.PM100 {
	rig.pools = append(rig.pools, p.Pool)
	if c.Wavelength > 0 {
		// readings fail later if the console is missing
		if err := p.SetWavelength(ctx, c.Wavelength); err != nil {
			log.Warnw("could not set power meter wavelength", "nm", c.Wavelength, "error", err)
		}
	}
	return p
}
