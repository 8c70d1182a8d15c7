// Package bristol provides an interface to Bristol Instruments 671/871 series
// wavelength meters over their SCPI interface, by TCP (telnet port 23) or
// RS-232.
package bristol

import (
	"context"
	"errors"
	"time"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/wavelock/comm"
	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/scpi"
)

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 2 * time.Second}
}

// Wavemeter is a Bristol wavelength meter.  The meters have a single input;
// the channel argument of the instrument.Wavemeter methods is ignored.
type Wavemeter struct {
	scpi.SCPI
}

// NewWavemeter creates a new Wavemeter instance with the communication set up
func NewWavemeter(addr string, connectSerial bool) *Wavemeter {
	var maker comm.CreationFunc
	if connectSerial {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 1*time.Second)
	}
	pool := comm.NewPool(1, time.Hour, maker)
	return &Wavemeter{scpi.SCPI{Pool: pool, Handshaking: false, Timeout: 2 * time.Second}}
}

// translate maps the SCPI errors the meter reports onto the wavemeter
// vocabulary
func translate(err error) error {
	var serr scpi.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch serr.Code {
	case -222, -224:
		return instrument.ErrOutOfRange
	case -230, -231:
		return instrument.ErrBadSignal
	case -241:
		return instrument.ErrMeterMissing
	case -213, -214:
		return instrument.ErrNoValue
	}
	return err
}

func (w *Wavemeter) reading(ctx context.Context, cmd string) (float64, error) {
	v, err := w.ReadFloat(ctx, cmd)
	if err != nil {
		return 0, translate(err)
	}
	return instrument.CheckReading(v)
}

// Frequency satisfies instrument.Wavemeter, returning THz
func (w *Wavemeter) Frequency(ctx context.Context, channel int) (float64, error) {
	return w.reading(ctx, ":MEAS:FREQ?")
}

// Wavelength satisfies instrument.Wavemeter, returning vacuum nm
func (w *Wavemeter) Wavelength(ctx context.Context, channel int) (float64, error) {
	return w.reading(ctx, ":MEAS:WAV?")
}

// Power satisfies instrument.PowerMeter with the optical power at the meter
// input in W.  The meter reports mW once configured.
func (w *Wavemeter) Power(ctx context.Context) (float64, error) {
	v, err := w.ReadFloat(ctx, ":MEAS:POW?")
	if err != nil {
		return 0, translate(err)
	}
	return v * 1e-3, nil
}

// Configure puts the meter in the units the other methods assume: THz for
// frequency, vacuum nm for wavelength and mW for power
func (w *Wavemeter) Configure(ctx context.Context) error {
	return w.Write(ctx, ":UNIT:FREQ THZ;:UNIT:WAV NM;:SENS:MED VAC;:UNIT:POW MW")
}

// Identify returns the *IDN? string of the meter
func (w *Wavemeter) Identify(ctx context.Context) (string, error) {
	return w.ReadString(ctx, "*IDN?")
}
