// Package sim provides a simulated laser for exercising control loops without
// hardware.
//
// The laser frequency is linear in the actuator signal.  The wavemeter repeats
// its last result for a configurable number of reads after every change, the
// way a real meter does until its next exposure completes.  Power is the
// transmission of a Lorentzian cavity mode.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/mathx"
	"github.com/nasa-jpl/wavelock/units"
)

// Config holds the parameters of a simulated laser
type Config struct {
	// Origin is the frequency in THz at signal Zero
	Origin float64 `yaml:"Origin"`

	// Zero is the signal in mV at which the laser sits at Origin
	Zero float64 `yaml:"Zero"`

	// Gain is the response in THz/mV
	Gain float64 `yaml:"Gain"`

	// Max is the actuator upper bound in mV
	Max float64 `yaml:"Max"`

	// Resonance, Linewidth (FWHM) and PeakPower describe the cavity mode;
	// a zero linewidth makes the power constant PeakPower
	Resonance float64 `yaml:"Resonance"`
	Linewidth float64 `yaml:"Linewidth"`
	PeakPower float64 `yaml:"PeakPower"`

	// Stale is the number of reads after a change that still return the
	// previous measurement
	Stale int `yaml:"Stale"`

	// Exposure is the initial exposure time in ms
	Exposure float64 `yaml:"Exposure"`

	// Decimals is the wavemeter resolution in decimal places of THz, zero
	// for full precision
	Decimals int `yaml:"Decimals"`
}

// DefaultConfig is a laser near 400 THz at mid range with a cavity mode just
// above it
func DefaultConfig() Config {
	return Config{
		Origin:    400,
		Zero:      2048,
		Gain:      -3.40e-6,
		Max:       4096,
		Resonance: 400.005,
		Linewidth: 0.002,
		PeakPower: 1e-3,
		Exposure:  2,
		Decimals:  7,
	}
}

// Laser is a simulated laser, wavemeter, actuator and power meter in one.
// It is safe for concurrent use.
type Laser struct {
	mu  sync.Mutex
	cfg Config

	signal   float64
	reported float64
	stale    int

	exposure float64
	auto     bool

	readFault error
	setFault  error

	writes []float64
	reads  int

	mock *clock.Mock
	tick time.Duration
}

// New creates a laser sitting at cfg.Zero
func New(cfg Config) *Laser {
	if cfg.Max == 0 {
		cfg.Max = 4096
	}
	l := &Laser{cfg: cfg, signal: cfg.Zero, exposure: cfg.Exposure}
	l.reported = l.quantize(l.trueFrequency())
	return l
}

// Advance makes every wavemeter read advance mock by d, so that loops timed
// on mock make progress
func (l *Laser) Advance(mock *clock.Mock, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mock, l.tick = mock, d
}

// Detune shifts the laser by df THz without touching the signal, as a mode
// hop or thermal drift would
func (l *Laser) Detune(df float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.Origin += df
}

// FailReads makes every wavemeter read return err until called with nil
func (l *Laser) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readFault = err
}

// FailWrites makes every set-point write return err until called with nil
func (l *Laser) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setFault = err
}

// Writes returns every set-point written so far
func (l *Laser) Writes() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(l.writes))
	copy(out, l.writes)
	return out
}

// Reads returns the number of wavemeter reads so far
func (l *Laser) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

func (l *Laser) trueFrequency() float64 {
	return l.cfg.Origin + l.cfg.Gain*(l.signal-l.cfg.Zero)
}

func (l *Laser) quantize(f float64) float64 {
	if l.cfg.Decimals <= 0 {
		return f
	}
	return mathx.RoundDecimals(f, l.cfg.Decimals)
}

// TrueFrequency is the frequency of the laser right now, regardless of what
// the wavemeter last reported
func (l *Laser) TrueFrequency() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trueFrequency()
}

func (l *Laser) measure() (float64, error) {
	l.mu.Lock()
	mock, tick := l.mock, l.tick
	l.mu.Unlock()
	if mock != nil && tick > 0 {
		mock.Add(tick)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.readFault != nil {
		return 0, l.readFault
	}
	if l.stale > 0 {
		l.stale--
		return l.reported, nil
	}
	l.reported = l.quantize(l.trueFrequency())
	return l.reported, nil
}

// Frequency satisfies instrument.Wavemeter
func (l *Laser) Frequency(ctx context.Context, channel int) (float64, error) {
	return l.measure()
}

// Wavelength satisfies instrument.Wavemeter
func (l *Laser) Wavelength(ctx context.Context, channel int) (float64, error) {
	f, err := l.measure()
	if err != nil {
		return 0, err
	}
	return units.Convert(f, units.Frequency, units.WavelengthVac)
}

// Signal satisfies instrument.Actuator
func (l *Laser) Signal(ctx context.Context, channel int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signal, nil
}

// SetSignal satisfies instrument.Actuator
func (l *Laser) SetSignal(ctx context.Context, channel int, mV float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.setFault != nil {
		return l.setFault
	}
	if mV < 0 || mV > l.cfg.Max {
		return instrument.ErrOutOfRange
	}
	l.writes = append(l.writes, mV)
	l.signal = mV
	l.stale = l.cfg.Stale
	return nil
}

// Power satisfies instrument.PowerMeter
func (l *Laser) Power(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.Linewidth == 0 {
		return l.cfg.PeakPower, nil
	}
	return Lorentzian(l.trueFrequency(), l.cfg.Resonance, l.cfg.Linewidth, l.cfg.PeakPower), nil
}

// Lorentzian is the height at f of a Lorentzian line centred on f0 with full
// width at half maximum fwhm and peak height peak
func Lorentzian(f, f0, fwhm, peak float64) float64 {
	x := 2 * (f - f0) / fwhm
	return peak / (1 + x*x)
}

const (
	minExposure = 1
	maxExposure = 9999
)

// Exposure satisfies instrument.ExposureController
func (l *Laser) Exposure(ctx context.Context, channel int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exposure, nil
}

// SetExposure satisfies instrument.ExposureController
func (l *Laser) SetExposure(ctx context.Context, channel int, ms float64) error {
	if ms < minExposure || ms > maxExposure || math.IsNaN(ms) {
		return instrument.ErrOutOfRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exposure = ms
	return nil
}

// ExposureRange satisfies instrument.ExposureController
func (l *Laser) ExposureRange(ctx context.Context) (float64, float64, error) {
	return minExposure, maxExposure, nil
}

// SetAutoExposure satisfies instrument.ExposureController
func (l *Laser) SetAutoExposure(ctx context.Context, channel int, auto bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.auto = auto
	return nil
}

// AutoExposure reports whether automatic exposure is on
func (l *Laser) AutoExposure() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.auto
}
