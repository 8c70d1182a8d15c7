package wavelock

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/wavelock/control"
	"github.com/nasa-jpl/wavelock/units"
)

// Defaults fill in whatever a request leaves out
type Defaults struct {
	Gain   float64
	Settle time.Duration
	Mode   control.ConvergenceMode
	Hold   int

	// StabilizationTime and TimeLimit default the sweep routes
	StabilizationTime time.Duration
	TimeLimit         time.Duration
}

func ms(v *float64, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v * float64(time.Millisecond))
}

func seconds(v float64, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

// StabilizeRequest is the body of POST /stabilize
type StabilizeRequest struct {
	Reference float64    `json:"reference"`
	Unit      units.Unit `json:"unit"`

	// Gain in THz/mV, zero for the configured gain
	Gain float64 `json:"gain"`

	// SettleMs is the pause after each write; omit for the default, negative
	// for none
	SettleMs *float64 `json:"settleMs"`

	Mode *control.ConvergenceMode `json:"mode"`
	Hold int                      `json:"hold"`

	MaxIterations int     `json:"maxIterations"`
	TimeoutS      float64 `json:"timeoutS"`
}

// Build converts the request into a stabilizer, a reference in THz and a
// budget, filling gaps from d
func (r StabilizeRequest) Build(h *control.Handle, d Defaults) (*control.Stabilizer, float64, control.Budget, error) {
	ref, err := units.ToTHz(r.Reference, r.Unit)
	if err != nil {
		return nil, 0, control.Budget{}, errors.Wrap(control.ErrInvalidInput, err.Error())
	}
	s := &control.Stabilizer{
		Handle: h,
		Gain:   r.Gain,
		Settle: ms(r.SettleMs, d.Settle),
		Mode:   d.Mode,
		Hold:   r.Hold,
	}
	if s.Gain == 0 {
		s.Gain = d.Gain
	}
	if r.Mode != nil {
		s.Mode = *r.Mode
	}
	if s.Hold == 0 {
		s.Hold = d.Hold
	}
	b := control.Budget{MaxIterations: r.MaxIterations, Timeout: seconds(r.TimeoutS, 0)}
	if b.MaxIterations < 0 || b.Timeout < 0 {
		return nil, 0, b, errors.Wrap(control.ErrInvalidInput, "budget must not be negative")
	}
	return s, ref, b, nil
}

// SweepRequest is the body of POST /sweep and the sweep part of POST /triangle.
// Down and Up are in Unit; with wavelengths they are swapped as needed so the
// sweep always climbs in frequency.
type SweepRequest struct {
	Down float64    `json:"down"`
	Up   float64    `json:"up"`
	Unit units.Unit `json:"unit"`

	Step float64 `json:"step"`
	Gain float64 `json:"gain"`

	SettleMs          *float64 `json:"settleMs"`
	StabilizeSettleMs *float64 `json:"stabilizeSettleMs"`

	Mode *control.ConvergenceMode `json:"mode"`
	Hold int                      `json:"hold"`

	StabilizationS float64 `json:"stabilizationS"`
	TimeLimitS     float64 `json:"timeLimitS"`
}

// Config converts the request into a sweep configuration in THz
func (r SweepRequest) Config(d Defaults) (control.SweepConfig, error) {
	down, err := units.ToTHz(r.Down, r.Unit)
	if err != nil {
		return control.SweepConfig{}, errors.Wrapf(control.ErrInvalidInput, "down: %v", err)
	}
	up, err := units.ToTHz(r.Up, r.Unit)
	if err != nil {
		return control.SweepConfig{}, errors.Wrapf(control.ErrInvalidInput, "up: %v", err)
	}
	if r.Unit == units.WavelengthVac {
		down, up = math.Min(down, up), math.Max(down, up)
	}
	c := control.SweepConfig{
		Down:              down,
		Up:                up,
		Step:              r.Step,
		Gain:              r.Gain,
		Settle:            ms(r.SettleMs, d.Settle),
		StabilizeSettle:   ms(r.StabilizeSettleMs, d.Settle),
		StabilizeMode:     d.Mode,
		Hold:              r.Hold,
		StabilizationTime: seconds(r.StabilizationS, d.StabilizationTime),
		TimeLimit:         seconds(r.TimeLimitS, d.TimeLimit),
	}
	if c.Gain == 0 {
		c.Gain = d.Gain
	}
	if r.Mode != nil {
		c.StabilizeMode = *r.Mode
	}
	if c.Hold == 0 {
		c.Hold = d.Hold
	}
	return c, nil
}

// TriangleRequest is the body of POST /triangle
type TriangleRequest struct {
	SweepRequest
	MaxCycles int     `json:"maxCycles"`
	TimeoutS  float64 `json:"timeoutS"`
}

// CalibrateRequest is the body of POST /calibrate
type CalibrateRequest struct {
	Points   int                `json:"points"`
	Start    float64            `json:"start"`
	Step     float64            `json:"step"`
	SettleMs *float64           `json:"settleMs"`
	Fresh    bool               `json:"fresh"`
	Method   control.GainMethod `json:"method"`

	// Apply makes the estimate the default gain of later requests
	Apply bool `json:"apply"`
}

// CalibrateResult is the outcome of a calibration job
type CalibrateResult struct {
	Gain    float64            `json:"gain"`
	Method  control.GainMethod `json:"method"`
	Applied bool               `json:"applied"`
}

// SweepResult is the outcome of a staircase job
type SweepResult struct {
	control.Result
	Samples  int `json:"samples"`
	Rejected int `json:"rejected"`
}
