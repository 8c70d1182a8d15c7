package control

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"

	"github.com/nasa-jpl/wavelock/spectrum"
)

// GainMethod selects how a gain is estimated from a scan
type GainMethod int

const (
	// Consecutive averages the slope between neighbouring points
	Consecutive GainMethod = iota

	// Symmetric averages the slope between points mirrored about the middle
	// of the scan, last with first, second to last with second, and so on.
	// It needs an even number of points.
	Symmetric

	// Regression fits a least-squares line through all points
	Regression
)

var gainMethodNames = map[GainMethod]string{
	Consecutive: "consecutive",
	Symmetric:   "symmetric",
	Regression:  "regression",
}

func (m GainMethod) String() string {
	if s, ok := gainMethodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("GainMethod(%d)", int(m))
}

// MarshalText encodes the method by name
func (m GainMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (m *GainMethod) UnmarshalText(b []byte) error {
	for k, v := range gainMethodNames {
		if v == string(b) {
			*m = k
			return nil
		}
	}
	return invalid("unknown gain method %q", string(b))
}

// GainEstimator measures the laser response to the actuator by stepping the
// signal and recording the frequency at each step
type GainEstimator struct {
	Handle *Handle

	// Points is the number of signals applied, at least 3
	Points int `json:"points"`

	// Start is the first signal in mV.  The actuator is returned to it when
	// the scan ends.
	Start float64 `json:"start"`

	// Step is the signal increment between points in mV
	Step float64 `json:"step"`

	// Settle is the pause after each write
	Settle time.Duration `json:"settle"`

	// Fresh waits for a new wavemeter measurement after each write instead
	// of trusting the settle time alone
	Fresh bool `json:"fresh"`

	Method GainMethod `json:"method"`
}

func (g *GainEstimator) validate() error {
	if err := g.Handle.Validate(); err != nil {
		return err
	}
	if g.Points <= 2 {
		return invalid("need more than 2 points, got %d", g.Points)
	}
	if g.Step == 0 {
		return invalid("step must be nonzero")
	}
	top := g.Handle.max()
	end := g.Start + float64(g.Points-1)*g.Step
	for _, v := range [2]float64{g.Start, end} {
		if v < 0 || v > top {
			return &SaturationError{Signal: g.Start, Step: end - g.Start, Candidate: v, Max: top}
		}
	}
	return nil
}

// Scan applies Points signals Start + i*Step and returns the trace of
// (signal mV, frequency THz).  The actuator is restored to Start on every
// path; a failed restore is combined with any earlier error.
func (g *GainEstimator) Scan(ctx context.Context) (tr *spectrum.Trace, err error) {
	tr = &spectrum.Trace{}
	if err := g.validate(); err != nil {
		return tr, err
	}
	h := g.Handle
	defer func() {
		// restore even when ctx is done
		rerr := h.SetSignal(context.Background(), g.Start)
		err = multierr.Append(err, errors.Wrapf(rerr, "restoring signal to %g mV", g.Start))
	}()

	smp := Sampler{Handle: h}
	prev := 0.
	if g.Fresh {
		if prev, err = h.Frequency(ctx); err != nil {
			return tr, err
		}
	}
	for i := 0; i < g.Points; i++ {
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		s := g.Start + float64(i)*g.Step
		if err := h.SetSignal(ctx, s); err != nil {
			return tr, err
		}
		h.sleep(g.Settle)
		var f float64
		if g.Fresh {
			f, err = smp.Next(ctx, prev)
		} else {
			f, err = h.Frequency(ctx)
		}
		if err != nil {
			return tr, err
		}
		prev = f
		tr.Append(spectrum.Sample{X: s, Y: f})
		h.log().Debugw("gain scan point", "signal", s, "frequency", f)
	}
	return tr, nil
}

// Estimate scans the actuator and returns the gain in THz/mV
func (g *GainEstimator) Estimate(ctx context.Context) (float64, error) {
	if g.Method == Symmetric && g.Points%2 != 0 {
		return 0, invalid("symmetric gain needs an even number of points, got %d", g.Points)
	}
	if _, ok := gainMethodNames[g.Method]; !ok {
		return 0, invalid("unknown gain method %v", g.Method)
	}
	tr, err := g.Scan(ctx)
	if err != nil {
		return 0, err
	}
	k := EstimateGain(tr, g.Method)
	g.Handle.log().Infow("gain estimated", "gain", k, "method", g.Method, "points", tr.Len())
	return k, nil
}

// EstimateGain computes the gain of a (signal, frequency) trace.  The trace
// must hold at least two points, and an even number for Symmetric.
func EstimateGain(tr *spectrum.Trace, m GainMethod) float64 {
	s, f := tr.XY()
	n := len(s)
	switch m {
	case Symmetric:
		ks := make([]float64, 0, n/2)
		for k := 0; k < n/2; k++ {
			hi := n - 1 - k
			ks = append(ks, (f[hi]-f[k])/(s[hi]-s[k]))
		}
		return stat.Mean(ks, nil)
	case Regression:
		_, beta := stat.LinearRegression(s, f, nil, false)
		return beta
	default:
		ks := make([]float64, 0, n-1)
		for k := 1; k < n; k++ {
			ks = append(ks, (f[k]-f[k-1])/(s[k]-s[k-1]))
		}
		return stat.Mean(ks, nil)
	}
}
