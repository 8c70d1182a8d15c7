package control

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/nasa-jpl/wavelock/mathx"
)

// ConvergenceDecimals is the number of decimal places of THz at which the
// error must round to zero for the laser to count as on reference
const ConvergenceDecimals = 7

// ConvergenceMode selects what a Stabilizer does once it reaches the reference
type ConvergenceMode int

const (
	// OneShot returns as soon as the reference has been held for Hold
	// consecutive readings
	OneShot ConvergenceMode = iota

	// Hysteretic keeps holding the reference until the budget runs out,
	// resuming corrections whenever the laser drifts off
	Hysteretic
)

func (m ConvergenceMode) String() string {
	if m == Hysteretic {
		return "hysteretic"
	}
	return "one-shot"
}

// MarshalText satisfies encoding.TextMarshaler
func (m ConvergenceMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts "one-shot" or "hysteretic"; empty means one-shot
func (m *ConvergenceMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "one-shot", "oneshot", "":
		*m = OneShot
	case "hysteretic":
		*m = Hysteretic
	default:
		return invalid("unknown convergence mode %q", string(b))
	}
	return nil
}

// Stabilizer drives the laser to a constant reference frequency
type Stabilizer struct {
	Handle *Handle

	// Gain is the laser response in THz/mV
	Gain float64

	// Settle is the pause after each write.  Zero derives it from the
	// wavemeter exposure when possible, negative disables it.
	Settle time.Duration

	Mode ConvergenceMode

	// Hold is the number of consecutive converged readings a OneShot run
	// needs; values below 1 mean 1
	Hold int
}

// OnReference reports whether an error of delta THz counts as on reference
func OnReference(delta float64) bool {
	return mathx.IsZeroAt(delta, ConvergenceDecimals)
}

func (s *Stabilizer) validate(reference float64) error {
	if err := s.Handle.Validate(); err != nil {
		return err
	}
	if s.Gain == 0 || math.IsNaN(s.Gain) {
		return invalid("gain must be nonzero, got %g", s.Gain)
	}
	if reference <= 0 || math.IsNaN(reference) || math.IsInf(reference, 0) {
		return invalid("reference must be a positive frequency, got %g THz", reference)
	}
	return nil
}

// Run stabilizes the laser at reference THz.
//
// Each iteration reads the signal and the frequency, updates the stabilized
// flag, computes the next step with Step and checks it against the actuator
// range.  While not stabilized the new signal is written and the loop sleeps
// for the settle time; once stabilized the signal is left alone.  A step that
// would leave the actuator range ends the call with a *SaturationError even
// when no write is due.
//
// A OneShot run returns with Reason Converged.  Either mode returns with
// BudgetExhausted when the budget runs out; cancelling ctx returns ctx's error.
func (s *Stabilizer) Run(ctx context.Context, reference float64, b Budget) (Result, error) {
	var res Result
	if err := s.validate(reference); err != nil {
		return res, err
	}
	h := s.Handle
	log := h.log()
	settle := h.settle(ctx, s.Settle)
	hold := s.Hold
	if hold < 1 {
		hold = 1
	}
	var (
		step       float64
		stabilized bool
		streak     int
	)
	m := b.start(h.clock())
	log.Debugw("stabilizing", "reference", reference, "mode", s.Mode, "settle", settle)
	for {
		if err := ctx.Err(); err != nil {
			res.Reason = Cancelled
			return res, err
		}
		if m.exhausted() {
			res.Reason = BudgetExhausted
			log.Infow("stabilizer budget exhausted", "iterations", res.Iterations, "stabilized", stabilized)
			return res, nil
		}
		m.tick()
		res.Iterations++

		c, err := h.Signal(ctx)
		if err != nil {
			return res, err
		}
		f, err := h.Frequency(ctx)
		if err != nil {
			return res, err
		}
		res.Signal, res.Frequency = c, f
		delta := reference - f

		if OnReference(delta) {
			if !stabilized {
				log.Infow("stabilized", "frequency", f, "signal", c, "iterations", res.Iterations)
			}
			stabilized = true
			streak++
		} else {
			if stabilized {
				log.Infow("lost reference", "frequency", f, "delta", delta)
			}
			stabilized = false
			streak = 0
		}
		res.Stabilized = stabilized
		if s.Mode == OneShot && streak >= hold {
			res.Reason = Converged
			return res, nil
		}

		if st, ok := Step(delta, s.Gain); ok {
			step = st
		}
		cand, err := h.next(c, step)
		if err != nil {
			return res, err
		}
		log.Debugw("stabilizer iteration", "frequency", f, "delta", delta, "signal", c, "step", step)
		if !stabilized {
			if err := h.SetSignal(ctx, cand); err != nil {
				return res, err
			}
			res.Signal = cand
			h.sleep(settle)
		}
	}
}
