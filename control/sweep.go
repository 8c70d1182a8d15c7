package control

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/wavelock/spectrum"
)

const (
	// MinPartialFraction is the fraction of a stair below which the sweep
	// does not bother with a last partial step
	MinPartialFraction = 0.1

	// MinPartialStep is the smallest partial step in mV worth applying
	MinPartialStep = 0.125
)

// SweepConfig describes a sweep from Down to Up.  Frequencies are in THz.
type SweepConfig struct {
	Down float64 `json:"down"`
	Up   float64 `json:"up"`

	// Step is the signal increment per stair in mV
	Step float64 `json:"step"`

	// Gain is the laser response in THz/mV, used to predict each stair
	Gain float64 `json:"gain"`

	// Settle is the pause after each stair, zero to derive it from the
	// wavemeter exposure
	Settle time.Duration `json:"settle"`

	// StabilizeSettle is the pause after each correction while stabilizing
	// at Down, zero to derive it from the wavemeter exposure
	StabilizeSettle time.Duration `json:"stabilizeSettle"`

	// StabilizeMode and Hold configure the stabilization at Down
	StabilizeMode ConvergenceMode `json:"stabilizeMode"`
	Hold          int             `json:"hold"`

	// StabilizationTime caps the stabilization at Down
	StabilizationTime time.Duration `json:"stabilizationTime"`

	// TimeLimit caps a staircase sweep, stabilization included
	TimeLimit time.Duration `json:"timeLimit"`
}

func (c SweepConfig) validate() error {
	switch {
	case c.Down <= 0 || c.Up <= c.Down:
		return invalid("need 0 < down < up, got down=%g up=%g", c.Down, c.Up)
	case c.Step == 0:
		return invalid("step must be nonzero")
	case c.Gain == 0:
		return invalid("gain must be nonzero")
	case c.Gain*c.Step <= 0:
		return invalid("step %g mV moves the frequency down with gain %g THz/mV", c.Step, c.Gain)
	case c.StabilizationTime <= 0:
		return invalid("stabilization time must be positive")
	}
	return nil
}

// Sweeper runs staircase and triangle sweeps
type Sweeper struct {
	Handle *Handle
	Config SweepConfig
}

func (s *Sweeper) stabilizer() *Stabilizer {
	return &Stabilizer{
		Handle: s.Handle,
		Gain:   s.Config.Gain,
		Settle: s.Config.StabilizeSettle,
		Mode:   s.Config.StabilizeMode,
		Hold:   s.Config.Hold,
	}
}

// stair is called after every full stair with the fresh frequency.  Returning
// stop ends the ramp with the returned reason.
type stair func(f float64) (end Reason, stop bool, err error)

// ramp climbs from signal c toward Up one stair at a time and returns the
// signal and frequency it reached and why it stopped.  With partial set, a
// fractional last stair that lands on Up is applied and its frequency is
// passed to last.
func (s *Sweeper) ramp(ctx context.Context, c float64, wait time.Duration, partial bool,
	each stair, last func(f float64) error) (Result, error) {

	h := s.Handle
	cfg := s.Config
	smp := Sampler{Handle: h}
	res := Result{Signal: c}
	for {
		if err := ctx.Err(); err != nil {
			res.Reason = Cancelled
			return res, err
		}
		f, err := h.Frequency(ctx)
		if err != nil {
			return res, err
		}
		res.Frequency = f
		predicted := f + cfg.Gain*cfg.Step
		if predicted > cfg.Up {
			if !partial {
				res.Reason = Overshoot
				return res, nil
			}
			percent := (cfg.Up - f) / (cfg.Gain * cfg.Step)
			step := cfg.Step * percent
			if percent <= MinPartialFraction || percent > 1 || math.Abs(step) < MinPartialStep {
				h.log().Debugw("partial step too small", "percent", percent, "step", step)
				res.Reason = Overshoot
				return res, nil
			}
			cand, err := h.next(res.Signal, step)
			if err != nil {
				return res, err
			}
			if err := h.SetSignal(ctx, cand); err != nil {
				return res, err
			}
			res.Signal = cand
			h.sleep(wait)
			nf, err := smp.Next(ctx, f)
			if err != nil {
				return res, err
			}
			res.Frequency = nf
			res.Iterations++
			res.Reason = FinalStep
			return res, last(nf)
		}

		cand, err := h.next(res.Signal, cfg.Step)
		if err != nil {
			return res, err
		}
		if err := h.SetSignal(ctx, cand); err != nil {
			return res, err
		}
		res.Signal = cand
		h.sleep(wait)
		nf, err := smp.Next(ctx, f)
		if err != nil {
			return res, err
		}
		res.Frequency = nf
		res.Iterations++
		end, stop, err := each(nf)
		if err != nil {
			return res, err
		}
		if stop {
			res.Reason = end
			return res, nil
		}
	}
}

// Staircase stabilizes the laser at Down, then climbs toward Up one stair at
// a time, recording (|f-Down|, power) after each stair.
//
// The sweep ends with FinalStep when a partial stair lands on Up, Overshoot
// when the next stair would pass Up and no partial stair is worthwhile, or
// TimeLimit when the time budget runs out.  A stabilization that does not
// converge within StabilizationTime is logged and the sweep continues from
// wherever the laser is.  The trace is returned even when err is not nil.
func (s *Sweeper) Staircase(ctx context.Context) (Result, *spectrum.Trace, error) {
	tr := &spectrum.Trace{}
	cfg := s.Config
	if err := s.Handle.Validate(); err != nil {
		return Result{}, tr, err
	}
	if err := cfg.validate(); err != nil {
		return Result{}, tr, err
	}
	if cfg.TimeLimit <= 0 || cfg.StabilizationTime >= cfg.TimeLimit {
		return Result{}, tr, invalid("stabilization time %v must be shorter than the time limit %v",
			cfg.StabilizationTime, cfg.TimeLimit)
	}
	h := s.Handle
	log := h.log()
	clk := h.clock()
	start := clk.Now()

	sr, err := s.stabilizer().Run(ctx, cfg.Down, Budget{Timeout: cfg.StabilizationTime})
	if err != nil {
		return sr, tr, errors.Wrap(err, "stabilizing at lower reference")
	}
	if !sr.Stabilized {
		log.Warnw("lower reference not reached, sweeping anyway", "down", cfg.Down, "frequency", sr.Frequency)
	}

	c, err := h.Signal(ctx)
	if err != nil {
		return sr, tr, err
	}
	f, err := h.Frequency(ctx)
	if err != nil {
		return sr, tr, err
	}
	record := func(f float64) error {
		p, err := h.PowerReading(ctx)
		if err != nil {
			return err
		}
		if !tr.AppendChecked(spectrum.Sample{X: math.Abs(f - cfg.Down), Y: p}) {
			log.Warnw("dropped glitched sample", "frequency", f, "rejected", tr.Rejected())
		}
		return nil
	}
	if err := record(f); err != nil {
		return sr, tr, err
	}

	settle := h.settle(ctx, cfg.Settle)
	res, err := s.ramp(ctx, c, settle, true,
		func(f float64) (Reason, bool, error) {
			if err := record(f); err != nil {
				return TimeLimit, false, err
			}
			return TimeLimit, clk.Since(start) > cfg.TimeLimit, nil
		}, record)
	res.Stabilized = sr.Stabilized
	log.Infow("staircase sweep done", "reason", res.Reason, "stairs", res.Iterations,
		"samples", tr.Len(), "rejected", tr.Rejected())
	return res, tr, err
}

// Triangle repeatedly stabilizes at Down and ramps up to Up without recording
// anything or taking partial stairs.  It ends when ctx is cancelled or the
// budget runs out; MaxIterations counts cycles.  The time budget is checked
// after every stair and bounds the stabilization at Down as well.
func (s *Sweeper) Triangle(ctx context.Context, b Budget) (Result, error) {
	cfg := s.Config
	if err := s.Handle.Validate(); err != nil {
		return Result{}, err
	}
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	h := s.Handle
	log := h.log()
	m := b.start(h.clock())
	settle := h.settle(ctx, cfg.Settle)
	var res Result
	for {
		if err := ctx.Err(); err != nil {
			res.Reason = Cancelled
			return res, err
		}
		if m.exhausted() {
			res.Reason = BudgetExhausted
			return res, nil
		}
		sr, err := s.stabilizer().Run(ctx, cfg.Down, Budget{Timeout: m.remaining(cfg.StabilizationTime)})
		if err != nil {
			sr.Cycles = res.Cycles
			return sr, errors.Wrap(err, "stabilizing at lower reference")
		}
		if m.exhausted() {
			res.Signal, res.Frequency, res.Stabilized = sr.Signal, sr.Frequency, sr.Stabilized
			res.Reason = BudgetExhausted
			return res, nil
		}
		rr, err := s.ramp(ctx, sr.Signal, settle, false,
			func(float64) (Reason, bool, error) { return BudgetExhausted, m.exhausted(), nil }, nil)
		res.Signal, res.Frequency, res.Stabilized = rr.Signal, rr.Frequency, sr.Stabilized
		res.Iterations += rr.Iterations
		if err != nil || rr.Reason == BudgetExhausted {
			res.Reason = rr.Reason
			return res, err
		}
		m.tick()
		res.Cycles++
		log.Debugw("triangle cycle", "cycle", res.Cycles, "stairs", rr.Iterations, "frequency", rr.Frequency)
	}
}
