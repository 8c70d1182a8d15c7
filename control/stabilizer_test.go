package control

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/sim"
	"github.com/nasa-jpl/wavelock/units"
)

func TestSaturationIsNotWritten(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Zero = 4095.9
	cfg.Gain = 1e-2
	cfg.Decimals = 0
	l := sim.New(cfg)
	s := &Stabilizer{Handle: simHandle(l), Gain: 1e-2, Settle: -1}

	_, err := s.Run(context.Background(), cfg.Origin+2e-3, Budget{MaxIterations: 5})
	require.ErrorIs(t, err, ErrSaturation)
	var sat *SaturationError
	require.ErrorAs(t, err, &sat)
	assert.Equal(t, 4095.9, sat.Signal)
	assert.InDelta(t, 0.2, sat.Step, 1e-9)
	assert.Empty(t, l.Writes())
}

func TestOneShotConverges(t *testing.T) {
	l := sweepLaser()
	s := &Stabilizer{Handle: simHandle(l), Gain: -3.40e-6, Settle: -1}
	res, err := s.Run(context.Background(), 400, Budget{MaxIterations: 10})
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Reason)
	assert.True(t, res.Stabilized)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 400.0, res.Frequency)
	assert.Len(t, l.Writes(), 1)
}

func TestOneShotHold(t *testing.T) {
	l := sweepLaser()
	s := &Stabilizer{Handle: simHandle(l), Gain: -3.40e-6, Settle: -1, Hold: 3}
	res, err := s.Run(context.Background(), 400, Budget{})
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Reason)
	assert.Equal(t, 4, res.Iterations)
	assert.Len(t, l.Writes(), 1, "signal is held once on reference")
}

func TestHystereticRelocks(t *testing.T) {
	m := &scriptMeter{fs: []float64{400, 400, 400.00002, 400}}
	a := &recActuator{signal: 2048}
	s := &Stabilizer{
		Handle: &Handle{Meter: m, Actuator: a},
		Gain:   -3.40e-6,
		Settle: -1,
		Mode:   Hysteretic,
	}
	res, err := s.Run(context.Background(), 400, Budget{MaxIterations: 4})
	require.NoError(t, err)
	assert.Equal(t, BudgetExhausted, res.Reason)
	assert.True(t, res.Stabilized)
	assert.Equal(t, []float64{2048 + 3.125}, a.writes)
}

func TestStepCarriesOverBelowBands(t *testing.T) {
	m := &scriptMeter{fs: []float64{400 - 2e-6, 400 - 5e-7}}
	a := &recActuator{signal: 2048}
	s := &Stabilizer{Handle: &Handle{Meter: m, Actuator: a}, Gain: 1, Settle: -1, Mode: Hysteretic}
	_, err := s.Run(context.Background(), 400, Budget{MaxIterations: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2048.125, 2048.25}, a.writes)
}

func TestStabilizerReadsWavelength(t *testing.T) {
	l := sweepLaser()
	h := simHandle(l)
	h.Read = units.WavelengthVac
	s := &Stabilizer{Handle: h, Gain: -3.40e-6, Settle: -1}
	res, err := s.Run(context.Background(), 400, Budget{MaxIterations: 10})
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Reason)
	assert.InDelta(t, 400, res.Frequency, 1e-9)
}

func TestStabilizerTimeout(t *testing.T) {
	mock := clock.NewMock()
	cfg := sim.DefaultConfig()
	l := sim.New(cfg)
	l.Advance(mock, time.Second)
	h := simHandle(l)
	h.Clock = mock
	s := &Stabilizer{Handle: h, Gain: -3.40e-6, Settle: -1, Mode: Hysteretic}
	res, err := s.Run(context.Background(), 400, Budget{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, BudgetExhausted, res.Reason)
	assert.Equal(t, 5, res.Iterations)
}

func TestStabilizerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Stabilizer{Handle: simHandle(sweepLaser()), Gain: -3.40e-6}
	res, err := s.Run(ctx, 400, Budget{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Cancelled, res.Reason)
}

func TestStabilizerDeviceFault(t *testing.T) {
	l := sweepLaser()
	l.FailReads(instrument.ErrLowSignal)
	s := &Stabilizer{Handle: simHandle(l), Gain: -3.40e-6, Settle: -1}
	_, err := s.Run(context.Background(), 400, Budget{MaxIterations: 3})
	assert.ErrorIs(t, err, instrument.ErrLowSignal)
	assert.True(t, instrument.IsDeviceFault(err))
}

func TestStabilizerInvalidInput(t *testing.T) {
	s := &Stabilizer{Handle: simHandle(sweepLaser())}
	_, err := s.Run(context.Background(), 400, Budget{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	s.Gain = 1
	_, err = s.Run(context.Background(), -1, Budget{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	s.Handle = &Handle{}
	_, err = s.Run(context.Background(), 400, Budget{})
	assert.ErrorIs(t, err, ErrNoHardware)
}
