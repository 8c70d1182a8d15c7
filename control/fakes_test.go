package control

import (
	"context"

	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/sim"
	"github.com/nasa-jpl/wavelock/units"
)

// scriptMeter replays a fixed list of frequencies, repeating the last one
type scriptMeter struct {
	fs []float64
	i  int
}

func (m *scriptMeter) Frequency(ctx context.Context, ch int) (float64, error) {
	f := m.fs[min(m.i, len(m.fs)-1)]
	m.i++
	return f, nil
}

func (m *scriptMeter) Wavelength(ctx context.Context, ch int) (float64, error) {
	f, _ := m.Frequency(ctx, ch)
	return units.Convert(f, units.Frequency, units.WavelengthVac)
}

type recActuator struct {
	signal float64
	writes []float64
}

func (a *recActuator) Signal(ctx context.Context, ch int) (float64, error) { return a.signal, nil }

func (a *recActuator) SetSignal(ctx context.Context, ch int, mV float64) error {
	a.writes = append(a.writes, mV)
	a.signal = mV
	return nil
}

// flakyActuator fails every write after the first n
type flakyActuator struct {
	instrument.Actuator
	n int
}

func (a *flakyActuator) SetSignal(ctx context.Context, ch int, mV float64) error {
	if a.n <= 0 {
		return instrument.ErrBusy
	}
	a.n--
	return a.Actuator.SetSignal(ctx, ch, mV)
}

func simHandle(l *sim.Laser) *Handle {
	return &Handle{Meter: l, Actuator: l, Power: l}
}

// sweepLaser sits 2 GHz below 400 THz at 4000 mV, so a proportional step
// lands it exactly on 400 THz
func sweepLaser() *sim.Laser {
	cfg := sim.DefaultConfig()
	cfg.Origin = 399.998
	cfg.Zero = 4000
	return sim.New(cfg)
}

// glitchLaser reports one wild reading, the first read after a write below
// the given signal, pushing the frequency 2000 times further from down
type glitchLaser struct {
	*sim.Laser
	below, down float64
	armed, done bool
}

func (g *glitchLaser) SetSignal(ctx context.Context, ch int, mV float64) error {
	if err := g.Laser.SetSignal(ctx, ch, mV); err != nil {
		return err
	}
	if !g.done && mV < g.below {
		g.armed = true
	}
	return nil
}

func (g *glitchLaser) Frequency(ctx context.Context, ch int) (float64, error) {
	f, err := g.Laser.Frequency(ctx, ch)
	if err != nil || !g.armed {
		return f, err
	}
	g.armed, g.done = false, true
	return g.down + 2000*(f-g.down), nil
}
