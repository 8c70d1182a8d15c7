package control

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Budget bounds a control call.  Zero fields are unbounded; a zero Budget
// runs until the context is cancelled.
type Budget struct {
	// MaxIterations is the number of loop iterations (or triangle cycles)
	MaxIterations int `json:"maxIterations,omitempty"`

	// Timeout is the wall-clock duration measured on the handle's clock
	Timeout time.Duration `json:"timeout,omitempty"`
}

type meter struct {
	b     Budget
	clk   clock.Clock
	start time.Time
	n     int
}

func (b Budget) start(clk clock.Clock) *meter {
	return &meter{b: b, clk: clk, start: clk.Now()}
}

func (m *meter) tick() { m.n++ }

func (m *meter) exhausted() bool {
	if m.b.MaxIterations > 0 && m.n >= m.b.MaxIterations {
		return true
	}
	return m.b.Timeout > 0 && m.clk.Since(m.start) >= m.b.Timeout
}

// remaining caps d at the time left in the budget, never reaching zero,
// which would mean unbounded
func (m *meter) remaining(d time.Duration) time.Duration {
	if m.b.Timeout <= 0 {
		return d
	}
	left := m.b.Timeout - m.clk.Since(m.start)
	if left <= 0 {
		left = time.Nanosecond
	}
	if left < d {
		return left
	}
	return d
}
