package control

import (
	"context"

	"github.com/pkg/errors"
)

// Sampler waits for the wavemeter to publish a new measurement.  Wavemeters
// repeat their last result until the next exposure completes, so a reading
// identical to the previous one carries no information.
type Sampler struct {
	Handle *Handle
}

// Next polls the wavemeter until it reports a frequency different from prev.
// Polls are paced by the handle's limiter.  It only gives up when ctx ends or
// the wavemeter fails.
func (s Sampler) Next(ctx context.Context, prev float64) (float64, error) {
	lim := s.Handle.limiter()
	for polls := 0; ; polls++ {
		if err := lim.Wait(ctx); err != nil {
			return 0, errors.Wrapf(err, "waiting for fresh sample after %d polls", polls)
		}
		f, err := s.Handle.Frequency(ctx)
		if err != nil {
			return 0, err
		}
		if f != prev {
			return f, nil
		}
	}
}
