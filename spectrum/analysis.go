package spectrum

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is generated when analysing a trace with no samples
	ErrEmpty = errors.New("trace is empty")

	// ErrIndex is generated when an index does not point into the trace
	ErrIndex = errors.New("index of mode is out of bounds")

	// ErrClipped is generated when the half-maximum walk runs off an end of the
	// trace; the mode is cut off and its breadth cannot be known
	ErrClipped = errors.New("mode is clipped by the end of the trace")

	// ErrWidth is generated for a negative deletion width
	ErrWidth = errors.New("width must not be negative")
)

// Peak is the largest sample of a trace
type Peak struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// FindMax returns the sample with the largest Y.  The first occurrence wins
// ties.
func FindMax(t *Trace) (Peak, error) {
	if t.Len() == 0 {
		return Peak{Index: -1}, ErrEmpty
	}
	best := 0
	for i := 1; i < len(t.samples); i++ {
		if t.samples[i].Y > t.samples[best].Y {
			best = i
		}
	}
	s := t.samples[best]
	return Peak{Index: best, X: s.X, Y: s.Y}, nil
}

func checkIndex(t *Trace, idx int) error {
	if idx < 0 || idx >= t.Len() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, idx, t.Len())
	}
	return nil
}

// Breadth measures the full width at half maximum of the mode at idx.
//
// It walks outward from idx in both directions while Y stays at or above half
// of Y[idx], and returns X[right]-X[left] where right and left are the first
// samples below half maximum.  If either walk leaves the trace, ErrClipped is
// returned.
func Breadth(t *Trace, idx int) (float64, error) {
	if err := checkIndex(t, idx); err != nil {
		return 0, err
	}
	n := len(t.samples)
	barrier := t.samples[idx].Y / 2
	right := idx
	for right < n && t.samples[right].Y >= barrier {
		right++
	}
	left := idx
	for left >= 0 && t.samples[left].Y >= barrier {
		left--
	}
	if right == n || left < 0 {
		return 0, ErrClipped
	}
	return t.samples[right].X - t.samples[left].X, nil
}

// DeleteMode returns a copy of the trace without the samples whose X lies in
// [X[idx]-width/2, X[idx]+width/2].  Indices into the old trace do not carry
// over to the new one.
func DeleteMode(t *Trace, idx int, width float64) (*Trace, error) {
	if err := checkIndex(t, idx); err != nil {
		return nil, err
	}
	if width < 0 {
		return nil, ErrWidth
	}
	center := t.samples[idx].X
	lo, hi := center-width/2, center+width/2
	out := &Trace{samples: make([]Sample, 0, len(t.samples))}
	for _, s := range t.samples {
		if s.X >= lo && s.X <= hi {
			continue
		}
		out.samples = append(out.samples, s)
	}
	return out, nil
}

// Mode is a peak and its breadth
type Mode struct {
	Peak
	Breadth float64 `json:"breadth"`
}

// Modes peels up to n modes off the trace, strongest first: find the maximum,
// measure its breadth, delete it, repeat.  It stops early at the first mode
// that is clipped or when the trace runs out.
func Modes(t *Trace, n int) ([]Mode, error) {
	var out []Mode
	cur := t
	for len(out) < n {
		p, err := FindMax(cur)
		if err != nil {
			if errors.Is(err, ErrEmpty) && len(out) > 0 {
				return out, nil
			}
			return out, err
		}
		b, err := Breadth(cur, p.Index)
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return out, err
		}
		out = append(out, Mode{Peak: p, Breadth: b})
		cur, err = DeleteMode(cur, p.Index, b)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
