// Package spectrum holds the traces recorded by sweeps and the post-processing
// done on them: finding the dominant mode, measuring its breadth, and
// removing it to look at what is underneath.
package spectrum

import "encoding/json"

// OutlierRatio is the jump, relative to the previous sample, beyond which
// a new sample is treated as a measurement glitch
const OutlierRatio = 1000

// Sample is one point of a trace.  For sweeps, X is the distance from the
// lower reference in THz and Y is the power measured at that point.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Trace is an ordered, append-only sequence of samples.  The zero value is
// an empty trace ready to use.  It is not concurrent safe.
type Trace struct {
	samples  []Sample
	rejected int
}

// NewTrace creates a trace from existing samples, which are copied
func NewTrace(samples ...Sample) *Trace {
	t := &Trace{samples: make([]Sample, len(samples))}
	copy(t.samples, samples)
	return t
}

// Append adds a sample to the end of the trace
func (t *Trace) Append(s Sample) {
	t.samples = append(t.samples, s)
}

// AppendChecked appends s unless it is a glitch: its X more than
// OutlierRatio times the X of the last committed sample.  Rejected samples
// are counted and never leave a hole.  A previous X of zero cannot be used
// as a reference, so the sample is kept.
func (t *Trace) AppendChecked(s Sample) bool {
	if n := len(t.samples); n > 0 {
		prev := t.samples[n-1].X
		if prev > 0 && s.X/prev > OutlierRatio {
			t.rejected++
			return false
		}
	}
	t.samples = append(t.samples, s)
	return true
}

// Len is the number of committed samples
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.samples)
}

// Rejected is the number of samples dropped by AppendChecked
func (t *Trace) Rejected() int {
	if t == nil {
		return 0
	}
	return t.rejected
}

// At returns the i-th sample
func (t *Trace) At(i int) Sample {
	return t.samples[i]
}

// Last returns the most recent sample and false if the trace is empty
func (t *Trace) Last() (Sample, bool) {
	if t.Len() == 0 {
		return Sample{}, false
	}
	return t.samples[len(t.samples)-1], true
}

// Samples returns a copy of the samples
func (t *Trace) Samples() []Sample {
	out := make([]Sample, t.Len())
	if t != nil {
		copy(out, t.samples)
	}
	return out
}

// XY splits the trace into abscissa and ordinate slices
func (t *Trace) XY() ([]float64, []float64) {
	x := make([]float64, t.Len())
	y := make([]float64, t.Len())
	for i := range x {
		x[i] = t.samples[i].X
		y[i] = t.samples[i].Y
	}
	return x, y
}

type traceJSON struct {
	X        []float64 `json:"x"`
	Y        []float64 `json:"y"`
	Rejected int       `json:"rejected"`
}

// MarshalJSON encodes the trace as {"x": [...], "y": [...], "rejected": n}
func (t *Trace) MarshalJSON() ([]byte, error) {
	x, y := t.XY()
	return json.Marshal(traceJSON{X: x, Y: y, Rejected: t.Rejected()})
}

// UnmarshalJSON is the inverse of MarshalJSON
func (t *Trace) UnmarshalJSON(b []byte) error {
	var tj traceJSON
	if err := json.Unmarshal(b, &tj); err != nil {
		return err
	}
	n := min(len(tj.X), len(tj.Y))
	t.samples = make([]Sample, n)
	for i := 0; i < n; i++ {
		t.samples[i] = Sample{X: tj.X[i], Y: tj.Y[i]}
	}
	t.rejected = tj.Rejected
	return nil
}
