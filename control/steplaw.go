package control

import (
	"math"

	"github.com/nasa-jpl/wavelock/mathx"
)

const (
	// MinDeviation is the smallest error, in THz, the step law reacts to.
	// Below it the previous step is reused.
	MinDeviation = 1e-6

	// ProportionalDeviation is the error, in THz, above which the step is
	// delta/gain instead of a fixed magnitude
	ProportionalDeviation = 1e-3
)

type band struct {
	upper float64 // THz, inclusive
	step  float64 // mV
}

// bands are contiguous from MinDeviation; the first lower bound is inclusive
// and the rest are exclusive
var bands = [...]band{
	{5e-6, 0.125},
	{1e-5, 0.625},
	{5e-5, 3.125},
	{1e-4, 15.625},
	{ProportionalDeviation, 156.25},
}

// Step returns the signal increment in mV that moves the frequency toward a
// reference that is delta THz away, for a laser responding with gain THz/mV.
//
// Errors of at least MinDeviation use a fixed magnitude per band, signed so
// that the frequency moves toward the reference; beyond ProportionalDeviation
// the step is exactly delta/gain.  ok is false below MinDeviation, and the
// caller keeps its previous step.
func Step(delta, gain float64) (step float64, ok bool) {
	dev := math.Abs(delta)
	if dev < MinDeviation || gain == 0 {
		return 0, false
	}
	if dev > ProportionalDeviation {
		return delta / gain, true
	}
	dir := mathx.Sign(delta / gain)
	for _, b := range bands {
		if dev <= b.upper {
			return dir * b.step, true
		}
	}
	return delta / gain, true
}
