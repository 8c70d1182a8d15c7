// Package mathx provides small numeric helpers used by the control loop
package mathx

import "math"

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
// Halves round away from zero, symmetric about zero.
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}

// RoundDecimals rounds x to n digits after the decimal point
func RoundDecimals(x float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(x*p) / p
}

// IsZeroAt reports whether x rounds to exactly zero at n decimal places
func IsZeroAt(x float64, n int) bool {
	return math.Round(x*math.Pow(10, float64(n))) == 0
}

// Sign returns -1, 0, or 1 for negative, zero, or positive x
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
