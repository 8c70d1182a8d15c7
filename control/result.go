package control

import "fmt"

// Reason is why a control call ended
type Reason int

const (
	// BudgetExhausted means the iteration or time budget ran out
	BudgetExhausted Reason = iota

	// Converged means a one-shot stabilization held the reference
	Converged

	// Overshoot means the next stair would have passed the upper reference
	// and no usable partial step existed
	Overshoot

	// FinalStep means the sweep ended on a partial step landing on the upper
	// reference
	FinalStep

	// TimeLimit means the sweep ran out of time
	TimeLimit

	// Cancelled means the context ended the call
	Cancelled
)

var reasonNames = map[Reason]string{
	BudgetExhausted: "budget-exhausted",
	Converged:       "converged",
	Overshoot:       "overshoot",
	FinalStep:       "final-step",
	TimeLimit:       "time-limit",
	Cancelled:       "cancelled",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// MarshalText encodes the reason by name
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (r *Reason) UnmarshalText(b []byte) error {
	for k, v := range reasonNames {
		if v == string(b) {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", string(b))
}

// Result is the state of the laser when a control call returned
type Result struct {
	// Signal is the last applied set-point in mV
	Signal float64 `json:"signal"`

	// Frequency is the last reading in THz
	Frequency float64 `json:"frequency"`

	// Iterations counts loop iterations, or stairs for a sweep
	Iterations int `json:"iterations"`

	// Cycles counts completed triangle ramps
	Cycles int `json:"cycles,omitempty"`

	Stabilized bool   `json:"stabilized"`
	Reason     Reason `json:"reason"`
}
