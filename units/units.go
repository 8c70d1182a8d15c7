// Package units converts between the vacuum wavelength and optical frequency
// representations a wavemeter can report.
//
// THz is the canonical internal unit; nanometers only appear at the edges,
// where a user or an instrument speaks them.
package units

import (
	"errors"
	"fmt"
	"strings"
)

// C is the speed of light in vacuum expressed in nm*THz, so that
// f[THz] = C / lambda[nm]
const C = 299792.458

// Unit is a representation of an optical reading
type Unit int

const (
	// Frequency is optical frequency in THz
	Frequency Unit = iota

	// WavelengthVac is vacuum wavelength in nm
	WavelengthVac
)

var (
	// ErrNonPositive is generated when a value that must be converted
	// through 1/x is zero or negative
	ErrNonPositive = errors.New("value must be positive to convert between wavelength and frequency")

	// ErrUnknownUnit is generated when parsing an unknown unit name
	ErrUnknownUnit = errors.New("unknown unit")
)

// String satisfies fmt.Stringer
func (u Unit) String() string {
	switch u {
	case Frequency:
		return "THz"
	case WavelengthVac:
		return "nm"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Parse converts a human name into a Unit.  It is case insensitive and
// accepts THz/frequency/freq and nm/wavelength/wvl
func Parse(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thz", "frequency", "freq", "":
		return Frequency, nil
	case "nm", "wavelength", "wvl", "vac":
		return WavelengthVac, nil
	}
	return Frequency, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// MarshalText lets units appear as strings in JSON and yaml
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (u *Unit) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Converter converts a value between units
type Converter interface {
	Convert(v float64, from, to Unit) (float64, error)
}

// Vacuum is the Converter for readings referenced to vacuum
type Vacuum struct{}

// Convert satisfies Converter
func (Vacuum) Convert(v float64, from, to Unit) (float64, error) {
	return Convert(v, from, to)
}

// Convert converts v from one unit to another.  Frequency and vacuum
// wavelength are reciprocal, so the conversion is symmetric.
func Convert(v float64, from, to Unit) (float64, error) {
	if from != Frequency && from != WavelengthVac {
		return 0, fmt.Errorf("%w: %v", ErrUnknownUnit, from)
	}
	if to != Frequency && to != WavelengthVac {
		return 0, fmt.Errorf("%w: %v", ErrUnknownUnit, to)
	}
	if from == to {
		return v, nil
	}
	if v <= 0 {
		return 0, ErrNonPositive
	}
	return C / v, nil
}

// ToTHz converts v in unit u to THz
func ToTHz(v float64, u Unit) (float64, error) {
	return Convert(v, u, Frequency)
}
