// Package thorlabs provides an interface to Thorlabs optical power meters
// reached over USBTMC
package thorlabs

import (
	"context"
	"fmt"
	"time"

	"github.com/nasa-jpl/wavelock/comm"
	"github.com/nasa-jpl/wavelock/scpi"
	"github.com/nasa-jpl/wavelock/usbtmc"
)

const (
	// TLVID is the Thorlabs vendor ID
	TLVID = 0x1313

	// PM100DPID is the PM100D product ID
	PM100DPID = 0x8078

	// PM100USBPID is the PM100USB product ID
	PM100USBPID = 0x8072
)

// PM100 is a PM100-series optical power meter console
type PM100 struct {
	scpi.SCPI
}

// NewPM100 creates a PM100 talking to the first console with the given
// product ID.  The USB device is opened on first use.
func NewPM100(pid uint16) *PM100 {
	return newPM100(comm.NewPool(1, time.Hour, usbtmc.ConnMaker(TLVID, pid)))
}

func newPM100(pool *comm.Pool) *PM100 {
	return &PM100{scpi.SCPI{Pool: pool, Timeout: 3 * time.Second}}
}

// Power satisfies instrument.PowerMeter, returning W
func (p *PM100) Power(ctx context.Context) (float64, error) {
	return p.ReadFloat(ctx, "MEAS:POW?")
}

// SetWavelength sets the correction wavelength of the sensor in nm
func (p *PM100) SetWavelength(ctx context.Context, nm float64) error {
	return p.Write(ctx, fmt.Sprintf("SENS:CORR:WAV %.3f", nm))
}

// Wavelength returns the correction wavelength of the sensor in nm
func (p *PM100) Wavelength(ctx context.Context) (float64, error) {
	return p.ReadFloat(ctx, "SENS:CORR:WAV?")
}

// SetAutoRange turns power autoranging on or off
func (p *PM100) SetAutoRange(ctx context.Context, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return p.Write(ctx, "SENS:POW:RANG:AUTO "+state)
}
