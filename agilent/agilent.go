// Package agilent provides an interface to agilent function generators used
// as the tuning actuator of a laser: the DC offset of the output drives the
// piezo or current modulation input of the laser controller.
package agilent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/wavelock/comm"
	"github.com/nasa-jpl/wavelock/scpi"
)

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        57600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 5 * time.Second}
}

// FunctionGenerator is an interface to hardware of the same name, such as the
// 33220A (one output) or the 33500 series (two outputs)
type FunctionGenerator struct {
	scpi.SCPI
}

// NewFunctionGenerator creates a new FunctionGenerator instance with
// the communication set up
func NewFunctionGenerator(addr string, connectSerial bool) *FunctionGenerator {
	var maker comm.CreationFunc
	if connectSerial {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 1*time.Second)
	}
	pool := comm.NewPool(1, time.Hour, maker)
	return &FunctionGenerator{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// source returns the subsystem prefix for an output.  Output 0 or 1 uses the
// bare commands single-output models understand.
func source(channel int) string {
	if channel <= 1 {
		return ""
	}
	return fmt.Sprintf("SOUR%d:", channel)
}

func output(channel int) string {
	if channel <= 1 {
		return "OUTP"
	}
	return fmt.Sprintf("OUTP%d", channel)
}

// SetFunction configures the output function used by the generator
func (f *FunctionGenerator) SetFunction(ctx context.Context, channel int, fcn string) error {
	// FUNC <fcn>
	return f.Write(ctx, source(channel)+"FUNC", fcn)
}

// Function returns the current function type used by the generator
func (f *FunctionGenerator) Function(ctx context.Context, channel int) (string, error) {
	return f.ReadString(ctx, source(channel)+"FUNC?")
}

// SetOffset configures the output voltage offset
func (f *FunctionGenerator) SetOffset(ctx context.Context, channel int, volts float64) error {
	// VOLT:OFFS <volts>
	s := strconv.FormatFloat(volts, 'G', -1, 64)
	return f.Write(ctx, source(channel)+"VOLT:OFFS", s)
}

// Offset gets the current voltage offset
func (f *FunctionGenerator) Offset(ctx context.Context, channel int) (float64, error) {
	return f.ReadFloat(ctx, source(channel)+"VOLT:OFFS?")
}

// SetOutputLoad configures the adjustments inside the generator for the
// impedance of the load circuit.  Laser modulation inputs are high impedance
// and want "INF".
func (f *FunctionGenerator) SetOutputLoad(ctx context.Context, channel int, load string) error {
	return f.Write(ctx, output(channel)+":LOAD", load)
}

// SetOutput enables or disables the output on the front connector
func (f *FunctionGenerator) SetOutput(ctx context.Context, channel int, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return f.Write(ctx, output(channel), state)
}

// Output returns true if the generator is currently outputting a signal
func (f *FunctionGenerator) Output(ctx context.Context, channel int) (bool, error) {
	return f.ReadBool(ctx, output(channel)+"?")
}
