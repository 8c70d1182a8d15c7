package scpi_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/wavelock/comm"
	"github.com/nasa-jpl/wavelock/scpi"
	"github.com/nasa-jpl/wavelock/scpi/scpitest"
)

func newSCPI(t *testing.T, h scpitest.Handler, handshake bool) (*scpi.SCPI, *scpitest.Server) {
	srv, err := scpitest.NewServer(h)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	pool := comm.NewPool(1, time.Minute, comm.BackingOffTCPConnMaker(srv.Addr, time.Second))
	t.Cleanup(func() { pool.Close() })
	return &scpi.SCPI{Pool: pool, Handshaking: handshake, Timeout: time.Second}, srv
}

func TestParseError(t *testing.T) {
	assert.NoError(t, scpi.ParseError(`+0,"No error"`))
	assert.NoError(t, scpi.ParseError("0"))
	err := scpi.ParseError(`-222,"Data out of range"`)
	assert.Equal(t, scpi.Error{Code: -222, Msg: "Data out of range"}, err)
	assert.Error(t, scpi.ParseError("garbage"))
}

func TestReadFloatWithoutHandshake(t *testing.T) {
	s, srv := newSCPI(t, func(cmd string) string {
		if cmd == ":MEAS:FREQ?" {
			return "400.1234567"
		}
		return ""
	}, false)
	f, err := s.ReadFloat(context.Background(), ":MEAS:FREQ?")
	require.NoError(t, err)
	assert.Equal(t, 400.1234567, f)
	assert.Equal(t, []string{":MEAS:FREQ?"}, srv.Lines())
}

func TestHandshakeSplitsErrorQuery(t *testing.T) {
	h := scpitest.Handshake(func(cmd string) string {
		if strings.HasSuffix(cmd, "?") {
			return "1.5"
		}
		return ""
	}, func(cmd string) string {
		if strings.Contains(cmd, "9999") {
			return `-222,"Data out of range"`
		}
		return `+0,"No error"`
	})
	s, _ := newSCPI(t, h, true)
	ctx := context.Background()

	v, err := s.ReadFloat(ctx, "VOLT:OFFS?")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	require.NoError(t, s.Write(ctx, "VOLT:OFFS 1.0"))
	err = s.Write(ctx, "VOLT:OFFS 9999")
	assert.Equal(t, scpi.Error{Code: -222, Msg: "Data out of range"}, err)

	// a device error leaves the connection usable
	v, err = s.ReadFloat(ctx, "VOLT:OFFS?")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
}

func TestReadBoolAcceptsOnOff(t *testing.T) {
	s, _ := newSCPI(t, func(cmd string) string { return "ON" }, false)
	b, err := s.ReadBool(context.Background(), "OUTP?")
	require.NoError(t, err)
	assert.True(t, b)
}

func TestPopErrorDrainsQueue(t *testing.T) {
	queue := []string{`-113,"Undefined header"`, `-222,"Data out of range"`, `+0,"No error"`}
	s, _ := newSCPI(t, func(cmd string) string {
		r := queue[0]
		if len(queue) > 1 {
			queue = queue[1:]
		}
		return r
	}, true)
	errs := s.AllErrors(context.Background())
	require.Len(t, errs, 2)
	assert.Equal(t, -113, errs[0].(scpi.Error).Code)
}
