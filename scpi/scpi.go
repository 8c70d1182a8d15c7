// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/wavelock/comm"
)

const (
	// DefaultTimeout bounds each read and write when SCPI.Timeout is zero
	DefaultTimeout = 5 * time.Second

	tcpFrameSize = 1500
)

// Error is an entry of a device's SCPI error queue, such as
// -222,"Data out of range"
type Error struct {
	Code int
	Msg  string
}

func (e Error) Error() string {
	return fmt.Sprintf("SCPI error %d - %s", e.Code, e.Msg)
}

// ParseError parses an error queue entry.  "+0,No error" and its variants
// return nil.
func ParseError(s string) error {
	s = strings.TrimSpace(s)
	pieces := strings.SplitN(s, ",", 2)
	code, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
	if err != nil {
		return fmt.Errorf("malformed SCPI error %q", s)
	}
	if code == 0 {
		return nil
	}
	e := Error{Code: code}
	if len(pieces) == 2 {
		e.Msg = strings.Trim(strings.TrimSpace(pieces[1]), `"`)
	}
	return e
}

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool

	// Timeout bounds each read and write, DefaultTimeout if zero
	Timeout time.Duration

	// Term is the message terminator, '\n' if zero
	Term byte
}

func (s *SCPI) wrap(conn io.ReadWriter) io.ReadWriter {
	to := s.Timeout
	if to == 0 {
		to = DefaultTimeout
	}
	term := s.Term
	if term == 0 {
		term = '\n'
	}
	return comm.NewTerminator(comm.NewTimeout(conn, to), term, term)
}

func (s *SCPI) frame(cmds []string) string {
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	return strings.Join(cmds, " ")
}

// exchange writes the framed commands and, if read is set or handshaking is
// on, reads one reply.  Only I/O failures discard the connection.
func (s *SCPI) exchange(ctx context.Context, cmds []string, read bool) ([]byte, error) {
	conn, err := s.Pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	var ioErr error
	defer func() { s.Pool.ReturnWithError(conn, ioErr) }()
	wrap := s.wrap(conn)
	if _, ioErr = io.WriteString(wrap, s.frame(cmds)); ioErr != nil {
		return nil, ioErr
	}
	if !read && !s.Handshaking {
		return nil, nil
	}
	buf := make([]byte, tcpFrameSize)
	n, err := wrap.Read(buf)
	if err != nil {
		ioErr = err
		return nil, err
	}
	return bytes.TrimRight(buf[:n], "\r"), nil
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK.
// It is assumed this is used for set operations and not get.
func (s *SCPI) Write(ctx context.Context, cmds ...string) error {
	resp, err := s.exchange(ctx, cmds, false)
	if err != nil || !s.Handshaking {
		return err
	}
	return ParseError(string(resp))
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(ctx context.Context, cmds ...string) ([]byte, error) {
	resp, err := s.exchange(ctx, cmds, true)
	if err != nil || !s.Handshaking {
		return resp, err
	}
	idx := bytes.LastIndexByte(resp, ';')
	if idx == -1 {
		return resp, fmt.Errorf("device ignored the error query appended to %q", cmds)
	}
	return resp[:idx], ParseError(string(resp[idx+1:]))
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(ctx context.Context, cmds ...string) (string, error) {
	resp, err := s.WriteRead(ctx, cmds...)
	return strings.TrimSpace(string(resp)), err
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(ctx context.Context, cmds ...string) (float64, error) {
	resp, err := s.ReadString(ctx, cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(ctx context.Context, cmds ...string) (bool, error) {
	resp, err := s.ReadString(ctx, cmds...)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(resp) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return strconv.ParseBool(resp)
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(ctx context.Context, cmds ...string) (int, error) {
	resp, err := s.ReadString(ctx, cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp)
}

// Raw sends a command to the device and returns a response if it was a query,
// else a blank string.  Handshaking is not used.
func (s *SCPI) Raw(ctx context.Context, str string) (string, error) {
	raw := *s
	raw.Handshaking = false
	if strings.Contains(str, "?") {
		return raw.ReadString(ctx, str)
	}
	return "", raw.Write(ctx, str)
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError(ctx context.Context) error {
	raw := *s
	raw.Handshaking = false
	str, err := raw.ReadString(ctx, "SYSTem:ERRor?")
	if err != nil {
		return err
	}
	return ParseError(str)
}

// AllErrors drains the error queue of the device.  It stops at the first
// communication failure, which is returned as the last element.
func (s *SCPI) AllErrors(ctx context.Context) []error {
	var errs []error
	for i := 0; i < 64; i++ {
		err := s.PopError(ctx)
		if err == nil {
			break
		}
		errs = append(errs, err)
		if _, ok := err.(Error); !ok {
			break
		}
	}
	return errs
}
