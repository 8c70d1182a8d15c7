package comm

import (
	"bufio"
	"bytes"
	"io"
	"time"
)

// Terminator wraps a connection so that every Write is followed by the Tx
// terminator and every Read returns exactly one Rx-terminated message with
// the terminator stripped
type Terminator struct {
	rw     io.ReadWriter
	br     *bufio.Reader
	rx, tx byte
}

// NewTerminator wraps rw with rx and tx termination bytes.  The wrapper
// buffers reads; create one per exchange and do not read from rw directly
// while it is in use.
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), rx: rx, tx: tx}
}

// Write writes p followed by the Tx terminator.  The returned count excludes
// the terminator.
func (t *Terminator) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads one message into p.  A message longer than p is truncated and
// io.ErrShortBuffer returned.
func (t *Terminator) Read(p []byte) (int, error) {
	msg, err := t.br.ReadBytes(t.rx)
	if err != nil {
		if err == io.EOF && len(msg) > 0 {
			return copy(p, msg), ErrTerminatorNotFound
		}
		return copy(p, msg), err
	}
	msg = bytes.TrimSuffix(msg, []byte{t.rx})
	n := copy(p, msg)
	if n < len(msg) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout wraps a connection so that every Read and Write must complete
// within a fixed duration.  Connections without deadlines, such as serial
// ports, are passed through unchanged.
type Timeout struct {
	rw io.ReadWriter
	dl deadliner
	d  time.Duration
}

// NewTimeout wraps rw with a per-operation timeout of d
func NewTimeout(rw io.ReadWriter, d time.Duration) *Timeout {
	dl, _ := rw.(deadliner)
	return &Timeout{rw: rw, dl: dl, d: d}
}

// Read satisfies io.Reader
func (t *Timeout) Read(p []byte) (int, error) {
	if t.dl != nil {
		if err := t.dl.SetReadDeadline(time.Now().Add(t.d)); err != nil {
			return 0, err
		}
	}
	return t.rw.Read(p)
}

// Write satisfies io.Writer
func (t *Timeout) Write(p []byte) (int, error) {
	if t.dl != nil {
		if err := t.dl.SetWriteDeadline(time.Now().Add(t.d)); err != nil {
			return 0, err
		}
	}
	return t.rw.Write(p)
}
