/*Package comm provides the connection plumbing shared by the instrument
drivers.

Most drivers boil down to:
	1.  build a CreationFunc with BackingOffTCPConnMaker or SerialConnMaker
	2.  hold a Pool of one connection made from it
	3.  for each exchange, Get a connection, wrap it with NewTimeout and
		NewTerminator, write the command and read the reply
	4.  hand the connection back with ReturnWithError so that a connection
		which produced an I/O error is discarded instead of reused

A minimal example for a sensor that responds to "RD?" with its reading:

	type Sensor struct {
		pool *comm.Pool
	}

	func (s *Sensor) Read(ctx context.Context) (float64, error) {
		conn, err := s.pool.GetContext(ctx)
		if err != nil {
			return 0, err
		}
		defer func() { s.pool.ReturnWithError(conn, err) }()
		wrap := comm.NewTerminator(comm.NewTimeout(conn, time.Second), '\r', '\r')
		if _, err = io.WriteString(wrap, "RD?"); err != nil {
			return 0, err
		}
		buf := make([]byte, 64)
		n, err := wrap.Read(buf)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(buf[:n]), 64)
	}
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrTerminatorNotFound is generated when the termination byte is not
	// found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrPoolClosed is generated when getting a connection from a closed pool
	ErrPoolClosed = errors.New("connection pool is closed")
)

// CreationFunc is a function which returns a new "connection" to something.
// A closure should be used to encapsulate the variables needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// BackingOffTCPConnMaker returns a CreationFunc that dials addr over TCP,
// retrying with an exponential backoff.  Some instruments refuse connections
// for a short while after the previous one was closed, so the first failure
// is not final.  timeout bounds each dial.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = net.DialTimeout("tcp", addr, timeout)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", addr, err)
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc that opens a serial port.  Serial
// ports do not support deadlines; conf.ReadTimeout bounds reads instead.
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}
