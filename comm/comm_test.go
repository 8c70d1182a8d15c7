package comm_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/wavelock/comm"
)

// tcpEchoServer echoes every connection back on itself until the test ends
func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }()
		}
	}()
	return ln.Addr().String()
}

type fakeConn struct {
	bytes.Buffer
	closed int32
}

func (f *fakeConn) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func countingMaker(made *int32) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		atomic.AddInt32(made, 1)
		return &fakeConn{}, nil
	}
}

func TestPoolReusesConnections(t *testing.T) {
	var made int32
	pool := comm.NewPool(2, time.Hour, countingMaker(&made))
	for i := 0; i < 5; i++ {
		conn, err := pool.Get()
		require.NoError(t, err)
		pool.Put(conn)
	}
	assert.Equal(t, int32(1), made)
	assert.Equal(t, 1, pool.Size())
	assert.Equal(t, 0, pool.Active())
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	var made int32
	pool := comm.NewPool(1, time.Hour, countingMaker(&made))
	held, err := pool.Get()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.GetContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan io.ReadWriter, 1)
	go func() {
		rw, _ := pool.Get()
		got <- rw
	}()
	pool.Put(held)
	select {
	case rw := <-got:
		assert.Same(t, held, rw)
	case <-time.After(time.Second):
		t.Fatal("waiting Get was not served after Put")
	}
}

func TestReturnWithErrorDestroys(t *testing.T) {
	var made int32
	pool := comm.NewPool(1, time.Hour, countingMaker(&made))
	conn, err := pool.Get()
	require.NoError(t, err)
	pool.ReturnWithError(conn, errors.New("broken pipe"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.(*fakeConn).closed))
	assert.Equal(t, 0, pool.Size())

	conn2, err := pool.Get()
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2)
	assert.Equal(t, int32(2), made)
}

func TestPoolReclaimsIdle(t *testing.T) {
	var made int32
	pool := comm.NewPool(1, 5*time.Millisecond, countingMaker(&made))
	conn, err := pool.Get()
	require.NoError(t, err)
	pool.Put(conn)
	assert.Eventually(t, func() bool { return pool.Size() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.(*fakeConn).closed))
}

func TestPoolClose(t *testing.T) {
	var made int32
	pool := comm.NewPool(1, 0, countingMaker(&made))
	conn, err := pool.Get()
	require.NoError(t, err)
	pool.Put(conn)
	require.NoError(t, pool.Close())
	_, err = pool.Get()
	assert.ErrorIs(t, err, comm.ErrPoolClosed)
}

func TestMakerFailureFreesSlot(t *testing.T) {
	fail := true
	pool := comm.NewPool(1, time.Hour, func() (io.ReadWriteCloser, error) {
		if fail {
			return nil, errors.New("refused")
		}
		return &fakeConn{}, nil
	})
	_, err := pool.Get()
	assert.Error(t, err)
	fail = false
	_, err = pool.Get()
	assert.NoError(t, err)
}

func TestTerminatorOverTCP(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(1, time.Second, comm.BackingOffTCPConnMaker(addr, time.Second))
	defer pool.Close()
	conn, err := pool.Get()
	require.NoError(t, err)
	defer func() { pool.ReturnWithError(conn, err) }()

	wrap := comm.NewTerminator(comm.NewTimeout(conn, time.Second), '\n', '\n')
	_, err = io.WriteString(wrap, ":MEAS:FREQ?")
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := wrap.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, ":MEAS:FREQ?", string(buf[:n]))
}

func TestTerminatorShortBuffer(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("400.123456\r\n")
	wrap := comm.NewTerminator(&b, '\n', '\n')
	buf := make([]byte, 4)
	n, err := wrap.Read(buf)
	assert.ErrorIs(t, err, io.ErrShortBuffer)
	assert.Equal(t, "400.", string(buf[:n]))
}

func TestTerminatorMissing(t *testing.T) {
	wrap := comm.NewTerminator(bytes.NewBufferString("no end"), '\n', '\n')
	_, err := wrap.Read(make([]byte, 16))
	assert.ErrorIs(t, err, comm.ErrTerminatorNotFound)
}

func TestTimeoutExpires(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	_, err := comm.NewTimeout(a, 10*time.Millisecond).Read(make([]byte, 1))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}
