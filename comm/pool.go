package comm

import (
	"context"
	"io"
	"sync"
	"time"
)

// Pool holds one or more connections to a device.  Connections are created
// on demand, reused while in circulation, and closed once all of them have
// been idle for the timeout.  It is concurrent safe.  Pools must be created
// with NewPool.
type Pool struct {
	sem     chan struct{} // one token per connection that may exist
	timeout time.Duration
	maker   CreationFunc

	mu      sync.Mutex
	idle    []io.ReadWriteCloser
	onLease int
	timer   *time.Timer
	closed  bool
}

// NewPool creates a pool of at most maxSize connections made by maker.  A
// zero timeout keeps idle connections open until Close.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Pool{
		sem:     make(chan struct{}, maxSize),
		timeout: timeout,
		maker:   maker,
	}
}

// Get retrieves a connection, blocking until one is available if all are in
// use.  There is no contention for the returned ReadWriter until it is given
// back with Put, Destroy or ReturnWithError.
//
// If the error from Get is not nil, there is nothing to give back.
func (p *Pool) Get() (io.ReadWriter, error) {
	return p.GetContext(context.Background())
}

// GetContext is Get, giving up when ctx is done
func (p *Pool) GetContext(ctx context.Context) (io.ReadWriter, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return nil, ErrPoolClosed
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.onLease++
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.maker()
	if err != nil {
		<-p.sem
		return nil, err
	}
	p.mu.Lock()
	p.onLease++
	p.mu.Unlock()
	return c, nil
}

// Put returns a connection to the pool for reuse
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.onLease--
	if p.closed {
		rwc.Close()
	} else {
		p.idle = append(p.idle, rwc)
		if p.onLease == 0 && p.timeout > 0 {
			if p.timer == nil {
				p.timer = time.AfterFunc(p.timeout, p.reclaim)
			} else {
				p.timer.Reset(p.timeout)
			}
		}
	}
	p.mu.Unlock()
	<-p.sem
}

// Destroy closes a connection that has gone bad and frees its slot
func (p *Pool) Destroy(rw io.ReadWriter) {
	rw.(io.ReadWriteCloser).Close()
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
	<-p.sem
}

// ReturnWithError puts the connection back if err is nil, and destroys it
// otherwise.  It is meant to be deferred with a closure over a named or
// outer err.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle) + p.onLease
}

// Active returns the number of connections currently given out
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// Close closes every idle connection.  Connections on lease are closed when
// they come back.  Get fails with ErrPoolClosed afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return p.closeIdle()
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onLease == 0 {
		p.closeIdle()
	}
}

func (p *Pool) closeIdle() error {
	var first error
	for _, c := range p.idle {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.idle = nil
	return first
}
