package wavelock

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nasa-jpl/wavelock/server/middleware/locker"
)

var (
	// ErrBusy is generated when a job is started while another runs
	ErrBusy = errors.New("a control job is already running")

	// ErrLocked is generated when the devices are locked by hand
	ErrLocked = errors.New("devices are locked")
)

// State is the lifecycle stage of a job
type State string

const (
	// Idle means no job has run yet
	Idle State = "idle"

	// Running means the job owns the devices
	Running State = "running"

	// Done means the job returned without error
	Done State = "done"

	// Failed means the job returned an error
	Failed State = "failed"

	// Cancelled means the job was stopped through Cancel
	Cancelled State = "cancelled"
)

// Status describes the current or last job
type Status struct {
	ID       int         `json:"id"`
	Kind     string      `json:"kind,omitempty"`
	State    State       `json:"state"`
	Started  time.Time   `json:"started,omitempty"`
	Finished time.Time   `json:"finished,omitempty"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// JobFunc is the body of a job.  It must return when ctx is done.
type JobFunc func(ctx context.Context) (interface{}, error)

// Runner runs at most one job at a time in the background and holds the
// locker for as long as the job owns the devices
type Runner struct {
	Lock   *locker.Locker
	Clock  clock.Clock
	Logger *zap.SugaredLogger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner returns a Runner guarding l
func NewRunner(l *locker.Locker, clk clock.Clock, log *zap.SugaredLogger) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{Lock: l, Clock: clk, Logger: log, status: Status{State: Idle}}
}

// Start launches fn as a job of the given kind and returns its initial status
func (r *Runner) Start(kind string, fn JobFunc) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State == Running {
		return r.status, ErrBusy
	}
	if !r.Lock.Acquire() {
		return r.status, ErrLocked
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.status = Status{ID: r.status.ID + 1, Kind: kind, State: Running, Started: r.Clock.Now()}
	r.Logger.Infow("job started", "id", r.status.ID, "kind", kind)
	go r.run(ctx, fn, r.done)
	return r.status, nil
}

func (r *Runner) run(ctx context.Context, fn JobFunc, done chan struct{}) {
	defer close(done)
	defer r.Lock.Release()
	res, err := call(ctx, fn)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	r.cancel = nil
	st := &r.status
	st.Finished = r.Clock.Now()
	st.Result = res
	switch {
	case err == nil:
		st.State = Done
	case errors.Is(err, context.Canceled):
		st.State = Cancelled
	default:
		st.State = Failed
		st.Error = err.Error()
	}
	r.Logger.Infow("job finished", "id", st.ID, "kind", st.Kind, "state", st.State, "error", st.Error)
}

// call runs fn, turning a panic into an error so the job still finishes
func call(ctx context.Context, fn JobFunc) (res interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, errors.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

// Status returns the state of the current or last job
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Cancel stops the running job and returns false if there is none
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Wait blocks until the current job finishes or ctx is done
func (r *Runner) Wait(ctx context.Context) (Status, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return r.Status(), nil
	}
	select {
	case <-done:
		return r.Status(), nil
	case <-ctx.Done():
		return r.Status(), ctx.Err()
	}
}
