// Package wavelock exposes a frequency lock over HTTP.
//
// Readings and the manual set-point are served synchronously.  Stabilization,
// sweeps and calibration run as background jobs, one at a time; while a job
// runs the device routes answer 423 (locked) and only the job, trace, lock
// and endpoint routes stay available.
//
// Routes:
//
//	GET  /frequency          {"f64": THz}
//	GET  /wavelength         {"f64": nm}
//	GET  /power              {"f64": W}, only with a power meter
//	GET  /signal             {"f64": mV}
//	POST /signal             {"f64": mV}
//	GET  /gain               {"f64": THz/mV}
//	POST /gain               {"f64": THz/mV}
//	GET  /exposure           {"f64": ms}, only if the wavemeter supports it
//	POST /exposure           {"f64": ms}
//	POST /exposure/auto      {"bool": on}
//	POST /stabilize          StabilizeRequest, 202 + job Status
//	POST /sweep              SweepRequest, 202 + job Status
//	POST /triangle           TriangleRequest, 202 + job Status
//	POST /calibrate          CalibrateRequest, 202 + job Status
//	GET  /job                Status
//	POST /job/cancel
//	GET  /trace              last staircase trace
//	GET  /trace/analysis     ?modes=n, Analysis of the last trace
package wavelock

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nasa-jpl/wavelock/control"
	"github.com/nasa-jpl/wavelock/generichttp"
	"github.com/nasa-jpl/wavelock/instrument"
	"github.com/nasa-jpl/wavelock/server"
	"github.com/nasa-jpl/wavelock/server/middleware/locker"
	"github.com/nasa-jpl/wavelock/spectrum"
	"github.com/nasa-jpl/wavelock/units"
)

// DefaultModes is the number of modes /trace/analysis peels off by default
const DefaultModes = 3

// HTTPWavelock wraps a control handle in an HTTP route table
type HTTPWavelock struct {
	Handle *control.Handle

	// Lock is held by every job; bind Lock.Check as middleware
	Lock *locker.Locker
	Jobs *Runner

	RouteTable generichttp.RouteTable

	log *zap.SugaredLogger

	mu       sync.Mutex
	defaults Defaults
	trace    *spectrum.Trace
}

// NewHTTPWavelock returns a new HTTP wrapper around h
func NewHTTPWavelock(h *control.Handle, d Defaults) *HTTPWavelock {
	log := h.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if d.Gain == 0 {
		d.Gain = control.DefaultGain
	}
	l := locker.New("job", "trace", "endpoints")
	w := &HTTPWavelock{
		Handle:   h,
		Lock:     l,
		Jobs:     NewRunner(l, h.Clock, log),
		log:      log,
		defaults: d,
	}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/frequency"}:      generichttp.GetFloat(h.Frequency),
		{Method: http.MethodGet, Path: "/wavelength"}:     generichttp.GetFloat(w.wavelength),
		{Method: http.MethodGet, Path: "/signal"}:         generichttp.GetFloat(h.Signal),
		{Method: http.MethodPost, Path: "/signal"}:        w.setSignal,
		{Method: http.MethodGet, Path: "/gain"}:           generichttp.GetFloat(w.gain),
		{Method: http.MethodPost, Path: "/gain"}:          generichttp.SetFloat(w.setGain),
		{Method: http.MethodPost, Path: "/stabilize"}:     w.stabilize,
		{Method: http.MethodPost, Path: "/sweep"}:         w.sweep,
		{Method: http.MethodPost, Path: "/triangle"}:      w.triangle,
		{Method: http.MethodPost, Path: "/calibrate"}:     w.calibrate,
		{Method: http.MethodGet, Path: "/job"}:            w.jobStatus,
		{Method: http.MethodPost, Path: "/job/cancel"}:    w.jobCancel,
		{Method: http.MethodGet, Path: "/trace"}:          w.getTrace,
		{Method: http.MethodGet, Path: "/trace/analysis"}: w.analysis,
	}
	if h.Power != nil {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power"}] = generichttp.GetFloat(h.Power.Power)
	}
	if ec, ok := h.Meter.(instrument.ExposureController); ok {
		ch := h.Channel
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/exposure"}] = generichttp.GetFloat(
			func(ctx context.Context) (float64, error) { return ec.Exposure(ctx, ch) })
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure"}] = generichttp.SetFloat(
			func(ctx context.Context, v float64) error { return instrument.SetExposureChecked(ctx, ec, ch, v) })
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure/auto"}] = generichttp.SetBool(
			func(ctx context.Context, b bool) error { return ec.SetAutoExposure(ctx, ch, b) })
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (w *HTTPWavelock) RT() generichttp.RouteTable {
	return w.RouteTable
}

// Defaults returns a copy of the current defaults
func (w *HTTPWavelock) Defaults() Defaults {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.defaults
}

// Trace returns the trace of the last staircase sweep, nil if none ran
func (w *HTTPWavelock) Trace() *spectrum.Trace {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trace
}

func (w *HTTPWavelock) wavelength(ctx context.Context) (float64, error) {
	f, err := w.Handle.Frequency(ctx)
	if err != nil {
		return 0, err
	}
	return units.Convert(f, units.Frequency, units.WavelengthVac)
}

func (w *HTTPWavelock) gain(context.Context) (float64, error) {
	return w.Defaults().Gain, nil
}

func (w *HTTPWavelock) setGain(_ context.Context, k float64) error {
	if k == 0 {
		return errors.Wrap(control.ErrInvalidInput, "gain must be nonzero")
	}
	w.mu.Lock()
	w.defaults.Gain = k
	w.mu.Unlock()
	return nil
}

// status maps an error to an HTTP status code
func status(err error) int {
	switch {
	case errors.Is(err, control.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrSaturation), errors.Is(err, instrument.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrLocked):
		return http.StatusLocked
	case errors.Is(err, spectrum.ErrEmpty), errors.Is(err, spectrum.ErrClipped):
		return http.StatusUnprocessableEntity
	case instrument.IsDeviceFault(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (w *HTTPWavelock) setSignal(rw http.ResponseWriter, r *http.Request) {
	f := server.FloatT{}
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		server.Error(rw, err, http.StatusBadRequest)
		return
	}
	if err := w.Handle.SetSignal(r.Context(), f.F64); err != nil {
		server.Error(rw, err, status(err))
		return
	}
	rw.WriteHeader(http.StatusOK)
}

// decode reads a JSON request body into v, answering 400 on failure
func decode(rw http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		server.Error(rw, errors.Wrap(err, "decoding request"), http.StatusBadRequest)
		return false
	}
	return true
}

func (w *HTTPWavelock) start(rw http.ResponseWriter, kind string, fn JobFunc) {
	st, err := w.Jobs.Start(kind, fn)
	if err != nil {
		server.Error(rw, err, status(err))
		return
	}
	server.WriteJSON(rw, http.StatusAccepted, st)
}

func (w *HTTPWavelock) stabilize(rw http.ResponseWriter, r *http.Request) {
	var req StabilizeRequest
	if !decode(rw, r, &req) {
		return
	}
	s, ref, b, err := req.Build(w.Handle, w.Defaults())
	if err != nil {
		server.Error(rw, err, status(err))
		return
	}
	w.start(rw, "stabilize", func(ctx context.Context) (interface{}, error) {
		return s.Run(ctx, ref, b)
	})
}

func (w *HTTPWavelock) sweep(rw http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if !decode(rw, r, &req) {
		return
	}
	cfg, err := req.Config(w.Defaults())
	if err != nil {
		server.Error(rw, err, status(err))
		return
	}
	sw := &control.Sweeper{Handle: w.Handle, Config: cfg}
	w.start(rw, "sweep", func(ctx context.Context) (interface{}, error) {
		res, tr, err := sw.Staircase(ctx)
		if tr.Len() > 0 {
			w.mu.Lock()
			w.trace = tr
			w.mu.Unlock()
		}
		return SweepResult{Result: res, Samples: tr.Len(), Rejected: tr.Rejected()}, err
	})
}

func (w *HTTPWavelock) triangle(rw http.ResponseWriter, r *http.Request) {
	var req TriangleRequest
	if !decode(rw, r, &req) {
		return
	}
	cfg, err := req.Config(w.Defaults())
	if err != nil {
		server.Error(rw, err, status(err))
		return
	}
	b := control.Budget{MaxIterations: req.MaxCycles, Timeout: seconds(req.TimeoutS, 0)}
	sw := &control.Sweeper{Handle: w.Handle, Config: cfg}
	w.start(rw, "triangle", func(ctx context.Context) (interface{}, error) {
		return sw.Triangle(ctx, b)
	})
}

func (w *HTTPWavelock) calibrate(rw http.ResponseWriter, r *http.Request) {
	var req CalibrateRequest
	if !decode(rw, r, &req) {
		return
	}
	g := &control.GainEstimator{
		Handle: w.Handle,
		Points: req.Points,
		Start:  req.Start,
		Step:   req.Step,
		Settle: ms(req.SettleMs, w.Defaults().Settle),
		Fresh:  req.Fresh,
		Method: req.Method,
	}
	w.start(rw, "calibrate", func(ctx context.Context) (interface{}, error) {
		k, err := g.Estimate(ctx)
		if err != nil {
			return nil, err
		}
		res := CalibrateResult{Gain: k, Method: req.Method}
		if req.Apply {
			res.Applied = w.setGain(ctx, k) == nil
		}
		return res, nil
	})
}

func (w *HTTPWavelock) jobStatus(rw http.ResponseWriter, r *http.Request) {
	server.WriteJSON(rw, http.StatusOK, w.Jobs.Status())
}

func (w *HTTPWavelock) jobCancel(rw http.ResponseWriter, r *http.Request) {
	if !w.Jobs.Cancel() {
		server.Error(rw, errors.New("no job is running"), http.StatusConflict)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

func (w *HTTPWavelock) getTrace(rw http.ResponseWriter, r *http.Request) {
	tr := w.Trace()
	if tr == nil {
		server.Error(rw, errors.New("no sweep has recorded a trace"), http.StatusNotFound)
		return
	}
	server.WriteJSON(rw, http.StatusOK, tr)
}

// Analysis is the post-sweep summary of a trace
type Analysis struct {
	Peak    spectrum.Peak   `json:"peak"`
	Breadth float64         `json:"breadth"`
	Clipped bool            `json:"clipped"`
	Modes   []spectrum.Mode `json:"modes"`
}

// Analyze finds the strongest mode of tr, its breadth, and up to n modes
func Analyze(tr *spectrum.Trace, n int) (Analysis, error) {
	var a Analysis
	p, err := spectrum.FindMax(tr)
	if err != nil {
		return a, err
	}
	a.Peak = p
	a.Breadth, err = spectrum.Breadth(tr, p.Index)
	switch {
	case errors.Is(err, spectrum.ErrClipped):
		a.Clipped = true
	case err != nil:
		return a, err
	}
	if a.Clipped {
		return a, nil
	}
	a.Modes, err = spectrum.Modes(tr, n)
	return a, err
}

func (w *HTTPWavelock) analysis(rw http.ResponseWriter, r *http.Request) {
	tr := w.Trace()
	if tr == nil {
		server.Error(rw, errors.New("no sweep has recorded a trace"), http.StatusNotFound)
		return
	}
	n := DefaultModes
	if s := r.URL.Query().Get("modes"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			server.Error(rw, errors.Errorf("modes must be a positive integer, got %q", s), http.StatusBadRequest)
			return
		}
		n = v
	}
	a, err := Analyze(tr, n)
	if err != nil {
		server.Error(rw, err, status(err))
		return
	}
	server.WriteJSON(rw, http.StatusOK, a)
}
