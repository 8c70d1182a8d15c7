package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/wavelock/generichttp"
)

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func router(l *Locker) chi.Router {
	h := table{rt: generichttp.RouteTable{}}
	h.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/signal"}] = ok
	h.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/job"}] = ok
	h.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/frequency"}] = ok
	Inject(h, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	h.RT().Bind(r)
	return r
}

func do(r http.Handler, method, path, body string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w.Code
}

func TestLockBouncesProtectedRoutes(t *testing.T) {
	l := New("job")
	r := router(l)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/signal", ""))

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/lock", `{"bool":true}`))
	assert.True(t, l.Locked())
	assert.Equal(t, http.StatusLocked, do(r, http.MethodPost, "/signal", ""))
	assert.Equal(t, http.StatusLocked, do(r, http.MethodGet, "/frequency", ""))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/job", ""))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/lock", ""))

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/lock", `{"bool":false}`))
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/signal", ""))
}

func TestAcquire(t *testing.T) {
	l := New()
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())
	assert.True(t, l.Locked())
	l.Release()
	assert.False(t, l.Locked())

	l.Lock()
	assert.False(t, l.Acquire())
	l.Unlock()
	assert.True(t, l.Acquire())
}

func TestHoldSurvivesManualUnlock(t *testing.T) {
	l := New()
	r := router(l)
	require.True(t, l.Acquire())
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/lock", `{"bool":false}`))
	assert.Equal(t, http.StatusLocked, do(r, http.MethodPost, "/signal", ""))

	l.Unlock()
	assert.True(t, l.Locked())
	assert.Equal(t, http.StatusLocked, do(r, http.MethodPost, "/signal", ""))
}

func TestManualLockSurvivesRelease(t *testing.T) {
	l := New()
	r := router(l)
	require.True(t, l.Acquire())
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/lock", `{"bool":true}`))
	l.Release()
	assert.True(t, l.Locked())
	assert.Equal(t, http.StatusLocked, do(r, http.MethodPost, "/signal", ""))
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/lock", `{"bool":false}`))
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/signal", ""))
}

func TestMountedUnderLockLikePrefix(t *testing.T) {
	for _, prefix := range []string{"/wavelock", "/lab/clock", "/jobshop"} {
		l := New("job")
		root := chi.NewRouter()
		root.Mount(prefix, router(l))
		l.Lock()
		assert.Equal(t, http.StatusLocked, do(root, http.MethodPost, prefix+"/signal", ""), prefix)
		assert.Equal(t, http.StatusLocked, do(root, http.MethodGet, prefix+"/frequency", ""), prefix)
		assert.Equal(t, http.StatusOK, do(root, http.MethodGet, prefix+"/job", ""), prefix)
		assert.Equal(t, http.StatusOK, do(root, http.MethodGet, prefix+"/lock", ""), prefix)
	}
}

func TestProtectsMatchesWholeSegments(t *testing.T) {
	l := New("job")
	assert.False(t, l.protects("/lock"))
	assert.False(t, l.protects("/job/cancel"))
	assert.True(t, l.protects("/wavelock/signal"))
	assert.True(t, l.protects("/jobs"))
}

func TestBadLockBody(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, do(router(New()), http.MethodPost, "/lock", "yes"))
}
