// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/wavelock/generichttp"
	"github.com/nasa-jpl/wavelock/server"
)

// ManipulableLock is a lock that can be flipped over HTTP and guards other routes
type ManipulableLock interface {
	Lock()
	Unlock()
	Locked() bool
	Check(http.Handler) http.Handler
	HTTPGet(http.ResponseWriter, *http.Request)
	HTTPSet(http.ResponseWriter, *http.Request)
}

// Inject adds a lock route to a generichttp.HTTPer which is used to manipulate the locker
func Inject(other generichttp.HTTPer, l ManipulableLock) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of route segments to not protect.
//
// It has two holders.  Lock and Unlock flip the manual lock set over HTTP;
// Acquire and Release mark the devices as owned by a job.  Either one bounces
// protected routes, and neither clears the other.
type Locker struct {
	mu       sync.Mutex
	isLocked bool
	held     bool

	// DoNotProtect is a list of path segments not to apply the lock to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "lock"
func New(unprotected ...string) *Locker {
	return &Locker{DoNotProtect: append([]string{"lock"}, unprotected...)}
}

// Lock the locker
func (l *Locker) Lock() {
	l.mu.Lock()
	l.isLocked = true
	l.mu.Unlock()
}

// Unlock the locker.  A job holding the locker keeps it locked.
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.isLocked = false
	l.mu.Unlock()
}

// Acquire marks the locker as held by a job and returns false if it was
// already locked or held
func (l *Locker) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isLocked || l.held {
		return false
	}
	l.held = true
	return true
}

// Release ends the hold taken by Acquire.  A manual lock taken meanwhile
// stays in place.
func (l *Locker) Release() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}

// Held returns true while a job holds the locker
func (l *Locker) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Locked returns true if the locker is locked or held
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked || l.held
}

// protects reports whether path, relative to the router the lock is bound
// to, has no segment listed in DoNotProtect
func (l *Locker) protects(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		for _, str := range l.DoNotProtect {
			if seg == str {
				return false
			}
		}
	}
	return true
}

// routePath is the path below the mount point when the lock guards a mounted
// chi subrouter, the full URL path otherwise
func routePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
		return rctx.RoutePath
	}
	return r.URL.Path
}

// Check is an HTTP middleware that returns http.StatusLocked if Locked() is true, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() && l.protects(routePath(r)) {
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet calls Lock or Unlock based on json:bool on the request body.
// Unlocking while a job holds the locker is refused with 409.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		if l.Held() {
			http.Error(w, "a job holds the devices; cancel it instead", http.StatusConflict)
			return
		}
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() over HTTP as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: l.Locked()}
	hp.EncodeAndRespond(w, r)
}
