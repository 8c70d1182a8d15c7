package main

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/nasa-jpl/wavelock/generichttp"
	"github.com/nasa-jpl/wavelock/generichttp/wavelock"
	"github.com/nasa-jpl/wavelock/server"
	"github.com/nasa-jpl/wavelock/server/middleware/locker"
)

// BuildMux mounts the lock at c.Endpoint on a chi router.  The router also
// serves /endpoints, which returns the routes of every mount as JSON.
func BuildMux(c Config, h *wavelock.HTTPWavelock) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	hndlS := generichttp.SubMuxSanitize(c.Endpoint)
	locker.Inject(h, h.Lock)
	supergraph := map[string][]string{hndlS: h.RT().Endpoints()}

	r := chi.NewRouter()
	r.Use(h.Lock.Check)
	h.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		server.WriteJSON(w, http.StatusOK, supergraph)
	})
	return root
}
