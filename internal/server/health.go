package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bytebites/bytebites-core/internal/httpio"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Paths of the probe endpoints.
const (
	PathLive  = "/healthz"
	PathReady = "/readyz"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// readiness is the /readyz body.
type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Probes returns a handler for /healthz and /readyz. Liveness always
// answers 200. Readiness runs every check with timeout and answers 503
// when any fails.
func Probes(timeout time.Duration, checks map[string]Check) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathLive, func(w http.ResponseWriter, _ *http.Request) {
		httpio.WriteJSON(w, http.StatusOK, readiness{Status: "ok"})
	})
	mux.HandleFunc("GET "+PathReady, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		body := readiness{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				body.Checks[name] = string(sserr.FromError(err).Code)
				body.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			body.Checks[name] = "ok"
		}
		httpio.WriteJSON(w, status, body)
	})
	return mux
}

// WithProbes serves the probe paths from probes and everything else from
// next.
func WithProbes(next, probes http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathLive, probes)
	mux.Handle(PathReady, probes)
	mux.Handle("/", next)
	return mux
}
