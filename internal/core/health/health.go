// Package health serves the liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

// Liveness always answers 200 once the process serves HTTP.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

type ReadinessReporter interface {
	// Readiness reports whether requests can be served and the names of the
	// sources that are loaded.
	Readiness() (ready bool, sources []string)
}

// Readiness answers 503 until rr reports ready.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	type resp struct {
		Status  string   `json:"status"`
		Sources []string `json:"sources,omitempty"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		ready, sources := rr.Readiness()
		out := resp{Status: "not_ready"}
		code := http.StatusServiceUnavailable
		if ready {
			out = resp{Status: "ready", Sources: sources}
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(out)
	}
}
