package health

import (
	"net/http"
	"sync/atomic"
)

var ready atomic.Bool

// SetReady marks the process ready (or not). The run command flips this
// on once configuration and the focal plane are loaded.
func SetReady(v bool) {
	ready.Store(v)
}

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns 200 "ready\n" once the simulation pipeline is set up,
// 503 "starting\n" before that.
func Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
