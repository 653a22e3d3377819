package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskchat/pkg/localstate"
	"deskchat/pkg/realtime"
)

const shutdownTimeout = 5 * time.Second

func timeAfterReconnect() <-chan time.Time {
	return time.After(time.Second)
}

// startHTTP serves the daemon's own surface: liveness, readiness and
// prometheus metrics.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())

	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}

// readyzHandler reports ready once the local store is open and the
// transport is connected.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !localstate.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"local state not open"}`))
		return
	}
	if a.rt.State() != realtime.StateConnected {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"transport ` + string(a.rt.State()) + `"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}
