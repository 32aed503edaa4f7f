// Package health implements the liveness and readiness probes served on
// Sibyl's admin port.
//
// Liveness (/healthz) only asserts that the process is up and answering
// HTTP. Readiness (/readyz) additionally asks every registered dependency
// probe — the knowledge store backing prompt assembly, plus whatever remote
// backends the composition root wires in — whether it can currently do its
// job. Probes run concurrently so a slow dependency does not hide behind a
// fast one, and each entry in the response carries how long its probe took.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe. A hung dependency becomes a
// "fail" entry instead of a stalled response.
const probeTimeout = 5 * time.Second

// Checker probes one dependency for readiness.
type Checker struct {
	// Name keys the probe's entry in the /readyz response, e.g. "knowledge".
	Name string

	// Check returns nil when the dependency can serve. It must honour ctx.
	Check func(ctx context.Context) error
}

// probeResult is one entry in the /readyz checks map.
type probeResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// Handler serves the probe endpoints. The checker set is fixed at
// construction time; the handler itself is stateless and safe for
// concurrent use.
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New builds a Handler over the given dependency probes.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
	}
}

// Healthz reports liveness along with how long the process has been up.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz runs every probe concurrently and reports 200 only when all of
// them pass. Each probe gets its own [probeTimeout] deadline derived from
// the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]probeResult, len(h.checkers))

	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(ctx)
			results[i] = probeResult{
				Status:  "ok",
				Elapsed: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				results[i].Status = "fail"
				results[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()

	overall, status := "ok", http.StatusOK
	checks := make(map[string]probeResult, len(results))
	for i, c := range h.checkers {
		checks[c.Name] = results[i]
		if results[i].Status != "ok" {
			overall, status = "fail", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, struct {
		Status string                 `json:"status"`
		Checks map[string]probeResult `json:"checks,omitempty"`
	}{Status: overall, Checks: checks})
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
