// Package admin exposes the operator HTTP surface: reading and replacing
// the system message backing prompt assembly, plus health and metrics.
//
// When a bearer token is configured, the /api routes require it; /healthz
// and /metrics stay token-free so probes and scrapers work without
// credentials.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxhollow/sibyl/internal/health"
	"github.com/voxhollow/sibyl/internal/store"
)

// Server serves the admin endpoints.
type Server struct {
	knowledge *store.KnowledgeStore
	token     string
	health    *health.Handler
	metrics   http.Handler
	logger    *slog.Logger
}

// Option is a functional option for [NewServer].
type Option func(*Server)

// WithToken requires Authorization: Bearer <token> on the /api routes.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithHealth registers the health handler's routes alongside the API.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics serves the given handler (typically the Prometheus exposition
// handler) at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates an admin Server over the knowledge store.
func NewServer(knowledge *store.KnowledgeStore, opts ...Option) *Server {
	s := &Server{knowledge: knowledge, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the admin routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.Handle("GET /api/system-message", s.requireToken(http.HandlerFunc(s.getMessage)))
	mux.Handle("PUT /api/system-message", s.requireToken(http.HandlerFunc(s.putMessage)))
}

// requireToken gates h behind the configured bearer token. Without a
// configured token the gate is a no-op.
func (s *Server) requireToken(h http.Handler) http.Handler {
	if s.token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// metaPayload is the JSON shape of file metadata.
type metaPayload struct {
	UpdatedAt string `json:"updated_at"`
	Bytes     int64  `json:"bytes"`
}

func metaJSON(m store.Meta) metaPayload {
	return metaPayload{
		UpdatedAt: m.UpdatedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
		Bytes:     m.Bytes,
	}
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	message, meta, err := s.knowledge.Message()
	if err != nil {
		s.logger.Error("admin: system message read failed", "err", err)
		http.Error(w, "Read failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"meta":    metaJSON(meta),
	})
}

func (s *Server) putMessage(w http.ResponseWriter, r *http.Request) {
	// A pointer field tells a missing key apart from an empty string; an
	// operator clearing the message entirely is a valid edit.
	var body struct {
		Message *string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Message == nil {
		http.Error(w, "JSON body must include 'message'", http.StatusBadRequest)
		return
	}

	meta, err := s.knowledge.Write(*body.Message)
	if err != nil {
		s.logger.Error("admin: system message write failed", "err", err)
		http.Error(w, "Write failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info("admin: system message updated", "bytes", meta.Bytes)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"meta": metaJSON(meta),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
