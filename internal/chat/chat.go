// Package chat exposes the conversation engine over HTTP for text clients.
//
// Two transports speak the same JSON messages: POST /api/chat streams
// newline-delimited JSON, GET /api/chat/ws upgrades to a websocket. A client
// sends {"session_id"?: string, "message": string}; the server streams
// {"delta": string} items in queue order and finishes the turn with
// {"done": true, "session_id": "<id>"}. A missing session id creates a
// fresh session whose id arrives in the final message; history lives in the
// session for its lifetime.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxhollow/sibyl/internal/engine"
	"github.com/voxhollow/sibyl/internal/session"
)

// request is one client message on either transport.
type request struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// delta is one streamed response fragment.
type delta struct {
	Delta string `json:"delta"`
}

// turnEnd terminates the stream for one turn.
type turnEnd struct {
	Done      bool   `json:"done"`
	SessionID string `json:"session_id"`
}

// Server serves the chat endpoints against one engine.
type Server struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option is a functional option for [NewServer].
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a chat Server over eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{eng: eng, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the chat routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleWS)
}

// handleChat runs one turn and streams it as application/x-ndjson.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "JSON body must include 'message'", http.StatusBadRequest)
		return
	}

	sess := s.session(req.SessionID)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	rc := http.NewResponseController(w)
	emit := func(v any) error {
		if err := enc.Encode(v); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := s.runTurn(r.Context(), sess, req.Message, emit); err != nil {
		// The status line is gone; all that is left is logging.
		s.logger.Warn("chat: turn aborted", "session", sess.ID, "err", err)
	}
}

// handleWS upgrades to a websocket and serves turns until the client goes
// away. Each received message runs one engine turn on the connection's
// session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("chat: websocket accept failed", "err", err)
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	var sess *session.Session
	for {
		var req request
		if err := wsjson.Read(ctx, c, &req); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("chat: websocket read ended", "err", err)
			}
			return
		}
		if req.Message == "" {
			if err := wsjson.Write(ctx, c, map[string]string{"error": "message required"}); err != nil {
				return
			}
			continue
		}
		if sess == nil {
			sess = s.session(req.SessionID)
		}

		emit := func(v any) error { return wsjson.Write(ctx, c, v) }
		if err := s.runTurn(ctx, sess, req.Message, emit); err != nil {
			s.logger.Warn("chat: turn aborted", "session", sess.ID, "err", err)
			return
		}
	}
}

// session resolves or creates the session for a request.
func (s *Server) session(id string) *session.Session {
	if id == "" {
		id = session.NewID()
	}
	return s.eng.Sessions().GetOrCreate(id)
}

// runTurn feeds one message through the engine and emits the streamed
// response. The response queue is consumed to its sentinel even when the
// client stops accepting writes, so the session is clean for the next turn.
func (s *Server) runTurn(ctx context.Context, sess *session.Session, message string, emit func(any) error) error {
	done := make(chan error, 1)
	go func() {
		done <- s.eng.ProcessInput(ctx, message, sess.ID, false)
	}()

	var emitErr error
	for {
		text, ok, err := sess.Responses.Next(ctx)
		if err != nil {
			<-done
			return fmt.Errorf("chat: stream interrupted: %w", err)
		}
		if !ok {
			break
		}
		if emitErr != nil {
			continue
		}
		emitErr = emit(delta{Delta: text})
	}

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("chat: engine turn failed", "session", sess.ID, "err", err)
	}
	if emitErr != nil {
		return fmt.Errorf("chat: client write failed: %w", emitErr)
	}
	return emit(turnEnd{Done: true, SessionID: sess.ID})
}
