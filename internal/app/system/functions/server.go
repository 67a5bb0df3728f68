package functions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/dalemusser/impacthub/internal/app/system/metrics"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler implements one callable. Return an *Error to choose the wire
// status; any other error is reported as internal.
type Handler func(ctx context.Context, data json.RawMessage) (any, error)

// Server dispatches authenticated calls to registered handlers.
type Server struct {
	secret []byte
	log    *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewServer creates a server verifying call tokens with secret.
func NewServer(secret string, logger *zap.Logger) *Server {
	return &Server{
		secret:   []byte(secret),
		log:      logger,
		handlers: make(map[string]Handler),
	}
}

// Register adds or replaces the handler for name.
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Routes mounts POST /{name}.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{name}", s.serve)
	return r
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	log := s.log.With(zap.String("function", name))

	s.mu.RLock()
	h, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		s.fail(w, name, Errorf(StatusNotFound, "no function named %q", name))
		return
	}

	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		s.fail(w, name, Errorf(StatusUnauthenticated, "missing bearer token"))
		return
	}
	if err := Verify(s.secret, token, name); err != nil {
		log.Warn("rejected call token", zap.Error(err))
		s.fail(w, name, Errorf(StatusUnauthenticated, "invalid token"))
		return
	}

	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.fail(w, name, Errorf(StatusInvalidArgument, "request body must be {\"data\": ...}"))
		return
	}

	result, err := h(r.Context(), req.Data)
	if err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			log.Error("function failed", zap.Error(err))
			fe = Errorf(StatusInternal, "internal error")
		}
		s.fail(w, name, fe)
		return
	}

	metrics.FunctionCalls.WithLabelValues(name, "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) fail(w http.ResponseWriter, name string, e *Error) {
	metrics.FunctionCalls.WithLabelValues(name, e.Status).Inc()
	writeJSON(w, httpStatus(e.Status), map[string]any{"error": e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
