package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger checks one backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// MongoPinger pings the primary.
func MongoPinger(client *mongo.Client) Pinger {
	return PingerFunc(func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
}

// RedisPinger sends PING.
func RedisPinger(client *redis.Client) Pinger {
	return PingerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Checks map[string]Pinger
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. With no checks (in-memory
// backends) it always reports ok.
func NewHandler(checks map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{Checks: checks, Log: logger}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Message  string            `json:"message,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "services":{"mongo":"connected","redis":"connected"} }
//
// On any failure: 503 and
//
//	{ "status":"error", "message":"Service unavailable", "services":{...}, "errors":{"mongo":"…"} }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Status: "ok"}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if resp.Services == nil {
			resp.Services = make(map[string]string, len(names))
		}
		if err := h.Checks[name].Ping(ctx); err != nil {
			h.Log.Error("health-check: ping failed", zap.String("service", name), zap.Error(err))
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Services[name] = "disconnected"
			resp.Errors[name] = err.Error()
			continue
		}
		resp.Services[name] = "connected"
	}

	if len(resp.Errors) > 0 {
		resp.Status = "error"
		resp.Message = "Service unavailable"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
