package functions_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/functions"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const secret = "test-functions-secret-32-bytes-long!!"

func newServer(t *testing.T) (*functions.Server, *httptest.Server) {
	t.Helper()
	s := functions.NewServer(secret, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/functions", s.Routes())
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestInvoke_RoundTrip(t *testing.T) {
	s, ts := newServer(t)
	s.Register("echo", func(ctx context.Context, data json.RawMessage) (any, error) {
		var in struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, functions.Errorf(functions.StatusInvalidArgument, "bad payload")
		}
		return map[string]string{"hello": in.Name}, nil
	})

	c := functions.NewClient(ts.URL, secret, nil, zap.NewNop())
	raw, err := c.Invoke(context.Background(), "echo", map[string]string{"name": "ada"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out["hello"] != "ada" {
		t.Errorf("result: got %v, want hello=ada", out)
	}
}

func TestInvoke_Errors(t *testing.T) {
	s, ts := newServer(t)
	s.Register("fails", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("database exploded")
	})
	s.Register("rejects", func(context.Context, json.RawMessage) (any, error) {
		return nil, functions.Errorf(functions.StatusInvalidArgument, "user_id required")
	})

	tests := []struct {
		name       string
		fn         string
		secret     string
		wantStatus string
		wantMsg    string
	}{
		{"unknown function", "nope", secret, functions.StatusNotFound, ""},
		{"bad secret", "fails", "another-secret-that-is-long-enough", functions.StatusUnauthenticated, ""},
		{"handler error hidden", "fails", secret, functions.StatusInternal, "internal error"},
		{"typed handler error", "rejects", secret, functions.StatusInvalidArgument, "user_id required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := functions.NewClient(ts.URL, tt.secret, nil, zap.NewNop())
			_, err := c.Invoke(context.Background(), tt.fn, nil)
			var fe *functions.Error
			if !errors.As(err, &fe) {
				t.Fatalf("Invoke: got %v, want *functions.Error", err)
			}
			if fe.Status != tt.wantStatus {
				t.Errorf("Status: got %q, want %q", fe.Status, tt.wantStatus)
			}
			if tt.wantMsg != "" && fe.Message != tt.wantMsg {
				t.Errorf("Message: got %q, want %q", fe.Message, tt.wantMsg)
			}
		})
	}
}

func TestServer_RequiresBearer(t *testing.T) {
	s, ts := newServer(t)
	s.Register("echo", func(context.Context, json.RawMessage) (any, error) { return "ok", nil })

	resp, err := http.Post(ts.URL+"/functions/echo", "application/json", strings.NewReader(`{"data":null}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestVerify(t *testing.T) {
	now := time.Now()
	tok, err := functions.Sign([]byte(secret), "sendNotification", now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := functions.Verify([]byte(secret), tok, "sendNotification"); err != nil {
		t.Errorf("Verify fresh token: %v", err)
	}
	if err := functions.Verify([]byte(secret), tok, "otherFunction"); err == nil {
		t.Error("Verify: token accepted for a different function")
	}

	old, _ := functions.Sign([]byte(secret), "sendNotification", now.Add(-2*time.Minute))
	if err := functions.Verify([]byte(secret), old, "sendNotification"); err == nil {
		t.Error("Verify: expired token accepted")
	}
}

func TestInvoke_ContextCancelled(t *testing.T) {
	s, ts := newServer(t)
	release := make(chan struct{})
	defer close(release)
	s.Register("slow", func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := functions.NewClient(ts.URL, secret, nil, zap.NewNop())
	if _, err := c.Invoke(ctx, "slow", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Invoke: got %v, want deadline exceeded", err)
	}
}
