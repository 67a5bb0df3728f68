package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Invoker calls a named remote function.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error)
}

// Client calls functions served by a Server.
type Client struct {
	base   string
	secret []byte
	http   *http.Client
	log    *zap.Logger
	now    func() time.Time
}

var _ Invoker = (*Client)(nil)

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses one with a 10 second timeout.
func NewClient(baseURL, secret string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		secret: []byte(secret),
		http:   httpClient,
		log:    logger,
		now:    time.Now,
	}
}

type request struct {
	Data any `json:"data"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Invoke calls name with payload and returns the raw result. Remote
// failures come back as *Error.
func (c *Client) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(request{Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	token, err := Sign(c.secret, name, c.now())
	if err != nil {
		return nil, err
	}

	endpoint := c.base + "/functions/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("call %s: status %d: undecodable response", name, resp.StatusCode)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: status %d", name, resp.StatusCode)
	}
	return out.Result, nil
}
