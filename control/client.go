package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning means nothing is listening on the control address.
var ErrNotRunning = errors.New("murmur is not running (start it with: murmur serve)")

// Client talks to a running `murmur serve`.
type Client struct {
	base string
	http *http.Client
}

func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: toggleTimeout + 2*time.Second},
	}
}

// Toggle returns the acknowledgement; a busy orchestrator is not an error.
func (c *Client) Toggle(ctx context.Context) (ToggleResponse, error) {
	var out ToggleResponse
	err := c.do(ctx, http.MethodPost, "/toggle", &out, http.StatusOK, http.StatusConflict)
	return out, err
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &out, http.StatusOK)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any, ok ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return ErrNotRunning
		}
		return err
	}
	defer resp.Body.Close()

	accepted := false
	for _, code := range ok {
		if resp.StatusCode == code {
			accepted = true
		}
	}
	if !accepted {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}
