package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/thruflo/voiceloops/internal/server"
	"github.com/thruflo/voiceloops/internal/status"
)

// ConsoleClient talks to a running console over its JSON API.
type ConsoleClient struct {
	baseURL    string
	password   string
	httpClient *http.Client
}

// NewConsoleClient creates a client for the console at baseURL.
func NewConsoleClient(baseURL string) *ConsoleClient {
	return &ConsoleClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetPassword makes the client authenticate with HTTP Basic auth.
func (c *ConsoleClient) SetPassword(password string) {
	c.password = password
}

// newClient resolves the console URL from --server or the config file and
// the password from --password or the environment.
func newClient() (*ConsoleClient, error) {
	url := serverURL
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		url = cfg.BaseURL()
	}

	c := NewConsoleClient(url)
	if password != "" {
		c.SetPassword(password)
	} else if env := os.Getenv(PasswordEnv); env != "" {
		c.SetPassword(env)
	}
	return c, nil
}

// Status fetches GET /api/status.
func (c *ConsoleClient) Status(ctx context.Context) (*status.Status, error) {
	var st status.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Command posts to /api/command. The response is nil for actions the
// console answers with 204.
func (c *ConsoleClient) Command(ctx context.Context, req server.CommandRequest) (*server.CommandResponse, error) {
	var resp server.CommandResponse
	ok, err := c.doOptional(ctx, http.MethodPost, "/api/command", req, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return &resp, nil
}

// SetVolume posts to /api/set_volume.
func (c *ConsoleClient) SetVolume(ctx context.Context, loop string, volume float64) error {
	body := map[string]any{"loop": loop, "volume": volume}
	return c.do(ctx, http.MethodPost, "/api/set_volume", body, nil)
}

func (c *ConsoleClient) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doOptional(ctx, method, path, body, out)
	return err
}

// doOptional performs a request and decodes the response into out. It
// reports false when the console answered without a body.
func (c *ConsoleClient) doOptional(ctx context.Context, method, path string, body, out any) (bool, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.password != "" {
		req.SetBasicAuth("voiceloops", c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach console at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("console returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}
