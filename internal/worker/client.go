// Package worker talks to the audio-relay worker processes over their small
// HTTP control API.
//
// Every call is best effort. A Result describes what happened and is logged
// by the client; callers are expected to drop it. The engine never rolls back
// or retries on a failed call: the operator's next action, or the next status
// poll, is what brings a misbehaving worker back in line.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thruflo/voiceloops/internal/logging"
	"github.com/thruflo/voiceloops/internal/metrics"
)

// Verb is a worker control endpoint.
type Verb string

// Worker control verbs. Each maps to POST /<verb> on the worker.
const (
	VerbJoin            Verb = "join"
	VerbLeave           Verb = "leave"
	VerbLeaveAfterDelay Verb = "leave_after_delay"
	VerbMute            Verb = "mute"
	VerbMuteAfterDelay  Verb = "mute_after_delay"
	VerbTalk            Verb = "talk"
	VerbDelayOn         Verb = "delay_on"
	VerbDelayOff        Verb = "delay_off"
	VerbSetVolume       Verb = "set_volume"
)

// Default per-call timeouts.
const (
	DefaultCallTimeout   = time.Second
	DefaultStatusTimeout = 500 * time.Millisecond
)

// Target identifies the worker a call is addressed to.
type Target struct {
	Name     string
	Endpoint string
}

// Call is one verb plus its payload.
type Call struct {
	Verb   Verb
	Loop   string
	Volume float64
}

// Join returns a join call for loop.
func Join(loop string) Call { return Call{Verb: VerbJoin, Loop: loop} }

// SetVolume returns a set_volume call.
func SetVolume(v float64) Call { return Call{Verb: VerbSetVolume, Volume: v} }

// Simple returns a call that carries no payload fields.
func Simple(v Verb) Call { return Call{Verb: v} }

// body returns the JSON payload for the call, or nil for verbs the worker
// accepts without one.
func (c Call) body() ([]byte, error) {
	switch c.Verb {
	case VerbJoin:
		return json.Marshal(map[string]string{"loop": c.Loop})
	case VerbSetVolume:
		return json.Marshal(map[string]float64{"volume": c.Volume})
	case VerbLeaveAfterDelay, VerbMuteAfterDelay, VerbDelayOn, VerbDelayOff:
		// The worker reads request.json on these routes and fails on an
		// absent body.
		return []byte("{}"), nil
	default:
		return nil, nil
	}
}

// Result is the outcome of one call. It is informational only.
type Result struct {
	Target     Target
	Call       Call
	StatusCode int
	Err        error
	Latency    time.Duration
}

// OK reports whether the worker answered with a 2xx status.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Report is a worker's self-reported view of the loops it has joined.
type Report struct {
	UserCounts map[string]int      `json:"user_counts"`
	States     map[string]int      `json:"states"`
	Talkers    map[string][]string `json:"talkers"`
}

// Sender issues control calls.
type Sender interface {
	Send(ctx context.Context, target Target, call Call) Result
}

// StatusFetcher queries a worker's status.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, target Target) (*Report, error)
}

// Client implements Sender and StatusFetcher over HTTP.
type Client struct {
	httpClient    *http.Client
	callTimeout   time.Duration
	statusTimeout time.Duration
	logger        *logging.Logger
	metrics       metrics.Recorder
}

var (
	_ Sender        = (*Client)(nil)
	_ StatusFetcher = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCallTimeout bounds each control call.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithStatusTimeout bounds each status query.
func WithStatusTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.statusTimeout = d
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{},
		callTimeout:   DefaultCallTimeout,
		statusTimeout: DefaultStatusTimeout,
		logger:        logging.Default(),
		metrics:       metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("worker")
	return c
}

// Send posts call to the worker. Failures are logged at warn level and
// returned in the Result, never as a Go error.
func (c *Client) Send(ctx context.Context, target Target, call Call) Result {
	start := time.Now()
	res := Result{Target: target, Call: call}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res.StatusCode, res.Err = c.post(ctx, target.Endpoint, call)
	res.Latency = time.Since(start)

	c.metrics.WorkerCall(string(call.Verb), res.OK(), res.Latency)
	if !res.OK() {
		c.logger.Warn("worker call failed",
			"worker", target.Name,
			"verb", string(call.Verb),
			"status", res.StatusCode,
			"error", res.Err,
		)
	} else {
		c.logger.Debug("worker call", "worker", target.Name, "verb", string(call.Verb), "latency", res.Latency)
	}
	return res
}

func (c *Client) post(ctx context.Context, endpoint string, call Call) (int, error) {
	payload, err := call.body()
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s payload: %w", call.Verb, err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	url := strings.TrimSuffix(endpoint, "/") + "/" + string(call.Verb)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach worker: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("worker returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// FetchStatus queries GET /status on the worker.
func (c *Client) FetchStatus(ctx context.Context, target Target) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	report, err := c.fetchStatus(ctx, target.Endpoint)
	c.metrics.StatusPoll(target.Name, err == nil)
	if err != nil {
		c.logger.Debug("status poll failed", "worker", target.Name, "error", err)
		return nil, err
	}
	return report, nil
}

func (c *Client) fetchStatus(ctx context.Context, endpoint string) (*Report, error) {
	url := strings.TrimSuffix(endpoint, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("worker returned status %d: %s", resp.StatusCode, string(body))
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &report, nil
}
