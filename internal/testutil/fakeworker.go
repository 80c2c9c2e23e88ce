package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thruflo/voiceloops/internal/worker"
)

// ReceivedCall is one request seen by a FakeWorker.
type ReceivedCall struct {
	Verb string
	Body map[string]any
}

// FakeWorker is an httptest server standing in for an audio-relay worker.
type FakeWorker struct {
	Name string

	server *httptest.Server

	mu          sync.Mutex
	calls       []ReceivedCall
	report      worker.Report
	failStatus  int
	statusDelay time.Duration
}

// NewFakeWorker starts a fake worker that is closed when the test ends.
func NewFakeWorker(t *testing.T, name string) *FakeWorker {
	t.Helper()

	fw := &FakeWorker{Name: name}
	fw.server = httptest.NewServer(http.HandlerFunc(fw.handle))
	t.Cleanup(fw.server.Close)
	return fw
}

func (fw *FakeWorker) handle(w http.ResponseWriter, r *http.Request) {
	verb := strings.TrimPrefix(r.URL.Path, "/")

	if verb == "status" && r.Method == http.MethodGet {
		fw.mu.Lock()
		delay := fw.statusDelay
		fail := fw.failStatus
		report := fw.report
		fw.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail != 0 {
			http.Error(w, "unavailable", fail)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
		return
	}

	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &body)
	}

	fw.mu.Lock()
	fw.calls = append(fw.calls, ReceivedCall{Verb: verb, Body: body})
	fail := fw.failStatus
	fw.mu.Unlock()

	if fail != 0 {
		http.Error(w, "unavailable", fail)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Endpoint returns the worker's base URL.
func (fw *FakeWorker) Endpoint() string {
	return fw.server.URL
}

// Target returns the worker as a call target.
func (fw *FakeWorker) Target() worker.Target {
	return worker.Target{Name: fw.Name, Endpoint: fw.server.URL}
}

// Calls returns a copy of the received control calls.
func (fw *FakeWorker) Calls() []ReceivedCall {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	out := make([]ReceivedCall, len(fw.calls))
	copy(out, fw.calls)
	return out
}

// Verbs returns the verbs received, in order.
func (fw *FakeWorker) Verbs() []string {
	calls := fw.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Verb
	}
	return out
}

// SetReport sets the /status response.
func (fw *FakeWorker) SetReport(r worker.Report) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.report = r
}

// FailWith makes every request answer with status code; 0 restores success.
func (fw *FakeWorker) FailWith(code int) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.failStatus = code
}

// SetStatusDelay delays /status responses.
func (fw *FakeWorker) SetStatusDelay(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.statusDelay = d
}
