package azure

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"stylegen/internal/domain"
	"stylegen/internal/providers"
)

type fakeAzure struct {
	submitStatus int
	submitBody   string
	noLocation   bool
	operationURL string
	// statuses are returned in order; the last one repeats.
	statuses   []string
	pollStatus int
	polls      atomic.Int32
	submits    atomic.Int32
	lastPrompt string
	srv        *httptest.Server
}

func newFakeAzure(t *testing.T) *fakeAzure {
	f := &fakeAzure{submitStatus: http.StatusAccepted, pollStatus: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAzure) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("api-key") != "key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/openai/images/generations:submit":
		f.submits.Add(1)
		if r.URL.Query().Get("api-version") != "2024-03-01-preview" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body submitRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastPrompt = body.Prompt
		if !f.noLocation {
			loc := f.operationURL
			if loc == "" {
				loc = f.srv.URL + "/operations/op-1"
			}
			w.Header().Set("operation-location", loc)
		}
		w.WriteHeader(f.submitStatus)
		_, _ = w.Write([]byte(f.submitBody))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/operations/"):
		n := int(f.polls.Add(1))
		if f.pollStatus != http.StatusOK {
			w.WriteHeader(f.pollStatus)
			return
		}
		status := f.statuses[len(f.statuses)-1]
		if n <= len(f.statuses) {
			status = f.statuses[n-1]
		}
		resp := map[string]any{"status": status}
		switch status {
		case "succeeded":
			resp["result"] = map[string]any{"data": []any{map[string]any{"b64_json": base64.StdEncoding.EncodeToString([]byte("png-bytes"))}}}
		case "failed":
			resp["error"] = map[string]any{"code": "contentFilter", "message": "NSFW content"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAzure) client(attempts int) *Client {
	return NewClient(Options{
		Endpoint:     f.srv.URL,
		APIKey:       "key",
		PollInterval: time.Millisecond,
		MaxAttempts:  attempts,
		HTTPClient:   f.srv.Client(),
	})
}

func TestRunSucceedsOnFirstPoll(t *testing.T) {
	f := newFakeAzure(t)
	f.statuses = []string{"succeeded"}

	img, err := f.client(18).Run(context.Background(), providers.Request{Prompt: "anime portrait"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if string(img.Data) != "png-bytes" {
		t.Fatalf("data = %q", img.Data)
	}
	if f.polls.Load() != 1 || f.submits.Load() != 1 {
		t.Fatalf("polls = %d, submits = %d", f.polls.Load(), f.submits.Load())
	}
	if f.lastPrompt != "anime portrait" {
		t.Fatalf("prompt = %q", f.lastPrompt)
	}
}

func TestRunPollsUntilSucceeded(t *testing.T) {
	f := newFakeAzure(t)
	f.statuses = []string{"notRunning", "running", "running", "succeeded"}

	if _, err := f.client(18).Run(context.Background(), providers.Request{Prompt: "p"}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := f.polls.Load(); got != 4 {
		t.Fatalf("polls = %d, want 4", got)
	}
}

func TestRunTimesOutAfterBudget(t *testing.T) {
	f := newFakeAzure(t)
	f.statuses = []string{"running"}

	_, err := f.client(18).Run(context.Background(), providers.Request{Prompt: "p"})
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("err = %v, want ErrProviderTimeout", err)
	}
	if got := f.polls.Load(); got != 18 {
		t.Fatalf("polls = %d, want 18", got)
	}
	if msg := providers.FailureMessage(err); !strings.Contains(msg, "timed out") {
		t.Fatalf("message = %q", msg)
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{Endpoint: "https://x", APIKey: "k"})
	if c.pollInterval != 5*time.Second || c.maxAttempts != 18 {
		t.Fatalf("defaults = %s x %d", c.pollInterval, c.maxAttempts)
	}
}

func TestRunReportedFailure(t *testing.T) {
	f := newFakeAzure(t)
	f.statuses = []string{"running", "failed"}

	_, err := f.client(18).Run(context.Background(), providers.Request{Prompt: "p"})
	if !errors.Is(err, domain.ErrProviderReportedFailure) {
		t.Fatalf("err = %v, want ErrProviderReportedFailure", err)
	}
	if msg := providers.FailureMessage(err); !strings.Contains(msg, "NSFW content") {
		t.Fatalf("message = %q", msg)
	}
	if got := f.polls.Load(); got != 2 {
		t.Fatalf("polls = %d, want 2", got)
	}
}

func TestRunPollErrorIsFinal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeAzure)
		polls int32
	}{
		{
			name:  "http error",
			setup: func(f *fakeAzure) { f.pollStatus = http.StatusInternalServerError },
			polls: 1,
		},
		{
			name: "transport error",
			setup: func(f *fakeAzure) {
				dead := httptest.NewServer(http.NotFoundHandler())
				f.operationURL = dead.URL + "/operations/op-1"
				dead.Close()
			},
			polls: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeAzure(t)
			f.statuses = []string{"running"}
			tc.setup(f)
			_, err := f.client(18).Run(context.Background(), providers.Request{Prompt: "p"})
			if !errors.Is(err, domain.ErrProviderReportedFailure) {
				t.Fatalf("err = %v, want ErrProviderReportedFailure", err)
			}
			if got := f.polls.Load(); got != tc.polls {
				t.Fatalf("polls = %d, want %d", got, tc.polls)
			}
			if got := f.submits.Load(); got != 1 {
				t.Fatalf("submits = %d, want 1", got)
			}
		})
	}
}

func TestRunSubmitRejected(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fakeAzure)
		wantMsg string
	}{
		{
			name: "error body",
			setup: func(f *fakeAzure) {
				f.submitStatus = http.StatusBadRequest
				f.submitBody = `{"error":{"code":"content_policy_violation","message":"Your request was rejected"}}`
			},
			wantMsg: "Your request was rejected",
		},
		{
			name:    "no body",
			setup:   func(f *fakeAzure) { f.submitStatus = http.StatusTooManyRequests },
			wantMsg: "status 429",
		},
		{
			name:    "missing operation location",
			setup:   func(f *fakeAzure) { f.noLocation = true },
			wantMsg: "operation-location",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeAzure(t)
			f.statuses = []string{"succeeded"}
			tc.setup(f)
			_, err := f.client(18).Run(context.Background(), providers.Request{Prompt: "p"})
			if !errors.Is(err, domain.ErrProviderRejected) {
				t.Fatalf("err = %v, want ErrProviderRejected", err)
			}
			if msg := providers.FailureMessage(err); !strings.Contains(msg, tc.wantMsg) {
				t.Fatalf("message = %q, want %q", msg, tc.wantMsg)
			}
			if f.polls.Load() != 0 || f.submits.Load() != 1 {
				t.Fatalf("polls = %d, submits = %d", f.polls.Load(), f.submits.Load())
			}
		})
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	f := newFakeAzure(t)
	f.statuses = []string{"running"}
	c := NewClient(Options{
		Endpoint:     f.srv.URL,
		APIKey:       "key",
		PollInterval: 20 * time.Millisecond,
		MaxAttempts:  18,
		HTTPClient:   f.srv.Client(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, providers.Request{Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if got := f.polls.Load(); got >= 18 {
		t.Fatalf("polls = %d, polling should stop on cancellation", got)
	}
}

func TestRunWithoutCredentials(t *testing.T) {
	_, err := NewClient(Options{}).Run(context.Background(), providers.Request{Prompt: "p"})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v, want ErrProviderRejected", err)
	}
}
