package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stylegen/internal/domain"
)

type jobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.GenerationJob
}

func (s *jobStore) Create(context.Context, domain.NewGeneration) (domain.GenerationJob, error) {
	return domain.GenerationJob{}, nil
}

func (s *jobStore) Get(_ context.Context, id string) (domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *jobStore) TransitionToTerminal(context.Context, string, domain.Outcome) (domain.GenerationJob, bool, error) {
	return domain.GenerationJob{}, false, nil
}

func (s *jobStore) MergeProperties(context.Context, string, map[string]any) error { return nil }

func socketServer(t *testing.T, hub *Hub, store *jobStore) *httptest.Server {
	t.Helper()
	h := NewSocketHandler(hub, store, SocketOptions{PingInterval: 50 * time.Millisecond})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/"+jobID, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSocketStreamsUntilTerminal(t *testing.T) {
	hub := NewHub(nil)
	store := &jobStore{jobs: map[string]domain.GenerationJob{
		"G1": {ID: "G1", Status: domain.StatusProcessing},
	}}
	conn := dial(t, socketServer(t, hub, store), "G1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first domain.StatusEvent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read current state: %v", err)
	}
	if first.Status != domain.StatusProcessing {
		t.Fatalf("first = %+v", first)
	}

	hub.Deliver(domain.StatusEvent{JobID: "G1", Status: domain.StatusSucceeded, ResultImage: "https://cdn/img.png"})
	var second domain.StatusEvent
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if second.Status != domain.StatusSucceeded || second.ResultImage != "https://cdn/img.png" {
		t.Fatalf("second = %+v", second)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestSocketClosesImmediatelyForTerminalJob(t *testing.T) {
	hub := NewHub(nil)
	store := &jobStore{jobs: map[string]domain.GenerationJob{
		"G1": {ID: "G1", Status: domain.StatusFailed, ErrorMessage: "NSFW content detected"},
	}}
	conn := dial(t, socketServer(t, hub, store), "G1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var evt domain.StatusEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Status != domain.StatusFailed || evt.ErrorMessage != "NSFW content detected" {
		t.Fatalf("evt = %+v", evt)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestSocketUnknownJob(t *testing.T) {
	hub := NewHub(nil)
	srv := socketServer(t, hub, &jobStore{jobs: map[string]domain.GenerationJob{}})
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/missing", nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp = %v", resp)
	}
	if hub.Subscribers("missing") != 0 {
		t.Fatal("subscription should be released")
	}
}
