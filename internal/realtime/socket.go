package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

// SocketHandler streams the status of one job over a websocket.
type SocketHandler struct {
	hub          *Hub
	store        domain.GenerationStore
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *infra.Logger
}

type SocketOptions struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	Logger         *infra.Logger
}

func NewSocketHandler(hub *Hub, store domain.GenerationStore, opts SocketOptions) *SocketHandler {
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	allowed := map[string]bool{}
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}
	return &SocketHandler{
		hub:   hub,
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
		pingInterval: ping,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

// Serve subscribes before reading the current state so a transition applied in between is not missed.
func (s *SocketHandler) Serve(w http.ResponseWriter, r *http.Request, jobID string) {
	events, cancel := s.hub.Subscribe(jobID)
	defer cancel()

	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": domain.Message(err)})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("realtime: websocket upgrade failed")
		return
	}
	defer conn.Close()
	log := s.logger.With().Str("job_id", jobID).Logger()

	if err := s.write(conn, domain.EventFromJob(job)); err != nil {
		return
	}
	if job.Status.Terminal() {
		s.close(conn, "job finished")
		return
	}

	// read pump only detects the client going away; inbound messages are ignored
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := s.write(conn, evt); err != nil {
				log.Debug().Err(err).Msg("realtime: write failed")
				return
			}
			if evt.Status.Terminal() {
				s.close(conn, "job finished")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-ctx.Done():
			s.close(conn, "server shutting down")
			return
		}
	}
}

func (s *SocketHandler) write(conn *websocket.Conn, evt domain.StatusEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(evt)
}

func (s *SocketHandler) close(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
