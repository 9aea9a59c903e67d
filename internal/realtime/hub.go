package realtime

import (
	"context"
	"sync"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
)

// subscriberBuffer is small on purpose: a job emits at most one terminal event.
const subscriberBuffer = 4

type subscriber struct {
	ch chan domain.StatusEvent
}

// Hub fans status events out to in-process subscribers keyed by job id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *infra.Logger
}

func NewHub(logger *infra.Logger) *Hub {
	return &Hub{subs: map[string]map[*subscriber]struct{}{}, logger: infra.LoggerOrDiscard(logger)}
}

// Subscribe registers interest in jobID. The returned cancel func closes the channel and is idempotent.
func (h *Hub) Subscribe(jobID string) (<-chan domain.StatusEvent, func()) {
	sub := &subscriber{ch: make(chan domain.StatusEvent, subscriberBuffer)}
	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = map[*subscriber]struct{}{}
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[jobID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
			close(sub.ch)
		})
	}
}

// Deliver hands evt to every local subscriber without blocking. A full subscriber misses the event.
func (h *Hub) Deliver(evt domain.StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[evt.JobID] {
		select {
		case sub.ch <- evt:
		default:
			h.logger.Warn().Str("job_id", evt.JobID).Msg("realtime: subscriber full, event dropped")
		}
	}
}

// Publish makes the hub usable as the publisher on single-instance deployments.
func (h *Hub) Publish(_ context.Context, evt domain.StatusEvent) error {
	h.Deliver(evt)
	return nil
}

// Subscribers reports how many subscribers are listening on jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

var _ domain.StatusPublisher = (*Hub)(nil)
