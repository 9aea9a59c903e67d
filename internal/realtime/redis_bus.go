package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "generation-status"

// RedisBus relays status events between API instances over Redis pub/sub.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	logger  *infra.Logger
}

func NewRedisBus(rdb *redis.Client, channel string, logger *infra.Logger) (*RedisBus, error) {
	if rdb == nil {
		return nil, errors.New("realtime: redis client required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel, logger: infra.LoggerOrDiscard(logger)}, nil
}

func (b *RedisBus) Channel() string { return b.channel }

// Publish sends evt to every instance, this one included.
func (b *RedisBus) Publish(ctx context.Context, evt domain.StatusEvent) error {
	raw, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("realtime: redis publish: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the channel and calls onEvent for each event until ctx ends.
// It returns once the subscription is confirmed.
func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(domain.StatusEvent)) error {
	if onEvent == nil {
		return errors.New("realtime: onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("realtime: redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				if m == nil {
					continue
				}
				evt, err := decodeEvent(m.Payload)
				if err != nil {
					b.logger.Warn().Err(err).Msg("realtime: bad status payload")
					continue
				}
				onEvent(evt)
			}
		}
	}()
	return nil
}

func encodeEvent(evt domain.StatusEvent) ([]byte, error) {
	if evt.JobID == "" {
		return nil, errors.New("realtime: event without job id")
	}
	return json.Marshal(evt)
}

func decodeEvent(payload string) (domain.StatusEvent, error) {
	var evt domain.StatusEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return domain.StatusEvent{}, err
	}
	if evt.JobID == "" || !evt.Status.Terminal() {
		return domain.StatusEvent{}, fmt.Errorf("realtime: unexpected event %q/%q", evt.JobID, evt.Status)
	}
	return evt, nil
}

var _ domain.StatusPublisher = (*RedisBus)(nil)
