package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher delivers outbox entries to a Redis stream.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher publishes to stream, trimming it to roughly maxLen
// entries when maxLen > 0.
func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	if p.client == nil {
		return fmt.Errorf("events: redis client required")
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":   entry.ID.String(),
			"event_type": entry.Type,
			"aggregate":  entry.Aggregate,
			"envelope":   string(entry.Payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.ID, err)
	}
	return nil
}
