package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/telemed-scheduling/internal/events"
)

// StreamPublisher delivers outbox events to a Redis Stream that the
// notification service consumes.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: 100000,
	}
}

func (p *StreamPublisher) Handle(ctx context.Context, evt events.Event) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     evt.ID.String(),
			"event_type":   string(evt.Type),
			"aggregate":    evt.Aggregate,
			"aggregate_id": evt.AggregateID.String(),
			"payload":      string(evt.Payload),
			"created_at":   evt.CreatedAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
