package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultStream = "notifications"

// StreamDispatcher publishes events onto a redis stream. XADD gives
// at-least-once semantics once a consumer group reads with XREADGROUP/XACK.
type StreamDispatcher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamDispatcher(client *redis.Client) *StreamDispatcher {
	return &StreamDispatcher{
		client: client,
		stream: defaultStream,
		maxLen: 100_000,
	}
}

func (d *StreamDispatcher) Enqueue(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: d.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_type":     eventType,
			"appointment_id": appointmentID.String(),
			"payload":        string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
