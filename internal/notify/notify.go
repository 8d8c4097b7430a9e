// Package notify dispatches appointment events to the notification pipeline.
// Delivery is fire-and-forget from the scheduling core's point of view:
// enqueue failures are logged by the caller and never fail the triggering
// operation.
package notify

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher enqueues an event for asynchronous, at-least-once delivery.
// Consumers dedupe on (event type, appointment id), so redelivery must not
// double-notify.
type Dispatcher interface {
	Enqueue(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) error
}

// Nop discards every event. Used by tools that mutate data without a
// notification pipeline attached.
type Nop struct{}

func (Nop) Enqueue(context.Context, string, uuid.UUID, map[string]any) error { return nil }
