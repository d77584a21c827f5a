package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys for completed operations.
const (
	DiagnosisCompleted = "diagnosis.completed"
	PlanCompleted      = "plan.completed"
)

// Publisher delivers completed diagnoses and plans to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// Event is the envelope written to the exchange.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

func NewEvent(routingKey string, payload any, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

func (NopPublisher) Close() error { return nil }
