// Package events carries domain events out of the authorization engine.
// Publishing is fire-and-forget: a sink failure is logged and never rolls
// back the mutation that produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of domain event.
type Type string

const (
	TypeRoleCreated             Type = "role.created"
	TypeRolePermissionsAssigned Type = "role.permissions_assigned"
	TypeRoleMoved               Type = "role.moved"
)

// Event is an immutable record of a completed mutation.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	TenantID   string                 `json:"tenant_id"`
	Operator   string                 `json:"operator,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// New builds an event with a fresh ID and the current timestamp.
func New(eventType Type, tenantID, operator string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		Operator:   operator,
		OccurredAt: time.Now(),
		Data:       data,
	}
}

// Sink consumes published events. Publish must not block the caller for
// longer than a channel send; slow delivery belongs behind a Dispatcher.
type Sink interface {
	Publish(ctx context.Context, evt Event)
}
