package events

import (
	"context"
	"time"
)

// Event types emitted by the orchestration engine. The notification transport
// consuming these is an external collaborator.
const (
	TypeReservationCreated   = "reservation.created"
	TypeReservationActivated = "reservation.activated"
	TypeReservationCompleted = "reservation.completed"
	TypeReservationCancelled = "reservation.cancelled"

	TypeSessionCreated   = "session.created"
	TypeSessionConfirmed = "session.confirmed"
	TypeSessionReady     = "session.ready"
	TypeSessionCharging  = "session.charging"
	TypeSessionCompleted = "session.completed"
	TypeSessionCancelled = "session.cancelled"
)

// Event is a domain event describing a reservation or session transition.
type Event struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservation_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	ChargerID     string    `json:"charger_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Party         string    `json:"party,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops all events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
