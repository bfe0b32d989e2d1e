package service

import (
	"context"

	"voltway/internal/models"
)

// ChargerStore reads charger records.
type ChargerStore interface {
	GetByID(ctx context.Context, id string) (*models.Charger, error)
	ListByConnector(ctx context.Context, connector models.ConnectorType, status string) ([]models.Charger, error)
	// AveragePowerKW estimates a charger's deliverable power from historical
	// session throughput; used when the rated power is unknown.
	AveragePowerKW(ctx context.Context, chargerID string) (float64, error)
}

// VehicleStore reads vehicle records.
type VehicleStore interface {
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)
}

// ReservationStore persists reservations.
type ReservationStore interface {
	Create(ctx context.Context, r *models.Reservation) error
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	Update(ctx context.Context, r *models.Reservation) error
	ListByStatus(ctx context.Context, status string) ([]models.Reservation, error)
	// ListBlocking returns all reservations whose window still occupies a
	// charger (status upcoming or active).
	ListBlocking(ctx context.Context) ([]models.Reservation, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error)
}

// SessionStore persists charging sessions.
type SessionStore interface {
	Create(ctx context.Context, s *models.ChargingSession) error
	GetByID(ctx context.Context, id string) (*models.ChargingSession, error)
	Update(ctx context.Context, s *models.ChargingSession) error
	// FindNonTerminalByReservation returns the live session bound to the
	// reservation, or a not-found error when none exists.
	FindNonTerminalByReservation(ctx context.Context, reservationID string) (*models.ChargingSession, error)
	ListAwaitingConfirmation(ctx context.Context) ([]models.ChargingSession, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ChargingSession, error)
}

// ActiveSessionCache mirrors live sessions into a fast store. Implementations
// may be nil-safe no-ops in tests.
type ActiveSessionCache interface {
	Save(ctx context.Context, session models.ChargingSession) error
	Delete(ctx context.Context, sessionID string) error
}
