package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltway/internal/models"
)

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, reservation_id, charger_id, vehicle_id, user_id, admin_id, status, admin_confirmed_at, user_confirmed_at, started_at, ended_at, energy_delivered, current_power, energy_cost, parking_cost, total_cost, stopped_by, cancel_reason, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }, s *models.ChargingSession) error {
	var stoppedBy, reason sql.NullString
	err := row.Scan(
		&s.ID,
		&s.ReservationID,
		&s.ChargerID,
		&s.VehicleID,
		&s.UserID,
		&s.AdminID,
		&s.Status,
		&s.AdminConfirmedAt,
		&s.UserConfirmedAt,
		&s.StartedAt,
		&s.EndedAt,
		&s.EnergyDelivered,
		&s.CurrentPower,
		&s.EnergyCost,
		&s.ParkingCost,
		&s.TotalCost,
		&stoppedBy,
		&reason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	s.StoppedBy = stoppedBy.String
	s.CancelReason = reason.String
	return nil
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *models.ChargingSession) error {
	const query = `
		INSERT INTO charging_sessions (id, reservation_id, charger_id, vehicle_id, user_id, admin_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.ReservationID,
		s.ChargerID,
		s.VehicleID,
		s.UserID,
		s.AdminID,
		s.Status,
		s.CreatedAt,
	)
	return err
}

// GetByID returns one session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ChargingSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1`
	var s models.ChargingSession
	if err := scanSession(r.db.QueryRowContext(ctx, query, id), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Update persists mutable session fields.
func (r *SessionRepository) Update(ctx context.Context, s *models.ChargingSession) error {
	const query = `
		UPDATE charging_sessions
		SET status = $2,
		    admin_confirmed_at = $3,
		    user_confirmed_at = $4,
		    started_at = $5,
		    ended_at = $6,
		    energy_delivered = $7,
		    current_power = $8,
		    energy_cost = $9,
		    parking_cost = $10,
		    total_cost = $11,
		    stopped_by = NULLIF($12, ''),
		    cancel_reason = NULLIF($13, ''),
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Status,
		s.AdminConfirmedAt,
		s.UserConfirmedAt,
		s.StartedAt,
		s.EndedAt,
		s.EnergyDelivered,
		s.CurrentPower,
		s.EnergyCost,
		s.ParkingCost,
		s.TotalCost,
		s.StoppedBy,
		s.CancelReason,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindNonTerminalByReservation returns the live session bound to a reservation.
func (r *SessionRepository) FindNonTerminalByReservation(ctx context.Context, reservationID string) (*models.ChargingSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE reservation_id = $1 AND status NOT IN ('completed', 'cancelled')
		LIMIT 1
	`
	var s models.ChargingSession
	if err := scanSession(r.db.QueryRowContext(ctx, query, reservationID), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.ChargingSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ChargingSession
	for rows.Next() {
		var s models.ChargingSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListAwaitingConfirmation returns sessions still in the handshake.
func (r *SessionRepository) ListAwaitingConfirmation(ctx context.Context) ([]models.ChargingSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE status IN ('waiting_confirmations', 'admin_confirmed', 'user_confirmed')
		ORDER BY created_at
	`
	return r.list(ctx, query)
}

// ListByUser returns the user's most recent sessions.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ChargingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}
