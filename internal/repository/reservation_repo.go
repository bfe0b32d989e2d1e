package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltway/internal/models"
)

// ReservationRepository handles persistence of reservations.
type ReservationRepository struct {
	db *sql.DB
}

// NewReservationRepository returns repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, vehicle_id, charger_id, user_id, start_time, end_time, calculated_end_time, estimated_charge_min, buffer_min, status, cancel_reason, created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }, res *models.Reservation) error {
	var reason sql.NullString
	err := row.Scan(
		&res.ID,
		&res.VehicleID,
		&res.ChargerID,
		&res.UserID,
		&res.StartTime,
		&res.EndTime,
		&res.CalculatedEndTime,
		&res.EstimatedChargeMin,
		&res.BufferMin,
		&res.Status,
		&reason,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return err
	}
	res.CancelReason = reason.String
	return nil
}

// Create inserts a reservation.
func (r *ReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	const query = `
		INSERT INTO reservations (id, vehicle_id, charger_id, user_id, start_time, end_time, calculated_end_time, estimated_charge_min, buffer_min, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		res.ID,
		res.VehicleID,
		res.ChargerID,
		res.UserID,
		res.StartTime,
		res.EndTime,
		res.CalculatedEndTime,
		res.EstimatedChargeMin,
		res.BufferMin,
		res.Status,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
}

// GetByID returns one reservation.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	var res models.Reservation
	if err := scanReservation(r.db.QueryRowContext(ctx, query, id), &res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// Update persists mutable reservation fields.
func (r *ReservationRepository) Update(ctx context.Context, res *models.Reservation) error {
	const query = `
		UPDATE reservations
		SET status = $2,
		    cancel_reason = NULLIF($3, ''),
		    estimated_charge_min = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, res.ID, res.Status, res.CancelReason, res.EstimatedChargeMin)
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

func (r *ReservationRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var res models.Reservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListByStatus returns reservations in the given status.
func (r *ReservationRepository) ListByStatus(ctx context.Context, status string) ([]models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE status = $1 ORDER BY start_time`
	return r.list(ctx, query, status)
}

// ListBlocking returns reservations whose window still occupies a charger.
func (r *ReservationRepository) ListBlocking(ctx context.Context) ([]models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE status IN ('upcoming', 'active') ORDER BY charger_id, start_time`
	return r.list(ctx, query)
}

// ListByUser returns the user's most recent reservations.
func (r *ReservationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 ORDER BY start_time DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}
