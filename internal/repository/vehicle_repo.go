package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltway/internal/models"
)

// VehicleRepository handles persistence of vehicles.
type VehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository returns repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// GetByID returns one vehicle.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	const query = `
		SELECT id, user_id, connector_type, battery_capacity_kwh, charge_level, created_at, updated_at
		FROM vehicles
		WHERE id = $1
	`
	var v models.Vehicle
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.UserID,
		&v.ConnectorType,
		&v.BatteryCapacityKWh,
		&v.ChargeLevel,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
