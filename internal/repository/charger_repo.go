package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltway/internal/models"
)

// ChargerRepository handles persistence of chargers.
type ChargerRepository struct {
	db *sql.DB
}

// NewChargerRepository returns repository.
func NewChargerRepository(db *sql.DB) *ChargerRepository {
	return &ChargerRepository{db: db}
}

const chargerColumns = `id, operator_id, name, latitude, longitude, connector_type, power_kw, energy_price, parking_price, status, created_at, updated_at`

func scanCharger(row interface{ Scan(...interface{}) error }, c *models.Charger) error {
	return row.Scan(
		&c.ID,
		&c.OperatorID,
		&c.Name,
		&c.Latitude,
		&c.Longitude,
		&c.ConnectorType,
		&c.PowerKW,
		&c.EnergyPrice,
		&c.ParkingPrice,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

// GetByID returns one charger.
func (r *ChargerRepository) GetByID(ctx context.Context, id string) (*models.Charger, error) {
	const query = `SELECT ` + chargerColumns + ` FROM chargers WHERE id = $1`
	var c models.Charger
	if err := scanCharger(r.db.QueryRowContext(ctx, query, id), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListByConnector returns chargers matching connector type and status.
func (r *ChargerRepository) ListByConnector(ctx context.Context, connector models.ConnectorType, status string) ([]models.Charger, error) {
	const query = `
		SELECT ` + chargerColumns + `
		FROM chargers
		WHERE connector_type = $1 AND status = $2
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, connector, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []models.Charger
	for rows.Next() {
		var c models.Charger
		if err := scanCharger(rows, &c); err != nil {
			return nil, err
		}
		chargers = append(chargers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chargers, nil
}

// AveragePowerKW derives deliverable power from completed session throughput.
// Returns 0 when no history exists.
func (r *ChargerRepository) AveragePowerKW(ctx context.Context, chargerID string) (float64, error) {
	const query = `
		SELECT COALESCE(AVG(energy_delivered / NULLIF(EXTRACT(EPOCH FROM (ended_at - started_at)) / 3600.0, 0)), 0)
		FROM charging_sessions
		WHERE charger_id = $1
		  AND status = 'completed'
		  AND started_at IS NOT NULL
		  AND ended_at IS NOT NULL
	`
	var avg float64
	if err := r.db.QueryRowContext(ctx, query, chargerID).Scan(&avg); err != nil {
		return 0, err
	}
	return avg, nil
}
