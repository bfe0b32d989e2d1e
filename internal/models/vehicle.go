package models

import "time"

// Vehicle represents a driver's electric vehicle.
type Vehicle struct {
	ID                 string        `db:"id" json:"id"`
	UserID             string        `db:"user_id" json:"user_id"`
	ConnectorType      ConnectorType `db:"connector_type" json:"connector_type"`
	BatteryCapacityKWh float64       `db:"battery_capacity_kwh" json:"battery_capacity_kwh"`
	ChargeLevel        float64       `db:"charge_level" json:"charge_level"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}
