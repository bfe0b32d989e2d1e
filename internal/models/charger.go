package models

import "time"

// ConnectorType enumerates supported plug standards.
type ConnectorType string

// Known connector types.
const (
	ConnectorType1   ConnectorType = "Type1"
	ConnectorType2   ConnectorType = "Type2"
	ConnectorCCS     ConnectorType = "CCS"
	ConnectorCHAdeMO ConnectorType = "CHAdeMO"
	ConnectorTesla   ConnectorType = "Tesla"
)

// Charger operational status values.
const (
	ChargerStatusAvailable   = "available"
	ChargerStatusOccupied    = "occupied"
	ChargerStatusMaintenance = "maintenance"
)

// Charger represents a physical charging point owned by a station operator.
type Charger struct {
	ID            string        `db:"id" json:"id"`
	OperatorID    string        `db:"operator_id" json:"operator_id"`
	Name          string        `db:"name" json:"name"`
	Latitude      float64       `db:"latitude" json:"latitude"`
	Longitude     float64       `db:"longitude" json:"longitude"`
	ConnectorType ConnectorType `db:"connector_type" json:"connector_type"`
	PowerKW       float64       `db:"power_kw" json:"power_kw"`
	EnergyPrice   float64       `db:"energy_price" json:"energy_price"`
	ParkingPrice  float64       `db:"parking_price" json:"parking_price"`
	Status        string        `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}
