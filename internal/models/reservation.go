package models

import "time"

// Reservation status values.
const (
	ReservationStatusUpcoming  = "upcoming"
	ReservationStatusActive    = "active"
	ReservationStatusCompleted = "completed"
	ReservationStatusCancelled = "cancelled"
)

// Reservation is a committed, non-overlapping time claim on one charger by one vehicle.
// The interval actually blocked on the charger is [StartTime, CalculatedEndTime), where
// CalculatedEndTime adds the configured buffer to the driver-requested end.
type Reservation struct {
	ID                 string    `db:"id" json:"id"`
	VehicleID          string    `db:"vehicle_id" json:"vehicle_id"`
	ChargerID          string    `db:"charger_id" json:"charger_id"`
	UserID             string    `db:"user_id" json:"user_id"`
	StartTime          time.Time `db:"start_time" json:"start_time"`
	EndTime            time.Time `db:"end_time" json:"end_time"`
	CalculatedEndTime  time.Time `db:"calculated_end_time" json:"calculated_end_time"`
	EstimatedChargeMin float64   `db:"estimated_charge_min" json:"estimated_charge_min"`
	BufferMin          int       `db:"buffer_min" json:"buffer_min"`
	Status             string    `db:"status" json:"status"`
	CancelReason       string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the reservation can no longer change.
func (r *Reservation) IsTerminal() bool {
	return r.Status == ReservationStatusCompleted || r.Status == ReservationStatusCancelled
}
