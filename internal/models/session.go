package models

import "time"

// SessionStatus is the charging session state machine position.
type SessionStatus string

// Session states. A session starts in waiting_confirmations and is terminal
// once completed or cancelled.
const (
	SessionStatusWaitingConfirmations SessionStatus = "waiting_confirmations"
	SessionStatusAdminConfirmed       SessionStatus = "admin_confirmed"
	SessionStatusUserConfirmed        SessionStatus = "user_confirmed"
	SessionStatusReadyToStart         SessionStatus = "ready_to_start"
	SessionStatusCharging             SessionStatus = "charging"
	SessionStatusCompleted            SessionStatus = "completed"
	SessionStatusCancelled            SessionStatus = "cancelled"
)

// Confirmation party types.
const (
	PartyAdmin  = "admin"
	PartyUser   = "user"
	PartySystem = "system"
)

// ChargingSession is the live, two-party-confirmed execution of a reservation,
// including metering and billing. Sessions are never deleted, only marked terminal.
type ChargingSession struct {
	ID               string        `db:"id" json:"id"`
	ReservationID    string        `db:"reservation_id" json:"reservation_id"`
	ChargerID        string        `db:"charger_id" json:"charger_id"`
	VehicleID        string        `db:"vehicle_id" json:"vehicle_id"`
	UserID           string        `db:"user_id" json:"user_id"`
	AdminID          string        `db:"admin_id" json:"admin_id"`
	Status           SessionStatus `db:"status" json:"status"`
	AdminConfirmedAt *time.Time    `db:"admin_confirmed_at" json:"admin_confirmed_at,omitempty"`
	UserConfirmedAt  *time.Time    `db:"user_confirmed_at" json:"user_confirmed_at,omitempty"`
	StartedAt        *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt          *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	EnergyDelivered  float64       `db:"energy_delivered" json:"energy_delivered"`
	CurrentPower     float64       `db:"current_power" json:"current_power"`
	EnergyCost       float64       `db:"energy_cost" json:"energy_cost"`
	ParkingCost      float64       `db:"parking_cost" json:"parking_cost"`
	TotalCost        float64       `db:"total_cost" json:"total_cost"`
	StoppedBy        string        `db:"stopped_by" json:"stopped_by,omitempty"`
	CancelReason     string        `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the session reached a final state.
func (s *ChargingSession) IsTerminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}

// BothConfirmed reports whether operator and driver have both confirmed presence.
func (s *ChargingSession) BothConfirmed() bool {
	return s.AdminConfirmedAt != nil && s.UserConfirmedAt != nil
}

// ConfirmedBy reports whether the given party already confirmed.
func (s *ChargingSession) ConfirmedBy(party string) bool {
	switch party {
	case PartyAdmin:
		return s.AdminConfirmedAt != nil
	case PartyUser:
		return s.UserConfirmedAt != nil
	}
	return false
}
