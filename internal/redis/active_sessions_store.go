package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voltway/internal/models"
)

// ActiveSession is the cached view of a live charging session, kept in redis so
// "what is live right now" reads skip the database.
type ActiveSession struct {
	SessionID     string `json:"session_id"`
	ReservationID string `json:"reservation_id"`
	ChargerID     string `json:"charger_id"`
	VehicleID     string `json:"vehicle_id"`
	UserID        string `json:"user_id"`
	AdminID       string `json:"admin_id"`
	Status        string `json:"status"`
}

// Store manages the active session cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns a redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("charging:active:%s", sessionID)
}

// Save caches the session.
func (s *Store) Save(ctx context.Context, session models.ChargingSession) error {
	data, err := json.Marshal(ActiveSession{
		SessionID:     session.ID,
		ReservationID: session.ReservationID,
		ChargerID:     session.ChargerID,
		VehicleID:     session.VehicleID,
		UserID:        session.UserID,
		AdminID:       session.AdminID,
		Status:        string(session.Status),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.ID), data, s.ttl).Err()
}

// Get returns the cached session.
func (s *Store) Get(ctx context.Context, sessionID string) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes the cached session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
