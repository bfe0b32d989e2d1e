package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voltway/internal/events"
	"voltway/internal/metrics"
	"voltway/internal/models"
	"voltway/internal/repository"
	"voltway/internal/schedule"
	"voltway/internal/telemetry"
)

// ReasonConfirmationTimeout is the cancel reason recorded when the handshake
// never completes.
const ReasonConfirmationTimeout = "confirmation timeout"

// SessionPolicy holds the handshake timeout thresholds, measured from session
// creation. These are policy constants, not protocol requirements.
type SessionPolicy struct {
	// CancelGrace: once elapsed, cancellation opens to both parties even if
	// they already confirmed.
	CancelGrace time.Duration
	// WarnAfter: clients should surface an imminent auto-cancellation warning.
	WarnAfter time.Duration
	// AutoCancelAfter: the system unilaterally cancels the session.
	AutoCancelAfter time.Duration
	// StartSkew is how early a session may be opened before the reserved
	// start time.
	StartSkew time.Duration
}

// DefaultSessionPolicy mirrors the observed production constants.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		CancelGrace:     5 * time.Minute,
		WarnAfter:       10 * time.Minute,
		AutoCancelAfter: 15 * time.Minute,
		StartSkew:       2 * time.Minute,
	}
}

// Meter reports live charging measurements for one session. The simulator
// implements it; a real metering feed can replace it without touching the
// orchestrator.
type Meter interface {
	Reading() telemetry.Sample
	Status() telemetry.Status
	Stop() telemetry.Sample
}

// MeterStarter arms a meter for a session charging at the given power, capped
// at the expected energy delivery.
type MeterStarter func(sessionID string, powerKW, expectedEnergyKWh float64) Meter

// SessionStatusView is the polling client's snapshot of a session.
type SessionStatusView struct {
	Session models.ChargingSession `json:"session"`
	Meter   *telemetry.Status      `json:"meter,omitempty"`
	// CancelOpenToBoth is set once the grace period elapses without both
	// confirmations.
	CancelOpenToBoth bool `json:"cancel_open_to_both"`
	// TimeoutWarning signals imminent auto-cancellation.
	TimeoutWarning bool       `json:"timeout_warning"`
	AutoCancelAt   *time.Time `json:"auto_cancel_at,omitempty"`
}

// ChargingSessionService choreographs the two-party confirmation handshake,
// metering, timeout-driven cancellation, and final billing for charging
// sessions. All transitions for one session are serialized by a per-session
// lock.
type ChargingSessionService struct {
	sessions     SessionStore
	reservations ReservationStore
	chargers     ChargerStore
	index        *schedule.Index
	startMeter   MeterStarter
	cache        ActiveSessionCache
	publisher    events.Publisher
	metrics      *metrics.Set
	logger       *zap.Logger
	policy       SessionPolicy
	now          func() time.Time

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	meters map[string]Meter
}

// NewChargingSessionService builds the orchestrator.
func NewChargingSessionService(
	sessions SessionStore,
	reservations ReservationStore,
	chargers ChargerStore,
	index *schedule.Index,
	startMeter MeterStarter,
	cache ActiveSessionCache,
	publisher events.Publisher,
	metricSet *metrics.Set,
	logger *zap.Logger,
	policy SessionPolicy,
) *ChargingSessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ChargingSessionService{
		sessions:     sessions,
		reservations: reservations,
		chargers:     chargers,
		index:        index,
		startMeter:   startMeter,
		cache:        cache,
		publisher:    publisher,
		metrics:      metricSet,
		logger:       logger,
		policy:       policy,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
		meters:       make(map[string]Meter),
	}
}

func (s *ChargingSessionService) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[key]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// InitiateSessionInput binds a new session to a committed reservation.
type InitiateSessionInput struct {
	ReservationID string
	ChargerID     string
	VehicleID     string
	UserID        string
	AdminID       string
}

// InitiateSession opens a session for a reservation at or after its start time.
// When a non-terminal session already exists for the reservation it is returned
// as-is, so either party may initiate without racing the other.
func (s *ChargingSessionService) InitiateSession(ctx context.Context, in InitiateSessionInput) (*models.ChargingSession, error) {
	lock := s.lockFor("reservation:" + in.ReservationID)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.reservations.GetByID(ctx, in.ReservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("reservation %s not found", in.ReservationID)
		}
		return nil, err
	}
	if res.IsTerminal() {
		return nil, &InvalidStateTransitionError{Entity: "reservation", From: res.Status, Action: "initiate session"}
	}
	if res.ChargerID != in.ChargerID || res.VehicleID != in.VehicleID {
		return nil, validationf("charger or vehicle does not match reservation %s", res.ID)
	}

	now := s.now().UTC()
	if now.Add(s.policy.StartSkew).Before(res.StartTime) {
		return nil, validationf("reservation %s starts at %s", res.ID, res.StartTime.Format(time.RFC3339))
	}

	if existing, err := s.sessions.FindNonTerminalByReservation(ctx, res.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if res.Status == models.ReservationStatusUpcoming {
		res.Status = models.ReservationStatusActive
		if err := s.reservations.Update(ctx, res); err != nil {
			return nil, err
		}
	}

	sess := &models.ChargingSession{
		ID:            uuid.NewString(),
		ReservationID: res.ID,
		ChargerID:     res.ChargerID,
		VehicleID:     res.VehicleID,
		UserID:        in.UserID,
		AdminID:       in.AdminID,
		Status:        models.SessionStatusWaitingConfirmations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.cacheSave(ctx, sess)

	s.publish(ctx, events.Event{
		Type:          events.TypeSessionCreated,
		SessionID:     sess.ID,
		ReservationID: sess.ReservationID,
		ChargerID:     sess.ChargerID,
		UserID:        sess.UserID,
	})
	s.logger.Info("session initiated",
		zap.String("session_id", sess.ID),
		zap.String("reservation_id", sess.ReservationID),
	)
	return sess, nil
}

// Confirm records one party's presence. Confirming twice is a no-op. Once both
// parties have confirmed the session becomes ready_to_start.
func (s *ChargingSessionService) Confirm(ctx context.Context, sessionID, party string) (*models.ChargingSession, error) {
	if party != models.PartyAdmin && party != models.PartyUser {
		return nil, validationf("unknown party %q", party)
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.loadApplyingTimeout(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case models.SessionStatusWaitingConfirmations, models.SessionStatusAdminConfirmed,
		models.SessionStatusUserConfirmed, models.SessionStatusReadyToStart:
	default:
		return nil, &InvalidStateTransitionError{Entity: "session", From: string(sess.Status), Action: "confirm"}
	}
	if sess.ConfirmedBy(party) {
		// idempotent: re-confirming changes nothing
		return sess, nil
	}

	now := s.now().UTC()
	if party == models.PartyAdmin {
		sess.AdminConfirmedAt = &now
	} else {
		sess.UserConfirmedAt = &now
	}

	ready := sess.BothConfirmed()
	switch {
	case ready:
		sess.Status = models.SessionStatusReadyToStart
	case party == models.PartyAdmin:
		sess.Status = models.SessionStatusAdminConfirmed
	default:
		sess.Status = models.SessionStatusUserConfirmed
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.cacheSave(ctx, sess)

	s.publish(ctx, events.Event{
		Type:      events.TypeSessionConfirmed,
		SessionID: sess.ID,
		ChargerID: sess.ChargerID,
		Party:     party,
	})
	if ready {
		s.publish(ctx, events.Event{
			Type:      events.TypeSessionReady,
			SessionID: sess.ID,
			ChargerID: sess.ChargerID,
		})
	}
	return sess, nil
}

// Start begins metering. Only valid from ready_to_start.
func (s *ChargingSessionService) Start(ctx context.Context, sessionID string) (*models.ChargingSession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.loadApplyingTimeout(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusReadyToStart {
		return nil, &InvalidStateTransitionError{Entity: "session", From: string(sess.Status), Action: "start"}
	}

	charger, err := s.chargers.GetByID(ctx, sess.ChargerID)
	if err != nil {
		return nil, err
	}
	res, err := s.reservations.GetByID(ctx, sess.ReservationID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess.StartedAt = &now
	sess.Status = models.SessionStatusCharging
	sess.CurrentPower = charger.PowerKW
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	if s.startMeter != nil {
		expected := charger.PowerKW * res.EstimatedChargeMin / 60
		meter := s.startMeter(sess.ID, charger.PowerKW, expected)
		s.mu.Lock()
		s.meters[sess.ID] = meter
		s.mu.Unlock()
	}
	s.cacheSave(ctx, sess)

	s.publish(ctx, events.Event{
		Type:      events.TypeSessionCharging,
		SessionID: sess.ID,
		ChargerID: sess.ChargerID,
	})
	s.logger.Info("session charging", zap.String("session_id", sess.ID))
	return sess, nil
}

// Stop ends metering, computes billing exactly once, and completes the session.
// Only valid from charging.
func (s *ChargingSessionService) Stop(ctx context.Context, sessionID, stoppedBy string) (*models.ChargingSession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusCharging {
		return nil, &InvalidStateTransitionError{Entity: "session", From: string(sess.Status), Action: "stop"}
	}
	if err := s.finishCharging(ctx, sess, models.SessionStatusCompleted, stoppedBy, ""); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionsCompleted.Inc()
	}
	s.publish(ctx, events.Event{
		Type:      events.TypeSessionCompleted,
		SessionID: sess.ID,
		ChargerID: sess.ChargerID,
		UserID:    sess.UserID,
	})
	s.logger.Info("session completed",
		zap.String("session_id", sess.ID),
		zap.Float64("energy_kwh", sess.EnergyDelivered),
		zap.Float64("total_cost", sess.TotalCost),
	)
	return sess, nil
}

// Cancel terminates a session before natural completion. Cancelling while
// charging is an early stop: billing covers whatever energy has accrued. Before
// the grace period elapses, a party that already confirmed may not cancel.
func (s *ChargingSessionService) Cancel(ctx context.Context, sessionID, cancelledBy, reason string) (*models.ChargingSession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.cancelLocked(ctx, sess, cancelledBy, reason)
}

func (s *ChargingSessionService) cancelLocked(ctx context.Context, sess *models.ChargingSession, cancelledBy, reason string) (*models.ChargingSession, error) {
	if sess.IsTerminal() {
		return nil, &InvalidStateTransitionError{Entity: "session", From: string(sess.Status), Action: "cancel"}
	}

	if sess.Status == models.SessionStatusCharging {
		if err := s.finishCharging(ctx, sess, models.SessionStatusCancelled, cancelledBy, reason); err != nil {
			return nil, err
		}
	} else {
		elapsed := s.now().UTC().Sub(sess.CreatedAt)
		if cancelledBy != models.PartySystem && elapsed < s.policy.CancelGrace && sess.ConfirmedBy(cancelledBy) {
			return nil, &InvalidStateTransitionError{Entity: "session", From: string(sess.Status), Action: "cancel (confirmed party must wait out the grace period)"}
		}
		sess.Status = models.SessionStatusCancelled
		sess.StoppedBy = cancelledBy
		sess.CancelReason = reason
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, err
		}
		s.cacheDelete(ctx, sess.ID)
	}

	if s.metrics != nil {
		s.metrics.SessionsCancelled.WithLabelValues(cancelledBy).Inc()
	}
	s.publish(ctx, events.Event{
		Type:      events.TypeSessionCancelled,
		SessionID: sess.ID,
		ChargerID: sess.ChargerID,
		Party:     cancelledBy,
		Reason:    reason,
	})
	s.logger.Info("session cancelled",
		zap.String("session_id", sess.ID),
		zap.String("cancelled_by", cancelledBy),
		zap.String("reason", reason),
	)
	return sess, nil
}

// finishCharging stops the meter, computes billing once, finalizes the session
// in the given terminal state, and closes out the reservation. Caller holds the
// session lock and has verified the charging state.
func (s *ChargingSessionService) finishCharging(ctx context.Context, sess *models.ChargingSession, terminal models.SessionStatus, stoppedBy, reason string) error {
	now := s.now().UTC()

	s.mu.Lock()
	meter := s.meters[sess.ID]
	delete(s.meters, sess.ID)
	s.mu.Unlock()

	energy := sess.EnergyDelivered
	if meter != nil {
		final := meter.Stop()
		if final.EnergyKWh > energy {
			energy = final.EnergyKWh
		}
	}

	charger, err := s.chargers.GetByID(ctx, sess.ChargerID)
	if err != nil {
		return err
	}
	res, err := s.reservations.GetByID(ctx, sess.ReservationID)
	if err != nil {
		return err
	}

	var elapsedMin float64
	if sess.StartedAt != nil {
		elapsedMin = now.Sub(*sess.StartedAt).Minutes()
	}
	idleMin := elapsedMin - res.EstimatedChargeMin
	if idleMin < 0 {
		idleMin = 0
	}

	sess.EndedAt = &now
	sess.EnergyDelivered = energy
	sess.CurrentPower = 0
	sess.EnergyCost = energy * charger.EnergyPrice
	sess.ParkingCost = idleMin * charger.ParkingPrice
	sess.TotalCost = sess.EnergyCost + sess.ParkingCost
	sess.Status = terminal
	sess.StoppedBy = stoppedBy
	sess.CancelReason = reason
	if err := s.sessions.Update(ctx, sess); err != nil {
		return err
	}
	s.cacheDelete(ctx, sess.ID)

	res.Status = models.ReservationStatusCompleted
	if err := s.reservations.Update(ctx, res); err != nil {
		return err
	}
	s.index.Release(res.ChargerID, res.StartTime, res.CalculatedEndTime)

	if s.metrics != nil {
		s.metrics.EnergyDeliveredKWh.Add(energy)
	}
	return nil
}

// Status returns the session plus live meter data and timeout flags. Reading
// status also evaluates the confirmation deadline, so a timed-out session
// reports cancelled even if the background sweep has not run yet.
func (s *ChargingSessionService) Status(ctx context.Context, sessionID string) (*SessionStatusView, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.loadApplyingTimeout(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionStatusView{Session: *sess}

	if sess.Status == models.SessionStatusCharging {
		s.mu.Lock()
		meter := s.meters[sess.ID]
		s.mu.Unlock()
		if meter != nil {
			st := meter.Status()
			view.Meter = &st
			// energyDelivered is monotonically non-decreasing while charging
			if st.EnergyKWh > sess.EnergyDelivered {
				sess.EnergyDelivered = st.EnergyKWh
				sess.CurrentPower = st.PowerKW
				if err := s.sessions.Update(ctx, sess); err != nil {
					s.logger.Warn("failed to persist meter progress", zap.String("session_id", sess.ID), zap.Error(err))
				}
				view.Session = *sess
			}
		}
	}

	if !sess.IsTerminal() && !sess.BothConfirmed() && sess.Status != models.SessionStatusCharging {
		elapsed := s.now().UTC().Sub(sess.CreatedAt)
		view.CancelOpenToBoth = elapsed >= s.policy.CancelGrace
		view.TimeoutWarning = elapsed >= s.policy.WarnAfter
		deadline := sess.CreatedAt.Add(s.policy.AutoCancelAfter)
		view.AutoCancelAt = &deadline
	}
	return view, nil
}

// CheckTimeouts cancels every session whose confirmation deadline has passed.
// Run periodically from the app; the lazy check on Status covers reads between
// sweeps.
func (s *ChargingSessionService) CheckTimeouts(ctx context.Context) error {
	waiting, err := s.sessions.ListAwaitingConfirmation(ctx)
	if err != nil {
		return err
	}
	for i := range waiting {
		id := waiting[i].ID
		lock := s.lockFor(id)
		lock.Lock()
		if _, err := s.loadApplyingTimeout(ctx, id); err != nil {
			s.logger.Warn("timeout check failed", zap.String("session_id", id), zap.Error(err))
		}
		lock.Unlock()
	}
	return nil
}

// load fetches the session, mapping missing ids to a not-found error.
func (s *ChargingSessionService) load(ctx context.Context, sessionID string) (*models.ChargingSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("session %s not found", sessionID)
		}
		return nil, err
	}
	return sess, nil
}

// loadApplyingTimeout loads the session and applies the confirmation deadline:
// past it, the session is cancelled by the system with the timeout reason.
func (s *ChargingSessionService) loadApplyingTimeout(ctx context.Context, sessionID string) (*models.ChargingSession, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsTerminal() || sess.BothConfirmed() {
		return sess, nil
	}
	if s.now().UTC().Sub(sess.CreatedAt) < s.policy.AutoCancelAfter {
		return sess, nil
	}

	s.logger.Info("confirmation deadline passed, cancelling session",
		zap.String("session_id", sess.ID),
		zap.Duration("deadline", s.policy.AutoCancelAfter),
	)
	return s.cancelLocked(ctx, sess, models.PartySystem, ReasonConfirmationTimeout)
}

// GetSession returns a session by id without side effects.
func (s *ChargingSessionService) GetSession(ctx context.Context, sessionID string) (*models.ChargingSession, error) {
	return s.load(ctx, sessionID)
}

// ListByUser returns the user's session history.
func (s *ChargingSessionService) ListByUser(ctx context.Context, userID string, limit int) ([]models.ChargingSession, error) {
	return s.sessions.ListByUser(ctx, userID, limit)
}

func (s *ChargingSessionService) cacheSave(ctx context.Context, sess *models.ChargingSession) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, *sess); err != nil {
		s.logger.Warn("failed to cache active session", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *ChargingSessionService) cacheDelete(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to drop active session cache", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *ChargingSessionService) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}
