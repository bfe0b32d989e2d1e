package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltway/internal/events"
	"voltway/internal/models"
	"voltway/internal/schedule"
)

type sessionFixture struct {
	svc          *ChargingSessionService
	clock        *manualClock
	index        *schedule.Index
	reservations *memReservationStore
	sessions     *memSessionStore
	publisher    *capturePublisher

	meterMu sync.Mutex
	meters  []*fakeMeter
	// expectedEnergy records the cap the orchestrator armed the last meter with
	expectedEnergy float64
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		clock:        newManualClock(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)),
		index:        schedule.NewIndex(),
		reservations: newMemReservationStore(),
		sessions:     newMemSessionStore(),
		publisher:    &capturePublisher{},
	}

	startMeter := func(sessionID string, powerKW, expectedEnergyKWh float64) Meter {
		m := &fakeMeter{power: powerKW}
		f.meterMu.Lock()
		f.meters = append(f.meters, m)
		f.expectedEnergy = expectedEnergyKWh
		f.meterMu.Unlock()
		return m
	}

	f.svc = NewChargingSessionService(
		f.sessions,
		f.reservations,
		newMemChargerStore(testCharger("ch-1")),
		f.index,
		startMeter,
		nil,
		f.publisher,
		nil,
		zap.NewNop(),
		DefaultSessionPolicy(),
	)
	f.svc.now = f.clock.Now
	return f
}

func (f *sessionFixture) lastMeter() *fakeMeter {
	f.meterMu.Lock()
	defer f.meterMu.Unlock()
	if len(f.meters) == 0 {
		return nil
	}
	return f.meters[len(f.meters)-1]
}

// seedReservation stores an upcoming reservation starting now and occupies its window.
func (f *sessionFixture) seedReservation(t *testing.T, id string) *models.Reservation {
	t.Helper()
	now := f.clock.Now()
	res := &models.Reservation{
		ID:                 id,
		VehicleID:          "veh-1",
		ChargerID:          "ch-1",
		UserID:             "user-1",
		StartTime:          now,
		EndTime:            now.Add(time.Hour),
		CalculatedEndTime:  now.Add(80 * time.Minute),
		EstimatedChargeMin: 60,
		BufferMin:          20,
		Status:             models.ReservationStatusUpcoming,
		CreatedAt:          now,
	}
	require.NoError(t, f.reservations.Create(context.Background(), res))
	f.index.Occupy(res.ChargerID, res.StartTime, res.CalculatedEndTime)
	return res
}

func (f *sessionFixture) initiate(t *testing.T, reservationID string) *models.ChargingSession {
	t.Helper()
	sess, err := f.svc.InitiateSession(context.Background(), InitiateSessionInput{
		ReservationID: reservationID,
		ChargerID:     "ch-1",
		VehicleID:     "veh-1",
		UserID:        "user-1",
		AdminID:       "admin-1",
	})
	require.NoError(t, err)
	return sess
}

func TestHandshakeBothOrders(t *testing.T) {
	orders := []struct {
		name          string
		first, second string
		intermediate  models.SessionStatus
	}{
		{"admin first", models.PartyAdmin, models.PartyUser, models.SessionStatusAdminConfirmed},
		{"user first", models.PartyUser, models.PartyAdmin, models.SessionStatusUserConfirmed},
	}
	for _, tc := range orders {
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture(t)
			f.seedReservation(t, "res-1")
			sess := f.initiate(t, "res-1")
			require.Equal(t, models.SessionStatusWaitingConfirmations, sess.Status)
			ctx := context.Background()

			sess, err := f.svc.Confirm(ctx, sess.ID, tc.first)
			require.NoError(t, err)
			require.Equal(t, tc.intermediate, sess.Status)

			sess, err = f.svc.Confirm(ctx, sess.ID, tc.second)
			require.NoError(t, err)
			require.Equal(t, models.SessionStatusReadyToStart, sess.Status)
			require.True(t, sess.BothConfirmed())
			require.Contains(t, f.publisher.typesSeen(), events.TypeSessionReady)
		})
	}
}

func TestConfirmIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()

	first, err := f.svc.Confirm(ctx, sess.ID, models.PartyAdmin)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	again, err := f.svc.Confirm(ctx, sess.ID, models.PartyAdmin)
	require.NoError(t, err)
	require.Equal(t, first.Status, again.Status)
	require.Equal(t, first.AdminConfirmedAt, again.AdminConfirmedAt, "re-confirming must not move the timestamp")
}

func TestConfirmRejectsUnknownParty(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")

	_, err := f.svc.Confirm(context.Background(), sess.ID, "operator")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInitiateSessionGuards(t *testing.T) {
	f := newSessionFixture(t)
	res := f.seedReservation(t, "res-1")
	ctx := context.Background()

	_, err := f.svc.InitiateSession(ctx, InitiateSessionInput{ReservationID: "missing"})
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	_, err = f.svc.InitiateSession(ctx, InitiateSessionInput{
		ReservationID: res.ID, ChargerID: "ch-other", VehicleID: "veh-1",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	res.Status = models.ReservationStatusCancelled
	require.NoError(t, f.reservations.Update(ctx, res))
	_, err = f.svc.InitiateSession(ctx, InitiateSessionInput{
		ReservationID: res.ID, ChargerID: "ch-1", VehicleID: "veh-1",
	})
	var sterr *InvalidStateTransitionError
	require.ErrorAs(t, err, &sterr)
}

func TestInitiateSessionTooEarly(t *testing.T) {
	f := newSessionFixture(t)
	res := f.seedReservation(t, "res-1")
	res.StartTime = f.clock.Now().Add(30 * time.Minute)
	require.NoError(t, f.reservations.Update(context.Background(), res))

	_, err := f.svc.InitiateSession(context.Background(), InitiateSessionInput{
		ReservationID: res.ID, ChargerID: "ch-1", VehicleID: "veh-1",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInitiateSessionReturnsExisting(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	first := f.initiate(t, "res-1")
	second := f.initiate(t, "res-1")
	require.Equal(t, first.ID, second.ID, "either party may initiate without racing the other")

	// initiation flipped the reservation to active
	res, err := f.reservations.GetByID(context.Background(), "res-1")
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusActive, res.Status)
}

func TestStartRequiresReadyToStart(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()

	_, err := f.svc.Start(ctx, sess.ID)
	var sterr *InvalidStateTransitionError
	require.ErrorAs(t, err, &sterr)

	_, err = f.svc.Confirm(ctx, sess.ID, models.PartyAdmin)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, sess.ID, models.PartyUser)
	require.NoError(t, err)

	started, err := f.svc.Start(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCharging, started.Status)
	require.NotNil(t, started.StartedAt)
	require.Equal(t, 50.0, started.CurrentPower)

	require.NotNil(t, f.lastMeter())
	require.InDelta(t, 50.0, f.expectedEnergy, 1e-9, "cap is rated power times estimated charge time")
}

func startedSession(t *testing.T, f *sessionFixture) *models.ChargingSession {
	t.Helper()
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()
	_, err := f.svc.Confirm(ctx, sess.ID, models.PartyAdmin)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, sess.ID, models.PartyUser)
	require.NoError(t, err)
	sess, err = f.svc.Start(ctx, sess.ID)
	require.NoError(t, err)
	return sess
}

func TestStopComputesBillingOnce(t *testing.T) {
	f := newSessionFixture(t)
	sess := startedSession(t, f)
	ctx := context.Background()

	// 90 minutes on the charger against a 60 minute charge estimate
	f.clock.Advance(90 * time.Minute)
	f.lastMeter().setEnergy(48)

	stopped, err := f.svc.Stop(ctx, sess.ID, models.PartyUser)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCompleted, stopped.Status)
	require.InDelta(t, 48.0, stopped.EnergyDelivered, 1e-9)
	require.InDelta(t, 48.0*0.30, stopped.EnergyCost, 1e-9)
	require.InDelta(t, 30*0.10, stopped.ParkingCost, 1e-9, "30 idle minutes at the parking rate")
	require.InDelta(t, stopped.EnergyCost+stopped.ParkingCost, stopped.TotalCost, 1e-9)
	require.Equal(t, models.PartyUser, stopped.StoppedBy)
	require.Equal(t, 1, f.lastMeter().stopCalls)

	// the reservation closed and its window was freed
	res, err := f.reservations.GetByID(ctx, "res-1")
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusCompleted, res.Status)
	require.True(t, f.index.IsFree("ch-1", res.StartTime, res.CalculatedEndTime))

	// terminal: a second stop cannot rebill
	_, err = f.svc.Stop(ctx, sess.ID, models.PartyUser)
	var sterr *InvalidStateTransitionError
	require.ErrorAs(t, err, &sterr)
	final, _ := f.sessions.GetByID(ctx, sess.ID)
	require.InDelta(t, stopped.TotalCost, final.TotalCost, 1e-9)
}

func TestCancelWhileChargingBillsAccruedEnergy(t *testing.T) {
	f := newSessionFixture(t)
	sess := startedSession(t, f)

	f.clock.Advance(30 * time.Minute)
	f.lastMeter().setEnergy(25)

	cancelled, err := f.svc.Cancel(context.Background(), sess.ID, models.PartyUser, "leaving early")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCancelled, cancelled.Status)
	require.InDelta(t, 25.0, cancelled.EnergyDelivered, 1e-9)
	require.InDelta(t, 25.0*0.30, cancelled.EnergyCost, 1e-9)
	require.Zero(t, cancelled.ParkingCost, "no idle time before the estimate elapses")
	require.Equal(t, "leaving early", cancelled.CancelReason)
}

func TestCancelGracePeriod(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, sess.ID, models.PartyUser)
	require.NoError(t, err)

	// a confirmed party cannot back out inside the grace period
	_, err = f.svc.Cancel(ctx, sess.ID, models.PartyUser, "changed my mind")
	var sterr *InvalidStateTransitionError
	require.ErrorAs(t, err, &sterr)

	// the other party never confirmed and may cancel at once
	f2 := newSessionFixture(t)
	f2.seedReservation(t, "res-1")
	sess2 := f2.initiate(t, "res-1")
	_, err = f2.svc.Confirm(ctx, sess2.ID, models.PartyUser)
	require.NoError(t, err)
	cancelled, err := f2.svc.Cancel(ctx, sess2.ID, models.PartyAdmin, "charger needed")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCancelled, cancelled.Status)

	// past the grace period cancellation opens to everyone
	f.clock.Advance(5*time.Minute + time.Second)
	cancelled, err = f.svc.Cancel(ctx, sess.ID, models.PartyUser, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCancelled, cancelled.Status)
}

func TestConfirmationTimeoutLifecycle(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, sess.ID, models.PartyAdmin)
	require.NoError(t, err)

	// minute 6: cancellation opens to both, no warning yet
	f.clock.Advance(6 * time.Minute)
	view, err := f.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, view.CancelOpenToBoth)
	require.False(t, view.TimeoutWarning)
	require.NotNil(t, view.AutoCancelAt)

	// minute 11: warning raised, still alive
	f.clock.Advance(5 * time.Minute)
	view, err = f.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, view.TimeoutWarning)
	require.False(t, view.Session.IsTerminal())

	// minute 16: the system cancels with the timeout reason
	f.clock.Advance(5 * time.Minute)
	view, err = f.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCancelled, view.Session.Status)
	require.Equal(t, models.PartySystem, view.Session.StoppedBy)
	require.Equal(t, ReasonConfirmationTimeout, view.Session.CancelReason)
}

func TestCheckTimeoutsSweep(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()

	f.clock.Advance(16 * time.Minute)
	require.NoError(t, f.svc.CheckTimeouts(ctx))

	got, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCancelled, got.Status)
	require.Equal(t, ReasonConfirmationTimeout, got.CancelReason)
	require.Contains(t, f.publisher.typesSeen(), events.TypeSessionCancelled)
}

func TestTimeoutDoesNotCancelConfirmedSession(t *testing.T) {
	f := newSessionFixture(t)
	f.seedReservation(t, "res-1")
	sess := f.initiate(t, "res-1")
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, sess.ID, models.PartyAdmin)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, sess.ID, models.PartyUser)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.svc.CheckTimeouts(ctx))
	got, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusReadyToStart, got.Status, "both-confirmed sessions never time out")
}

func TestStatusPersistsMeterProgress(t *testing.T) {
	f := newSessionFixture(t)
	sess := startedSession(t, f)
	ctx := context.Background()

	f.clock.Advance(10 * time.Minute)
	f.lastMeter().setEnergy(8.5)

	view, err := f.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Meter)
	require.InDelta(t, 8.5, view.Session.EnergyDelivered, 1e-9)

	stored, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.InDelta(t, 8.5, stored.EnergyDelivered, 1e-9)

	// a stale meter reading never rolls the stored figure back
	f.lastMeter().setEnergy(7)
	view, err = f.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	require.InDelta(t, 8.5, view.Session.EnergyDelivered, 1e-9)
}
