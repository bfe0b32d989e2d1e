package app

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "voltway/libs/db"
	libredis "voltway/libs/redis"

	"voltway/internal/config"
	"voltway/internal/events"
	"voltway/internal/geo"
	httpserver "voltway/internal/http"
	"voltway/internal/http/handlers"
	"voltway/internal/http/middleware"
	"voltway/internal/metrics"
	redisstore "voltway/internal/redis"
	"voltway/internal/repository"
	"voltway/internal/schedule"
	"voltway/internal/service"
	"voltway/internal/telemetry"
)

// App wires charging-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	reservations *service.ReservationService
	sessions     *service.ChargingSessionService
	cfg          *config.Config

	bg sync.WaitGroup
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.Options{})
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	chargerRepo := repository.NewChargerRepository(sqlDB)
	vehicleRepo := repository.NewVehicleRepository(sqlDB)
	reservationRepo := repository.NewReservationRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)

	metricSet, err := metrics.New(nil)
	if err != nil {
		sqlDB.Close()
		redisClient.Close()
		return nil, err
	}

	index := schedule.NewIndex()
	publisher := events.NewRedisPublisher(redisClient, cfg.Redis.EventsChannel)
	activeStore := redisstore.NewStore(redisClient, cfg.ActiveSessionTTL())

	reservationSvc := service.NewReservationService(
		chargerRepo, vehicleRepo, reservationRepo, sessionRepo,
		index, publisher, metricSet, logger,
		service.ReservationPolicy{
			Buffer:    cfg.Buffer(),
			ClockSkew: cfg.ClockSkew(),
			Horizon:   cfg.Horizon(),
		},
	)

	sampleInterval := cfg.TelemetrySampleInterval()
	startMeter := func(sessionID string, powerKW, expectedEnergyKWh float64) service.Meter {
		return telemetry.NewSimulator(sessionID, powerKW, expectedEnergyKWh, sampleInterval, time.Now)
	}

	sessionSvc := service.NewChargingSessionService(
		sessionRepo, reservationRepo, chargerRepo,
		index, startMeter, activeStore, publisher, metricSet, logger,
		service.SessionPolicy{
			CancelGrace:     cfg.CancelGrace(),
			WarnAfter:       cfg.WarnAfter(),
			AutoCancelAfter: cfg.AutoCancelAfter(),
			StartSkew:       2 * time.Minute,
		},
	)

	travel := geo.BoundedEstimator{Inner: geo.HaversineEstimator{}, Timeout: cfg.TravelTimeout()}
	recommendSvc := service.NewRecommendationService(
		chargerRepo, vehicleRepo, index, travel, logger, cfg.Horizon(),
	)

	reservationsHandler := handlers.NewReservationsHandler(reservationSvc, logger)
	sessionsHandler := handlers.NewSessionsHandler(sessionSvc, logger)

	routes := httpserver.Routes{
		Recommendation:    handlers.NewRecommendationHandler(recommendSvc, logger),
		CreateReservation: reservationsHandler.Create,
		CancelReservation: reservationsHandler.Cancel,
		MyReservations:    reservationsHandler.Me,
		ListChargers:      handlers.NewChargersHandler(reservationSvc, logger),
		NextAvailable:     reservationsHandler.NextAvailable,

		InitiateSession: sessionsHandler.Initiate,
		ConfirmSession:  sessionsHandler.Confirm,
		StartSession:    sessionsHandler.Start,
		StopSession:     sessionsHandler.Stop,
		CancelSession:   sessionsHandler.Cancel,
		SessionStatus:   sessionsHandler.Status,
		SessionStream:   handlers.NewSessionStreamHandler(sessionSvc, sampleInterval, logger),
		MySessions:      sessionsHandler.Me,

		Health:  handlers.NewHealthHandler(),
		Metrics: metricSet.Handler(),
	}

	var authMW func(http.Handler) http.Handler
	if cfg.Auth.JWTSecret != "" {
		authMW = middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	}

	router := httpserver.NewRouter(routes, authMW)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:       server,
		db:           sqlDB,
		redisClient:  redisClient,
		logger:       logger,
		reservations: reservationSvc,
		sessions:     sessionSvc,
		cfg:          cfg,
	}, nil
}

// Run warms the interval index, starts the background sweeps, and serves HTTP
// until the context ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.reservations.WarmLoad(ctx); err != nil {
		return err
	}

	a.runSweep(ctx, "reservation sweep", a.cfg.SweepInterval(), a.reservations.Sweep)
	a.runSweep(ctx, "session timeout sweep", a.cfg.TimeoutSweepInterval(), a.sessions.CheckTimeouts)

	err := a.server.Run(ctx)
	a.bg.Wait()
	return err
}

func (a *App) runSweep(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					a.logger.Warn(name+" failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
