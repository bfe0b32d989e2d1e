package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Recommendation    http.HandlerFunc
	CreateReservation http.HandlerFunc
	CancelReservation http.HandlerFunc
	MyReservations    http.HandlerFunc
	ListChargers      http.HandlerFunc
	NextAvailable     http.HandlerFunc

	InitiateSession http.HandlerFunc
	ConfirmSession  http.HandlerFunc
	StartSession    http.HandlerFunc
	StopSession     http.HandlerFunc
	CancelSession   http.HandlerFunc
	SessionStatus   http.HandlerFunc
	SessionStream   http.HandlerFunc
	MySessions      http.HandlerFunc

	Health  http.HandlerFunc
	Metrics http.Handler
}

// NewRouter registers endpoints. When authMW is non-nil it wraps every route
// except health and metrics.
func NewRouter(routes Routes, authMW func(http.Handler) http.Handler) http.Handler {
	api := http.NewServeMux()
	register := func(pattern string, handler http.HandlerFunc) {
		if handler != nil {
			api.Handle(pattern, handler)
		}
	}

	register("GET /recommendation", routes.Recommendation)
	register("POST /reservations", routes.CreateReservation)
	register("POST /reservations/{id}/cancel", routes.CancelReservation)
	register("GET /reservations/me", routes.MyReservations)
	register("GET /chargers", routes.ListChargers)
	register("GET /chargers/{id}/next-available", routes.NextAvailable)
	register("POST /sessions/initiate", routes.InitiateSession)
	register("POST /sessions/{id}/confirm", routes.ConfirmSession)
	register("POST /sessions/{id}/start", routes.StartSession)
	register("POST /sessions/{id}/stop", routes.StopSession)
	register("POST /sessions/{id}/cancel", routes.CancelSession)
	register("GET /sessions/{id}/status", routes.SessionStatus)
	register("GET /sessions/{id}/stream", routes.SessionStream)
	register("GET /sessions/me", routes.MySessions)

	var apiHandler http.Handler = api
	if authMW != nil {
		apiHandler = authMW(api)
	}

	mux := http.NewServeMux()
	if routes.Health != nil {
		mux.Handle("GET /health", routes.Health)
	}
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}
	mux.Handle("/", apiHandler)
	return mux
}
