package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/typeroom/internal/api/apierr"
	"github.com/mcoot/typeroom/internal/api/handler"
	"github.com/mcoot/typeroom/internal/api/middleware"
	"github.com/mcoot/typeroom/internal/dependencies/clock"
	httpmw "github.com/mcoot/typeroom/internal/middleware"
	"github.com/mcoot/typeroom/internal/realtime"
	"github.com/mcoot/typeroom/internal/services/auth"
	"github.com/mcoot/typeroom/internal/services/room"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger             *slog.Logger
	Clock              clock.Clock
	Verifier           auth.Verifier
	RoomService        *room.Service
	Registry           *realtime.Registry
	RealtimeController *realtime.Controller
	RealtimeRouter     *realtime.Router
	RealtimeConfig     realtime.Config
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	roomHandler := handler.NewRoomHandler(cfg.RoomService, cfg.RealtimeRouter)
	healthHandler := handler.NewHealthHandler(cfg.Registry, cfg.Clock)
	realtimeHandler := handler.NewRealtimeHandler(
		cfg.RealtimeController,
		cfg.RealtimeRouter,
		cfg.Clock,
		cfg.RealtimeConfig,
		cfg.Logger.With(slog.String("component", "realtime")),
	)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.Verifier)
	loggingMiddleware := httpmw.Logging(cfg.Logger)
	recoveryMiddleware := httpmw.Recovery(cfg.Logger, apierr.WritePanic)

	// Room connections authenticate inside the handshake, after the upgrade
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(recoveryMiddleware)
	ws.Use(loggingMiddleware)
	ws.HandleFunc("", realtimeHandler.Serve).Methods(http.MethodGet)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)

	// Public room views, registered before the authenticated /rooms routes
	api.HandleFunc("/rooms/active", roomHandler.Active).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}/spectate", roomHandler.Spectate).Methods(http.MethodGet)

	// Room routes (require auth)
	rooms := api.PathPrefix("/rooms").Subrouter()
	rooms.Use(authMiddleware)
	rooms.HandleFunc("", roomHandler.Create).Methods(http.MethodPost)
	rooms.HandleFunc("/{code}", roomHandler.Get).Methods(http.MethodGet)
	rooms.HandleFunc("/{code}/join", roomHandler.Join).Methods(http.MethodPost)
	rooms.HandleFunc("/{code}/results", roomHandler.Results).Methods(http.MethodGet)
	rooms.HandleFunc("/{code}/results", roomHandler.SubmitResult).Methods(http.MethodPost)
	rooms.HandleFunc("/{code}/results/publish", roomHandler.Publish).Methods(http.MethodPost)

	return r
}
