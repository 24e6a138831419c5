package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/typeroom/internal/api"
	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/dependencies/random"
	"github.com/mcoot/typeroom/internal/realtime"
	"github.com/mcoot/typeroom/internal/services/auth"
	"github.com/mcoot/typeroom/internal/services/room"
	"github.com/mcoot/typeroom/internal/storage"
	"github.com/mcoot/typeroom/internal/storage/memory"
	mongostorage "github.com/mcoot/typeroom/internal/storage/mongo"
	"github.com/mcoot/typeroom/internal/storage/postgres"
	redisstorage "github.com/mcoot/typeroom/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
	StorageTypeMongo    = "mongo"
)

// ErrInvalidStorageType is returned for an unknown StorageType
var ErrInvalidStorageType = errors.New("invalid StorageType: must be 'memory', 'redis', 'postgres' or 'mongo'")

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Gateway

	// External dependencies
	Clock    clock.Clock
	Random   random.Random
	Verifier *auth.JWTVerifier

	// Services
	RoomService *room.Service

	// Realtime
	Registry           *realtime.Registry
	Dispatcher         *realtime.Dispatcher
	RealtimeRouter     *realtime.Router
	RealtimeController *realtime.Controller
	RealtimeConfig     realtime.Config

	Logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds the token verification settings; JWTSecret is required
	AuthConfig auth.Config
	// RealtimeConfig holds websocket settings. Zero fields use realtime defaults.
	RealtimeConfig realtime.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend
	// If empty, defaults to "memory"
	StorageType string
	// Backend settings, required when the matching StorageType is selected
	RedisConfig    *redisstorage.Config
	PostgresConfig *postgres.Config
	MongoConfig    *mongostorage.Config
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	verifier, err := auth.NewJWTVerifier(cfg.AuthConfig, clk)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return newWithDependencies(store, clk, rnd, verifier, cfg.RealtimeConfig, logger), nil
}

func newStorage(ctx context.Context, cfg Config) (storage.Gateway, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return postgres.New(ctx, *cfg.PostgresConfig)
	case StorageTypeMongo:
		if cfg.MongoConfig == nil {
			return nil, errors.New("MongoConfig required when StorageType is mongo")
		}
		return mongostorage.New(ctx, *cfg.MongoConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStorageType, storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Gateway,
	clk clock.Clock,
	rnd random.Random,
	verifier *auth.JWTVerifier,
	realtimeCfg realtime.Config,
	logger *slog.Logger,
) *App {
	realtimeCfg = realtimeCfg.WithDefaults()
	rtLogger := logger.With(slog.String("component", "realtime"))

	roomService := room.New(store, clk, rnd, logger.With(slog.String("component", "room")))
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, clk, rtLogger)
	router := realtime.NewRouter(store, registry, dispatcher, clk, realtimeCfg, rtLogger)
	controller := realtime.NewController(store, verifier, registry, dispatcher, clk, rtLogger)

	return &App{
		Storage:            store,
		Clock:              clk,
		Random:             rnd,
		Verifier:           verifier,
		RoomService:        roomService,
		Registry:           registry,
		Dispatcher:         dispatcher,
		RealtimeRouter:     router,
		RealtimeController: controller,
		RealtimeConfig:     realtimeCfg,
		Logger:             logger,
	}
}

// Handler builds the HTTP handler serving the REST API and the room websocket
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:             a.Logger,
		Clock:              a.Clock,
		Verifier:           a.Verifier,
		RoomService:        a.RoomService,
		Registry:           a.Registry,
		RealtimeController: a.RealtimeController,
		RealtimeRouter:     a.RealtimeRouter,
		RealtimeConfig:     a.RealtimeConfig,
	})
}

// CloseConnections closes every live room connection with going-away
func (a *App) CloseConnections() {
	a.Registry.CloseAll(realtime.CloseGoingAway, realtime.ReasonServerShutdown)
}

// Close closes live connections and releases the storage backend
func (a *App) Close() error {
	a.CloseConnections()
	return a.Storage.Close()
}
