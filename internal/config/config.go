// Package config loads server configuration from defaults, an optional YAML
// file and TYPEROOM_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/mcoot/typeroom/internal/api"
	"github.com/mcoot/typeroom/internal/realtime"
	"github.com/mcoot/typeroom/internal/services/auth"
	mongostorage "github.com/mcoot/typeroom/internal/storage/mongo"
	"github.com/mcoot/typeroom/internal/storage/postgres"
	redisstorage "github.com/mcoot/typeroom/internal/storage/redis"
)

// EnvPrefix prefixes every environment override, e.g. TYPEROOM_REDIS_URL
const EnvPrefix = "TYPEROOM"

// DefaultFileName is the config file looked up in the working directory
const DefaultFileName = "typeroom"

// ErrInvalidLogLevel is returned when log.level cannot be parsed
var ErrInvalidLogLevel = errors.New("invalid log level")

// Config is the complete server configuration
type Config struct {
	Server   api.ServerConfig    `mapstructure:"server"`
	Storage  StorageConfig       `mapstructure:"storage"`
	Redis    redisstorage.Config `mapstructure:"redis"`
	Postgres postgres.Config     `mapstructure:"postgres"`
	Mongo    mongostorage.Config `mapstructure:"mongo"`
	Auth     auth.Config         `mapstructure:"auth"`
	Realtime realtime.Config     `mapstructure:"realtime"`
	Log      LogConfig           `mapstructure:"log"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Type is one of memory, redis, postgres or mongo
	Type string `mapstructure:"type"`
}

// LogConfig controls the server logger
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SlogLevel parses Level, accepting debug, info, warn and error
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Level)
	}
	return level, nil
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = auth.DevJWTSecret
	return Config{
		Server:   api.DefaultServerConfig(),
		Storage:  StorageConfig{Type: "memory"},
		Redis:    redisstorage.DefaultConfig(),
		Postgres: postgres.DefaultConfig(),
		Mongo:    mongostorage.DefaultConfig(),
		Auth:     authCfg,
		Realtime: realtime.DefaultConfig(),
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration named fileName (without extension) from the
// working directory, falling back to defaults when the file is absent.
// Environment variables override both.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// Defaults also register every key so AutomaticEnv can override it
	setDefaults(v, Default())

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Debug("config file not found, using defaults and environment",
			slog.String("file", fileName))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == auth.DevJWTSecret {
		logger.Warn("using the development JWT secret, set TYPEROOM_AUTH_JWT_SECRET")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("storage.type", d.Storage.Type)

	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)
	v.SetDefault("redis.room_ttl", d.Redis.RoomTTL)
	v.SetDefault("redis.max_tx_retries", d.Redis.MaxTxRetries)

	v.SetDefault("postgres.url", d.Postgres.URL)
	v.SetDefault("postgres.max_conns", d.Postgres.MaxConns)
	v.SetDefault("postgres.migrate", d.Postgres.Migrate)

	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.connect_timeout", d.Mongo.ConnectTimeout)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)

	v.SetDefault("realtime.write_wait", d.Realtime.WriteWait)
	v.SetDefault("realtime.pong_wait", d.Realtime.PongWait)
	v.SetDefault("realtime.ping_period", d.Realtime.PingPeriod)
	v.SetDefault("realtime.max_message_size", d.Realtime.MaxMessageSize)
	v.SetDefault("realtime.send_buffer", d.Realtime.SendBuffer)
	v.SetDefault("realtime.progress_rate", d.Realtime.ProgressRate)
	v.SetDefault("realtime.progress_burst", d.Realtime.ProgressBurst)
	v.SetDefault("realtime.op_timeout", d.Realtime.OpTimeout)

	v.SetDefault("log.level", d.Log.Level)
}
