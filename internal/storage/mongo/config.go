package mongo

import "time"

// Config holds MongoDB connection settings
type Config struct {
	// URI is the MongoDB connection string (e.g., mongodb://localhost:27017)
	URI string `mapstructure:"uri"`

	// Database is the database holding the rooms, participants and results collections
	Database string `mapstructure:"database"`

	// ConnectTimeout bounds the initial connect and ping
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DefaultConfig returns sensible defaults for MongoDB configuration
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "typeroom",
		ConnectTimeout: 10 * time.Second,
	}
}
