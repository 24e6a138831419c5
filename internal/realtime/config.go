package realtime

import "time"

// Config holds connection and handler settings
type Config struct {
	// WriteWait bounds a single frame write
	WriteWait time.Duration `mapstructure:"write_wait"`

	// PongWait is how long a connection may stay silent before it is dropped
	PongWait time.Duration `mapstructure:"pong_wait"`

	// PingPeriod must be shorter than PongWait
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// MaxMessageSize is the inbound frame size limit in bytes
	MaxMessageSize int64 `mapstructure:"max_message_size"`

	// SendBuffer is the outbound queue length per session; a full queue drops messages
	SendBuffer int `mapstructure:"send_buffer"`

	// ProgressRate and ProgressBurst limit inbound typing_progress frames per session
	ProgressRate  float64 `mapstructure:"progress_rate"`
	ProgressBurst int     `mapstructure:"progress_burst"`

	// OpTimeout bounds each storage call made on behalf of a frame
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// DefaultConfig returns sensible defaults for realtime connections
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
		ProgressRate:   20,
		ProgressBurst:  40,
		OpTimeout:      5 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.ProgressRate <= 0 {
		c.ProgressRate = d.ProgressRate
	}
	if c.ProgressBurst <= 0 {
		c.ProgressBurst = d.ProgressBurst
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
	return c
}
