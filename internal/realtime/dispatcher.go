package realtime

import (
	"log/slog"

	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/model"
)

// Dispatcher delivers envelopes to the sessions of a room
type Dispatcher struct {
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the registry
func NewDispatcher(registry *Registry, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		clock:    clk,
		logger:   logger,
	}
}

// Broadcast sends env to every session in the room whose user is not exclude.
// An empty exclude delivers to everyone. Returns the number of sessions reached.
func (d *Dispatcher) Broadcast(code model.RoomCode, env Envelope, exclude model.UserID) int {
	env = d.stamp(code, env)

	delivered := 0
	for _, s := range d.registry.Sessions(code) {
		if exclude != "" && s.UserID() == exclude {
			continue
		}
		if d.deliver(s, env) {
			delivered++
		}
	}
	return delivered
}

// SendTo delivers env to a single session
func (d *Dispatcher) SendTo(s Session, env Envelope) {
	d.deliver(s, d.stamp(s.RoomCode(), env))
}

func (d *Dispatcher) stamp(code model.RoomCode, env Envelope) Envelope {
	env.Code = code
	if env.Timestamp.IsZero() {
		env.Timestamp = d.clock.Now().UTC()
	}
	return env
}

// deliver isolates a failing session from the rest of the broadcast
func (d *Dispatcher) deliver(s Session, env Envelope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("session send failed",
				slog.String("room", string(s.RoomCode())),
				slog.String("user", string(s.UserID())),
				slog.String("type", string(env.Type)),
				slog.Any("error", r),
			)
			ok = false
		}
	}()
	s.Send(env)
	return true
}
