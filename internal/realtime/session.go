// Package realtime keeps live room membership and fans room events out to connected sessions.
package realtime

import (
	"time"

	"github.com/mcoot/typeroom/internal/model"
)

// WebSocket close codes used by the server
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Close reasons
const (
	ReasonReplaced       = "replaced by a newer connection"
	ReasonMissingParams  = "Room code and user ID required"
	ReasonRoomNotFound   = "Room not found"
	ReasonUnverified     = "Identity could not be verified"
	ReasonJoinFailed     = "Failed to join room"
	ReasonServerShutdown = "server shutting down"
)

// Session is one live connection, scoped to one room and one user
type Session interface {
	// ID is unique per connection, so a replaced session is distinguishable from its successor
	ID() string
	RoomCode() model.RoomCode
	UserID() model.UserID
	ConnectedAt() time.Time

	// Send queues an envelope. It never blocks and is a no-op once the session is closed.
	Send(env Envelope)

	// Close closes the transport. Safe to call more than once.
	Close(code int, reason string)
}
