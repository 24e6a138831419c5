package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/services/auth"
	"github.com/mcoot/typeroom/internal/storage"
)

// Controller runs the connect and disconnect sequences of a session
type Controller struct {
	storage    storage.Gateway
	verifier   auth.Verifier
	registry   *Registry
	dispatcher *Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
}

// NewController creates a lifecycle controller
func NewController(
	storage storage.Gateway,
	verifier auth.Verifier,
	registry *Registry,
	dispatcher *Dispatcher,
	clock clock.Clock,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage:    storage,
		verifier:   verifier,
		registry:   registry,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// OnConnect admits a new session into its room. On failure the session has
// been sent an error and closed, and the registry is untouched.
func (c *Controller) OnConnect(ctx context.Context, s Session, token string) error {
	code := s.RoomCode()

	room, err := c.storage.GetRoom(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrRoomNotFound) {
			c.refuse(s, ClosePolicyViolation, ReasonRoomNotFound, err)
		} else {
			c.refuse(s, CloseInternalError, ReasonJoinFailed, err)
		}
		return err
	}

	identity, err := c.verifier.Verify(ctx, token)
	if err != nil {
		c.refuse(s, ClosePolicyViolation, ReasonUnverified, err)
		return err
	}
	if identity.ID != s.UserID() {
		err := fmt.Errorf("%w: token is for %q", auth.ErrUnverifiedIdentity, identity.ID)
		c.refuse(s, ClosePolicyViolation, ReasonUnverified, err)
		return err
	}

	// A finished room can still be watched, but nobody new joins the race
	participant := model.ParticipantFor(room, identity, c.clock.Now())
	if room.Status != model.RoomStatusCompleted {
		if err := c.storage.UpsertParticipant(ctx, code, participant); err != nil {
			c.refuse(s, CloseInternalError, ReasonJoinFailed, err)
			return err
		}
	}

	participants, err := c.storage.GetParticipants(ctx, code)
	if err != nil {
		c.refuse(s, CloseInternalError, ReasonJoinFailed, err)
		return err
	}

	if replaced := c.registry.Attach(s); replaced != nil {
		c.logger.Info("session replaced",
			slog.String("room", string(code)),
			slog.String("user", string(s.UserID())),
			slog.String("previous", replaced.ID()),
		)
	}
	c.registry.Hydrate(*room)

	// The cached row may be ahead of what was just read
	snapshot := *room
	if cached, ok := c.registry.Room(code); ok {
		snapshot = cached
	}

	c.dispatcher.SendTo(s, NewEnvelope(TypeRoomState, "", RoomStateData{
		Room:         &snapshot,
		Participants: participants,
	}))
	c.dispatcher.Broadcast(code, NewEnvelope(TypeParticipantJoined, s.UserID(), ParticipantData{
		UserID: s.UserID(),
		Name:   identity.Name,
		IsHost: participant.IsHost,
	}), s.UserID())

	c.logger.Info("participant connected",
		slog.String("room", string(code)),
		slog.String("user", string(s.UserID())),
		slog.String("conn", s.ID()),
	)
	return nil
}

// OnDisconnect removes a session from its room. Membership rows are kept.
func (c *Controller) OnDisconnect(s Session) {
	code := s.RoomCode()

	removed, roomEmpty := c.registry.Detach(s)
	if !removed {
		// Already replaced by a newer connection for the same user
		return
	}

	if !roomEmpty {
		c.dispatcher.Broadcast(code, NewEnvelope(TypeParticipantLeft, s.UserID(), ParticipantData{
			UserID: s.UserID(),
		}), s.UserID())
	}

	c.logger.Info("participant disconnected",
		slog.String("room", string(code)),
		slog.String("user", string(s.UserID())),
		slog.String("conn", s.ID()),
		slog.Bool("room_empty", roomEmpty),
		slog.Duration("connected_for", clock.Since(c.clock, s.ConnectedAt())),
	)
}

// refuse sends an error to a session that was never admitted and closes it
func (c *Controller) refuse(s Session, closeCode int, reason string, err error) {
	c.logger.Warn("connection refused",
		slog.String("room", string(s.RoomCode())),
		slog.String("user", string(s.UserID())),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	c.dispatcher.SendTo(s, ErrorEnvelope(reason))
	s.Close(closeCode, reason)
}
