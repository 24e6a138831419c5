package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
)

// ErrNotInProgress is returned when progress arrives for a room that is not racing
var ErrNotInProgress = errors.New("room is not in progress")

// Messages sent to the initiating session when a write fails
const (
	msgStartFailed   = "Failed to start game"
	msgInvalidResult = "Invalid result payload"
	msgResultFailed  = "Failed to save result"
)

type handlerFunc func(ctx context.Context, s Session, env Envelope) error

// Router dispatches inbound envelopes by type. The room status is the only
// state it tracks; it is read from storage for start_game and from the
// registry cache for typing_progress.
type Router struct {
	storage    storage.Gateway
	registry   *Registry
	dispatcher *Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	cfg        Config
	handlers   map[MessageType]handlerFunc
}

// NewRouter creates a router with the standard handlers
func NewRouter(
	storage storage.Gateway,
	registry *Registry,
	dispatcher *Dispatcher,
	clock clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Router {
	r := &Router{
		storage:    storage,
		registry:   registry,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
		cfg:        cfg.WithDefaults(),
	}
	r.handlers = map[MessageType]handlerFunc{
		TypeStartGame:      r.handleStartGame,
		TypeTypingProgress: r.handleTypingProgress,
		TypeGameCompleted:  r.handleGameCompleted,
	}
	return r
}

// HandleFrame parses a raw frame and routes it. Bad frames are logged and dropped.
func (r *Router) HandleFrame(ctx context.Context, s Session, frame []byte) {
	env, err := ParseEnvelope(frame)
	if err != nil {
		r.logger.Warn("dropping malformed frame",
			slog.String("room", string(s.RoomCode())),
			slog.String("user", string(s.UserID())),
			slog.String("error", err.Error()),
		)
		return
	}
	_ = r.Handle(ctx, s, env)
}

// Handle routes one envelope. The returned error describes why a message had
// no effect; the session is never closed because of it.
func (r *Router) Handle(ctx context.Context, s Session, env Envelope) error {
	h, ok := r.handlers[env.Type]
	if !ok {
		r.logger.Info("ignoring unknown message type",
			slog.String("room", string(s.RoomCode())),
			slog.String("user", string(s.UserID())),
			slog.String("type", string(env.Type)),
		)
		return fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()
	return h(ctx, s, env)
}

func (r *Router) handleStartGame(ctx context.Context, s Session, env Envelope) error {
	code := s.RoomCode()

	room, err := r.storage.GetRoom(ctx, code)
	if err != nil {
		r.logger.Error("failed to load room for start",
			slog.String("room", string(code)),
			slog.String("error", err.Error()),
		)
		r.dispatcher.SendTo(s, ErrorEnvelope(msgStartFailed))
		return err
	}

	// Authorize against the durable row, never against who is connected
	if !room.IsHost(s.UserID()) {
		r.logger.Warn("non-host tried to start game",
			slog.String("room", string(code)),
			slog.String("user", string(s.UserID())),
		)
		return model.ErrNotHost
	}
	if room.Status != model.RoomStatusWaiting {
		r.logger.Warn("start ignored, room not waiting",
			slog.String("room", string(code)),
			slog.String("status", string(room.Status)),
		)
		return model.ErrInvalidTransition
	}

	now := r.clock.Now()
	if err := r.storage.SetRoomStatus(ctx, code, model.RoomStatusInProgress, now); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			// A concurrent start won the race and has already broadcast
			r.logger.Warn("start ignored, room already started", slog.String("room", string(code)))
			return err
		}
		r.logger.Error("failed to persist room start",
			slog.String("room", string(code)),
			slog.String("error", err.Error()),
		)
		r.dispatcher.SendTo(s, ErrorEnvelope(msgStartFailed))
		return err
	}

	r.registry.AdvanceStatus(code, model.RoomStatusInProgress, now)
	n := r.dispatcher.Broadcast(code, Envelope{
		Type:   TypeGameStarted,
		UserID: s.UserID(),
		Data:   env.Data,
	}, "")

	r.logger.Info("game started",
		slog.String("room", string(code)),
		slog.String("host", string(s.UserID())),
		slog.Int("recipients", n),
	)
	return nil
}

func (r *Router) handleTypingProgress(_ context.Context, s Session, env Envelope) error {
	code := s.RoomCode()

	room, ok := r.registry.Room(code)
	if !ok || room.Status != model.RoomStatusInProgress {
		r.logger.Debug("dropping progress for idle room",
			slog.String("room", string(code)),
			slog.String("user", string(s.UserID())),
		)
		return ErrNotInProgress
	}

	r.dispatcher.Broadcast(code, Envelope{
		Type:   TypeTypingProgress,
		UserID: s.UserID(),
		Data:   env.Data,
	}, s.UserID())
	return nil
}

func (r *Router) handleGameCompleted(ctx context.Context, s Session, env Envelope) error {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.dispatcher.SendTo(s, ErrorEnvelope(msgInvalidResult))
		return fmt.Errorf("%w: missing data", model.ErrInvalidMetrics)
	}

	var update model.ResultUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		r.dispatcher.SendTo(s, ErrorEnvelope(msgInvalidResult))
		return fmt.Errorf("%w: %w", model.ErrInvalidMetrics, err)
	}
	if update.IsEmpty() {
		r.dispatcher.SendTo(s, ErrorEnvelope(msgInvalidResult))
		return fmt.Errorf("%w: no result fields", model.ErrInvalidMetrics)
	}
	// A completion report counts as finished unless it says otherwise
	if update.Finished == nil {
		finished := true
		update.Finished = &finished
	}

	_, err := r.SubmitResult(ctx, s.RoomCode(), s.UserID(), update)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidMetrics):
		r.dispatcher.SendTo(s, ErrorEnvelope(msgInvalidResult))
	default:
		r.dispatcher.SendTo(s, ErrorEnvelope(msgResultFailed))
	}
	return err
}

// SubmitResult merges a result report into storage, broadcasts the merged
// result to the rest of the room and completes the room once everyone has
// finished. It is shared by the websocket and HTTP paths.
func (r *Router) SubmitResult(ctx context.Context, code model.RoomCode, userID model.UserID, update model.ResultUpdate) (*model.Result, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	result, err := r.storage.UpsertResult(ctx, code, userID, update, r.clock.Now())
	if err != nil {
		r.logger.Error("failed to save result",
			slog.String("room", string(code)),
			slog.String("user", string(userID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.dispatcher.Broadcast(code, NewEnvelope(TypeGameCompleted, userID, CompletedData{
		Metrics:  result.Metrics,
		Score:    result.Score,
		Finished: result.Finished,
	}), userID)

	r.logger.Info("result saved",
		slog.String("room", string(code)),
		slog.String("user", string(userID)),
		slog.Float64("score", result.Score),
		slog.Bool("finished", result.Finished),
	)

	r.completeIfFinished(ctx, code)
	return result, nil
}

// completeIfFinished moves a racing room to completed once every participant has finished
func (r *Router) completeIfFinished(ctx context.Context, code model.RoomCode) {
	room, err := r.storage.GetRoom(ctx, code)
	if err != nil || room.Status != model.RoomStatusInProgress {
		return
	}

	participants, err := r.storage.GetParticipants(ctx, code)
	if err != nil {
		return
	}
	results, err := r.storage.GetResults(ctx, code)
	if err != nil {
		return
	}
	if !model.AllFinished(participants, results) {
		return
	}

	now := r.clock.Now()
	if err := r.storage.SetRoomStatus(ctx, code, model.RoomStatusCompleted, now); err != nil {
		if !errors.Is(err, model.ErrInvalidTransition) {
			r.logger.Error("failed to complete room",
				slog.String("room", string(code)),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	r.registry.AdvanceStatus(code, model.RoomStatusCompleted, now)
	r.dispatcher.Broadcast(code, NewEnvelope(TypeRoomCompleted, "", RoomCompletedData{
		CompletedAt: now,
		Results:     results,
	}), "")

	r.logger.Info("room completed",
		slog.String("room", string(code)),
		slog.Int("results", len(results)),
	)
}
