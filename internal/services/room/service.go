package room

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/dependencies/random"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
)

const (
	// CodeLength is the length of generated room codes
	CodeLength = 6
	// CodeAlphabet is the characters used in room codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxCodeAttempts bounds the search for an unused code
	MaxCodeAttempts = 16
	// MaxNameLength bounds room display names
	MaxNameLength = 80
	// DefaultName is used when a room is created without a name
	DefaultName = "Typing race"
)

// Errors
var (
	ErrCodeSpaceExhausted = errors.New("could not find an unused room code")
	ErrInvalidName        = errors.New("room name is too long")
)

// Details is a room with its members
type Details struct {
	Room         *model.Room
	Participants []model.Participant
}

// Summary is a listed room with its member count
type Summary struct {
	Room             *model.Room
	ParticipantCount int
}

// Results is a room's results as visible to the caller
type Results struct {
	Room      *model.Room
	Published bool
	Results   []model.Result
}

// Service manages rooms outside of the live connection path
type Service struct {
	storage storage.Gateway
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
}

// New creates a new room service
func New(storage storage.Gateway, clock clock.Clock, random random.Random, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
		logger:  logger,
	}
}

// CreateRoom creates a room with a fresh code and adds the creator as host
func (s *Service) CreateRoom(ctx context.Context, host model.Identity, name string, isPublic bool) (*Details, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if len(name) > MaxNameLength {
		return nil, ErrInvalidName
	}

	now := s.clock.Now()
	room := &model.Room{
		Name:      name,
		CreatedBy: host.ID,
		IsPublic:  isPublic,
		Status:    model.RoomStatusWaiting,
		CreatedAt: now,
	}

	// Generate unique room code; a create that loses a race tries the next code
	created := false
	for attempt := 0; attempt < MaxCodeAttempts && !created; attempt++ {
		code := model.RoomCode(s.random.String(CodeLength, CodeAlphabet))
		if len(code) != CodeLength {
			continue
		}
		exists, err := s.storage.RoomExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		room.Code = code
		err = s.storage.CreateRoom(ctx, room)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, model.ErrRoomExists):
			continue
		default:
			return nil, err
		}
	}
	if !created {
		return nil, ErrCodeSpaceExhausted
	}

	participant := model.ParticipantFor(room, host, now)
	if err := s.storage.UpsertParticipant(ctx, room.Code, participant); err != nil {
		return nil, err
	}

	s.logger.Info("room created",
		slog.String("room", string(room.Code)),
		slog.String("host", string(host.ID)),
		slog.Bool("public", isPublic),
	)

	return &Details{Room: room, Participants: []model.Participant{participant}}, nil
}

// GetRoom returns a room and its participants
func (s *Service) GetRoom(ctx context.Context, code model.RoomCode) (*Details, error) {
	room, err := s.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := s.storage.GetParticipants(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Details{Room: room, Participants: participants}, nil
}

// JoinRoom records the user as a participant. Joining again is a no-op apart
// from refreshing name and email.
func (s *Service) JoinRoom(ctx context.Context, code model.RoomCode, user model.Identity) (*Details, error) {
	room, err := s.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status == model.RoomStatusCompleted {
		return nil, model.ErrInvalidTransition
	}

	if err := s.storage.UpsertParticipant(ctx, code, model.ParticipantFor(room, user, s.clock.Now())); err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, code)
}

// CheckParticipant returns the room if the user is one of its participants
func (s *Service) CheckParticipant(ctx context.Context, code model.RoomCode, userID model.UserID) (*model.Room, error) {
	details, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	for _, p := range details.Participants {
		if p.UserID == userID {
			return details.Room, nil
		}
	}
	return nil, model.ErrNotParticipant
}

// ListActive returns public rooms still waiting for players, newest first
func (s *Service) ListActive(ctx context.Context) ([]Summary, error) {
	rooms, err := s.storage.ListRooms(ctx, model.RoomFilter{
		Status:     model.RoomStatusWaiting,
		PublicOnly: true,
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(rooms))
	for _, room := range rooms {
		participants, err := s.storage.GetParticipants(ctx, room.Code)
		if errors.Is(err, model.ErrRoomNotFound) {
			continue // Expired between list and lookup
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{Room: room, ParticipantCount: len(participants)})
	}
	return summaries, nil
}

// GetResults returns a room's results. Until the host publishes them only the
// host can see them.
func (s *Service) GetResults(ctx context.Context, code model.RoomCode, viewer model.UserID) (*Results, error) {
	room, err := s.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	out := &Results{Room: room, Published: room.ResultsPublished, Results: []model.Result{}}
	if !room.ResultsPublished && !room.IsHost(viewer) {
		return out, nil
	}

	results, err := s.storage.GetResults(ctx, code)
	if err != nil {
		return nil, err
	}
	out.Results = results
	return out, nil
}

// PublishResults makes a room's results visible to everyone
func (s *Service) PublishResults(ctx context.Context, code model.RoomCode, caller model.UserID) error {
	room, err := s.storage.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsHost(caller) {
		return model.ErrNotHost
	}
	if err := s.storage.SetResultsPublished(ctx, code, true); err != nil {
		return err
	}

	s.logger.Info("results published", slog.String("room", string(code)))
	return nil
}
