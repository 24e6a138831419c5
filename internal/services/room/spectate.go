package room

import (
	"context"
	"slices"
	"time"

	"github.com/mcoot/typeroom/internal/model"
)

// RaceDuration is how long a race runs once started
const RaceDuration = 300 * time.Second

// Player is a participant's standing as seen by a spectator
type Player struct {
	UserID   model.UserID
	Name     string
	IsHost   bool
	Metrics  model.Metrics
	Finished bool
}

// GameState summarises the race for spectators
type GameState struct {
	CurrentLevel string
	IsActive     bool
	TimeLeft     time.Duration
}

// SpectatorView is a room with every participant's latest result merged in
type SpectatorView struct {
	Room      *model.Room
	Players   []Player
	GameState GameState
}

// Spectate returns the room as a spectator sees it. Participants without a
// result show zero metrics.
func (s *Service) Spectate(ctx context.Context, code model.RoomCode) (*SpectatorView, error) {
	room, err := s.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := s.storage.GetParticipants(ctx, code)
	if err != nil {
		return nil, err
	}
	results, err := s.storage.GetResults(ctx, code)
	if err != nil {
		return nil, err
	}

	byUser := make(map[model.UserID]model.Result, len(results))
	for _, r := range results {
		byUser[r.UserID] = r
	}

	players := make([]Player, len(participants))
	for i, p := range participants {
		res := byUser[p.UserID]
		players[i] = Player{
			UserID:   p.UserID,
			Name:     p.Name,
			IsHost:   p.IsHost,
			Metrics:  res.Metrics,
			Finished: res.Finished,
		}
	}

	return &SpectatorView{
		Room:    room,
		Players: players,
		GameState: GameState{
			CurrentLevel: currentLevel(results),
			IsActive:     room.Status == model.RoomStatusInProgress,
			TimeLeft:     s.timeLeft(room),
		},
	}, nil
}

// currentLevel is the level of the most recent result that names one
func currentLevel(results []model.Result) string {
	latest := slices.Clone(results)
	slices.SortStableFunc(latest, func(a, b model.Result) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	for _, r := range latest {
		if r.Metrics.Level != "" {
			return r.Metrics.Level
		}
	}
	return model.LevelEasy
}

func (s *Service) timeLeft(room *model.Room) time.Duration {
	switch {
	case room.Status == model.RoomStatusCompleted:
		return 0
	case room.StartedAt == nil:
		return RaceDuration
	}
	left := RaceDuration - s.clock.Now().Sub(*room.StartedAt)
	return max(left, 0)
}
