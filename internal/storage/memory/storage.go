package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
)

// Storage is an in-memory implementation of the storage gateway
type Storage struct {
	mu sync.RWMutex

	rooms        map[model.RoomCode]*model.Room
	participants map[model.RoomCode]map[model.UserID]model.Participant
	results      map[model.RoomCode]map[model.UserID]model.Result
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		rooms:        make(map[model.RoomCode]*model.Room),
		participants: make(map[model.RoomCode]map[model.UserID]model.Participant),
		results:      make(map[model.RoomCode]map[model.UserID]model.Result),
	}
}

// Ensure Storage implements the interface
var _ storage.Gateway = (*Storage)(nil)

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return model.ErrRoomExists
	}
	stored := *room
	s.rooms[room.Code] = &stored
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	out := *room
	return &out, nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[code]
	return ok, nil
}

func (s *Storage) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*model.Room, 0)
	for _, room := range s.rooms {
		if filter.Matches(room) {
			out := *room
			rooms = append(rooms, &out)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *Storage) SetRoomStatus(ctx context.Context, code model.RoomCode, status model.RoomStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return model.ErrRoomNotFound
	}
	return room.ApplyStatus(status, at)
}

func (s *Storage) SetResultsPublished(ctx context.Context, code model.RoomCode, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return model.ErrRoomNotFound
	}
	room.ResultsPublished = published
	return nil
}

// Participant operations

func (s *Storage) UpsertParticipant(ctx context.Context, code model.RoomCode, p model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return model.ErrRoomNotFound
	}
	members, ok := s.participants[code]
	if !ok {
		members = make(map[model.UserID]model.Participant)
		s.participants[code] = members
	}
	if existing, ok := members[p.UserID]; ok {
		p.JoinedAt = existing.JoinedAt
	}
	members[p.UserID] = p
	return nil
}

func (s *Storage) GetParticipants(ctx context.Context, code model.RoomCode) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[code]; !ok {
		return nil, model.ErrRoomNotFound
	}
	members := make([]model.Participant, 0, len(s.participants[code]))
	for _, p := range s.participants[code] {
		members = append(members, p)
	}
	storage.SortParticipants(members)
	return members, nil
}

// Result operations

func (s *Storage) UpsertResult(ctx context.Context, code model.RoomCode, userID model.UserID, update model.ResultUpdate, at time.Time) (*model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return nil, model.ErrRoomNotFound
	}
	results, ok := s.results[code]
	if !ok {
		results = make(map[model.UserID]model.Result)
		s.results[code] = results
	}
	var prev *model.Result
	if existing, ok := results[userID]; ok {
		prev = &existing
	}
	merged := update.Apply(prev, userID, at)
	results[userID] = merged
	return &merged, nil
}

func (s *Storage) GetResults(ctx context.Context, code model.RoomCode) ([]model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[code]; !ok {
		return nil, model.ErrRoomNotFound
	}
	results := make([]model.Result, 0, len(s.results[code]))
	for _, r := range s.results[code] {
		results = append(results, r)
	}
	storage.SortResults(results)
	return results, nil
}
