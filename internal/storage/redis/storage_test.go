package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
	"github.com/mcoot/typeroom/internal/storage/storagetest"
)

func newMiniStorage(t *testing.T, cfg Config) (*Storage, *miniredis.Miniredis) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mini.Addr(),
	})
	return NewWithClient(client, cfg), mini
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, &storagetest.GatewaySuite{
		NewGateway: func(t *testing.T) storage.Gateway {
			cfg := DefaultConfig()
			cfg.RoomTTL = time.Hour
			s, _ := newMiniStorage(t, cfg)
			return s
		},
	})
}

type StorageSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
	now     time.Time
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	cfg := DefaultConfig()
	cfg.RoomTTL = time.Hour
	s.storage, s.mini = newMiniStorage(s.T(), cfg)
	s.ctx = context.Background()
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) createRoom(code model.RoomCode) {
	s.Require().NoError(s.storage.CreateRoom(s.ctx, &model.Room{
		Code:      code,
		CreatedBy: "host",
		IsPublic:  true,
		Status:    model.RoomStatusWaiting,
		CreatedAt: s.now,
	}))
}

func (s *StorageSuite) TestRoomKeysUsePrefix() {
	s.createRoom("ABC123")
	s.Require().NoError(s.storage.UpsertParticipant(s.ctx, "ABC123", model.Participant{UserID: "u1", JoinedAt: s.now}))
	_, err := s.storage.UpsertResult(s.ctx, "ABC123", "u1", model.CompleteUpdate(model.Metrics{WPM: 10, Accuracy: 50}), s.now)
	s.Require().NoError(err)

	s.True(s.mini.Exists("typeroom:room:ABC123"))
	s.True(s.mini.Exists("typeroom:room:ABC123:participants"))
	s.True(s.mini.Exists("typeroom:room:ABC123:results"))

	members, err := s.mini.SMembers("typeroom:idx:rooms")
	s.Require().NoError(err)
	s.Equal([]string{"ABC123"}, members)
}

func (s *StorageSuite) TestRoomTTLApplied() {
	s.createRoom("ABC123")
	s.Require().NoError(s.storage.UpsertParticipant(s.ctx, "ABC123", model.Participant{UserID: "u1", JoinedAt: s.now}))

	s.Equal(time.Hour, s.mini.TTL("typeroom:room:ABC123"))
	s.Equal(time.Hour, s.mini.TTL("typeroom:room:ABC123:participants"))
}

func (s *StorageSuite) TestStatusUpdateKeepsTTL() {
	s.createRoom("ABC123")
	s.mini.FastForward(10 * time.Minute)

	s.Require().NoError(s.storage.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.now))

	s.Equal(50*time.Minute, s.mini.TTL("typeroom:room:ABC123"))
}

func (s *StorageSuite) TestExpiredRoomDroppedFromListing() {
	s.createRoom("ABC123")
	s.mini.FastForward(2 * time.Hour)

	_, err := s.storage.GetRoom(s.ctx, "ABC123")
	s.ErrorIs(err, model.ErrRoomNotFound)

	rooms, err := s.storage.ListRooms(s.ctx, model.RoomFilter{})
	s.Require().NoError(err)
	s.Empty(rooms)

	s.False(s.mini.Exists("typeroom:idx:rooms"))
}

func (s *StorageSuite) TestBackendFailureWrapped() {
	s.mini.SetError("connection lost")

	_, err := s.storage.GetRoom(s.ctx, "ABC123")
	s.ErrorIs(err, model.ErrStorage)

	s.mini.SetError("")
}
