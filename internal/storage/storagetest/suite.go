// Package storagetest holds a conformance suite every storage gateway must pass.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
)

// GatewaySuite runs the shared gateway behaviour against a backend.
// NewGateway must return an empty store for every test.
type GatewaySuite struct {
	suite.Suite
	NewGateway func(t *testing.T) storage.Gateway

	gw  storage.Gateway
	ctx context.Context
	now time.Time
}

func (s *GatewaySuite) SetupTest() {
	s.gw = s.NewGateway(s.T())
	s.ctx = context.Background()
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *GatewaySuite) TearDownTest() {
	if s.gw != nil {
		_ = s.gw.Close()
	}
}

func (s *GatewaySuite) createRoom(code model.RoomCode, host model.UserID) *model.Room {
	room := &model.Room{
		Code:      code,
		Name:      "Room " + string(code),
		CreatedBy: host,
		IsPublic:  true,
		Status:    model.RoomStatusWaiting,
		CreatedAt: s.now,
	}
	s.Require().NoError(s.gw.CreateRoom(s.ctx, room))
	return room
}

// Room tests

func (s *GatewaySuite) TestCreateAndGetRoom() {
	s.createRoom("ABC123", "host")

	room, err := s.gw.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC123"), room.Code)
	s.Equal("Room ABC123", room.Name)
	s.Equal(model.UserID("host"), room.CreatedBy)
	s.True(room.IsPublic)
	s.Equal(model.RoomStatusWaiting, room.Status)
	s.True(s.now.Equal(room.CreatedAt))
	s.Nil(room.StartedAt)
	s.False(room.ResultsPublished)
}

func (s *GatewaySuite) TestGetRoomNotFound() {
	_, err := s.gw.GetRoom(s.ctx, "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *GatewaySuite) TestCreateRoomDuplicateCode() {
	s.createRoom("ABC123", "host")

	err := s.gw.CreateRoom(s.ctx, &model.Room{Code: "ABC123", CreatedBy: "other", Status: model.RoomStatusWaiting, CreatedAt: s.now})
	s.ErrorIs(err, model.ErrRoomExists)

	room, err := s.gw.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.UserID("host"), room.CreatedBy)
}

func (s *GatewaySuite) TestRoomExists() {
	exists, err := s.gw.RoomExists(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.False(exists)

	s.createRoom("ABC123", "host")

	exists, err = s.gw.RoomExists(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *GatewaySuite) TestListRoomsFilters() {
	s.createRoom("AAAAAA", "h1")
	s.createRoom("BBBBBB", "h2")
	private := &model.Room{Code: "CCCCCC", CreatedBy: "h3", Status: model.RoomStatusWaiting, CreatedAt: s.now}
	s.Require().NoError(s.gw.CreateRoom(s.ctx, private))
	s.Require().NoError(s.gw.SetRoomStatus(s.ctx, "BBBBBB", model.RoomStatusInProgress, s.now))

	all, err := s.gw.ListRooms(s.ctx, model.RoomFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)

	active, err := s.gw.ListRooms(s.ctx, model.RoomFilter{Status: model.RoomStatusWaiting, PublicOnly: true})
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(model.RoomCode("AAAAAA"), active[0].Code)
}

// Status tests

func (s *GatewaySuite) TestSetRoomStatusForward() {
	s.createRoom("ABC123", "host")

	s.Require().NoError(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.now))
	room, err := s.gw.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusInProgress, room.Status)
	s.Require().NotNil(room.StartedAt)
	s.True(s.now.Equal(*room.StartedAt))

	later := s.now.Add(time.Minute)
	s.Require().NoError(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusCompleted, later))
	room, err = s.gw.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusCompleted, room.Status)
	s.Require().NotNil(room.CompletedAt)
	s.True(later.Equal(*room.CompletedAt))
}

func (s *GatewaySuite) TestSetRoomStatusRejectsBackwardsAndSkips() {
	s.createRoom("ABC123", "host")

	s.ErrorIs(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusCompleted, s.now), model.ErrInvalidTransition)
	s.ErrorIs(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusWaiting, s.now), model.ErrInvalidTransition)

	s.Require().NoError(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.now))
	s.ErrorIs(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.now), model.ErrInvalidTransition)
	s.ErrorIs(s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusWaiting, s.now), model.ErrInvalidTransition)

	room, err := s.gw.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusInProgress, room.Status)
}

func (s *GatewaySuite) TestSetRoomStatusNotFound() {
	err := s.gw.SetRoomStatus(s.ctx, "NOPE00", model.RoomStatusInProgress, s.now)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *GatewaySuite) TestSetRoomStatusConcurrentStartWinsOnce() {
	s.createRoom("ABC123", "host")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.gw.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}

func (s *GatewaySuite) TestSetResultsPublished() {
	s.createRoom("ABC123", "host")

	s.Require().NoError(s.gw.SetResultsPublished(s.ctx, "ABC123", true))
	room, err := s.gw.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.True(room.ResultsPublished)

	s.ErrorIs(s.gw.SetResultsPublished(s.ctx, "NOPE00", true), model.ErrRoomNotFound)
}

// Participant tests

func (s *GatewaySuite) TestUpsertParticipantIsIdempotent() {
	s.createRoom("ABC123", "host")
	p := model.Participant{UserID: "u1", Name: "Alice", JoinedAt: s.now}

	s.Require().NoError(s.gw.UpsertParticipant(s.ctx, "ABC123", p))
	s.Require().NoError(s.gw.UpsertParticipant(s.ctx, "ABC123", p))

	members, err := s.gw.GetParticipants(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal(model.UserID("u1"), members[0].UserID)
	s.Equal("Alice", members[0].Name)
}

func (s *GatewaySuite) TestUpsertParticipantKeepsJoinTime() {
	s.createRoom("ABC123", "host")
	first := model.Participant{UserID: "host", Name: "Host", IsHost: true, JoinedAt: s.now}
	s.Require().NoError(s.gw.UpsertParticipant(s.ctx, "ABC123", first))

	again := first
	again.Name = "Renamed Host"
	again.JoinedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.gw.UpsertParticipant(s.ctx, "ABC123", again))

	members, err := s.gw.GetParticipants(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal("Renamed Host", members[0].Name)
	s.True(members[0].IsHost)
	s.True(s.now.Equal(members[0].JoinedAt))
}

func (s *GatewaySuite) TestGetParticipantsOrderedByJoin() {
	s.createRoom("ABC123", "host")
	s.Require().NoError(s.gw.UpsertParticipant(s.ctx, "ABC123", model.Participant{UserID: "late", JoinedAt: s.now.Add(2 * time.Minute)}))
	s.Require().NoError(s.gw.UpsertParticipant(s.ctx, "ABC123", model.Participant{UserID: "early", JoinedAt: s.now}))

	members, err := s.gw.GetParticipants(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Require().Len(members, 2)
	s.Equal(model.UserID("early"), members[0].UserID)
	s.Equal(model.UserID("late"), members[1].UserID)
}

func (s *GatewaySuite) TestParticipantsRequireRoom() {
	err := s.gw.UpsertParticipant(s.ctx, "NOPE00", model.Participant{UserID: "u1", JoinedAt: s.now})
	s.ErrorIs(err, model.ErrRoomNotFound)

	_, err = s.gw.GetParticipants(s.ctx, "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *GatewaySuite) TestEmptyRoomHasNoParticipants() {
	s.createRoom("ABC123", "host")

	members, err := s.gw.GetParticipants(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Empty(members)
}

// Result tests

func (s *GatewaySuite) TestUpsertResultSameUserTwiceKeepsOneRow() {
	s.createRoom("ABC123", "host")

	first := model.CompleteUpdate(model.Metrics{WPM: 50, Accuracy: 90, Errors: 4, TimeTaken: 70, Level: model.LevelEasy})
	second := model.CompleteUpdate(model.Metrics{WPM: 60, Accuracy: 100, Errors: 0, TimeTaken: 55, Level: model.LevelMedium})
	_, err := s.gw.UpsertResult(s.ctx, "ABC123", "u1", first, s.now)
	s.Require().NoError(err)
	merged, err := s.gw.UpsertResult(s.ctx, "ABC123", "u1", second, s.now.Add(time.Second))
	s.Require().NoError(err)
	s.InDelta(60.0, merged.Score, 0.001)

	results, err := s.gw.GetResults(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(model.UserID("u1"), results[0].UserID)
	s.InDelta(60.0, results[0].Metrics.WPM, 0.001)
	s.InDelta(60.0, results[0].Score, 0.001)
	s.Equal(0, results[0].Metrics.Errors)
	s.Equal(model.LevelMedium, results[0].Metrics.Level)
	s.True(results[0].Finished)
}

func (s *GatewaySuite) TestUpsertResultMergesPartialUpdate() {
	s.createRoom("ABC123", "host")

	wpm, accuracy, errCount, secs := 50.0, 90.0, 4, 30
	_, err := s.gw.UpsertResult(s.ctx, "ABC123", "u1", model.ResultUpdate{
		WPM: &wpm, Accuracy: &accuracy, Errors: &errCount, TimeTaken: &secs,
	}, s.now)
	s.Require().NoError(err)

	newWPM, newAccuracy := 55.0, 92.0
	merged, err := s.gw.UpsertResult(s.ctx, "ABC123", "u1", model.ResultUpdate{
		WPM: &newWPM, Accuracy: &newAccuracy,
	}, s.now.Add(time.Second))
	s.Require().NoError(err)

	for _, r := range []model.Result{*merged, s.onlyResult("ABC123")} {
		s.InDelta(55.0, r.Metrics.WPM, 0.001)
		s.InDelta(92.0, r.Metrics.Accuracy, 0.001)
		s.Equal(4, r.Metrics.Errors)
		s.Equal(30, r.Metrics.TimeTaken)
		s.InDelta(50.6, r.Score, 0.001)
		s.False(r.Finished)
		s.True(s.now.Add(time.Second).Equal(r.UpdatedAt))
	}
}

func (s *GatewaySuite) TestUpsertResultKeepsFinishedUntilReported() {
	s.createRoom("ABC123", "host")

	progress := 40.0
	first, err := s.gw.UpsertResult(s.ctx, "ABC123", "u1", model.ResultUpdate{Progress: &progress}, s.now)
	s.Require().NoError(err)
	s.False(first.Finished)
	s.Zero(first.Score)

	finished := true
	_, err = s.gw.UpsertResult(s.ctx, "ABC123", "u1", model.ResultUpdate{Finished: &finished}, s.now)
	s.Require().NoError(err)

	later := 100.0
	_, err = s.gw.UpsertResult(s.ctx, "ABC123", "u1", model.ResultUpdate{Progress: &later}, s.now)
	s.Require().NoError(err)

	r := s.onlyResult("ABC123")
	s.True(r.Finished)
	s.InDelta(100.0, r.Metrics.Progress, 0.001)
}

func (s *GatewaySuite) TestResultsAreScopedToRoom() {
	s.createRoom("AAAAAA", "host")
	s.createRoom("BBBBBB", "host")
	_, err := s.gw.UpsertResult(s.ctx, "AAAAAA", "u1", model.CompleteUpdate(model.Metrics{WPM: 40, Accuracy: 80}), s.now)
	s.Require().NoError(err)

	results, err := s.gw.GetResults(s.ctx, "BBBBBB")
	s.Require().NoError(err)
	s.Empty(results)

	_, err = s.gw.UpsertResult(s.ctx, "NOPE00", "u1", model.CompleteUpdate(model.Metrics{}), s.now)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *GatewaySuite) onlyResult(code model.RoomCode) model.Result {
	results, err := s.gw.GetResults(s.ctx, code)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	return results[0]
}
