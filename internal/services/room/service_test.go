package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/typeroom/internal/dependencies/mocks"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage/memory"
	"github.com/mcoot/typeroom/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.service = New(s.storage, s.clock, s.random, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) identity(id, name string) model.Identity {
	return model.Identity{ID: model.UserID(id), Name: name}
}

func (s *ServiceSuite) createRoom(code string) *Details {
	s.random.QueueString(code)
	details, err := s.service.CreateRoom(s.ctx, s.identity("host", "Hana"), "Morning race", true)
	s.Require().NoError(err)
	return details
}

// CreateRoom tests

func (s *ServiceSuite) TestCreateRoomAddsHost() {
	details := s.createRoom("ABC123")

	s.Equal(model.RoomCode("ABC123"), details.Room.Code)
	s.Equal(model.RoomStatusWaiting, details.Room.Status)
	s.Equal(model.UserID("host"), details.Room.CreatedBy)
	s.Require().Len(details.Participants, 1)
	s.True(details.Participants[0].IsHost)

	stored, err := s.storage.GetParticipants(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Len(stored, 1)
}

func (s *ServiceSuite) TestCreateRoomSkipsUsedCodes() {
	s.createRoom("ABC123")

	s.random.QueueString("ABC123", "XYZ789")
	details, err := s.service.CreateRoom(s.ctx, s.identity("other", "Omar"), "", false)
	s.Require().NoError(err)
	s.Equal(model.RoomCode("XYZ789"), details.Room.Code)
	s.Equal(DefaultName, details.Room.Name)
}

func (s *ServiceSuite) TestCreateRoomGivesUpWhenCodesRunOut() {
	_, err := s.service.CreateRoom(s.ctx, s.identity("host", "Hana"), "Race", true)
	s.ErrorIs(err, ErrCodeSpaceExhausted)
}

func (s *ServiceSuite) TestCreateRoomRejectsLongName() {
	s.random.QueueString("ABC123")
	long := make([]byte, MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := s.service.CreateRoom(s.ctx, s.identity("host", "Hana"), string(long), true)
	s.ErrorIs(err, ErrInvalidName)
}

// JoinRoom tests

func (s *ServiceSuite) TestJoinRoomIsIdempotent() {
	s.createRoom("ABC123")

	_, err := s.service.JoinRoom(s.ctx, "ABC123", s.identity("p1", "Pia"))
	s.Require().NoError(err)

	s.clock.Advance(time.Minute)
	details, err := s.service.JoinRoom(s.ctx, "ABC123", s.identity("p1", "Pia R"))
	s.Require().NoError(err)

	s.Require().Len(details.Participants, 2)
	s.Equal("Pia R", details.Participants[1].Name)
	s.False(details.Participants[1].IsHost)
	s.Equal(s.clock.Now().Add(-time.Minute), details.Participants[1].JoinedAt)
}

func (s *ServiceSuite) TestJoinUnknownRoom() {
	_, err := s.service.JoinRoom(s.ctx, "NOPE22", s.identity("p1", "Pia"))
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *ServiceSuite) TestJoinCompletedRoomRejected() {
	s.createRoom("ABC123")
	s.Require().NoError(s.storage.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.clock.Now()))
	s.Require().NoError(s.storage.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusCompleted, s.clock.Now()))

	_, err := s.service.JoinRoom(s.ctx, "ABC123", s.identity("p1", "Pia"))
	s.ErrorIs(err, model.ErrInvalidTransition)
}

// ListActive tests

func (s *ServiceSuite) TestListActiveOnlyPublicWaiting() {
	s.createRoom("ABC123")
	_, err := s.service.JoinRoom(s.ctx, "ABC123", s.identity("p1", "Pia"))
	s.Require().NoError(err)

	s.random.QueueString("PRIV22")
	_, err = s.service.CreateRoom(s.ctx, s.identity("host", "Hana"), "Private", false)
	s.Require().NoError(err)

	s.createRoom("LIVE33")
	s.Require().NoError(s.storage.SetRoomStatus(s.ctx, "LIVE33", model.RoomStatusInProgress, s.clock.Now()))

	active, err := s.service.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(model.RoomCode("ABC123"), active[0].Room.Code)
	s.Equal(2, active[0].ParticipantCount)
}

// Results tests

func (s *ServiceSuite) TestResultsHiddenUntilPublished() {
	s.createRoom("ABC123")
	_, err := s.storage.UpsertResult(s.ctx, "ABC123", "p1", model.CompleteUpdate(model.Metrics{WPM: 50, Accuracy: 90}), s.clock.Now())
	s.Require().NoError(err)

	res, err := s.service.GetResults(s.ctx, "ABC123", "p1")
	s.Require().NoError(err)
	s.False(res.Published)
	s.Empty(res.Results)

	hostView, err := s.service.GetResults(s.ctx, "ABC123", "host")
	s.Require().NoError(err)
	s.Len(hostView.Results, 1)

	s.Require().NoError(s.service.PublishResults(s.ctx, "ABC123", "host"))

	res, err = s.service.GetResults(s.ctx, "ABC123", "p1")
	s.Require().NoError(err)
	s.True(res.Published)
	s.Require().Len(res.Results, 1)
	s.InDelta(45.0, res.Results[0].Score, 0.001)
}

func (s *ServiceSuite) TestPublishResultsHostOnly() {
	s.createRoom("ABC123")

	err := s.service.PublishResults(s.ctx, "ABC123", "p1")
	s.ErrorIs(err, model.ErrNotHost)

	room, err := s.storage.GetRoom(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.False(room.ResultsPublished)
}

// CheckParticipant tests

func (s *ServiceSuite) TestCheckParticipant() {
	s.createRoom("ABC123")

	room, err := s.service.CheckParticipant(s.ctx, "ABC123", "host")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC123"), room.Code)

	_, err = s.service.CheckParticipant(s.ctx, "ABC123", "stranger")
	s.ErrorIs(err, model.ErrNotParticipant)

	_, err = s.service.CheckParticipant(s.ctx, "NOPE00", "host")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

// Spectate tests

func (s *ServiceSuite) TestSpectateWaitingRoom() {
	s.createRoom("ABC123")

	view, err := s.service.Spectate(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC123"), view.Room.Code)
	s.Require().Len(view.Players, 1)
	s.Equal(model.UserID("host"), view.Players[0].UserID)
	s.Equal("Hana", view.Players[0].Name)
	s.Zero(view.Players[0].Metrics)
	s.False(view.Players[0].Finished)

	s.Equal(GameState{CurrentLevel: model.LevelEasy, IsActive: false, TimeLeft: RaceDuration}, view.GameState)
}

func (s *ServiceSuite) TestSpectateMergesResultsIntoPlayers() {
	s.createRoom("ABC123")
	s.clock.Advance(time.Second)
	_, err := s.service.JoinRoom(s.ctx, "ABC123", s.identity("p1", "Pia"))
	s.Require().NoError(err)
	s.Require().NoError(s.storage.SetRoomStatus(s.ctx, "ABC123", model.RoomStatusInProgress, s.clock.Now()))

	s.clock.Advance(100 * time.Second)
	progress, finished := 40.0, false
	_, err = s.storage.UpsertResult(s.ctx, "ABC123", "p1", model.ResultUpdate{Progress: &progress, Finished: &finished}, s.clock.Now())
	s.Require().NoError(err)
	s.clock.Advance(time.Second)
	_, err = s.storage.UpsertResult(s.ctx, "ABC123", "host",
		model.CompleteUpdate(model.Metrics{WPM: 80, Accuracy: 95, Errors: 2, Level: model.LevelMedium}), s.clock.Now())
	s.Require().NoError(err)

	view, err := s.service.Spectate(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Require().Len(view.Players, 2)

	host, p1 := view.Players[0], view.Players[1]
	s.Equal(model.UserID("host"), host.UserID)
	s.Equal(80.0, host.Metrics.WPM)
	s.Equal(2, host.Metrics.Errors)
	s.True(host.Finished)
	s.Equal(model.UserID("p1"), p1.UserID)
	s.Equal(40.0, p1.Metrics.Progress)
	s.False(p1.Finished)

	s.Equal(model.LevelMedium, view.GameState.CurrentLevel)
	s.True(view.GameState.IsActive)
	s.Equal(RaceDuration-101*time.Second, view.GameState.TimeLeft)

	s.clock.Advance(time.Hour)
	view, err = s.service.Spectate(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Zero(view.GameState.TimeLeft)
}

func (s *ServiceSuite) TestSpectateUnknownRoom() {
	_, err := s.service.Spectate(s.ctx, "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)
}
