package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, RoomCode("ABC123"), NormalizeRoomCode(" abc123 "))
	assert.Equal(t, RoomCode("XYZ"), NormalizeRoomCode("XYZ"))
	assert.Equal(t, RoomCode(""), NormalizeRoomCode("   "))
}

func TestRoomStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to RoomStatus
		allowed  bool
	}{
		{RoomStatusWaiting, RoomStatusInProgress, true},
		{RoomStatusInProgress, RoomStatusCompleted, true},
		{RoomStatusWaiting, RoomStatusCompleted, false},
		{RoomStatusWaiting, RoomStatusWaiting, false},
		{RoomStatusInProgress, RoomStatusInProgress, false},
		{RoomStatusInProgress, RoomStatusWaiting, false},
		{RoomStatusCompleted, RoomStatusWaiting, false},
		{RoomStatusCompleted, RoomStatusInProgress, false},
		{RoomStatusCompleted, RoomStatusCompleted, false},
		{RoomStatusWaiting, RoomStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestApplyStatusStampsTimes(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	room := &Room{Code: "ABC123", Status: RoomStatusWaiting}

	require.NoError(t, room.ApplyStatus(RoomStatusInProgress, now))
	require.NotNil(t, room.StartedAt)
	assert.Equal(t, now, *room.StartedAt)

	assert.ErrorIs(t, room.ApplyStatus(RoomStatusWaiting, now), ErrInvalidTransition)
	assert.Equal(t, RoomStatusInProgress, room.Status)

	later := now.Add(time.Minute)
	require.NoError(t, room.ApplyStatus(RoomStatusCompleted, later))
	require.NotNil(t, room.CompletedAt)
	assert.Equal(t, later, *room.CompletedAt)
}

func TestMetricsScoreAndValidate(t *testing.T) {
	m := Metrics{WPM: 80, Accuracy: 95, Errors: 3, TimeTaken: 60, Level: LevelHard}
	require.NoError(t, m.Validate())
	assert.InDelta(t, 76.0, m.Score(), 0.0001)

	bad := []Metrics{
		{WPM: -1},
		{Accuracy: 101},
		{Errors: -2},
		{Level: "impossible"},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), ErrInvalidMetrics)
	}
}

func TestAllFinished(t *testing.T) {
	participants := []Participant{{UserID: "u1"}, {UserID: "u2"}}

	assert.False(t, AllFinished(nil, nil))
	assert.False(t, AllFinished(participants, []Result{{UserID: "u1", Finished: true}}))
	assert.False(t, AllFinished(participants, []Result{
		{UserID: "u1", Finished: true},
		{UserID: "u2", Finished: false},
	}))
	assert.True(t, AllFinished(participants, []Result{
		{UserID: "u2", Finished: true},
		{UserID: "u1", Finished: true},
		{UserID: "spectator", Finished: true},
	}))
}
