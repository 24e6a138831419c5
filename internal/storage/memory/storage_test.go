package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
	"github.com/mcoot/typeroom/internal/storage/storagetest"
)

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.GatewaySuite{
		NewGateway: func(t *testing.T) storage.Gateway { return New() },
	})
}

func TestGetRoomReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRoom(ctx, &model.Room{Code: "ABC123", Status: model.RoomStatusWaiting, CreatedAt: time.Now()}))

	room, err := s.GetRoom(ctx, "ABC123")
	require.NoError(t, err)
	room.Status = model.RoomStatusCompleted

	again, err := s.GetRoom(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusWaiting, again.Status)
}
