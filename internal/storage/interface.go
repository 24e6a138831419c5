package storage

import (
	"context"
	"time"

	"github.com/mcoot/typeroom/internal/model"
)

// Gateway defines the durable store for rooms, participants and results.
// Every operation is atomic for the single row it touches.
type Gateway interface {
	// Room operations
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error)
	RoomExists(ctx context.Context, code model.RoomCode) (bool, error)
	ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)

	// SetRoomStatus is a compare-and-set: it only succeeds when the stored
	// status is the predecessor of status, otherwise model.ErrInvalidTransition.
	SetRoomStatus(ctx context.Context, code model.RoomCode, status model.RoomStatus, at time.Time) error
	SetResultsPublished(ctx context.Context, code model.RoomCode, published bool) error

	// Participant operations
	UpsertParticipant(ctx context.Context, code model.RoomCode, p model.Participant) error
	GetParticipants(ctx context.Context, code model.RoomCode) ([]model.Participant, error)

	// Result operations
	// UpsertResult merges update into the user's stored result, creating it
	// if absent, and returns the merged row.
	UpsertResult(ctx context.Context, code model.RoomCode, userID model.UserID, update model.ResultUpdate, at time.Time) (*model.Result, error)
	GetResults(ctx context.Context, code model.RoomCode) ([]model.Result, error)

	Close() error
}
