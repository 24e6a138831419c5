package redis

import (
	"fmt"

	"github.com/mcoot/typeroom/internal/model"
)

// Key prefix for all room-related data
const keyPrefix = "typeroom"

// roomKey returns the Redis key for a Room
func roomKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, code)
}

// participantsKey returns the Redis key for the HASH of participants in a room
func participantsKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s:participants", keyPrefix, code)
}

// resultsKey returns the Redis key for the HASH of results in a room
func resultsKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s:results", keyPrefix, code)
}

// roomsIndexKey returns the Redis key for the SET of all room codes
func roomsIndexKey() string {
	return fmt.Sprintf("%s:idx:rooms", keyPrefix)
}
