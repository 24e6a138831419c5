package model

import "errors"

// Common errors used across the application
var (
	// Room errors
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomExists        = errors.New("room code already in use")
	ErrInvalidRoomCode   = errors.New("invalid room code")
	ErrInvalidTransition = errors.New("invalid room status transition")
	ErrNotHost           = errors.New("user is not the room host")
	ErrNotParticipant    = errors.New("user is not a participant of the room")

	// Result errors
	ErrInvalidMetrics = errors.New("invalid result metrics")

	// Storage errors
	ErrStorage = errors.New("storage failure")
)
