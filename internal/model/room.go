package model

import (
	"strings"
	"time"
)

// RoomCode is a short human-readable identifier for joining rooms
type RoomCode string

// NormalizeRoomCode trims and upper-cases a code so lookups are case-insensitive
func NormalizeRoomCode(raw string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}

// RoomStatus is the lifecycle state of a room
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"     // Accepting players, race not started
	RoomStatusInProgress RoomStatus = "in_progress" // Race running
	RoomStatusCompleted  RoomStatus = "completed"   // Terminal
)

// Valid reports whether s is a known status
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusWaiting, RoomStatusInProgress, RoomStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether a room may move from s to next.
// Status only ever moves forward one step: waiting -> in_progress -> completed.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	prev, ok := next.Predecessor()
	return ok && prev == s
}

// Predecessor returns the only status that may transition into s
func (s RoomStatus) Predecessor() (RoomStatus, bool) {
	switch s {
	case RoomStatusInProgress:
		return RoomStatusWaiting, true
	case RoomStatusCompleted:
		return RoomStatusInProgress, true
	}
	return "", false
}

// Room is the durable record of a game room
type Room struct {
	Code             RoomCode   `json:"code"`
	Name             string     `json:"name"`
	CreatedBy        UserID     `json:"created_by"`
	IsPublic         bool       `json:"is_public"`
	Status           RoomStatus `json:"status"`
	ResultsPublished bool       `json:"results_published"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// IsHost reports whether the given user created the room
func (r *Room) IsHost(userID UserID) bool {
	return r.CreatedBy == userID
}

// ApplyStatus moves the room to next, stamping the matching timestamp.
// Returns ErrInvalidTransition if the move is not allowed.
func (r *Room) ApplyStatus(next RoomStatus, at time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	switch next {
	case RoomStatusInProgress:
		r.StartedAt = &at
	case RoomStatusCompleted:
		r.CompletedAt = &at
	}
	return nil
}

// RoomFilter narrows room listings
type RoomFilter struct {
	Status     RoomStatus // Empty matches any status
	PublicOnly bool
}

// Matches reports whether the room passes the filter
func (f RoomFilter) Matches(r *Room) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.PublicOnly && !r.IsPublic {
		return false
	}
	return true
}
