package model

import "time"

// UserID identifies a user as asserted by the identity provider
type UserID string

// Identity is a verified user identity
type Identity struct {
	ID    UserID
	Name  string
	Email string
}

// Participant is a user's durable membership in a room
type Participant struct {
	UserID   UserID    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
}

// ParticipantFor builds the membership row for an identity joining a room
func ParticipantFor(room *Room, id Identity, now time.Time) Participant {
	return Participant{
		UserID:   id.ID,
		Name:     id.Name,
		Email:    id.Email,
		IsHost:   room.IsHost(id.ID),
		JoinedAt: now,
	}
}
