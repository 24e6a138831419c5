package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mcoot/typeroom/internal/model"
)

// Protocol errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
)

// MessageType identifies an envelope
type MessageType string

// Inbound message types
const (
	TypeStartGame      MessageType = "start_game"
	TypeTypingProgress MessageType = "typing_progress"
	TypeGameCompleted  MessageType = "game_completed"
)

// Outbound-only message types
const (
	TypeRoomState         MessageType = "room_state"
	TypeParticipantJoined MessageType = "participant_joined"
	TypeParticipantLeft   MessageType = "participant_left"
	TypeGameStarted       MessageType = "game_started"
	TypeError             MessageType = "error"
	TypeRoomCompleted     MessageType = "room_completed"
)

// Envelope is the frame exchanged in both directions
type Envelope struct {
	Type      MessageType     `json:"type"`
	Code      model.RoomCode  `json:"code"`
	UserID    model.UserID    `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RoomStateData is the payload of room_state
type RoomStateData struct {
	Room         *model.Room         `json:"room"`
	Participants []model.Participant `json:"participants"`
}

// ParticipantData is the payload of participant_joined and participant_left
type ParticipantData struct {
	UserID model.UserID `json:"userId"`
	Name   string       `json:"name,omitempty"`
	IsHost bool         `json:"isHost"`
}

// CompletedData is the payload of an outbound game_completed
type CompletedData struct {
	model.Metrics
	Score    float64 `json:"score"`
	Finished bool    `json:"finished"`
}

// RoomCompletedData is the payload of room_completed
type RoomCompletedData struct {
	CompletedAt time.Time      `json:"completedAt"`
	Results     []model.Result `json:"results"`
}

// ErrorData is the payload of error
type ErrorData struct {
	Message string `json:"message"`
}

// NewEnvelope builds an outbound envelope with a JSON-encoded payload.
// Code and timestamp are stamped by the dispatcher.
func NewEnvelope(t MessageType, userID model.UserID, data any) Envelope {
	env := Envelope{Type: t, UserID: userID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			env.Data = raw
		}
	}
	return env
}

// ErrorEnvelope builds an error message for a single session
func ErrorEnvelope(message string) Envelope {
	return NewEnvelope(TypeError, "", ErrorData{Message: message})
}

// ParseEnvelope decodes an inbound frame. A frame that is not a JSON object
// with a string type is rejected with ErrMalformedFrame.
func ParseEnvelope(frame []byte) (Envelope, error) {
	if !gjson.ValidBytes(frame) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return Envelope{}, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	typ := root.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	env := Envelope{
		Type:   MessageType(typ.Str),
		Code:   model.RoomCode(root.Get("code").String()),
		UserID: model.UserID(root.Get("userId").String()),
	}
	// An explicit null is the same as no data
	if data := root.Get("data"); data.Exists() && data.Type != gjson.Null {
		env.Data = json.RawMessage(data.Raw)
	}
	if ts := root.Get("timestamp"); ts.Type == gjson.String {
		if t, err := time.Parse(time.RFC3339Nano, ts.Str); err == nil {
			env.Timestamp = t
		}
	}
	return env, nil
}

// peekType reads only the type field of a frame
func peekType(frame []byte) MessageType {
	return MessageType(gjson.GetBytes(frame, "type").String())
}
