package response

import (
	"time"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/services/room"
)

// Room represents a room in API responses
type Room struct {
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	CreatedBy        string     `json:"created_by"`
	IsPublic         bool       `json:"is_public"`
	Status           string     `json:"status"`
	ResultsPublished bool       `json:"results_published"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// RoomFromModel converts a model.Room to a response Room
func RoomFromModel(r *model.Room) Room {
	return Room{
		Code:             string(r.Code),
		Name:             r.Name,
		CreatedBy:        string(r.CreatedBy),
		IsPublic:         r.IsPublic,
		Status:           string(r.Status),
		ResultsPublished: r.ResultsPublished,
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
}

// Participant represents a room member
type Participant struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
}

// ParticipantFromModel converts a model.Participant. Email is not exposed.
func ParticipantFromModel(p model.Participant) Participant {
	return Participant{
		UserID:   string(p.UserID),
		Name:     p.Name,
		IsHost:   p.IsHost,
		JoinedAt: p.JoinedAt,
	}
}

// RoomDetails is a room with its participants
type RoomDetails struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
}

// RoomDetailsFromService converts room.Details
func RoomDetailsFromService(d *room.Details) RoomDetails {
	participants := make([]Participant, len(d.Participants))
	for i, p := range d.Participants {
		participants[i] = ParticipantFromModel(p)
	}
	return RoomDetails{
		Room:         RoomFromModel(d.Room),
		Participants: participants,
	}
}

// ActiveRoom is a listed room with its member count
type ActiveRoom struct {
	Room
	ParticipantCount int `json:"participant_count"`
}

// ActiveRooms is the response for the active room listing
type ActiveRooms struct {
	Rooms []ActiveRoom `json:"rooms"`
}

// ActiveRoomsFromService converts room summaries
func ActiveRoomsFromService(summaries []room.Summary) ActiveRooms {
	rooms := make([]ActiveRoom, len(summaries))
	for i, s := range summaries {
		rooms[i] = ActiveRoom{Room: RoomFromModel(s.Room), ParticipantCount: s.ParticipantCount}
	}
	return ActiveRooms{Rooms: rooms}
}

// Result is one user's race outcome
type Result struct {
	UserID    string    `json:"user_id"`
	WPM       float64   `json:"wpm"`
	Accuracy  float64   `json:"accuracy"`
	Errors    int       `json:"errors"`
	TimeTaken int       `json:"time_taken"`
	Level     string    `json:"level,omitempty"`
	Progress  float64   `json:"progress"`
	Score     float64   `json:"score"`
	Finished  bool      `json:"finished"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultFromModel converts a model.Result
func ResultFromModel(r model.Result) Result {
	return Result{
		UserID:    string(r.UserID),
		WPM:       r.Metrics.WPM,
		Accuracy:  r.Metrics.Accuracy,
		Errors:    r.Metrics.Errors,
		TimeTaken: r.Metrics.TimeTaken,
		Level:     r.Metrics.Level,
		Progress:  r.Metrics.Progress,
		Score:     r.Score,
		Finished:  r.Finished,
		UpdatedAt: r.UpdatedAt,
	}
}

// RoomResults is the response for a room's results
type RoomResults struct {
	Code             string   `json:"code"`
	Status           string   `json:"status"`
	ResultsPublished bool     `json:"results_published"`
	Results          []Result `json:"results"`
}

// RoomResultsFromService converts room.Results
func RoomResultsFromService(r *room.Results) RoomResults {
	results := make([]Result, len(r.Results))
	for i, res := range r.Results {
		results[i] = ResultFromModel(res)
	}
	return RoomResults{
		Code:             string(r.Room.Code),
		Status:           string(r.Room.Status),
		ResultsPublished: r.Published,
		Results:          results,
	}
}

// SpectatorPlayer is one participant's live standing. Keys follow the
// browser client's spectator view.
type SpectatorPlayer struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	IsHost     bool    `json:"isHost"`
	WPM        float64 `json:"wpm"`
	Accuracy   float64 `json:"accuracy"`
	Progress   float64 `json:"progress"`
	IsFinished bool    `json:"isFinished"`
	Errors     int     `json:"errors"`
}

// GameState is the race summary in the spectator view
type GameState struct {
	CurrentLevel string `json:"currentLevel"`
	IsActive     bool   `json:"isActive"`
	TimeLeft     int    `json:"timeLeft"` // seconds
}

// SpectatorView is the response for spectating a room
type SpectatorView struct {
	Room      Room              `json:"room"`
	Players   []SpectatorPlayer `json:"players"`
	GameState GameState         `json:"gameState"`
}

// SpectatorViewFromService converts room.SpectatorView
func SpectatorViewFromService(v *room.SpectatorView) SpectatorView {
	players := make([]SpectatorPlayer, len(v.Players))
	for i, p := range v.Players {
		players[i] = SpectatorPlayer{
			ID:         string(p.UserID),
			Name:       p.Name,
			IsHost:     p.IsHost,
			WPM:        p.Metrics.WPM,
			Accuracy:   p.Metrics.Accuracy,
			Progress:   p.Metrics.Progress,
			IsFinished: p.Finished,
			Errors:     p.Metrics.Errors,
		}
	}
	return SpectatorView{
		Room:    RoomFromModel(v.Room),
		Players: players,
		GameState: GameState{
			CurrentLevel: v.GameState.CurrentLevel,
			IsActive:     v.GameState.IsActive,
			TimeLeft:     int(v.GameState.TimeLeft.Seconds()),
		},
	}
}

// Health is the liveness response
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Rooms     int       `json:"rooms"`
	Sessions  int       `json:"sessions"`
}
