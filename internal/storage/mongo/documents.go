package mongo

import (
	"time"

	"github.com/mcoot/typeroom/internal/model"
)

// Collection names
const (
	roomsCollection        = "rooms"
	participantsCollection = "participants"
	resultsCollection      = "results"
)

type roomDoc struct {
	Code             string     `bson:"_id"`
	Name             string     `bson:"name"`
	CreatedBy        string     `bson:"created_by"`
	IsPublic         bool       `bson:"is_public"`
	Status           string     `bson:"status"`
	ResultsPublished bool       `bson:"results_published"`
	CreatedAt        time.Time  `bson:"created_at"`
	StartedAt        *time.Time `bson:"started_at,omitempty"`
	CompletedAt      *time.Time `bson:"completed_at,omitempty"`
}

func roomToDoc(r *model.Room) roomDoc {
	return roomDoc{
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

func (d roomDoc) toModel() *model.Room {
	return &model.Room{
		Code:             model.RoomCode(d.Code),
		Name:             d.Name,
		CreatedBy:        model.UserID(d.CreatedBy),
		IsPublic:         d.IsPublic,
		Status:           model.RoomStatus(d.Status),
		ResultsPublished: d.ResultsPublished,
		CreatedAt:        d.CreatedAt,
		StartedAt:        d.StartedAt,
		CompletedAt:      d.CompletedAt,
	}
}

type participantDoc struct {
	RoomCode string    `bson:"room_code"`
	UserID   string    `bson:"user_id"`
	Name     string    `bson:"name"`
	Email    string    `bson:"email"`
	IsHost   bool      `bson:"is_host"`
	JoinedAt time.Time `bson:"joined_at"`
}

func (d participantDoc) toModel() model.Participant {
	return model.Participant{
		UserID:   model.UserID(d.UserID),
		Name:     d.Name,
		Email:    d.Email,
		IsHost:   d.IsHost,
		JoinedAt: d.JoinedAt,
	}
}

type resultDoc struct {
	RoomCode  string    `bson:"room_code"`
	UserID    string    `bson:"user_id"`
	WPM       float64   `bson:"wpm"`
	Accuracy  float64   `bson:"accuracy"`
	Errors    int       `bson:"errors"`
	TimeTaken int       `bson:"time_taken"`
	Level     string    `bson:"level"`
	Progress  float64   `bson:"progress"`
	Score     float64   `bson:"score"`
	Finished  bool      `bson:"finished"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d resultDoc) toModel() model.Result {
	return model.Result{
		UserID: model.UserID(d.UserID),
		Metrics: model.Metrics{
			WPM:       d.WPM,
			Accuracy:  d.Accuracy,
			Errors:    d.Errors,
			TimeTaken: d.TimeTaken,
			Level:     d.Level,
			Progress:  d.Progress,
		},
		Score:     d.Score,
		Finished:  d.Finished,
		UpdatedAt: d.UpdatedAt,
	}
}
