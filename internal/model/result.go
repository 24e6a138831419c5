package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Difficulty levels a race can be played at
const (
	LevelEasy   = "easy"
	LevelMedium = "medium"
	LevelHard   = "hard"
)

// Metrics are the numbers a client reports when it finishes a race
type Metrics struct {
	WPM       float64 `json:"wpm"`
	Accuracy  float64 `json:"accuracy"`
	Errors    int     `json:"errors"`
	TimeTaken int     `json:"time_taken"` // seconds
	Level     string  `json:"level,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
}

// Validate checks the metrics are within sensible bounds
func (m Metrics) Validate() error {
	if m.WPM < 0 {
		return fmt.Errorf("%w: wpm must not be negative", ErrInvalidMetrics)
	}
	if m.Accuracy < 0 || m.Accuracy > 100 {
		return fmt.Errorf("%w: accuracy must be between 0 and 100", ErrInvalidMetrics)
	}
	if m.Errors < 0 || m.TimeTaken < 0 {
		return fmt.Errorf("%w: errors and time_taken must not be negative", ErrInvalidMetrics)
	}
	switch m.Level {
	case "", LevelEasy, LevelMedium, LevelHard:
	default:
		return fmt.Errorf("%w: unknown level %q", ErrInvalidMetrics, m.Level)
	}
	return nil
}

// Score weights speed by accuracy
func (m Metrics) Score() float64 {
	return m.WPM * m.Accuracy / 100
}

// Result is one user's outcome in a room. There is at most one per (room, user).
type Result struct {
	UserID    UserID    `json:"user_id"`
	Metrics   Metrics   `json:"metrics"`
	Score     float64   `json:"score"`
	Finished  bool      `json:"finished"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultUpdate is a partial result report. Nil fields keep the stored value
// when merged into an existing result.
type ResultUpdate struct {
	WPM       *float64 `json:"wpm,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Errors    *int     `json:"errors,omitempty"`
	TimeTaken *int     `json:"time_taken,omitempty"`
	Level     *string  `json:"level,omitempty"`
	Progress  *float64 `json:"progress,omitempty"`
	Finished  *bool    `json:"finished,omitempty"`
}

// UnmarshalJSON also accepts isFinished for the finished flag
func (u *ResultUpdate) UnmarshalJSON(data []byte) error {
	type plain ResultUpdate
	var aux struct {
		plain
		IsFinished *bool `json:"isFinished"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = ResultUpdate(aux.plain)
	if u.Finished == nil {
		u.Finished = aux.IsFinished
	}
	return nil
}

// CompleteUpdate reports every metric of a finished race
func CompleteUpdate(m Metrics) ResultUpdate {
	finished := true
	u := ResultUpdate{
		WPM:       &m.WPM,
		Accuracy:  &m.Accuracy,
		Errors:    &m.Errors,
		TimeTaken: &m.TimeTaken,
		Progress:  &m.Progress,
		Finished:  &finished,
	}
	if m.Level != "" {
		u.Level = &m.Level
	}
	return u
}

// IsEmpty reports whether the update carries no field at all
func (u ResultUpdate) IsEmpty() bool {
	return u == ResultUpdate{}
}

// Validate checks the fields that are present
func (u ResultUpdate) Validate() error {
	if u.IsEmpty() {
		return fmt.Errorf("%w: no result fields", ErrInvalidMetrics)
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidMetrics)
	}
	// Absent fields are zero here, which always passes
	return u.Apply(nil, "", time.Time{}).Metrics.Validate()
}

// Apply merges the update into prev, which may be nil for a first report,
// and recomputes the score from the merged metrics
func (u ResultUpdate) Apply(prev *Result, userID UserID, now time.Time) Result {
	r := Result{UserID: userID}
	if prev != nil {
		r = *prev
	}
	m := &r.Metrics
	if u.WPM != nil {
		m.WPM = *u.WPM
	}
	if u.Accuracy != nil {
		m.Accuracy = *u.Accuracy
	}
	if u.Errors != nil {
		m.Errors = *u.Errors
	}
	if u.TimeTaken != nil {
		m.TimeTaken = *u.TimeTaken
	}
	if u.Level != nil {
		m.Level = *u.Level
	}
	if u.Progress != nil {
		m.Progress = *u.Progress
	}
	if u.Finished != nil {
		r.Finished = *u.Finished
	}
	r.Score = m.Score()
	r.UpdatedAt = now
	return r
}

// AllFinished reports whether every participant has a finished result
func AllFinished(participants []Participant, results []Result) bool {
	if len(participants) == 0 {
		return false
	}
	finished := make(map[UserID]bool, len(results))
	for _, r := range results {
		if r.Finished {
			finished[r.UserID] = true
		}
	}
	for _, p := range participants {
		if !finished[p.UserID] {
			return false
		}
	}
	return true
}
