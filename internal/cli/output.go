package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

// PrintEvent outputs one websocket message, one line each
func (o *Output) PrintEvent(e Event) {
	if o.format == "json" {
		data, _ := json.Marshal(e)
		fmt.Println(string(data))
		return
	}

	timestamp := e.Timestamp.Local().Format("15:04:05")
	from := ""
	if e.UserID != "" {
		from = " (" + e.UserID + ")"
	}
	// Truncate data if it's too long for display
	displayData := string(e.Data)
	if len(displayData) > 100 {
		displayData = displayData[:100] + "..."
	}
	fmt.Printf("[%s] %s%s: %s\n", timestamp, e.Type, from, displayData)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case RoomDetails:
		o.printRoomDetails(v)
	case ActiveRooms:
		o.printActiveRooms(v)
	case RoomResults:
		o.printRoomResults(v)
	case TokenResult:
		o.printTokenResult(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Room response type (matches API)
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

// Participant response type
type Participant struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomDetails response type
type RoomDetails struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
}

// ActiveRoom response type
type ActiveRoom struct {
	Room
	ParticipantCount int `json:"participant_count"`
}

// ActiveRooms response type
type ActiveRooms struct {
	Rooms []ActiveRoom `json:"rooms"`
}

// Result response type
type Result struct {
	UserID    string  `json:"user_id"`
	WPM       float64 `json:"wpm"`
	Accuracy  float64 `json:"accuracy"`
	Errors    int     `json:"errors"`
	TimeTaken int     `json:"time_taken"`
	Level     string  `json:"level,omitempty"`
	Score     float64 `json:"score"`
	Finished  bool    `json:"finished"`
}

// RoomResults response type
type RoomResults struct {
	Code             string   `json:"code"`
	Status           string   `json:"status"`
	ResultsPublished bool     `json:"results_published"`
	Results          []Result `json:"results"`
}

// HealthResult response type
type HealthResult struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Rooms     int       `json:"rooms"`
	Sessions  int       `json:"sessions"`
}

// TokenResult is the output of the token command
type TokenResult struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Event is a websocket envelope as received
type Event struct {
	Type      string          `json:"type"`
	Code      string          `json:"code"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (o *Output) printRoom(r Room) {
	visibility := "private"
	if r.IsPublic {
		visibility = "public"
	}
	fmt.Printf("Room: %s (%s)\n", r.Code, r.Name)
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Host: %s\n", r.CreatedBy)
	fmt.Printf("Visibility: %s\n", visibility)
	if r.StartedAt != nil {
		fmt.Printf("Started: %s\n", r.StartedAt.Local().Format(time.DateTime))
	}
	if r.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", r.CompletedAt.Local().Format(time.DateTime))
	}
}

func (o *Output) printRoomDetails(d RoomDetails) {
	o.printRoom(d.Room)
	fmt.Printf("Participants (%d):\n", len(d.Participants))
	for _, p := range d.Participants {
		hostStr := ""
		if p.IsHost {
			hostStr = " [host]"
		}
		fmt.Printf("  - %s (%s)%s\n", p.Name, p.UserID, hostStr)
	}
}

func (o *Output) printActiveRooms(a ActiveRooms) {
	if len(a.Rooms) == 0 {
		fmt.Println("No active rooms")
		return
	}
	for _, r := range a.Rooms {
		fmt.Printf("%s  %-30s  %d waiting\n", r.Code, r.Name, r.ParticipantCount)
	}
}

func (o *Output) printRoomResults(r RoomResults) {
	fmt.Printf("Room: %s\n", r.Code)
	fmt.Printf("Status: %s\n", r.Status)
	if !r.ResultsPublished {
		fmt.Println("Results: not published")
	}
	if len(r.Results) == 0 {
		return
	}

	fmt.Println("\nResults:")
	for _, res := range r.Results {
		flags := []string{}
		if res.Level != "" {
			flags = append(flags, res.Level)
		}
		if !res.Finished {
			flags = append(flags, "unfinished")
		}
		suffix := ""
		if len(flags) > 0 {
			suffix = " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Printf("  %s: %.1f wpm, %.1f%% accuracy, score %.1f%s\n",
			res.UserID, res.WPM, res.Accuracy, res.Score, suffix)
	}
}

func (o *Output) printTokenResult(t TokenResult) {
	fmt.Printf("User: %s\n", t.UserID)
	fmt.Printf("Expires: %s\n", t.ExpiresAt.Local().Format(time.DateTime))
	fmt.Printf("Token: %s\n", t.Token)
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Live rooms: %d\n", h.Rooms)
	fmt.Printf("Live sessions: %d\n", h.Sessions)
}
