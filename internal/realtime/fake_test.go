package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/typeroom/internal/model"
)

var fakeIDs atomic.Int64

// fakeSession records what the server sends it
type fakeSession struct {
	id     string
	code   model.RoomCode
	userID model.UserID

	mu          sync.Mutex
	sent        []Envelope
	closed      bool
	closeCode   int
	closeReason string
	closeCalls  int
	panicOnSend bool
}

func newFakeSession(code model.RoomCode, userID model.UserID) *fakeSession {
	return &fakeSession{
		id:     fmt.Sprintf("fake-%d", fakeIDs.Add(1)),
		code:   code,
		userID: userID,
	}
}

func (f *fakeSession) ID() string               { return f.id }
func (f *fakeSession) RoomCode() model.RoomCode { return f.code }
func (f *fakeSession) UserID() model.UserID     { return f.userID }
func (f *fakeSession) ConnectedAt() time.Time   { return time.Time{} }

func (f *fakeSession) Send(env Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnSend {
		panic("transport exploded")
	}
	if f.closed {
		return
	}
	f.sent = append(f.sent, env)
}

func (f *fakeSession) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if f.closed {
		return
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

func (f *fakeSession) messages() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.sent...)
}

func (f *fakeSession) types() []MessageType {
	var out []MessageType
	for _, env := range f.messages() {
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeSession) received(t MessageType) []Envelope {
	var out []Envelope
	for _, env := range f.messages() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// frame builds a raw inbound frame
func frame(t MessageType, data any) []byte {
	msg := map[string]any{"type": t}
	if data != nil {
		msg["data"] = data
	}
	b, _ := json.Marshal(msg)
	return b
}
