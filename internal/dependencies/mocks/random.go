package mocks

import (
	"sync"

	"github.com/mcoot/typeroom/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing
type MockRandom struct {
	mu sync.Mutex

	// codes is a queue of results to return from String
	codes []string
	next  int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// String returns the next queued code, or empty string if none remaining
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.codes) {
		return ""
	}
	result := r.codes[r.next]
	r.next++
	return result
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	r.codes = append(r.codes, values...)
	r.mu.Unlock()
}

// Remaining reports how many queued values have not been consumed
func (r *MockRandom) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes) - r.next
}
