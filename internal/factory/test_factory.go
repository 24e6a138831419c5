package factory

import (
	"time"

	"github.com/mcoot/typeroom/internal/dependencies/mocks"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/realtime"
	"github.com/mcoot/typeroom/internal/services/auth"
	"github.com/mcoot/typeroom/internal/storage/memory"
	"github.com/mcoot/typeroom/internal/testutil"
)

// TestSecret signs the tokens minted by TestApp
const TestSecret = "test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = TestSecret
	verifier, err := auth.NewJWTVerifier(authCfg, mockClock)
	if err != nil {
		panic(err) // The secret is set above
	}

	app := newWithDependencies(store, mockClock, mockRandom, verifier, realtime.DefaultConfig(), testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}

// Identity returns a test identity with the given id and name
func (t *TestApp) Identity(id, name string) model.Identity {
	return model.Identity{ID: model.UserID(id), Name: name, Email: id + "@example.com"}
}

// Token mints a valid token for the identity
func (t *TestApp) Token(id model.Identity) string {
	token, err := t.Verifier.Issue(id)
	if err != nil {
		panic(err)
	}
	return token
}
