package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/typeroom/internal/api/apierr"
	"github.com/mcoot/typeroom/internal/api/response"
	"github.com/mcoot/typeroom/internal/factory"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/realtime"
)

// testServer creates a test server with all dependencies
type testServer struct {
	app     *factory.TestApp
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{
		app:     app,
		handler: app.Handler(),
	}
}

func (ts *testServer) token(id, name string) string {
	return ts.app.Token(ts.app.Identity(id, name))
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code)
	resp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, code, resp.Error.Code)
}

func createRoom(t *testing.T, ts *testServer, code, token string, body any) response.RoomDetails {
	t.Helper()
	ts.app.MockRandom.QueueString(code)
	rr := ts.request(http.MethodPost, "/api/v1/rooms", body, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "/api/v1/rooms/"+code, rr.Header().Get("Location"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	return decode[response.RoomDetails](t, rr)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	health := decode[response.Health](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, ts.app.MockClock.Now(), health.Timestamp)
	assert.Zero(t, health.Sessions)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/rooms", nil, "")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/ABC123", nil, "not-a-jwt")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

func TestExpiredToken(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token("host", "Hana")

	ts.app.MockClock.Advance(48 * time.Hour)

	rr := ts.request(http.MethodPost, "/api/v1/rooms", nil, token)
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeTokenExpired)
}

func TestCreateAndGetRoom(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token("host", "Hana")

	created := createRoom(t, ts, "ABC123", token, map[string]any{"name": "Friday race"})
	assert.Equal(t, "ABC123", created.Room.Code)
	assert.Equal(t, "Friday race", created.Room.Name)
	assert.Equal(t, string(model.RoomStatusWaiting), created.Room.Status)
	assert.True(t, created.Room.IsPublic)
	require.Len(t, created.Participants, 1)
	assert.True(t, created.Participants[0].IsHost)

	// Codes are case-insensitive
	rr := ts.request(http.MethodGet, "/api/v1/rooms/abc123", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[response.RoomDetails](t, rr)
	assert.Equal(t, created.Room, got.Room)
}

func TestCreateRoomWithoutBody(t *testing.T) {
	ts := newTestServer(t)

	created := createRoom(t, ts, "NOBODY", ts.token("host", "Hana"), nil)
	assert.NotEmpty(t, created.Room.Name)
	assert.True(t, created.Room.IsPublic)
}

func TestCreateRoomRejectsBadBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", strings.NewReader("{nope"))
	req.Header.Set("Authorization", "Bearer "+ts.token("host", "Hana"))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assertErrorCode(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestGetUnknownRoom(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/rooms/ZZZZZZ", nil, ts.token("host", "Hana"))
	assertErrorCode(t, rr, http.StatusNotFound, apierr.CodeRoomNotFound)
}

func TestJoinRoom(t *testing.T) {
	ts := newTestServer(t)
	createRoom(t, ts, "JOIN01", ts.token("host", "Hana"), nil)
	guest := ts.token("guest", "Gus")

	rr := ts.request(http.MethodPost, "/api/v1/rooms/JOIN01/join", nil, guest)
	require.Equal(t, http.StatusOK, rr.Code)
	details := decode[response.RoomDetails](t, rr)
	require.Len(t, details.Participants, 2)

	// Joining again is idempotent
	rr = ts.request(http.MethodPost, "/api/v1/rooms/JOIN01/join", nil, guest)
	require.Equal(t, http.StatusOK, rr.Code)
	details = decode[response.RoomDetails](t, rr)
	assert.Len(t, details.Participants, 2)
}

func TestActiveRooms(t *testing.T) {
	ts := newTestServer(t)
	host := ts.token("host", "Hana")

	createRoom(t, ts, "PUBLIC", host, nil)
	createRoom(t, ts, "HIDDEN", host, map[string]any{"is_public": false})

	// Listing needs no token
	rr := ts.request(http.MethodGet, "/api/v1/rooms/active", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	active := decode[response.ActiveRooms](t, rr)
	require.Len(t, active.Rooms, 1)
	assert.Equal(t, "PUBLIC", active.Rooms[0].Code)
	assert.Equal(t, 1, active.Rooms[0].ParticipantCount)
}

func TestResultsVisibility(t *testing.T) {
	ts := newTestServer(t)
	host := ts.token("host", "Hana")
	guest := ts.token("guest", "Gus")
	createRoom(t, ts, "RESULT", host, nil)

	ctx := t.Context()
	_, err := ts.app.Storage.UpsertResult(ctx, "RESULT", "host",
		model.CompleteUpdate(model.Metrics{WPM: 70, Accuracy: 90}), ts.app.MockClock.Now())
	require.NoError(t, err)

	// Hidden from everyone but the host until published
	rr := ts.request(http.MethodGet, "/api/v1/rooms/RESULT/results", nil, guest)
	require.Equal(t, http.StatusOK, rr.Code)
	hidden := decode[response.RoomResults](t, rr)
	assert.False(t, hidden.ResultsPublished)
	assert.Empty(t, hidden.Results)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/RESULT/results", nil, host)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[response.RoomResults](t, rr).Results, 1)

	// Only the host may publish
	rr = ts.request(http.MethodPost, "/api/v1/rooms/RESULT/results/publish", nil, guest)
	assertErrorCode(t, rr, http.StatusForbidden, apierr.CodeNotHost)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/RESULT/results/publish", nil, host)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/RESULT/results", nil, guest)
	require.Equal(t, http.StatusOK, rr.Code)
	published := decode[response.RoomResults](t, rr)
	assert.True(t, published.ResultsPublished)
	require.Len(t, published.Results, 1)
	assert.InDelta(t, 63.0, published.Results[0].Score, 0.001)
}

func TestSubmitResultMergesPartialReports(t *testing.T) {
	ts := newTestServer(t)
	host := ts.token("host", "Hana")
	createRoom(t, ts, "SUBMIT", host, nil)

	rr := ts.request(http.MethodPost, "/api/v1/rooms/SUBMIT/results",
		map[string]any{"wpm": 50, "accuracy": 90, "errors": 4, "time_taken": 30}, host)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := decode[response.Result](t, rr)
	assert.False(t, first.Finished)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/SUBMIT/results",
		map[string]any{"wpm": 55, "accuracy": 92}, host)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	merged := decode[response.Result](t, rr)
	assert.Equal(t, 55.0, merged.WPM)
	assert.Equal(t, 4, merged.Errors)
	assert.Equal(t, 30, merged.TimeTaken)
	assert.InDelta(t, 50.6, merged.Score, 0.001)

	results, err := ts.app.Storage.GetResults(t.Context(), "SUBMIT")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 4, results[0].Metrics.Errors)
}

func TestSubmitResultCompletesRoom(t *testing.T) {
	ts := newTestServer(t)
	host := ts.token("host", "Hana")
	createRoom(t, ts, "FINISH", host, nil)
	require.NoError(t, ts.app.Storage.SetRoomStatus(t.Context(), "FINISH", model.RoomStatusInProgress, ts.app.MockClock.Now()))

	rr := ts.request(http.MethodPost, "/api/v1/rooms/FINISH/results",
		map[string]any{"wpm": 70, "accuracy": 90, "isFinished": true}, host)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[response.Result](t, rr).Finished)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/FINISH", nil, host)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(model.RoomStatusCompleted), decode[response.RoomDetails](t, rr).Room.Status)
}

func TestSubmitResultRejections(t *testing.T) {
	ts := newTestServer(t)
	host := ts.token("host", "Hana")
	stranger := ts.token("stranger", "Sam")
	createRoom(t, ts, "REJECT", host, nil)

	rr := ts.request(http.MethodPost, "/api/v1/rooms/REJECT/results", map[string]any{"wpm": 50}, stranger)
	assertErrorCode(t, rr, http.StatusForbidden, apierr.CodeNotParticipant)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/REJECT/results", nil, host)
	assertErrorCode(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/REJECT/results", json.RawMessage("null"), host)
	assertErrorCode(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/REJECT/results", map[string]any{}, host)
	assertErrorCode(t, rr, http.StatusBadRequest, apierr.CodeInvalidMetrics)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/REJECT/results", map[string]any{"accuracy": 140}, host)
	assertErrorCode(t, rr, http.StatusBadRequest, apierr.CodeInvalidMetrics)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/NOPE00/results", map[string]any{"wpm": 50}, host)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	results, err := ts.app.Storage.GetResults(t.Context(), "REJECT")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSpectateRoom(t *testing.T) {
	ts := newTestServer(t)
	host := ts.token("host", "Hana")
	createRoom(t, ts, "WATCH1", host, nil)

	progress := 40.0
	_, err := ts.app.Storage.UpsertResult(t.Context(), "WATCH1", "host",
		model.ResultUpdate{Progress: &progress}, ts.app.MockClock.Now())
	require.NoError(t, err)

	// No token needed to watch
	rr := ts.request(http.MethodGet, "/api/v1/rooms/WATCH1/spectate", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	view := decode[response.SpectatorView](t, rr)
	assert.Equal(t, "WATCH1", view.Room.Code)
	require.Len(t, view.Players, 1)
	assert.Equal(t, "host", view.Players[0].ID)
	assert.Equal(t, 40.0, view.Players[0].Progress)
	assert.False(t, view.Players[0].IsFinished)
	assert.Equal(t, response.GameState{CurrentLevel: "easy", IsActive: false, TimeLeft: 300}, view.GameState)

	raw := decode[map[string]any](t, rr)
	assert.Contains(t, raw, "gameState")
	assert.Contains(t, raw["players"].([]any)[0], "isFinished")

	rr = ts.request(http.MethodGet, "/api/v1/rooms/NOPE00/spectate", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// Websocket endpoint

func dialRoom(t *testing.T, server *httptest.Server, params url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + params.Encode()
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readClose reads until the server closes the connection and returns the close error
func readClose(t *testing.T, ws *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

func TestWebsocketRequiresParams(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	ws := dialRoom(t, server, url.Values{"code": {"ABC123"}})

	closeErr := readClose(t, ws)
	assert.Equal(t, realtime.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, realtime.ReasonMissingParams, closeErr.Text)
}

func TestWebsocketUnknownRoom(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	ws := dialRoom(t, server, url.Values{
		"code":   {"NOROOM"},
		"userId": {"host"},
		"token":  {ts.token("host", "Hana")},
	})

	// The refusal carries an error message before the close
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, realtime.TypeError, env.Type)

	closeErr := readClose(t, ws)
	assert.Equal(t, realtime.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, realtime.ReasonRoomNotFound, closeErr.Text)
}

func TestWebsocketRejectsMismatchedIdentity(t *testing.T) {
	ts := newTestServer(t)
	createRoom(t, ts, "WSAUTH", ts.token("host", "Hana"), nil)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	// A valid token for someone else does not admit the claimed user
	ws := dialRoom(t, server, url.Values{
		"code":   {"WSAUTH"},
		"userId": {"host"},
		"token":  {ts.token("mallory", "Mal")},
	})

	closeErr := readClose(t, ws)
	assert.Equal(t, realtime.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, realtime.ReasonUnverified, closeErr.Text)
	assert.Zero(t, ts.app.Registry.Stats().Sessions)
}

func TestWebsocketAcceptsTokenFromHeader(t *testing.T) {
	ts := newTestServer(t)
	createRoom(t, ts, "WSHEAD", ts.token("host", "Hana"), nil)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	header := http.Header{"Authorization": {"Bearer " + ts.token("host", "Hana")}}
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?code=wshead&userId=host"
	ws, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, realtime.TypeRoomState, env.Type)
	assert.Equal(t, model.RoomCode("WSHEAD"), env.Code)

	// The live session shows up in health
	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	health := decode[response.Health](t, rr)
	assert.Equal(t, 1, health.Rooms)
	assert.Equal(t, 1, health.Sessions)
}
