package realtime

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/typeroom/internal/testutil"
)

// dialConn returns the server side of a fresh websocket wrapped in a Conn,
// and the client side it is connected to
func dialConn(t *testing.T, cfg Config, logger *slog.Logger) (*Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var ws *websocket.Conn
	select {
	case ws = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded")
	}

	conn := NewConn(ws, "ABC123", "u1", time.Now(), cfg, logger)
	t.Cleanup(func() {
		conn.Close(CloseNormal, "")
		_ = ws.Close()
	})
	return conn, client
}

func closedWithin(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	default:
	}
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func TestConnSendDropsWhenBufferFull(t *testing.T) {
	logger, logs := testutil.BufferLogger()
	conn, _ := dialConn(t, Config{SendBuffer: 1}, logger)

	conn.Send(Envelope{Type: TypeParticipantJoined})
	conn.Send(Envelope{Type: TypeTypingProgress})

	require.Len(t, conn.send, 1)
	assert.Equal(t, TypeParticipantJoined, (<-conn.send).Type)
	assert.Equal(t, []string{"send buffer full, dropping message"}, logs.Messages())
}

func TestConnSendAfterCloseIsNoop(t *testing.T) {
	conn, _ := dialConn(t, Config{SendBuffer: 4}, testutil.NopLogger())

	conn.Close(ClosePolicyViolation, ReasonRoomNotFound)
	conn.Close(CloseNormal, "")
	conn.Send(Envelope{Type: TypeRoomState})

	assert.Empty(t, conn.send)
	assert.True(t, closedWithin(conn.Done(), 0))
	assert.Equal(t, ClosePolicyViolation, conn.closeCode)
}

func TestConnFlushesQueueBeforeCloseFrame(t *testing.T) {
	conn, client := dialConn(t, Config{}, testutil.NopLogger())
	go conn.WritePump()

	conn.Send(ErrorEnvelope(ReasonRoomNotFound))
	conn.Close(ClosePolicyViolation, ReasonRoomNotFound)

	var env Envelope
	require.NoError(t, client.ReadJSON(&env))
	assert.Equal(t, TypeError, env.Type)

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, ReasonRoomNotFound, closeErr.Text)
	assert.True(t, closedWithin(conn.Finished(), 2*time.Second))
}

func TestConnRateLimitsTypingProgress(t *testing.T) {
	conn, client := dialConn(t, Config{ProgressRate: 0.001, ProgressBurst: 1}, testutil.NopLogger())

	handled := make(chan MessageType, 16)
	go conn.ReadPump(func(frame []byte) { handled <- peekType(frame) })

	for i := 0; i < 3; i++ {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, frame(TypeTypingProgress, map[string]any{"wpm": i})))
	}
	// Other types are never limited
	require.NoError(t, client.WriteMessage(websocket.TextMessage, frame(TypeGameCompleted, map[string]any{"wpm": 50})))

	var got []MessageType
	for len(got) == 0 || got[len(got)-1] != TypeGameCompleted {
		select {
		case typ := <-handled:
			got = append(got, typ)
		case <-time.After(2 * time.Second):
			t.Fatalf("frames not handled, got %v", got)
		}
	}
	assert.Equal(t, []MessageType{TypeTypingProgress, TypeGameCompleted}, got)
}

func TestConnMissedPongDisconnects(t *testing.T) {
	conn, _ := dialConn(t, Config{PongWait: 50 * time.Millisecond, ProgressBurst: 1}, testutil.NopLogger())

	// The client never reads, so it never answers a ping
	go conn.ReadPump(func([]byte) {})
	go conn.WritePump()

	assert.True(t, closedWithin(conn.Done(), 2*time.Second), "silent connection was not dropped")
	assert.True(t, closedWithin(conn.Finished(), 2*time.Second))
}

func TestConnAnsweredPingsKeepConnectionOpen(t *testing.T) {
	conn, client := dialConn(t, Config{PongWait: 300 * time.Millisecond, PingPeriod: 30 * time.Millisecond}, testutil.NopLogger())

	go conn.ReadPump(func([]byte) {})
	go conn.WritePump()

	// Reading lets the client's default ping handler reply with pongs
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	assert.False(t, closedWithin(conn.Done(), time.Second), "connection answering pings was dropped")
}
