package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/typeroom/internal/model"
)

// Conn is a Session over a gorilla websocket connection.
// One goroutine reads (ReadPump) and one writes (WritePump).
type Conn struct {
	id          string
	ws          *websocket.Conn
	code        model.RoomCode
	userID      model.UserID
	connectedAt time.Time
	cfg         Config
	logger      *slog.Logger
	limiter     *rate.Limiter

	// send is never closed; done signals shutdown to both pumps
	send      chan Envelope
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once

	closeCode   int
	closeReason string
}

// Ensure Conn implements Session
var _ Session = (*Conn)(nil)

// NewConn wraps an upgraded websocket for a room and user
func NewConn(ws *websocket.Conn, code model.RoomCode, userID model.UserID, connectedAt time.Time, cfg Config, logger *slog.Logger) *Conn {
	cfg = cfg.WithDefaults()
	id := uuid.NewString()
	return &Conn{
		id:          id,
		ws:          ws,
		code:        code,
		userID:      userID,
		connectedAt: connectedAt,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.ProgressRate), cfg.ProgressBurst),
		send:        make(chan Envelope, cfg.SendBuffer),
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
		logger: logger.With(
			slog.String("conn", id),
			slog.String("room", string(code)),
			slog.String("user", string(userID)),
		),
	}
}

func (c *Conn) ID() string               { return c.id }
func (c *Conn) RoomCode() model.RoomCode { return c.code }
func (c *Conn) UserID() model.UserID     { return c.userID }
func (c *Conn) ConnectedAt() time.Time   { return c.connectedAt }

// Send queues env without blocking. A full queue drops the message.
func (c *Conn) Send(env Envelope) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- env:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, dropping message", slog.String("type", string(env.Type)))
	}
}

// Close asks the write pump to flush queued messages, send a close frame and
// shut the transport
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Done is closed once Close has been called
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Finished is closed once the transport has been shut
func (c *Conn) Finished() <-chan struct{} {
	return c.finished
}

// ReadPump reads frames until the connection fails or closes, handing each
// accepted frame to handle. Excess typing_progress frames are dropped.
func (c *Conn) ReadPump(handle func(frame []byte)) {
	defer c.Close(CloseNormal, "")

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Info("connection lost", slog.Any("error", err))
			}
			return
		}

		if peekType(frame) == TypeTypingProgress && !c.limiter.Allow() {
			continue
		}
		handle(frame)
	}
}

// WritePump writes queued envelopes and keepalive pings until Close
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.finished)
	}()

	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				c.logger.Debug("write failed", slog.Any("error", err))
				c.Close(CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", slog.Any("error", err))
				c.Close(CloseGoingAway, "")
				return
			}
		case <-c.done:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// flush writes whatever is still queued, so an error sent just before Close arrives
func (c *Conn) flush() {
	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(env Envelope) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.ws.WriteJSON(env)
}
