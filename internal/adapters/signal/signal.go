package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/parley/internal/app"
	"github.com/avolkov/parley/internal/core"
	"github.com/avolkov/parley/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

type ChatWSController struct {
	Relay      *app.Relay
	ReadLimit  int64
	SendBuffer int
}

func NewChatWSController(relay *app.Relay, readLimit int64, sendBuffer int) *ChatWSController {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &ChatWSController{Relay: relay, ReadLimit: readLimit, SendBuffer: sendBuffer}
}

type WsChatConn struct {
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsChatConn(conn WSConn, buffer int) *WsChatConn {
	return &WsChatConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *WsChatConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsChatConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChat upgrades the request, mints the connection's ClientID, and
// starts the pumps. The id lives exactly as long as the connection.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	id := domain.NewClientID()
	conn := NewWsChatConn(ws, ctl.SendBuffer)
	log.Info().Str("module", "signal").Str("client", string(id)).Msg("new WS connection")

	if err := ctl.Relay.OnConnect(id, conn); err != nil {
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ctl.writePump(ctx, conn)
	}()
	go func() {
		defer cancel()
		ctl.readPump(ctx, id, conn)
	}()
}
