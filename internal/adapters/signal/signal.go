package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Engine is the part of the lobby a websocket needs.
type Engine interface {
	Register(ctx context.Context, conn core.SignalConnection, info app.ConnInfo) (core.SessionID, error)
	Submit(ctx context.Context, sid core.SessionID, msg protocol.Inbound) error
	Disconnect(ctx context.Context, sid core.SessionID) error
}

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	MessageRate  float64
	MessageBurst int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		WriteWait:    5 * time.Second,
		SendBuffer:   64,
		MessageRate:  20,
		MessageBurst: 40,
	}
}

type SignalWSController struct {
	engine Engine
	opts   Options
}

func NewSignalWSController(engine Engine, opts Options) *SignalWSController {
	def := DefaultOptions()
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = def.PingPeriod
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	return &SignalWSController{engine: engine, opts: opts}
}

// WsSignalConn is the lobby's handle on one websocket. Frames queue in a
// bounded channel drained by the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued,
// sends a close frame and releases the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", token).Str("addr", c.ClientIP()).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	go ctl.writePump(conn)

	sid, err := ctl.engine.Register(ctx, conn, app.ConnInfo{RemoteAddr: c.ClientIP(), ClientToken: token})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("client", token).Msg("register refused")
		ctl.reply(conn, err)
		conn.Close()
		return
	}

	go ctl.readPump(ctx, sid, conn)
}
