package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/app/orch"
	"github.com/dkeye/Cast/internal/config"
	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Limits bounds a single signaling connection.
type Limits struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	RateLimit  float64
	RateBurst  int
}

func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.Signaling.SendBuffer,
		RateLimit:  cfg.Signaling.RateLimit,
		RateBurst:  cfg.Signaling.RateBurst,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Hub     *app.Hub
	Metrics *metrics.Metrics
	Limits  Limits

	limiter *SessionRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, hub *app.Hub, m *metrics.Metrics, limits Limits) *SignalWSController {
	if m == nil {
		m = metrics.New()
	}
	if limits.SendBuffer <= 0 {
		limits.SendBuffer = 32
	}
	return &SignalWSController{
		Orch:    o,
		Hub:     hub,
		Metrics: m,
		Limits:  limits,
		limiter: NewSessionRateLimiter(limits.RateLimit, limits.RateBurst),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

// HandleSignal upgrades the request and serves it until the socket closes or
// ctx is done. Every connection gets its own session id; the client token
// cookie is kept on the session for diagnostics only.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client_token", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewWsSignalConn(ws, ctl.Limits.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.OpenSession(sid, token, conn, cancel)
	ctl.Metrics.Sessions.Inc()

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, sid, conn, cancel)
}
