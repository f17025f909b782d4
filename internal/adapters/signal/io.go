package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.Limits.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.Limits.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.CloseSession(sid)
		ctl.limiter.Forget(sid)
		ctl.Metrics.Sessions.Dec()
	}()

	if ctl.Limits.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Limits.ReadLimit)
	}
	if ctl.Limits.PingPeriod > 0 {
		pongWait := ctl.Limits.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.HandleMessage(ctx, sid, c, data)
		}
	}
}

// HandleMessage dispatches one inbound frame. Frames that are not JSON are
// dropped without a reply; unknown types are ignored.
func (ctl *SignalWSController) HandleMessage(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.Metrics.Dropped.Inc()
		return
	}
	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("rate limited")
		ctl.sendError(conn, env.Type, errRateLimited)
		return
	}

	start := time.Now()
	switch env.Type {
	case domain.TypePing:
		ctl.handlePing(conn)
	case domain.TypeGetRouterRtpCapabilities:
		ctl.handleRouterCapabilities(sid, conn)
	case domain.TypeCreateProducerTransport:
		ctl.handleCreateProducerTransport(ctx, sid, conn, data)
	case domain.TypeConnectProducerTransport:
		ctl.handleConnectProducerTransport(ctx, sid, conn, data)
	case domain.TypeProduce:
		ctl.handleProduce(ctx, sid, conn, data)
	case domain.TypeCreateConsumerTransport:
		ctl.handleCreateConsumerTransport(ctx, sid, conn, data)
	case domain.TypeConnectConsumerTransport:
		ctl.handleConnectConsumerTransport(ctx, sid, conn, data)
	case domain.TypeConsume:
		ctl.handleConsume(ctx, sid, conn, data)
	case domain.TypeResume:
		ctl.handleResume(ctx, sid, conn)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("unknown signal")
		return
	}
	ctl.Metrics.Messages.WithLabelValues(string(env.Type)).Inc()
	ctl.Metrics.Duration.WithLabelValues(string(env.Type)).Observe(time.Since(start).Seconds())
}

// decode unmarshals a request payload; on failure it answers with an error.
func (ctl *SignalWSController) decode(conn core.SignalConnection, op domain.MessageType, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(op)).Msg("bad payload")
		ctl.sendError(conn, op, core.ErrProtocol)
		return false
	}
	return true
}

func (ctl *SignalWSController) reply(conn core.SignalConnection, t domain.MessageType, data any) {
	ctl.sendJSON(conn, domain.Reply{Type: t, Data: data})
}

func (ctl *SignalWSController) sendError(conn core.SignalConnection, op domain.MessageType, err error) {
	ctl.Metrics.Errors.WithLabelValues(string(op)).Inc()
	ctl.sendJSON(conn, domain.Reply{Type: domain.TypeError, Data: err.Error()})
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}
