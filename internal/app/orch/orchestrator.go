package orch

import (
	"context"
	"time"

	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/rs/zerolog/log"
)

// Orchestrator runs the session operations: it validates each request against
// the session stage, calls the media engine and records the resulting handles.
type Orchestrator struct {
	Registry *app.Registry
	Engine   media.Engine

	// Timeout bounds every engine call. Zero disables the bound.
	Timeout time.Duration
	// MaxIncomingBitrate is applied to new transports on a best-effort basis.
	MaxIncomingBitrate uint32
}

// OpenSession creates and registers the session of a new connection.
func (o *Orchestrator) OpenSession(sid core.SessionID, clientToken string, conn core.SignalConnection, cancel context.CancelFunc) *core.Session {
	sess := core.NewSession(sid, clientToken, conn)
	o.Registry.Bind(sess, cancel)
	return sess
}

// CloseSession releases everything the session owned, whatever its stage.
func (o *Orchestrator) CloseSession(sid core.SessionID) {
	sess, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	for _, t := range sess.Release() {
		o.closeTransport(sid, t)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session closed")
}

func (o *Orchestrator) session(sid core.SessionID) (*core.Session, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, core.ErrSessionClosed
	}
	return sess, nil
}

func (o *Orchestrator) closeTransport(sid core.SessionID, t *media.Transport) {
	t.SetState(media.TransportStateClosed)
	if err := o.Engine.CloseTransport(t); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID).Msg("close transport")
	}
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn under the orchestrator timeout. A value produced after the
// deadline is handed to late, so the caller can release it.
func call[T any](ctx context.Context, o *Orchestrator, op domain.MessageType, fn func(context.Context) (T, error), late func(T)) (T, error) {
	var cancel context.CancelFunc
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.v, &core.AdapterError{Op: op, Err: r.err}
		}
		return r.v, nil
	case <-ctx.Done():
		log.Warn().Str("module", "orch").Str("op", string(op)).Msg("engine call timed out")
		if late != nil {
			go func() {
				if r := <-done; r.err == nil {
					late(r.v)
				}
			}()
		}
		var zero T
		return zero, &core.AdapterError{Op: op, Err: core.ErrTimeout}
	}
}

func callErr(ctx context.Context, o *Orchestrator, op domain.MessageType, fn func(context.Context) error) error {
	_, err := call(ctx, o, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}

// RouterCapabilities returns the shared router capabilities.
func (o *Orchestrator) RouterCapabilities(sid core.SessionID) (media.RtpCapabilities, error) {
	sess, err := o.session(sid)
	if err != nil {
		return media.RtpCapabilities{}, err
	}
	side, next, err := sess.Check(domain.TypeGetRouterRtpCapabilities)
	if err != nil {
		return media.RtpCapabilities{}, err
	}
	caps := o.Engine.RouterCapabilities()
	sess.Advance(side, next)
	return caps, nil
}

// createTransport makes a transport and caps its incoming bitrate. A cap
// failure is logged and ignored.
func (o *Orchestrator) createTransport(ctx context.Context, sid core.SessionID, op domain.MessageType, opts media.TransportOptions) (*media.Transport, error) {
	t, err := call(ctx, o, op, func(ctx context.Context) (*media.Transport, error) {
		return o.Engine.CreateTransport(ctx, opts)
	}, func(t *media.Transport) { o.closeTransport(sid, t) })
	if err != nil {
		return nil, err
	}
	if o.MaxIncomingBitrate > 0 {
		err := callErr(ctx, o, op, func(ctx context.Context) error {
			return o.Engine.SetMaxIncomingBitrate(ctx, t, o.MaxIncomingBitrate)
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID).Msg("max incoming bitrate not applied")
		}
	}
	return t, nil
}

// connectTransport applies remote DTLS parameters to t exactly once.
func (o *Orchestrator) connectTransport(ctx context.Context, op domain.MessageType, t *media.Transport, req domain.ConnectTransportRequest) error {
	if t == nil {
		return &core.PreconditionError{Op: op, Reason: "transport not created"}
	}
	if req.TransportID != "" && req.TransportID != t.ID {
		return &core.PreconditionError{Op: op, Reason: "unknown transport " + req.TransportID}
	}
	if t.State() != media.TransportStateNew {
		return &core.PreconditionError{Op: op, Reason: "transport already " + t.State().String()}
	}
	t.SetState(media.TransportStateConnecting)
	err := callErr(ctx, o, op, func(ctx context.Context) error {
		return o.Engine.ConnectTransport(ctx, t, req.DtlsParameters)
	})
	if err != nil {
		t.SetState(media.TransportStateNew)
		return err
	}
	t.SetState(media.TransportStateConnected)
	return nil
}
