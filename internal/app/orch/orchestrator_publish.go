package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/rs/zerolog/log"
)

// CreateProducerTransport creates the send transport of the session,
// closing the one it replaces.
func (o *Orchestrator) CreateProducerTransport(ctx context.Context, sid core.SessionID, req domain.CreateTransportRequest) (media.TransportParams, error) {
	const op = domain.TypeCreateProducerTransport
	sess, err := o.session(sid)
	if err != nil {
		return media.TransportParams{}, err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return media.TransportParams{}, err
	}
	t, err := o.createTransport(ctx, sid, op, media.TransportOptions{Direction: media.DirectionSend, ForceTCP: req.ForceTCP})
	if err != nil {
		return media.TransportParams{}, err
	}
	if old := sess.SetProducerTransport(t); old != nil {
		o.Registry.DropProducersOf(sid, old.ID)
		o.closeTransport(sid, old)
	}
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID).Msg("producer transport created")
	return t.Params(), nil
}

func (o *Orchestrator) ConnectProducerTransport(ctx context.Context, sid core.SessionID, req domain.ConnectTransportRequest) error {
	const op = domain.TypeConnectProducerTransport
	sess, err := o.session(sid)
	if err != nil {
		return err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return err
	}
	t := sess.ProducerTransport()
	if err := o.connectTransport(ctx, op, t, req); err != nil {
		return err
	}
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID).Msg("producer transport connected")
	return nil
}

// Produce registers a producer on the connected send transport. A second
// call replaces the session's producer reference; the earlier producer stays
// alive until its transport is closed.
func (o *Orchestrator) Produce(ctx context.Context, sid core.SessionID, req domain.ProduceRequest) (*media.Producer, error) {
	const op = domain.TypeProduce
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return nil, err
	}
	kind, err := media.ParseKind(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w %q", op, err, req.Kind)
	}
	t := sess.ProducerTransport()
	if t == nil {
		return nil, &core.PreconditionError{Op: op, Reason: "transport not created"}
	}
	if req.TransportID != "" && req.TransportID != t.ID {
		return nil, &core.PreconditionError{Op: op, Reason: "unknown transport " + req.TransportID}
	}
	if t.State() != media.TransportStateConnected {
		return nil, &core.PreconditionError{Op: op, Reason: "transport " + t.State().String()}
	}

	p, err := call(ctx, o, op, func(ctx context.Context) (*media.Producer, error) {
		return o.Engine.Produce(ctx, t, kind, req.RtpParameters)
	}, func(p *media.Producer) { o.closeProducer(sid, p) })
	if err != nil {
		return nil, err
	}
	if old := sess.SetProducer(p); old != nil {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("replaced", old.ID).Str("producer", p.ID).Msg("producer reference replaced")
	}
	o.Registry.AddProducer(sid, p)
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("producer", p.ID).Str("kind", string(p.Kind)).Msg("producing")
	return p, nil
}

func (o *Orchestrator) closeProducer(sid core.SessionID, p *media.Producer) {
	if err := o.Engine.CloseProducer(p); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("producer", p.ID).Msg("close producer")
	}
}
