package orch

import (
	"context"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) CreateConsumerTransport(ctx context.Context, sid core.SessionID, req domain.CreateTransportRequest) (media.TransportParams, error) {
	const op = domain.TypeCreateConsumerTransport
	sess, err := o.session(sid)
	if err != nil {
		return media.TransportParams{}, err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return media.TransportParams{}, err
	}
	t, err := o.createTransport(ctx, sid, op, media.TransportOptions{Direction: media.DirectionRecv, ForceTCP: req.ForceTCP})
	if err != nil {
		return media.TransportParams{}, err
	}
	if old := sess.SetConsumerTransport(t); old != nil {
		o.closeTransport(sid, old)
	}
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID).Msg("consumer transport created")
	return t.Params(), nil
}

func (o *Orchestrator) ConnectConsumerTransport(ctx context.Context, sid core.SessionID, req domain.ConnectTransportRequest) error {
	const op = domain.TypeConnectConsumerTransport
	sess, err := o.session(sid)
	if err != nil {
		return err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return err
	}
	t := sess.ConsumerTransport()
	if err := o.connectTransport(ctx, op, t, req); err != nil {
		return err
	}
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID).Msg("consumer transport connected")
	return nil
}

// Consume subscribes the session to req.ProducerID, or to the most recently
// published producer when no id is given. The capability check runs before
// any consumer is created.
func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, req domain.ConsumeRequest) (*media.Consumer, error) {
	const op = domain.TypeConsume
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return nil, err
	}
	t := sess.ConsumerTransport()
	if t == nil {
		return nil, &core.PreconditionError{Op: op, Reason: "transport not created"}
	}

	var producer *media.Producer
	if req.ProducerID != "" {
		producer, _, _ = o.Registry.Producer(req.ProducerID)
	} else {
		producer, _ = o.Registry.LatestProducer()
	}
	if producer == nil {
		return nil, &core.PreconditionError{Op: op, Err: core.ErrNoProducer}
	}

	if !o.Engine.CanConsume(producer.ID, req.RtpCapabilities) {
		log.Error().Str("module", "orch").Str("sid", string(sid)).Str("producer", producer.ID).Msg("cannot consume")
		return nil, core.ErrCannotConsume
	}

	c, err := call(ctx, o, op, func(ctx context.Context) (*media.Consumer, error) {
		return o.Engine.Consume(ctx, t, producer.ID, req.RtpCapabilities)
	}, func(c *media.Consumer) { o.closeConsumer(sid, c) })
	if err != nil {
		return nil, err
	}
	if old := sess.SetConsumer(c); old != nil {
		o.closeConsumer(sid, old)
	}
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("consumer", c.ID).Str("producer", producer.ID).Bool("paused", c.Paused()).Msg("consuming")
	return c, nil
}

// Resume unpauses the session's consumer. The consumer transport must be connected.
func (o *Orchestrator) Resume(ctx context.Context, sid core.SessionID) error {
	const op = domain.TypeResume
	sess, err := o.session(sid)
	if err != nil {
		return err
	}
	side, next, err := sess.Check(op)
	if err != nil {
		return err
	}
	c := sess.Consumer()
	if c == nil {
		return &core.PreconditionError{Op: op, Reason: "no consumer"}
	}
	if t := sess.ConsumerTransport(); t == nil || t.State() != media.TransportStateConnected {
		return &core.PreconditionError{Op: op, Reason: "consumer transport not connected"}
	}
	err = callErr(ctx, o, op, func(ctx context.Context) error {
		return o.Engine.Resume(ctx, c)
	})
	if err != nil {
		return err
	}
	sess.Advance(side, next)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("consumer", c.ID).Msg("resumed")
	return nil
}

func (o *Orchestrator) closeConsumer(sid core.SessionID, c *media.Consumer) {
	if err := o.Engine.CloseConsumer(c); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("consumer", c.ID).Msg("close consumer")
	}
}
