package signal

import (
	"context"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleCreateConsumerTransport(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	const op = domain.TypeCreateConsumerTransport
	var req domain.CreateTransportRequest
	if !ctl.decode(conn, op, data, &req) {
		return
	}
	params, err := ctl.Orch.CreateConsumerTransport(ctx, sid, req)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("create consumer transport")
		ctl.sendError(conn, op, err)
		return
	}
	ctl.reply(conn, domain.TypeSubTransportCreated, params)
}

func (ctl *SignalWSController) handleConnectConsumerTransport(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	const op = domain.TypeConnectConsumerTransport
	var req domain.ConnectTransportRequest
	if !ctl.decode(conn, op, data, &req) {
		return
	}
	if err := ctl.Orch.ConnectConsumerTransport(ctx, sid, req); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("connect consumer transport")
		ctl.sendError(conn, op, err)
		return
	}
	ctl.reply(conn, domain.TypeConsumerConnected, "consumer transport is connected")
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	const op = domain.TypeConsume
	var req domain.ConsumeRequest
	if !ctl.decode(conn, op, data, &req) {
		return
	}
	c, err := ctl.Orch.Consume(ctx, sid, req)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("consume")
		ctl.sendError(conn, op, err)
		return
	}
	ctl.reply(conn, domain.TypeSubscribed, domain.SubscribedData{
		ProducerID:     c.ProducerID,
		ID:             c.ID,
		Kind:           c.Kind,
		RtpParameters:  c.RtpParameters,
		Type:           c.Type,
		ProducerPaused: c.Paused(),
	})
}

func (ctl *SignalWSController) handleResume(ctx context.Context, sid core.SessionID, conn core.SignalConnection) {
	if err := ctl.Orch.Resume(ctx, sid); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("resume")
		ctl.sendError(conn, domain.TypeResume, err)
		return
	}
	ctl.reply(conn, domain.TypeResumed, "resumed")
}
