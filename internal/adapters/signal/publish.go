package signal

import (
	"context"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRouterCapabilities(sid core.SessionID, conn core.SignalConnection) {
	caps, err := ctl.Orch.RouterCapabilities(sid)
	if err != nil {
		ctl.sendError(conn, domain.TypeGetRouterRtpCapabilities, err)
		return
	}
	ctl.reply(conn, domain.TypeRouterCapabilities, caps)
}

func (ctl *SignalWSController) handleCreateProducerTransport(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	const op = domain.TypeCreateProducerTransport
	var req domain.CreateTransportRequest
	if !ctl.decode(conn, op, data, &req) {
		return
	}
	params, err := ctl.Orch.CreateProducerTransport(ctx, sid, req)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("create producer transport")
		ctl.sendError(conn, op, err)
		return
	}
	ctl.reply(conn, domain.TypeProducerTransportCreated, params)
}

func (ctl *SignalWSController) handleConnectProducerTransport(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	const op = domain.TypeConnectProducerTransport
	var req domain.ConnectTransportRequest
	if !ctl.decode(conn, op, data, &req) {
		return
	}
	if err := ctl.Orch.ConnectProducerTransport(ctx, sid, req); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("connect producer transport")
		ctl.sendError(conn, op, err)
		return
	}
	ctl.reply(conn, domain.TypeProducerConnected, "producer is connected")
}

// handleProduce answers the producer first, then tells every connection
// about the new producer.
func (ctl *SignalWSController) handleProduce(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	const op = domain.TypeProduce
	var req domain.ProduceRequest
	if !ctl.decode(conn, op, data, &req) {
		return
	}
	p, err := ctl.Orch.Produce(ctx, sid, req)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("produce")
		ctl.sendError(conn, op, err)
		return
	}
	ctl.Metrics.Producers.Inc()
	ctl.reply(conn, domain.TypeProduced, domain.ProducedData{ID: p.ID})
	ctl.Hub.Broadcast(sid, domain.Reply{
		Type: domain.TypeNewProducer,
		Data: domain.NewProducerData{ID: p.ID, Kind: p.Kind},
	})
}
