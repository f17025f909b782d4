package bridge

import (
	"context"
	"fmt"

	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/rs/zerolog/log"
)

// Publish creates a send transport and produces src on it.
func (b *Bridge) Publish(ctx context.Context, src Source) (*LocalProducer, error) {
	if err := b.LoadDevice(ctx); err != nil {
		return nil, err
	}
	if !b.device.CanProduce(src.Kind) {
		return nil, fmt.Errorf("%w %s", ErrCannotProduce, src.Kind)
	}

	caps := b.device.RtpCapabilities()
	raw, err := b.request(ctx, createTransportMessage{
		Type:                   domain.TypeCreateProducerTransport,
		CreateTransportRequest: domain.CreateTransportRequest{ForceTCP: b.forceTCP, RtpCapabilities: &caps},
	}, domain.TypeProducerTransportCreated, "")
	if err != nil {
		return nil, err
	}
	params, err := decodeReply[media.TransportParams](raw, domain.TypeProducerTransportCreated)
	if err != nil {
		return nil, err
	}

	lt, err := b.device.CreateSendTransport(params)
	if err != nil {
		return nil, fmt.Errorf("create send transport: %w", err)
	}
	lt.OnConnect(b.connectHandler(lt, domain.TypeConnectProducerTransport, domain.TypeProducerConnected))
	lt.OnProduce(func(ctx context.Context, kind media.Kind, rtp media.RtpParameters) (string, error) {
		raw, err := b.request(ctx, produceMessage{
			Type:           domain.TypeProduce,
			ProduceRequest: domain.ProduceRequest{TransportID: lt.ID(), Kind: string(kind), RtpParameters: rtp},
		}, domain.TypeProduced, lt.ID())
		if err != nil {
			return "", err
		}
		produced, err := decodeReply[domain.ProducedData](raw, domain.TypeProduced)
		return produced.ID, err
	})
	lt.OnStateChange(b.observe(lt, nil))
	b.replace(&b.send, lt)

	p, err := lt.Produce(ctx, src)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "bridge").Str("transport", lt.ID()).Str("producer", p.ID).Str("kind", string(p.Kind)).Msg("publishing")
	return p, nil
}
