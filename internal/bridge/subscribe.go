package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/rs/zerolog/log"
)

// Subscribe creates a receive transport and consumes producerID, or the
// latest producer when producerID is empty. It returns once the server
// resumed the consumer.
func (b *Bridge) Subscribe(ctx context.Context, producerID string) (*LocalConsumer, error) {
	if err := b.LoadDevice(ctx); err != nil {
		return nil, err
	}

	raw, err := b.request(ctx, createTransportMessage{
		Type:                   domain.TypeCreateConsumerTransport,
		CreateTransportRequest: domain.CreateTransportRequest{ForceTCP: b.forceTCP},
	}, domain.TypeSubTransportCreated, "")
	if err != nil {
		return nil, err
	}
	params, err := decodeReply[media.TransportParams](raw, domain.TypeSubTransportCreated)
	if err != nil {
		return nil, err
	}

	lt, err := b.device.CreateRecvTransport(params)
	if err != nil {
		return nil, fmt.Errorf("create recv transport: %w", err)
	}
	resumed := make(chan error, 1)
	lt.OnConnect(b.connectHandler(lt, domain.TypeConnectConsumerTransport, domain.TypeConsumerConnected))
	lt.OnStateChange(b.observe(lt, resumed))
	b.replace(&b.recv, lt)

	raw, err = b.request(ctx, consumeMessage{
		Type:           domain.TypeConsume,
		ConsumeRequest: domain.ConsumeRequest{ProducerID: producerID, RtpCapabilities: b.device.RtpCapabilities()},
	}, domain.TypeSubscribed, lt.ID())
	if err != nil {
		return nil, err
	}
	sub, err := decodeReply[domain.SubscribedData](raw, domain.TypeSubscribed)
	if err != nil {
		return nil, err
	}

	c, err := lt.Consume(ctx, sub)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case err := <-resumed:
		if err != nil {
			return nil, err
		}
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", domain.TypeResumed, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	log.Info().Str("module", "bridge").Str("transport", lt.ID()).Str("consumer", c.ID).Str("producer", c.ProducerID).Msg("subscribed")
	return c, nil
}
