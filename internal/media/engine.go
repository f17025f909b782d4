package media

import "context"

//go:generate mockgen -source=engine.go -destination=mediamock/engine.go -package=mediamock

type TransportOptions struct {
	Direction Direction
	ForceTCP  bool
}

// Engine is the SFU the signaling layer negotiates with. Implementations own
// the handles they return; CloseTransport releases a transport together with
// every producer and consumer created on it.
type Engine interface {
	RouterCapabilities() RtpCapabilities

	CreateTransport(ctx context.Context, opts TransportOptions) (*Transport, error)
	// SetMaxIncomingBitrate caps what the remote side may send on t.
	SetMaxIncomingBitrate(ctx context.Context, t *Transport, bps uint32) error
	// ConnectTransport applies the remote DTLS parameters. It fails when the
	// parameters are unusable or the transport was already connected with
	// different ones; repeating the same parameters succeeds.
	ConnectTransport(ctx context.Context, t *Transport, dtls DtlsParameters) error

	Produce(ctx context.Context, t *Transport, kind Kind, rtp RtpParameters) (*Producer, error)
	// CloseProducer releases p and the consumers reading from it.
	CloseProducer(p *Producer) error

	CanConsume(producerID string, caps RtpCapabilities) bool
	// Consume creates a consumer of producerID on t. Video consumers start paused.
	Consume(ctx context.Context, t *Transport, producerID string, caps RtpCapabilities) (*Consumer, error)
	Resume(ctx context.Context, c *Consumer) error

	CloseConsumer(c *Consumer) error
	CloseTransport(t *Transport) error
}
