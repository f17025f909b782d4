// Package bridge is the client side of the signaling protocol. A Bridge
// mirrors server transports into a local WebRTC stack and turns the stack's
// connect and produce events into signaling requests.
package bridge

import (
	"context"
	"errors"

	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
)

var (
	ErrNotLoaded      = errors.New("device not loaded")
	ErrCannotProduce  = errors.New("device cannot produce kind")
	ErrWrongDirection = errors.New("operation not allowed on this transport direction")
	ErrNoHandler      = errors.New("transport event has no handler")
)

// Device is the local WebRTC stack a Bridge drives.
type Device interface {
	Load(router media.RtpCapabilities) error
	Loaded() bool
	RtpCapabilities() media.RtpCapabilities
	CanProduce(kind media.Kind) bool
	CreateSendTransport(params media.TransportParams) (LocalTransport, error)
	CreateRecvTransport(params media.TransportParams) (LocalTransport, error)
}

type (
	ConnectFunc func(ctx context.Context, dtls media.DtlsParameters) error
	ProduceFunc func(ctx context.Context, kind media.Kind, rtp media.RtpParameters) (string, error)
	StateFunc   func(state media.TransportState)
)

// LocalTransport mirrors one server transport. The first Produce or Consume
// fires the connect handler; Produce then fires the produce handler and
// returns the id the handler resolved.
type LocalTransport interface {
	ID() string
	Direction() media.Direction
	State() media.TransportState
	OnConnect(ConnectFunc)
	OnProduce(ProduceFunc)
	OnStateChange(StateFunc)
	Produce(ctx context.Context, src Source) (*LocalProducer, error)
	Consume(ctx context.Context, sub domain.SubscribedData) (*LocalConsumer, error)
	Close() error
}

// Source is the media a publisher sends. Label names the capture, such as
// "camera" or "screen", and tags the stream's RTCP cname.
type Source struct {
	Kind  media.Kind
	Label string
}

type LocalProducer struct {
	ID            string
	Kind          media.Kind
	RtpParameters media.RtpParameters
}

type LocalConsumer struct {
	ID            string
	ProducerID    string
	Kind          media.Kind
	RtpParameters media.RtpParameters
}
