// Package mediatest provides an in-memory media.Engine for tests of the
// signaling layers. It negotiates codecs like a real engine but opens no
// sockets.
package mediatest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Cast/internal/media"
)

var _ media.Engine = (*Engine)(nil)

// Engine hands out sequential ids and keeps producers in memory.
type Engine struct {
	mu        sync.Mutex
	seq       int
	producers map[string]*media.Producer
	consumed  int
}

func NewEngine() *Engine {
	return &Engine{producers: make(map[string]*media.Producer)}
}

func (e *Engine) next(prefix string) string {
	e.seq++
	return fmt.Sprintf("%s-%d", prefix, e.seq)
}

func (e *Engine) RouterCapabilities() media.RtpCapabilities {
	return media.RtpCapabilities{Codecs: []media.RtpCodecCapability{
		{Kind: media.KindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
		{Kind: media.KindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
	}}
}

func (e *Engine) CreateTransport(_ context.Context, opts media.TransportOptions) (*media.Transport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &media.Transport{
		ID:            e.next("transport"),
		Direction:     opts.Direction,
		IceParameters: media.IceParameters{UsernameFragment: "ufrag", Password: "pwd", IceLite: true},
		IceCandidates: []media.IceCandidate{{Foundation: "1", Priority: 1, IP: "127.0.0.1", Address: "127.0.0.1", Protocol: "udp", Port: 10000, Type: "host"}},
		DtlsParameters: media.DtlsParameters{Role: "auto", Fingerprints: []media.DtlsFingerprint{
			{Algorithm: "sha-256", Value: "AA:BB"},
		}},
	}, nil
}

func (e *Engine) SetMaxIncomingBitrate(context.Context, *media.Transport, uint32) error {
	return nil
}

func (e *Engine) ConnectTransport(context.Context, *media.Transport, media.DtlsParameters) error {
	return nil
}

func (e *Engine) Produce(_ context.Context, t *media.Transport, kind media.Kind, rtp media.RtpParameters) (*media.Producer, error) {
	if err := media.ValidateProduce(e.RouterCapabilities(), kind, rtp); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &media.Producer{ID: e.next("producer"), TransportID: t.ID, Kind: kind, RtpParameters: rtp}
	e.producers[p.ID] = p
	return p, nil
}

func (e *Engine) CanConsume(producerID string, caps media.RtpCapabilities) bool {
	e.mu.Lock()
	p, ok := e.producers[producerID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	_, err := media.NegotiateConsumer(p.RtpParameters, caps)
	return err == nil
}

func (e *Engine) Consume(_ context.Context, t *media.Transport, producerID string, caps media.RtpCapabilities) (*media.Consumer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.producers[producerID]
	if !ok {
		return nil, fmt.Errorf("unknown producer %s", producerID)
	}
	codecs, err := media.NegotiateConsumer(p.RtpParameters, caps)
	if err != nil {
		return nil, err
	}
	e.consumed++
	c := &media.Consumer{
		ID:            e.next("consumer"),
		ProducerID:    p.ID,
		TransportID:   t.ID,
		Kind:          p.Kind,
		Type:          "simple",
		RtpParameters: media.RtpParameters{Codecs: codecs},
	}
	c.SetPaused(p.Kind == media.KindVideo)
	return c, nil
}

func (e *Engine) Resume(_ context.Context, c *media.Consumer) error {
	c.SetPaused(false)
	return nil
}

func (e *Engine) CloseConsumer(*media.Consumer) error { return nil }

func (e *Engine) CloseProducer(p *media.Producer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.producers, p.ID)
	return nil
}

func (e *Engine) CloseTransport(*media.Transport) error { return nil }

// ConsumeCalls reports how many consumers were created.
func (e *Engine) ConsumeCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumed
}
