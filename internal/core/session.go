package core

import (
	"sync"

	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
)

// Session is the per-connection handshake record. It owns the media handles
// created on behalf of its connection; Release hands them back for closing.
type Session struct {
	id          SessionID
	clientToken string
	signal      SignalConnection

	mu                sync.RWMutex
	publish           Stage
	subscribe         Stage
	producerTransport *media.Transport
	producer          *media.Producer
	consumerTransport *media.Transport
	consumer          *media.Consumer
	closed            bool
}

func NewSession(id SessionID, clientToken string, signal SignalConnection) *Session {
	return &Session{id: id, clientToken: clientToken, signal: signal}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) Signal() SignalConnection { return s.signal }

// Stages returns the publish and subscribe stages.
func (s *Session) Stages() (Stage, Stage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publish, s.subscribe
}

// Check validates msg against the current stages without changing them.
func (s *Session) Check(msg domain.MessageType) (Side, Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0, ErrSessionClosed
	}
	return Next(msg, s.publish, s.subscribe)
}

// Advance moves one side to next. Only called after the step succeeded.
func (s *Session) Advance(side Side, next Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == SidePublish {
		s.publish = next
	} else {
		s.subscribe = next
	}
}

func (s *Session) ProducerTransport() *media.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.producerTransport
}

// SetProducerTransport stores t and returns the transport it replaces.
// The replaced transport's producer reference is dropped with it.
func (s *Session) SetProducerTransport(t *media.Transport) *media.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.producerTransport
	s.producerTransport = t
	s.producer = nil
	return old
}

func (s *Session) Producer() *media.Producer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.producer
}

// SetProducer overwrites the producer reference and returns the previous one.
// The previous producer is not closed here; it lives until its transport does.
func (s *Session) SetProducer(p *media.Producer) *media.Producer {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.producer
	s.producer = p
	return old
}

func (s *Session) ConsumerTransport() *media.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumerTransport
}

func (s *Session) SetConsumerTransport(t *media.Transport) *media.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.consumerTransport
	s.consumerTransport = t
	s.consumer = nil
	return old
}

func (s *Session) Consumer() *media.Consumer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumer
}

func (s *Session) SetConsumer(c *media.Consumer) *media.Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.consumer
	s.consumer = c
	return old
}

// Release marks the session closed and returns the transports it owned.
// Producers and consumers are freed together with their transports.
func (s *Session) Release() []*media.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var out []*media.Transport
	if s.producerTransport != nil {
		out = append(out, s.producerTransport)
	}
	if s.consumerTransport != nil {
		out = append(out, s.consumerTransport)
	}
	s.producerTransport, s.producer = nil, nil
	s.consumerTransport, s.consumer = nil, nil
	return out
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// SessionInfo is a read-only view for APIs (no transport fields).
type SessionInfo struct {
	ID          SessionID `json:"id"`
	ClientToken string    `json:"client"`
	Publish     string    `json:"publish"`
	Subscribe   string    `json:"subscribe"`
	ProducerID  string    `json:"producerId,omitempty"`
	ConsumerID  string    `json:"consumerId,omitempty"`
}

func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := SessionInfo{
		ID:          s.id,
		ClientToken: s.clientToken,
		Publish:     s.publish.String(),
		Subscribe:   s.subscribe.String(),
	}
	if s.producer != nil {
		info.ProducerID = s.producer.ID
	}
	if s.consumer != nil {
		info.ConsumerID = s.consumer.ID
	}
	return info
}
