// Package domain contains the signaling wire vocabulary, without logic
package domain

import (
	"encoding/json"

	"github.com/dkeye/Cast/internal/media"
)

type MessageType string

// Client to server.
const (
	TypeGetRouterRtpCapabilities MessageType = "getRouterRtpCapabilities"
	TypeCreateProducerTransport  MessageType = "createProducerTransport"
	TypeConnectProducerTransport MessageType = "connectProducerTransport"
	TypeProduce                  MessageType = "produce"
	TypeCreateConsumerTransport  MessageType = "createConsumerTransport"
	TypeConnectConsumerTransport MessageType = "connectConsumerTransport"
	TypeConsume                  MessageType = "consume"
	TypeResume                   MessageType = "resume"
	TypePing                     MessageType = "ping"
)

// Server to client.
const (
	TypeRouterCapabilities       MessageType = "routerCapabilities"
	TypeProducerTransportCreated MessageType = "producerTransportCreated"
	TypeProducerConnected        MessageType = "producerConnected"
	TypeProduced                 MessageType = "produced"
	TypeNewProducer              MessageType = "newProducer"
	TypeSubTransportCreated      MessageType = "subTransportCreated"
	TypeConsumerConnected        MessageType = "consumerConnected"
	TypeSubscribed               MessageType = "subscribed"
	TypeResumed                  MessageType = "resumed"
	TypeError                    MessageType = "error"
	TypePong                     MessageType = "pong"
)

// Envelope is the shape shared by every message. Requests carry their fields
// at the top level, replies carry them in Data.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply is an outbound server message.
type Reply struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

type CreateTransportRequest struct {
	ForceTCP        bool                   `json:"forceTcp"`
	RtpCapabilities *media.RtpCapabilities `json:"rtpCapabilities,omitempty"`
}

type ConnectTransportRequest struct {
	TransportID    string               `json:"transportId,omitempty"`
	DtlsParameters media.DtlsParameters `json:"dtlsParameters"`
}

type ProduceRequest struct {
	TransportID   string              `json:"transportId"`
	Kind          string              `json:"kind"`
	RtpParameters media.RtpParameters `json:"rtpParameters"`
}

type ConsumeRequest struct {
	ProducerID      string                `json:"producerId,omitempty"`
	RtpCapabilities media.RtpCapabilities `json:"rtpCapabilities"`
}

type ProducedData struct {
	ID string `json:"id"`
}

type NewProducerData struct {
	ID   string     `json:"id"`
	Kind media.Kind `json:"kind"`
}

type SubscribedData struct {
	ProducerID     string              `json:"producerId"`
	ID             string              `json:"id"`
	Kind           media.Kind          `json:"kind"`
	RtpParameters  media.RtpParameters `json:"rtpParameters"`
	Type           string              `json:"type"`
	ProducerPaused bool                `json:"producerPaused"`
}
