package core

import "github.com/dkeye/Cast/internal/domain"

// Stage is the position of one side of a session in its handshake.
type Stage uint8

const (
	StageIdle Stage = iota
	StageCapabilitiesLoaded
	StageProducerTransportCreated
	StageProducerConnected
	StageProducing
	StageConsumerTransportCreated
	StageConsumerConnected
	StageConsuming
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageCapabilitiesLoaded:
		return "CapabilitiesLoaded"
	case StageProducerTransportCreated:
		return "ProducerTransportCreated"
	case StageProducerConnected:
		return "ProducerConnected"
	case StageProducing:
		return "Producing"
	case StageConsumerTransportCreated:
		return "ConsumerTransportCreated"
	case StageConsumerConnected:
		return "ConsumerConnected"
	case StageConsuming:
		return "Consuming"
	}
	return "Unknown"
}

// Side selects which sub-machine of a session a message drives.
type Side uint8

const (
	SidePublish Side = iota
	SideSubscribe
)

type transition struct {
	side Side
	next map[Stage]Stage
}

var publishStages = []Stage{
	StageIdle,
	StageCapabilitiesLoaded,
	StageProducerTransportCreated,
	StageProducerConnected,
	StageProducing,
}

var subscribeStages = []Stage{
	StageIdle,
	StageConsumerTransportCreated,
	StageConsumerConnected,
	StageConsuming,
}

func fromAny(stages []Stage, to Stage) map[Stage]Stage {
	m := make(map[Stage]Stage, len(stages))
	for _, s := range stages {
		m[s] = to
	}
	return m
}

// transitions lists, per inbound message type, every stage the message is
// accepted in and the stage it leads to. Absence means a precondition failure.
var transitions = map[domain.MessageType]transition{
	domain.TypeGetRouterRtpCapabilities: {SidePublish, map[Stage]Stage{
		StageIdle:                     StageCapabilitiesLoaded,
		StageCapabilitiesLoaded:       StageCapabilitiesLoaded,
		StageProducerTransportCreated: StageProducerTransportCreated,
		StageProducerConnected:        StageProducerConnected,
		StageProducing:                StageProducing,
	}},
	domain.TypeCreateProducerTransport: {SidePublish, fromAny(publishStages, StageProducerTransportCreated)},
	domain.TypeConnectProducerTransport: {SidePublish, map[Stage]Stage{
		StageProducerTransportCreated: StageProducerConnected,
	}},
	domain.TypeProduce: {SidePublish, map[Stage]Stage{
		StageProducerConnected: StageProducing,
		StageProducing:         StageProducing,
	}},
	domain.TypeCreateConsumerTransport: {SideSubscribe, fromAny(subscribeStages, StageConsumerTransportCreated)},
	// Browsers connect a receive transport lazily, on its first consume.
	domain.TypeConnectConsumerTransport: {SideSubscribe, map[Stage]Stage{
		StageConsumerTransportCreated: StageConsumerConnected,
		StageConsuming:                StageConsuming,
	}},
	domain.TypeConsume: {SideSubscribe, map[Stage]Stage{
		StageConsumerTransportCreated: StageConsuming,
		StageConsumerConnected:        StageConsuming,
		StageConsuming:                StageConsuming,
	}},
	domain.TypeResume: {SideSubscribe, map[Stage]Stage{
		StageConsuming: StageConsuming,
	}},
}

// Next reports the stage msg leads to from the given stages of a session.
func Next(msg domain.MessageType, publish, subscribe Stage) (Side, Stage, error) {
	tr, ok := transitions[msg]
	if !ok {
		return 0, 0, &PreconditionError{Op: msg, Reason: "not a session operation"}
	}
	cur := publish
	if tr.side == SideSubscribe {
		cur = subscribe
	}
	next, ok := tr.next[cur]
	if !ok {
		return tr.side, cur, &PreconditionError{Op: msg, Stage: cur, Reason: "not allowed in stage " + cur.String()}
	}
	return tr.side, next, nil
}
