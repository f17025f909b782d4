package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Cast/internal/domain"
)

var (
	// ErrProtocol marks inbound payloads that cannot be decoded.
	ErrProtocol = errors.New("malformed message")
	// ErrCannotConsume is returned when the requester cannot decode the producer.
	ErrCannotConsume = errors.New("cannot consume")
	ErrTimeout       = errors.New("operation timed out")
	ErrNoProducer    = errors.New("no producer available")
	ErrSessionClosed = errors.New("session closed")
)

// PreconditionError reports a message that arrived before the session was
// ready for it.
type PreconditionError struct {
	Op     domain.MessageType
	Stage  Stage
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: precondition failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: precondition failed: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// AdapterError wraps a failure returned by the media engine.
type AdapterError struct {
	Op  domain.MessageType
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
