package bridge

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Cast/internal/domain"
)

// ServerError is an error reply from the server, attached to the request it
// rejected.
type ServerError struct {
	Op      domain.MessageType
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server rejected %s: %s", e.Op, e.Message)
}

type pendingKey struct {
	op          domain.MessageType
	transportID string
}

type response struct {
	data json.RawMessage
	err  error
}

type future struct {
	key pendingKey
	ch  chan response
}

// pendingSet holds the requests waiting for a reply. Replies carry no
// request id, so a reply settles the oldest future waiting for its type and
// an error reply settles the oldest future of any type.
type pendingSet struct {
	mu     sync.Mutex
	byKey  map[pendingKey]*future
	order  []*future
	closed error
}

func newPendingSet() *pendingSet {
	return &pendingSet{byKey: make(map[pendingKey]*future)}
}

func (p *pendingSet) add(op domain.MessageType, transportID string) (*future, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return nil, p.closed
	}
	key := pendingKey{op: op, transportID: transportID}
	if _, ok := p.byKey[key]; ok {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicatePending, op, transportID)
	}
	f := &future{key: key, ch: make(chan response, 1)}
	p.byKey[key] = f
	p.order = append(p.order, f)
	return f, nil
}

func (p *pendingSet) removeLocked(f *future) {
	delete(p.byKey, f.key)
	for i, o := range p.order {
		if o == f {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

func (p *pendingSet) remove(f *future) {
	p.mu.Lock()
	p.removeLocked(f)
	p.mu.Unlock()
}

func (p *pendingSet) resolve(op domain.MessageType, data json.RawMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.order {
		if f.key.op == op {
			p.removeLocked(f)
			f.ch <- response{data: data}
			return true
		}
	}
	return false
}

func (p *pendingSet) rejectOldest(message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		return false
	}
	f := p.order[0]
	p.removeLocked(f)
	f.ch <- response{err: &ServerError{Op: f.key.op, Message: message}}
	return true
}

// closeAll fails every pending future with err and refuses new ones.
func (p *pendingSet) closeAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = err
	for _, f := range p.order {
		f.ch <- response{err: err}
	}
	p.order = nil
	p.byKey = make(map[pendingKey]*future)
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
