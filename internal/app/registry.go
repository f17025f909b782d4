package app

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/media"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *core.Session
	Cancel  context.CancelFunc
}

type producerEntry struct {
	Owner    core.SessionID
	Producer *media.Producer
}

// Registry maps connections to their sessions and published producers to
// the session that owns them.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[core.SessionID]*sessionEntry
	producers map[string]producerEntry
	// publication order, newest last
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[core.SessionID]*sessionEntry),
		producers: make(map[string]producerEntry),
	}
}

func (r *Registry) Bind(sess *core.Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Msg("bound session")
}

func (r *Registry) GetSession(sid core.SessionID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind forgets the session and every producer it published.
func (r *Registry) Unbind(sid core.SessionID) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	for id, p := range r.producers {
		if p.Owner == sid {
			r.dropProducerLocked(id)
		}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return e.Session, true
}

func (r *Registry) AddProducer(sid core.SessionID, p *media.Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.ID] = producerEntry{Owner: sid, Producer: p}
	r.order = append(r.order, p.ID)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("producer", p.ID).Msg("producer registered")
}

// DropProducersOf forgets the producers sid published on a transport that
// has since been closed.
func (r *Registry) DropProducersOf(sid core.SessionID, transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.producers {
		if p.Owner == sid && p.Producer.TransportID == transportID {
			r.dropProducerLocked(id)
		}
	}
}

func (r *Registry) dropProducerLocked(id string) {
	delete(r.producers, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

func (r *Registry) Producer(id string) (*media.Producer, core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	if !ok {
		return nil, "", false
	}
	return p.Producer, p.Owner, true
}

// LatestProducer returns the most recently published live producer.
func (r *Registry) LatestProducer() (*media.Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil, false
	}
	return r.producers[r.order[len(r.order)-1]].Producer, true
}

func (r *Registry) Sessions() []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
