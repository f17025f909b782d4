package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/media"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func bind(t *testing.T, reg *Registry, sid core.SessionID, conn *fakeConn) *core.Session {
	t.Helper()
	sess := core.NewSession(sid, "", conn)
	reg.Bind(sess, nil)
	return sess
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	bind(t, reg, "a", a)
	bind(t, reg, "b", b)

	res := NewHub(reg, SimplePolicy{}).Broadcast("a", map[string]string{"type": "newProducer"})
	if res.SendTo != 2 || len(res.Dropped) != 0 {
		t.Fatalf("result = %+v", res)
	}
	for name, c := range map[string]*fakeConn{"a": a, "b": b} {
		if len(c.frames) != 1 {
			t.Fatalf("%s received %d frames", name, len(c.frames))
		}
		var msg map[string]string
		if err := json.Unmarshal(c.frames[0], &msg); err != nil || msg["type"] != "newProducer" {
			t.Fatalf("%s got %s (%v)", name, c.frames[0], err)
		}
	}
}

func TestBroadcastKicksSlowConnectionUnderStrictPolicy(t *testing.T) {
	reg := NewRegistry()
	slow := &fakeConn{full: true}
	canceled := false
	sess := core.NewSession("slow", "", slow)
	reg.Bind(sess, func() { canceled = true })
	bind(t, reg, "ok", &fakeConn{})

	res := NewHub(reg, StrictPolicy{}).Broadcast("ok", map[string]string{"type": "x"})
	if res.SendTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != sess {
		t.Fatalf("result = %+v", res)
	}
	if !slow.closed || !canceled {
		t.Fatalf("slow connection closed=%v canceled=%v", slow.closed, canceled)
	}
}

func TestBroadcastDropKeepsSlowConnection(t *testing.T) {
	reg := NewRegistry()
	slow := &fakeConn{full: true}
	bind(t, reg, "slow", slow)

	NewHub(reg, PolicyByName("drop")).Broadcast("slow", map[string]string{"type": "x"})
	if slow.closed {
		t.Fatal("slow connection closed under drop policy")
	}
}

func TestRegistryProducerIndex(t *testing.T) {
	reg := NewRegistry()
	bind(t, reg, "pub", &fakeConn{})
	bind(t, reg, "pub2", &fakeConn{})

	if _, ok := reg.LatestProducer(); ok {
		t.Fatal("latest producer on empty registry")
	}
	reg.AddProducer("pub", &media.Producer{ID: "p1", TransportID: "t1"})
	reg.AddProducer("pub2", &media.Producer{ID: "p2", TransportID: "t2"})

	if p, ok := reg.LatestProducer(); !ok || p.ID != "p2" {
		t.Fatalf("latest = %v %v, want p2", p, ok)
	}
	if _, owner, ok := reg.Producer("p1"); !ok || owner != "pub" {
		t.Fatalf("owner of p1 = %q %v", owner, ok)
	}

	reg.Unbind("pub2")
	if p, ok := reg.LatestProducer(); !ok || p.ID != "p1" {
		t.Fatalf("latest after unbind = %v %v, want p1", p, ok)
	}

	reg.DropProducersOf("pub", "t1")
	if _, ok := reg.LatestProducer(); ok {
		t.Fatal("producer survived its transport")
	}
	if reg.Count() != 1 {
		t.Fatalf("count = %d", reg.Count())
	}
}

func TestBroadcastSkipsReleasedSessions(t *testing.T) {
	reg := NewRegistry()
	live, gone := &fakeConn{}, &fakeConn{}
	bind(t, reg, "live", live)
	bind(t, reg, "gone", gone).Release()

	res := NewHub(reg, SimplePolicy{}).Broadcast("live", map[string]string{"type": "newProducer"})
	if res.SendTo != 1 || len(gone.frames) != 0 {
		t.Fatalf("result = %+v, released got %d frames", res, len(gone.frames))
	}
}
