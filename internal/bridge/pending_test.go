package bridge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Cast/internal/domain"
)

func TestResolveSettlesOldestOfType(t *testing.T) {
	p := newPendingSet()
	a, _ := p.add(domain.TypeProducerConnected, "t1")
	b, _ := p.add(domain.TypeConsumerConnected, "t2")
	c, _ := p.add(domain.TypeProducerConnected, "t3")

	if !p.resolve(domain.TypeProducerConnected, json.RawMessage(`"ok"`)) {
		t.Fatal("nothing resolved")
	}
	select {
	case r := <-a.ch:
		if string(r.data) != `"ok"` || r.err != nil {
			t.Fatalf("response = %+v", r)
		}
	default:
		t.Fatal("oldest producerConnected not settled")
	}
	if len(b.ch) != 0 || len(c.ch) != 0 {
		t.Fatal("other futures settled")
	}
	if p.len() != 2 {
		t.Fatalf("pending = %d, want 2", p.len())
	}
}

func TestErrorRejectsOldest(t *testing.T) {
	p := newPendingSet()
	a, _ := p.add(domain.TypeSubscribed, "t1")
	b, _ := p.add(domain.TypeResumed, "t1")

	if !p.rejectOldest("cannot consume") {
		t.Fatal("nothing rejected")
	}
	r := <-a.ch
	var se *ServerError
	if !errors.As(r.err, &se) || se.Op != domain.TypeSubscribed || se.Message != "cannot consume" {
		t.Fatalf("err = %v", r.err)
	}
	if len(b.ch) != 0 {
		t.Fatal("younger future settled")
	}
}

func TestDuplicateKeyRefused(t *testing.T) {
	p := newPendingSet()
	if _, err := p.add(domain.TypeProduced, "t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.add(domain.TypeProduced, "t1"); !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("err = %v, want ErrDuplicatePending", err)
	}
	if _, err := p.add(domain.TypeProduced, "t2"); err != nil {
		t.Fatalf("other transport refused: %v", err)
	}
}

func TestCloseAllFailsEverything(t *testing.T) {
	p := newPendingSet()
	a, _ := p.add(domain.TypeRouterCapabilities, "")
	p.closeAll(ErrClosed)

	if r := <-a.ch; !errors.Is(r.err, ErrClosed) {
		t.Fatalf("err = %v", r.err)
	}
	if _, err := p.add(domain.TypeRouterCapabilities, ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("add after close err = %v", err)
	}
	if p.rejectOldest("late") {
		t.Fatal("rejected after close")
	}
}
