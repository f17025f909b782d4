package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/app/orch"
	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/dkeye/Cast/internal/media/mediatest"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type recordConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *recordConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *recordConn) Close() {}

type wireReply struct {
	Type domain.MessageType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

// take returns and clears everything sent so far.
func (c *recordConn) take(t *testing.T) []wireReply {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wireReply, 0, len(c.frames))
	for _, f := range c.frames {
		var r wireReply
		if err := json.Unmarshal(f, &r); err != nil {
			t.Fatalf("server sent invalid json %q: %v", f, err)
		}
		out = append(out, r)
	}
	c.frames = nil
	return out
}

type fixture struct {
	ctl    *SignalWSController
	engine *mediatest.Engine
}

func newFixture(limits Limits) *fixture {
	reg := app.NewRegistry()
	hub := app.NewHub(reg, app.SimplePolicy{})
	eng := mediatest.NewEngine()
	o := &orch.Orchestrator{Registry: reg, Engine: eng, Timeout: time.Second}
	return &fixture{ctl: NewSignalWSController(o, hub, nil, limits), engine: eng}
}

func (f *fixture) open(sid core.SessionID) *recordConn {
	conn := &recordConn{}
	f.ctl.Orch.OpenSession(sid, "token", conn, func() {})
	return conn
}

func (f *fixture) send(sid core.SessionID, conn *recordConn, msg string) {
	f.ctl.HandleMessage(context.Background(), sid, conn, []byte(msg))
}

// exchange sends msg and expects exactly one reply of the given type.
func (f *fixture) exchange(t *testing.T, sid core.SessionID, conn *recordConn, msg string, want domain.MessageType) json.RawMessage {
	t.Helper()
	f.send(sid, conn, msg)
	replies := conn.take(t)
	if len(replies) == 0 {
		t.Fatalf("%s: no reply", msg)
	}
	if replies[0].Type != want {
		t.Fatalf("%s: reply %s %s, want %s", msg, replies[0].Type, replies[0].Data, want)
	}
	return replies[0].Data
}

const (
	dtlsJSON = `{"role":"client","fingerprints":[{"algorithm":"sha-256","value":"CC:DD"}]}`
	vp8RTP   = `{"codecs":[{"mimeType":"video/VP8","payloadType":96,"clockRate":90000}],"encodings":[{"ssrc":1111}],"rtcp":{"cname":"pub"}}`
	vp8Caps  = `{"codecs":[{"kind":"video","mimeType":"video/VP8","preferredPayloadType":120,"clockRate":90000}]}`
	opusCaps = `{"codecs":[{"kind":"audio","mimeType":"audio/opus","preferredPayloadType":111,"clockRate":48000,"channels":2}]}`
	opusRTP  = `{"codecs":[{"mimeType":"audio/opus","payloadType":111,"clockRate":48000,"channels":2}],"encodings":[{"ssrc":2222}],"rtcp":{"cname":"pub"}}`
)

func publishVideo(t *testing.T, f *fixture, sid core.SessionID, conn *recordConn) string {
	t.Helper()
	return publishKind(t, f, sid, conn, "video", vp8RTP)
}

func publishKind(t *testing.T, f *fixture, sid core.SessionID, conn *recordConn, kind, rtp string) string {
	t.Helper()
	f.exchange(t, sid, conn, `{"type":"getRouterRtpCapabilities"}`, domain.TypeRouterCapabilities)

	raw := f.exchange(t, sid, conn, `{"type":"createProducerTransport","forceTcp":false,"rtpCapabilities":`+vp8Caps+`}`, domain.TypeProducerTransportCreated)
	var params media.TransportParams
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatal(err)
	}
	if params.ID == "" || len(params.IceCandidates) == 0 || len(params.DtlsParameters.Fingerprints) == 0 {
		t.Fatalf("transport params = %+v", params)
	}

	f.exchange(t, sid, conn, `{"type":"connectProducerTransport","transportId":"`+params.ID+`","dtlsParameters":`+dtlsJSON+`}`, domain.TypeProducerConnected)

	f.send(sid, conn, `{"type":"produce","transportId":"`+params.ID+`","kind":"`+kind+`","rtpParameters":`+rtp+`}`)
	replies := conn.take(t)
	if len(replies) != 2 || replies[0].Type != domain.TypeProduced || replies[1].Type != domain.TypeNewProducer {
		t.Fatalf("produce replies = %+v", replies)
	}
	var produced domain.ProducedData
	if err := json.Unmarshal(replies[0].Data, &produced); err != nil {
		t.Fatal(err)
	}
	return produced.ID
}

func TestPublishSequence(t *testing.T) {
	f := newFixture(Limits{})
	conn := f.open("pub")

	id := publishVideo(t, f, "pub", conn)

	sess, _ := f.ctl.Orch.Registry.GetSession("pub")
	publish, _ := sess.Stages()
	if publish != core.StageProducing {
		t.Fatalf("stage = %s, want producing", publish)
	}
	if sess.Producer().ID != id {
		t.Fatalf("producer = %s, want %s", sess.Producer().ID, id)
	}
}

func TestSubscribeSequence(t *testing.T) {
	f := newFixture(Limits{})
	pubConn := f.open("pub")
	subConn := f.open("sub")
	producerID := publishVideo(t, f, "pub", pubConn)

	broadcast := subConn.take(t)
	if len(broadcast) != 1 || broadcast[0].Type != domain.TypeNewProducer {
		t.Fatalf("subscriber saw %+v, want newProducer", broadcast)
	}
	var announced domain.NewProducerData
	if err := json.Unmarshal(broadcast[0].Data, &announced); err != nil {
		t.Fatal(err)
	}
	if announced.ID != producerID || announced.Kind != media.KindVideo {
		t.Fatalf("newProducer = %+v", announced)
	}

	raw := f.exchange(t, "sub", subConn, `{"type":"createConsumerTransport","forceTcp":false}`, domain.TypeSubTransportCreated)
	var params media.TransportParams
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatal(err)
	}

	// browsers ask for the consumer before connecting the receive transport
	raw = f.exchange(t, "sub", subConn, `{"type":"consume","rtpCapabilities":`+vp8Caps+`}`, domain.TypeSubscribed)
	var sub domain.SubscribedData
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.ProducerID != producerID || sub.Kind != media.KindVideo || sub.Type != "simple" || sub.ID == "" {
		t.Fatalf("subscribed = %+v", sub)
	}
	if !sub.ProducerPaused {
		t.Fatal("video consumer announced unpaused before resume")
	}
	if sub.RtpParameters.Codecs[0].PayloadType != 120 {
		t.Fatalf("payload type = %d, want consumer preference 120", sub.RtpParameters.Codecs[0].PayloadType)
	}

	f.exchange(t, "sub", subConn, `{"type":"connectConsumerTransport","transportId":"`+params.ID+`","dtlsParameters":`+dtlsJSON+`}`, domain.TypeConsumerConnected)
	f.exchange(t, "sub", subConn, `{"type":"resume"}`, domain.TypeResumed)

	sess, _ := f.ctl.Orch.Registry.GetSession("sub")
	if _, subscribe := sess.Stages(); subscribe != core.StageConsuming {
		t.Fatalf("stage = %s, want consuming", subscribe)
	}
	if sess.Consumer().Paused() {
		t.Fatal("consumer still paused")
	}
}

func TestAudioSubscribedIsNotPaused(t *testing.T) {
	f := newFixture(Limits{})
	pubConn := f.open("pub")
	subConn := f.open("sub")
	producerID := publishKind(t, f, "pub", pubConn, "audio", opusRTP)
	subConn.take(t)

	f.exchange(t, "sub", subConn, `{"type":"createConsumerTransport","forceTcp":false}`, domain.TypeSubTransportCreated)
	raw := f.exchange(t, "sub", subConn, `{"type":"consume","producerId":"`+producerID+`","rtpCapabilities":`+opusCaps+`}`, domain.TypeSubscribed)
	var sub domain.SubscribedData
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Kind != media.KindAudio || sub.ProducerPaused {
		t.Fatalf("subscribed = %+v, want unpaused audio", sub)
	}
}

func TestConsumeIncompatibleReplies(t *testing.T) {
	f := newFixture(Limits{})
	pubConn := f.open("pub")
	subConn := f.open("sub")
	publishVideo(t, f, "pub", pubConn)
	subConn.take(t)

	f.exchange(t, "sub", subConn, `{"type":"createConsumerTransport"}`, domain.TypeSubTransportCreated)
	raw := f.exchange(t, "sub", subConn, `{"type":"consume","rtpCapabilities":`+opusCaps+`}`, domain.TypeError)

	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg != "cannot consume" {
		t.Fatalf("error = %q", msg)
	}
	if f.engine.ConsumeCalls() != 0 {
		t.Fatal("Consume called for incompatible capabilities")
	}
}

func TestMalformedJSONIsDropped(t *testing.T) {
	f := newFixture(Limits{})
	a := f.open("a")
	b := f.open("b")

	f.send("a", a, `{"type":`)
	f.send("a", a, `not json at all`)
	f.send("a", a, `{"type":"teleport"}`)

	if got := a.take(t); len(got) != 0 {
		t.Fatalf("sender got %+v", got)
	}
	if got := b.take(t); len(got) != 0 {
		t.Fatalf("bystander got %+v", got)
	}

	// the session still works afterwards
	f.exchange(t, "a", a, `{"type":"ping"}`, domain.TypePong)
}

func TestPreconditionErrorsKeepStage(t *testing.T) {
	f := newFixture(Limits{})
	conn := f.open("s")

	f.exchange(t, "s", conn, `{"type":"resume"}`, domain.TypeError)
	f.exchange(t, "s", conn, `{"type":"produce","kind":"video","rtpParameters":`+vp8RTP+`}`, domain.TypeError)
	f.exchange(t, "s", conn, `{"type":"connectProducerTransport","dtlsParameters":`+dtlsJSON+`}`, domain.TypeError)

	sess, _ := f.ctl.Orch.Registry.GetSession("s")
	publish, subscribe := sess.Stages()
	if publish != core.StageIdle || subscribe != core.StageIdle {
		t.Fatalf("stages = %s/%s", publish, subscribe)
	}
}

func TestBadPayloadRepliesError(t *testing.T) {
	f := newFixture(Limits{})
	conn := f.open("s")
	raw := f.exchange(t, "s", conn, `{"type":"createProducerTransport","forceTcp":"yes"}`, domain.TypeError)
	if !strings.Contains(string(raw), core.ErrProtocol.Error()) {
		t.Fatalf("error = %s", raw)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(Limits{RateLimit: 0.001, RateBurst: 2})
	conn := f.open("s")

	f.exchange(t, "s", conn, `{"type":"ping"}`, domain.TypePong)
	f.exchange(t, "s", conn, `{"type":"ping"}`, domain.TypePong)
	raw := f.exchange(t, "s", conn, `{"type":"ping"}`, domain.TypeError)
	if string(raw) != `"rate limited"` {
		t.Fatalf("error = %s", raw)
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readReply(t *testing.T, ws *websocket.Conn) wireReply {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r wireReply
	if err := ws.ReadJSON(&r); err != nil {
		t.Fatalf("read: %v", err)
	}
	return r
}

func TestWebsocketBroadcastReachesEveryConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(Limits{SendBuffer: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { f.ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	pub := dial(t, url)
	watchers := []*websocket.Conn{dial(t, url), dial(t, url)}

	// ping round trips make sure all three sessions are registered
	for _, ws := range append([]*websocket.Conn{pub}, watchers...) {
		if err := ws.WriteJSON(map[string]string{"type": "ping"}); err != nil {
			t.Fatal(err)
		}
		if r := readReply(t, ws); r.Type != domain.TypePong {
			t.Fatalf("got %s, want pong", r.Type)
		}
	}

	send := func(msg string) {
		if err := pub.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	send(`{"type":"getRouterRtpCapabilities"}`)
	readReply(t, pub)
	send(`{"type":"createProducerTransport"}`)
	var params media.TransportParams
	if err := json.Unmarshal(readReply(t, pub).Data, &params); err != nil {
		t.Fatal(err)
	}
	send(`{"type":"connectProducerTransport","transportId":"` + params.ID + `","dtlsParameters":` + dtlsJSON + `}`)
	if r := readReply(t, pub); r.Type != domain.TypeProducerConnected {
		t.Fatalf("got %s %s", r.Type, r.Data)
	}
	send(`{"type":"produce","transportId":"` + params.ID + `","kind":"video","rtpParameters":` + vp8RTP + `}`)
	if r := readReply(t, pub); r.Type != domain.TypeProduced {
		t.Fatalf("got %s %s", r.Type, r.Data)
	}

	for _, ws := range append([]*websocket.Conn{pub}, watchers...) {
		if r := readReply(t, ws); r.Type != domain.TypeNewProducer {
			t.Fatalf("got %s, want newProducer", r.Type)
		}
	}
}
