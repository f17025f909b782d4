package rtc

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Cast/internal/config"
	"github.com/dkeye/Cast/internal/media"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(config.MediaConfig{
		ListenIP:    "127.0.0.1",
		AnnouncedIP: "127.0.0.1",
		RTCMinPort:  40000,
		RTCMaxPort:  40100,
		ICELite:     true,
		Codecs:      config.DefaultCodecs(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

// fakeTransport registers a transport without gathering candidates.
func fakeTransport(e *Engine, id string, dir media.Direction) *media.Transport {
	t := &media.Transport{ID: id, Direction: dir}
	e.mu.Lock()
	e.transports[id] = &transportEntry{t: t, producers: map[string]struct{}{}, consumers: map[string]struct{}{}}
	e.mu.Unlock()
	return t
}

func opusParams() media.RtpParameters {
	return media.RtpParameters{
		Codecs: []media.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
	}
}

func vp8Params() media.RtpParameters {
	return media.RtpParameters{
		Codecs: []media.RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
			{MimeType: "video/rtx", PayloadType: 97, ClockRate: 90000, Parameters: map[string]any{"apt": 96}},
		},
		Rtcp: media.RtcpParameters{Cname: "browser"},
	}
}

func TestRouterCapabilities(t *testing.T) {
	e := newTestEngine(t)
	caps := e.RouterCapabilities()
	if len(caps.Codecs) != 2 {
		t.Fatalf("codecs = %d, want 2", len(caps.Codecs))
	}
	if caps.Codecs[0].PreferredPayloadType != 100 || caps.Codecs[1].PreferredPayloadType != 101 {
		t.Fatalf("payload types = %d, %d", caps.Codecs[0].PreferredPayloadType, caps.Codecs[1].PreferredPayloadType)
	}
	if caps.Codecs[1].Kind != media.KindVideo || len(caps.Codecs[1].RtcpFeedback) == 0 {
		t.Fatalf("video codec = %+v", caps.Codecs[1])
	}
	if len(caps.HeaderExtensions) != 4 {
		t.Fatalf("header extensions = %d, want 4", len(caps.HeaderExtensions))
	}
}

func TestRouterCapabilitiesRejectsMismatchedKind(t *testing.T) {
	_, err := routerCapabilities([]config.CodecConfig{{Kind: "audio", MimeType: "video/VP8", ClockRate: 90000}})
	if err == nil {
		t.Fatal("mismatched kind accepted")
	}
}

func TestFmtpLineIsSorted(t *testing.T) {
	got := fmtpLine(map[string]any{"useinbandfec": 1, "minptime": 10})
	if got != "minptime=10;useinbandfec=1" {
		t.Fatalf("fmtp = %q", got)
	}
}

func TestConnectTransportValidation(t *testing.T) {
	e := newTestEngine(t)
	tr := fakeTransport(e, "t1", media.DirectionSend)
	ctx := context.Background()

	err := e.ConnectTransport(ctx, tr, media.DtlsParameters{Role: "client"})
	if !errors.Is(err, ErrNoFingerprint) {
		t.Fatalf("err = %v, want ErrNoFingerprint", err)
	}
	err = e.ConnectTransport(ctx, tr, media.DtlsParameters{Role: "boss", Fingerprints: []media.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA"}}})
	if !errors.Is(err, ErrBadDtlsRole) {
		t.Fatalf("err = %v, want ErrBadDtlsRole", err)
	}

	good := media.DtlsParameters{Role: "client", Fingerprints: []media.DtlsFingerprint{{Algorithm: "SHA-256", Value: "AA:BB"}}}
	if err := e.ConnectTransport(ctx, tr, good); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := e.ConnectTransport(ctx, tr, good); err != nil {
		t.Fatalf("repeated connect: %v", err)
	}
	other := media.DtlsParameters{Role: "server", Fingerprints: good.Fingerprints}
	if err := e.ConnectTransport(ctx, tr, other); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("connect with other parameters err = %v", err)
	}
	if err := e.ConnectTransport(ctx, &media.Transport{ID: "nope"}, good); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("unknown transport err = %v", err)
	}
}

func TestProduceConsumeResume(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	send := fakeTransport(e, "send", media.DirectionSend)
	recv := fakeTransport(e, "recv", media.DirectionRecv)

	p, err := e.Produce(ctx, send, media.KindVideo, vp8Params())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if p.TransportID != "send" || p.Kind != media.KindVideo {
		t.Fatalf("producer = %+v", p)
	}

	caps := e.RouterCapabilities()
	if !e.CanConsume(p.ID, caps) {
		t.Fatal("router caps cannot consume own codec")
	}
	c, err := e.Consume(ctx, recv, p.ID, caps)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if c.ProducerID != p.ID || c.Type != "simple" || !c.Paused() {
		t.Fatalf("consumer = %+v paused=%v", c, c.Paused())
	}
	if len(c.RtpParameters.Codecs) != 1 || c.RtpParameters.Codecs[0].PayloadType != 101 {
		t.Fatalf("consumer codecs = %+v", c.RtpParameters.Codecs)
	}
	if c.RtpParameters.Rtcp.Cname != "browser" || len(c.RtpParameters.Encodings) != 1 {
		t.Fatalf("consumer rtp = %+v", c.RtpParameters)
	}

	if err := e.Resume(ctx, c); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c.Paused() {
		t.Fatal("consumer still paused after resume")
	}
}

func TestAudioConsumerStartsUnpaused(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	send := fakeTransport(e, "send", media.DirectionSend)
	recv := fakeTransport(e, "recv", media.DirectionRecv)

	p, err := e.Produce(ctx, send, media.KindAudio, opusParams())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if p.RtpParameters.Rtcp.Cname == "" {
		t.Fatal("cname not filled in")
	}
	c, err := e.Consume(ctx, recv, p.ID, e.RouterCapabilities())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if c.Paused() {
		t.Fatal("audio consumer paused")
	}
}

func TestConsumerMidsStayUnique(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	send := fakeTransport(e, "send", media.DirectionSend)
	recv := fakeTransport(e, "recv", media.DirectionRecv)

	p, err := e.Produce(ctx, send, media.KindVideo, vp8Params())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	consume := func() *media.Consumer {
		t.Helper()
		c, err := e.Consume(ctx, recv, p.ID, e.RouterCapabilities())
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		return c
	}

	first, second := consume(), consume()
	if err := e.CloseConsumer(first); err != nil {
		t.Fatalf("CloseConsumer: %v", err)
	}
	third := consume()

	mids := []string{first.RtpParameters.Mid, second.RtpParameters.Mid, third.RtpParameters.Mid}
	if mids[0] != "0" || mids[1] != "1" || mids[2] != "2" {
		t.Fatalf("mids = %v", mids)
	}
}

func TestCloseProducerDropsItsConsumers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	send := fakeTransport(e, "send", media.DirectionSend)
	recv := fakeTransport(e, "recv", media.DirectionRecv)

	p, err := e.Produce(ctx, send, media.KindVideo, vp8Params())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	c, err := e.Consume(ctx, recv, p.ID, e.RouterCapabilities())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := e.CloseProducer(p); err != nil {
		t.Fatalf("CloseProducer: %v", err)
	}
	if e.CanConsume(p.ID, e.RouterCapabilities()) {
		t.Fatal("closed producer still consumable")
	}
	if err := e.CloseConsumer(c); !errors.Is(err, ErrUnknownConsumer) {
		t.Fatalf("CloseConsumer err = %v, want ErrUnknownConsumer", err)
	}
	if err := e.CloseProducer(p); !errors.Is(err, ErrUnknownProducer) {
		t.Fatalf("second CloseProducer err = %v", err)
	}
}

func TestProduceRejectsUnknownCodec(t *testing.T) {
	e := newTestEngine(t)
	send := fakeTransport(e, "send", media.DirectionSend)
	rtp := media.RtpParameters{Codecs: []media.RtpCodecParameters{{MimeType: "video/H265", PayloadType: 96, ClockRate: 90000}}}

	if _, err := e.Produce(context.Background(), send, media.KindVideo, rtp); !errors.Is(err, media.ErrUnsupportedCodec) {
		t.Fatalf("err = %v, want ErrUnsupportedCodec", err)
	}
}

func TestProduceOnRecvTransport(t *testing.T) {
	e := newTestEngine(t)
	recv := fakeTransport(e, "recv", media.DirectionRecv)
	if _, err := e.Produce(context.Background(), recv, media.KindAudio, opusParams()); !errors.Is(err, ErrWrongDirection) {
		t.Fatalf("err = %v, want ErrWrongDirection", err)
	}
}

func TestCanConsumeIncompatible(t *testing.T) {
	e := newTestEngine(t)
	send := fakeTransport(e, "send", media.DirectionSend)
	p, err := e.Produce(context.Background(), send, media.KindVideo, vp8Params())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	audioOnly := media.RtpCapabilities{Codecs: []media.RtpCodecCapability{{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2}}}
	if e.CanConsume(p.ID, audioOnly) {
		t.Fatal("audio-only caps reported able to consume VP8")
	}
	if e.CanConsume("missing", e.RouterCapabilities()) {
		t.Fatal("missing producer reported consumable")
	}
}

func TestCloseTransportDropsDependents(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	send := fakeTransport(e, "send", media.DirectionSend)
	recv := fakeTransport(e, "recv", media.DirectionRecv)

	p, err := e.Produce(ctx, send, media.KindAudio, opusParams())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	c, err := e.Consume(ctx, recv, p.ID, e.RouterCapabilities())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if err := e.CloseTransport(send); err != nil {
		t.Fatalf("CloseTransport: %v", err)
	}
	if e.CanConsume(p.ID, e.RouterCapabilities()) {
		t.Fatal("producer survived its transport")
	}
	if err := e.Resume(ctx, c); !errors.Is(err, ErrUnknownConsumer) {
		t.Fatalf("resume after producer close err = %v", err)
	}
	if err := e.CloseTransport(send); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("double close err = %v", err)
	}
}
