package bridge

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
)

const cnameRunes = "abcdefghijklmnopqrstuvwxyz0123456789"

// SyntheticDevice is a headless Device. Its DTLS parameters come from real
// pion transports, its RTP parameters from the router capabilities. It sends
// no media.
type SyntheticDevice struct {
	api  *webrtc.API
	cert webrtc.Certificate

	mu     sync.RWMutex
	caps   media.RtpCapabilities
	loaded bool
}

func NewSyntheticDevice() (*SyntheticDevice, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate dtls key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate dtls certificate: %w", err)
	}
	return &SyntheticDevice{api: webrtc.NewAPI(), cert: *cert}, nil
}

func (d *SyntheticDevice) Load(router media.RtpCapabilities) error {
	if len(router.Codecs) == 0 {
		return media.ErrNoCodecs
	}
	d.mu.Lock()
	d.caps = router
	d.loaded = true
	d.mu.Unlock()
	return nil
}

func (d *SyntheticDevice) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func (d *SyntheticDevice) RtpCapabilities() media.RtpCapabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps
}

func (d *SyntheticDevice) CanProduce(kind media.Kind) bool {
	_, ok := d.codecFor(kind)
	return ok
}

func (d *SyntheticDevice) codecFor(kind media.Kind) (media.RtpCodecCapability, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.caps.Codecs {
		if c.Kind == kind && !strings.HasSuffix(strings.ToLower(c.MimeType), "/rtx") {
			return c, true
		}
	}
	return media.RtpCodecCapability{}, false
}

func (d *SyntheticDevice) CreateSendTransport(params media.TransportParams) (LocalTransport, error) {
	return d.newTransport(params, media.DirectionSend)
}

func (d *SyntheticDevice) CreateRecvTransport(params media.TransportParams) (LocalTransport, error) {
	return d.newTransport(params, media.DirectionRecv)
}

func (d *SyntheticDevice) newTransport(params media.TransportParams, dir media.Direction) (*syntheticTransport, error) {
	if !d.Loaded() {
		return nil, ErrNotLoaded
	}
	gatherer, err := d.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := d.api.NewICETransport(gatherer)
	dtls, err := d.api.NewDTLSTransport(ice, []webrtc.Certificate{d.cert})
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	local, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls parameters: %w", err)
	}

	// the server side is ice-lite and waits in role auto, so the client
	// always initiates the handshake
	dtlsParams := media.DtlsParameters{Role: "client"}
	for _, fp := range local.Fingerprints {
		dtlsParams.Fingerprints = append(dtlsParams.Fingerprints, media.DtlsFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return &syntheticTransport{
		device:   d,
		remote:   params,
		dir:      dir,
		local:    dtlsParams,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}, nil
}

// sendParameters describes what this device would send for src. A labelled
// source carries the label in front of its cname.
func (d *SyntheticDevice) sendParameters(src Source, mid int) (media.RtpParameters, error) {
	kind := src.Kind
	codec, ok := d.codecFor(kind)
	if !ok {
		return media.RtpParameters{}, fmt.Errorf("%w %s", ErrCannotProduce, kind)
	}
	ssrc, err := randutil.CryptoUint64()
	if err != nil {
		return media.RtpParameters{}, err
	}
	cname, err := randutil.GenerateCryptoRandomString(12, cnameRunes)
	if err != nil {
		return media.RtpParameters{}, err
	}
	if src.Label != "" {
		cname = src.Label + "-" + cname
	}

	rtp := media.RtpParameters{
		Mid: strconv.Itoa(mid),
		Codecs: []media.RtpCodecParameters{{
			MimeType:     codec.MimeType,
			PayloadType:  codec.PreferredPayloadType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			Parameters:   codec.Parameters,
			RtcpFeedback: codec.RtcpFeedback,
		}},
		Encodings: []media.RtpEncodingParameters{{Ssrc: uint32(ssrc)}},
		Rtcp:      media.RtcpParameters{Cname: cname, ReducedSize: true},
	}
	for _, ext := range d.RtpCapabilities().HeaderExtensions {
		if ext.Kind == kind {
			rtp.HeaderExtensions = append(rtp.HeaderExtensions, media.RtpHeaderExtensionParameters{URI: ext.URI, ID: ext.PreferredID})
		}
	}
	return rtp, nil
}

type syntheticTransport struct {
	device *SyntheticDevice
	remote media.TransportParams
	dir    media.Direction
	local  media.DtlsParameters

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	mu        sync.Mutex
	state     media.TransportState
	onConnect ConnectFunc
	onProduce ProduceFunc
	onState   StateFunc
	mids      int
	pending   *connectCall
}

// connectCall is one in-flight run of the connect handler.
type connectCall struct {
	done chan struct{}
	err  error
}

func (t *syntheticTransport) ID() string                 { return t.remote.ID }
func (t *syntheticTransport) Direction() media.Direction { return t.dir }

func (t *syntheticTransport) State() media.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *syntheticTransport) OnConnect(f ConnectFunc) {
	t.mu.Lock()
	t.onConnect = f
	t.mu.Unlock()
}

func (t *syntheticTransport) OnProduce(f ProduceFunc) {
	t.mu.Lock()
	t.onProduce = f
	t.mu.Unlock()
}

func (t *syntheticTransport) OnStateChange(f StateFunc) {
	t.mu.Lock()
	t.onState = f
	t.mu.Unlock()
}

// setState records s and notifies the observer outside the lock. Closed is
// terminal.
func (t *syntheticTransport) setState(s media.TransportState) {
	t.mu.Lock()
	if t.state == s || t.state == media.TransportStateClosed {
		t.mu.Unlock()
		return
	}
	t.state = s
	cb := t.onState
	t.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// ensureConnected fires the connect handler the first time it is needed.
// Callers arriving while it runs wait for its result.
func (t *syntheticTransport) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case media.TransportStateConnected:
		t.mu.Unlock()
		return nil
	case media.TransportStateClosed:
		t.mu.Unlock()
		return ErrClosed
	}
	if call := t.pending; call != nil {
		t.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	connect := t.onConnect
	if connect == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: connect", ErrNoHandler)
	}
	call := &connectCall{done: make(chan struct{})}
	t.pending = call
	t.mu.Unlock()

	t.setState(media.TransportStateConnecting)
	call.err = connect(ctx, t.local)
	if call.err != nil {
		t.setState(media.TransportStateFailed)
	} else {
		t.setState(media.TransportStateConnected)
	}

	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
	close(call.done)
	return call.err
}

func (t *syntheticTransport) Produce(ctx context.Context, src Source) (*LocalProducer, error) {
	if t.dir != media.DirectionSend {
		return nil, ErrWrongDirection
	}
	t.mu.Lock()
	produce := t.onProduce
	mid := t.mids
	t.mids++
	t.mu.Unlock()
	if produce == nil {
		return nil, fmt.Errorf("%w: produce", ErrNoHandler)
	}

	rtp, err := t.device.sendParameters(src, mid)
	if err != nil {
		return nil, err
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}
	id, err := produce(ctx, src.Kind, rtp)
	if err != nil {
		return nil, err
	}
	return &LocalProducer{ID: id, Kind: src.Kind, RtpParameters: rtp}, nil
}

func (t *syntheticTransport) Consume(ctx context.Context, sub domain.SubscribedData) (*LocalConsumer, error) {
	if t.dir != media.DirectionRecv {
		return nil, ErrWrongDirection
	}
	caps := t.device.RtpCapabilities()
	for _, codec := range sub.RtpParameters.Codecs {
		if _, ok := media.FindCodec(caps, codec); !ok {
			return nil, fmt.Errorf("%w: %s", media.ErrUnsupportedCodec, codec.MimeType)
		}
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return &LocalConsumer{ID: sub.ID, ProducerID: sub.ProducerID, Kind: sub.Kind, RtpParameters: sub.RtpParameters}, nil
}

func (t *syntheticTransport) Close() error {
	t.mu.Lock()
	if t.state == media.TransportStateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = media.TransportStateClosed
	t.mu.Unlock()

	return errors.Join(t.dtls.Stop(), t.ice.Stop(), t.gatherer.Close())
}
