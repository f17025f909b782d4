package rtc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Cast/internal/config"
	"github.com/dkeye/Cast/internal/media"
	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const cnameRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrUnknownProducer  = errors.New("unknown producer")
	ErrUnknownConsumer  = errors.New("unknown consumer")
	ErrAlreadyConnected = errors.New("transport already connected")
	ErrBadDtlsRole      = errors.New("invalid dtls role")
	ErrNoFingerprint    = errors.New("dtls parameters carry no supported fingerprint")
	ErrWrongDirection   = errors.New("transport direction does not allow this operation")
)

var fingerprintAlgorithms = map[string]bool{
	"sha-1": true, "sha-224": true, "sha-256": true, "sha-384": true, "sha-512": true,
}

var _ media.Engine = (*Engine)(nil)

// Engine implements media.Engine on top of pion's ORTC objects. Every
// transport is an ICE gatherer, an ICE transport and a DTLS transport sharing
// one server certificate.
type Engine struct {
	api    *webrtc.API
	tcpAPI *webrtc.API
	tcp    net.Listener

	caps          media.RtpCapabilities
	cert          webrtc.Certificate
	iceServers    []webrtc.ICEServer
	gatherTimeout time.Duration

	mu         sync.RWMutex
	transports map[string]*transportEntry
	producers  map[string]*media.Producer
	consumers  map[string]*media.Consumer
}

type transportEntry struct {
	t          *media.Transport
	gatherer   *webrtc.ICEGatherer
	ice        *webrtc.ICETransport
	dtls       *webrtc.DTLSTransport
	remote     *media.DtlsParameters
	maxBitrate uint32
	nextMid    int
	producers  map[string]struct{}
	consumers  map[string]struct{}
}

func NewEngine(cfg config.MediaConfig) (*Engine, error) {
	caps, err := routerCapabilities(cfg.Codecs)
	if err != nil {
		return nil, err
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate dtls key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate dtls certificate: %w", err)
	}

	e := &Engine{
		caps:          caps,
		cert:          *cert,
		gatherTimeout: cfg.GatherTimeout,
		transports:    make(map[string]*transportEntry),
		producers:     make(map[string]*media.Producer),
		consumers:     make(map[string]*media.Consumer),
	}
	if len(cfg.ICEServers) > 0 {
		e.iceServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	if cfg.TCPPort > 0 {
		addr := net.JoinHostPort(cfg.ListenIP, strconv.Itoa(cfg.TCPPort))
		e.tcp, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen ice tcp %s: %w", addr, err)
		}
	}

	e.api, err = e.newAPI(cfg, caps, false)
	if err != nil {
		e.Close()
		return nil, err
	}
	if e.tcp != nil {
		e.tcpAPI, err = e.newAPI(cfg, caps, true)
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	log.Info().Str("module", "rtc").
		Str("announced_ip", cfg.AnnouncedIP).
		Uint16("min_port", cfg.RTCMinPort).
		Uint16("max_port", cfg.RTCMaxPort).
		Int("tcp_port", cfg.TCPPort).
		Int("codecs", len(caps.Codecs)).
		Msg("media engine ready")
	return e, nil
}

func (e *Engine) newAPI(cfg config.MediaConfig, caps media.RtpCapabilities, tcpOnly bool) (*webrtc.API, error) {
	m, ir, err := newMediaEngine(caps)
	if err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetLite(cfg.ICELite)
	if cfg.RTCMinPort > 0 && cfg.RTCMaxPort > 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.RTCMinPort, cfg.RTCMaxPort); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if listen := net.ParseIP(cfg.ListenIP); listen != nil && !listen.IsUnspecified() {
		se.SetIPFilter(func(ip net.IP) bool { return ip.Equal(listen) })
	}
	if e.tcp != nil {
		se.SetICETCPMux(webrtc.NewICETCPMux(nil, e.tcp, 8))
	}
	if tcpOnly {
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeTCP4, webrtc.NetworkTypeTCP6})
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

func (e *Engine) RouterCapabilities() media.RtpCapabilities {
	return e.caps
}

func (e *Engine) CreateTransport(ctx context.Context, opts media.TransportOptions) (*media.Transport, error) {
	api := e.api
	if opts.ForceTCP {
		if e.tcpAPI != nil {
			api = e.tcpAPI
		} else {
			log.Warn().Str("module", "rtc").Msg("forceTcp requested but ice tcp is disabled")
		}
	}

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	done := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice gather: %w", err)
	}

	if e.gatherTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.gatherTimeout)
		defer cancel()
	}
	select {
	case <-done:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice gather: %w", ctx.Err())
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice parameters: %w", err)
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice candidates: %w", err)
	}

	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, []webrtc.Certificate{e.cert})
	if err != nil {
		_ = ice.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = dtls.Stop()
		_ = ice.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls parameters: %w", err)
	}

	t := &media.Transport{
		ID:             uuid.NewString(),
		Direction:      opts.Direction,
		IceParameters:  toIceParameters(iceParams),
		IceCandidates:  toIceCandidates(candidates),
		DtlsParameters: toDtlsParameters(dtlsParams),
	}
	e.mu.Lock()
	e.transports[t.ID] = &transportEntry{
		t:         t,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		producers: make(map[string]struct{}),
		consumers: make(map[string]struct{}),
	}
	e.mu.Unlock()

	log.Debug().Str("module", "rtc").Str("transport", t.ID).Str("direction", string(t.Direction)).Int("candidates", len(t.IceCandidates)).Msg("transport created")
	return t, nil
}

func (e *Engine) entry(t *media.Transport) (*transportEntry, error) {
	if t == nil {
		return nil, ErrUnknownTransport
	}
	te, ok := e.transports[t.ID]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownTransport, t.ID)
	}
	return te, nil
}

func (e *Engine) SetMaxIncomingBitrate(_ context.Context, t *media.Transport, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	te, err := e.entry(t)
	if err != nil {
		return err
	}
	te.maxBitrate = bps
	return nil
}

// ConnectTransport validates and stores the remote DTLS parameters. The
// handshake itself runs when the browser's ICE checks arrive.
func (e *Engine) ConnectTransport(_ context.Context, t *media.Transport, dtls media.DtlsParameters) error {
	if err := validateDtls(dtls); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	te, err := e.entry(t)
	if err != nil {
		return err
	}
	if te.remote != nil {
		// a retry after a timed out call carries the same parameters
		if sameDtls(*te.remote, dtls) {
			return nil
		}
		return ErrAlreadyConnected
	}
	remote := dtls
	te.remote = &remote
	log.Debug().Str("module", "rtc").Str("transport", t.ID).Str("role", dtls.Role).Msg("transport connected")
	return nil
}

func sameDtls(a, b media.DtlsParameters) bool {
	return a.Role == b.Role && slices.Equal(a.Fingerprints, b.Fingerprints)
}

func validateDtls(dtls media.DtlsParameters) error {
	switch dtls.Role {
	case "", "auto", "client", "server":
	default:
		return fmt.Errorf("%w %q", ErrBadDtlsRole, dtls.Role)
	}
	for _, fp := range dtls.Fingerprints {
		if fingerprintAlgorithms[strings.ToLower(fp.Algorithm)] && fp.Value != "" {
			return nil
		}
	}
	return ErrNoFingerprint
}

func (e *Engine) Produce(_ context.Context, t *media.Transport, kind media.Kind, rtp media.RtpParameters) (*media.Producer, error) {
	if err := media.ValidateProduce(e.caps, kind, rtp); err != nil {
		return nil, err
	}
	if rtp.Rtcp.Cname == "" {
		cname, err := randutil.GenerateCryptoRandomString(16, cnameRunes)
		if err != nil {
			return nil, err
		}
		rtp.Rtcp.Cname = cname
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	te, err := e.entry(t)
	if err != nil {
		return nil, err
	}
	if t.Direction != media.DirectionSend {
		return nil, ErrWrongDirection
	}
	p := &media.Producer{
		ID:            uuid.NewString(),
		TransportID:   t.ID,
		Kind:          kind,
		RtpParameters: rtp,
	}
	e.producers[p.ID] = p
	te.producers[p.ID] = struct{}{}
	log.Debug().Str("module", "rtc").Str("transport", t.ID).Str("producer", p.ID).Str("kind", string(kind)).Msg("producer created")
	return p, nil
}

func (e *Engine) CanConsume(producerID string, caps media.RtpCapabilities) bool {
	e.mu.RLock()
	p, ok := e.producers[producerID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	_, err := media.NegotiateConsumer(p.RtpParameters, caps)
	return err == nil
}

func (e *Engine) Consume(_ context.Context, t *media.Transport, producerID string, caps media.RtpCapabilities) (*media.Consumer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	te, err := e.entry(t)
	if err != nil {
		return nil, err
	}
	if t.Direction != media.DirectionRecv {
		return nil, ErrWrongDirection
	}
	p, ok := e.producers[producerID]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownProducer, producerID)
	}
	codecs, err := media.NegotiateConsumer(p.RtpParameters, caps)
	if err != nil {
		return nil, err
	}
	ssrc, err := randutil.CryptoUint64()
	if err != nil {
		return nil, err
	}

	// mids stay unique on the transport after consumers close
	mid := strconv.Itoa(te.nextMid)
	te.nextMid++

	c := &media.Consumer{
		ID:          uuid.NewString(),
		ProducerID:  p.ID,
		TransportID: t.ID,
		Kind:        p.Kind,
		Type:        "simple",
		RtpParameters: media.RtpParameters{
			Mid:              mid,
			Codecs:           codecs,
			HeaderExtensions: consumerExtensions(caps, p.Kind),
			Encodings:        []media.RtpEncodingParameters{{Ssrc: uint32(ssrc)}},
			Rtcp:             media.RtcpParameters{Cname: p.RtpParameters.Rtcp.Cname, ReducedSize: true},
		},
	}
	// video starts paused so the first frame after resume is a keyframe
	c.SetPaused(p.Kind == media.KindVideo)
	e.consumers[c.ID] = c
	te.consumers[c.ID] = struct{}{}
	log.Debug().Str("module", "rtc").Str("transport", t.ID).Str("consumer", c.ID).Str("producer", p.ID).Msg("consumer created")
	return c, nil
}

// consumerExtensions keeps the header extensions both sides understand.
func consumerExtensions(caps media.RtpCapabilities, kind media.Kind) []media.RtpHeaderExtensionParameters {
	var out []media.RtpHeaderExtensionParameters
	for _, ext := range caps.HeaderExtensions {
		if ext.Kind != kind || (ext.URI != midURI && ext.URI != twccURI) {
			continue
		}
		out = append(out, media.RtpHeaderExtensionParameters{URI: ext.URI, ID: ext.PreferredID})
	}
	return out
}

func (e *Engine) Resume(_ context.Context, c *media.Consumer) error {
	e.mu.RLock()
	_, ok := e.consumers[c.ID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownConsumer, c.ID)
	}
	c.SetPaused(false)
	return nil
}

func (e *Engine) CloseConsumer(c *media.Consumer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.consumers[c.ID]; !ok {
		return fmt.Errorf("%w %s", ErrUnknownConsumer, c.ID)
	}
	delete(e.consumers, c.ID)
	if te, ok := e.transports[c.TransportID]; ok {
		delete(te.consumers, c.ID)
	}
	return nil
}

// CloseProducer drops p and every consumer reading from it.
func (e *Engine) CloseProducer(p *media.Producer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.producers[p.ID]; !ok {
		return fmt.Errorf("%w %s", ErrUnknownProducer, p.ID)
	}
	e.dropProducerLocked(p.ID)
	if te, ok := e.transports[p.TransportID]; ok {
		delete(te.producers, p.ID)
	}
	return nil
}

func (e *Engine) dropProducerLocked(id string) {
	delete(e.producers, id)
	for cid, c := range e.consumers {
		if c.ProducerID == id {
			delete(e.consumers, cid)
			if other, ok := e.transports[c.TransportID]; ok {
				delete(other.consumers, cid)
			}
		}
	}
}

// CloseTransport stops the pion transports and drops every producer and
// consumer that ran over them. Consumers of a dropped producer go too.
func (e *Engine) CloseTransport(t *media.Transport) error {
	e.mu.Lock()
	te, err := e.entry(t)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	delete(e.transports, t.ID)
	for id := range te.consumers {
		delete(e.consumers, id)
	}
	for id := range te.producers {
		e.dropProducerLocked(id)
	}
	e.mu.Unlock()

	return stopTransport(te)
}

func stopTransport(te *transportEntry) error {
	var errs []error
	if te.dtls != nil {
		errs = append(errs, te.dtls.Stop())
	}
	if te.ice != nil {
		errs = append(errs, te.ice.Stop())
	}
	if te.gatherer != nil {
		errs = append(errs, te.gatherer.Close())
	}
	return errors.Join(errs...)
}

// Close stops every transport and the shared TCP listener.
func (e *Engine) Close() {
	e.mu.Lock()
	entries := make([]*transportEntry, 0, len(e.transports))
	for _, te := range e.transports {
		entries = append(entries, te)
	}
	e.transports = make(map[string]*transportEntry)
	e.producers = make(map[string]*media.Producer)
	e.consumers = make(map[string]*media.Consumer)
	e.mu.Unlock()

	for _, te := range entries {
		if err := stopTransport(te); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("transport", te.t.ID).Msg("stop transport")
		}
	}
	if e.tcp != nil {
		_ = e.tcp.Close()
	}
}

func toIceParameters(p webrtc.ICEParameters) media.IceParameters {
	return media.IceParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, IceLite: p.ICELite}
}

func toIceCandidates(cands []webrtc.ICECandidate) []media.IceCandidate {
	out := make([]media.IceCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, media.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return out
}

func toDtlsParameters(p webrtc.DTLSParameters) media.DtlsParameters {
	out := media.DtlsParameters{Role: p.Role.String()}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, media.DtlsFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}
