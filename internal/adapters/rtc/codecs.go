package rtc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dkeye/Cast/internal/config"
	"github.com/dkeye/Cast/internal/media"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

const (
	midURI  = "urn:ietf:params:rtp-hdrext:sdes:mid"
	twccURI = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"

	firstDynamicPayloadType = 100
)

func feedbackFor(kind media.Kind) []media.RtcpFeedback {
	if kind == media.KindAudio {
		return []media.RtcpFeedback{{Type: "transport-cc"}}
	}
	return []media.RtcpFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "goog-remb"},
		{Type: "transport-cc"},
	}
}

// routerCapabilities turns the configured codec list into the capabilities
// advertised to browsers, assigning dynamic payload types in order.
func routerCapabilities(codecs []config.CodecConfig) (media.RtpCapabilities, error) {
	caps := media.RtpCapabilities{}
	for i, c := range codecs {
		kind, err := media.ParseKind(c.Kind)
		if err != nil {
			return media.RtpCapabilities{}, fmt.Errorf("codec %s: %w", c.MimeType, err)
		}
		if media.KindOfMime(c.MimeType) != kind {
			return media.RtpCapabilities{}, fmt.Errorf("codec %s: mime type does not match kind %s", c.MimeType, kind)
		}
		caps.Codecs = append(caps.Codecs, media.RtpCodecCapability{
			Kind:                 kind,
			MimeType:             c.MimeType,
			PreferredPayloadType: uint8(firstDynamicPayloadType + i),
			ClockRate:            c.ClockRate,
			Channels:             c.Channels,
			Parameters:           c.Parameters,
			RtcpFeedback:         feedbackFor(kind),
		})
	}
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		caps.HeaderExtensions = append(caps.HeaderExtensions,
			media.RtpHeaderExtension{Kind: kind, URI: midURI, PreferredID: 1, Direction: "sendrecv"},
			media.RtpHeaderExtension{Kind: kind, URI: twccURI, PreferredID: 5, Direction: "sendrecv"},
		)
	}
	return caps, nil
}

// fmtpLine renders codec parameters the way they appear in SDP.
func fmtpLine(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}

func codecType(kind media.Kind) webrtc.RTPCodecType {
	if kind == media.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// newMediaEngine registers the router codecs with pion together with the
// default interceptors (NACK, RTCP reports, TWCC).
func newMediaEngine(caps media.RtpCapabilities) (*webrtc.MediaEngine, *interceptor.Registry, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range caps.Codecs {
		fb := make([]webrtc.RTCPFeedback, 0, len(c.RtcpFeedback))
		for _, f := range c.RtcpFeedback {
			fb = append(fb, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
		}
		err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     c.MimeType,
				ClockRate:    c.ClockRate,
				Channels:     c.Channels,
				SDPFmtpLine:  fmtpLine(c.Parameters),
				RTCPFeedback: fb,
			},
			PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
		}, codecType(c.Kind))
		if err != nil {
			return nil, nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: midURI}, codecType(kind)); err != nil {
			return nil, nil, fmt.Errorf("register mid extension: %w", err)
		}
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, nil, fmt.Errorf("register interceptors: %w", err)
	}
	return m, ir, nil
}
