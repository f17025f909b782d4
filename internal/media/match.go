package media

import (
	"errors"
	"strings"
)

var (
	ErrNoCodecs          = errors.New("rtp parameters carry no codecs")
	ErrUnsupportedCodec  = errors.New("codec not supported by router")
	ErrKindMismatch      = errors.New("codec kind does not match producer kind")
	ErrNoCompatibleCodec = errors.New("no compatible codec")
)

func isRtx(mime string) bool {
	return strings.HasSuffix(strings.ToLower(mime), "/rtx")
}

// codecMatches compares the fields that make two codecs interchangeable.
func codecMatches(mimeA string, clockA uint32, chA uint16, mimeB string, clockB uint32, chB uint16) bool {
	if !strings.EqualFold(mimeA, mimeB) || clockA != clockB {
		return false
	}
	if KindOfMime(mimeA) == KindAudio {
		return normChannels(chA) == normChannels(chB)
	}
	return true
}

func normChannels(ch uint16) uint16 {
	if ch == 0 {
		return 1
	}
	return ch
}

// FindCodec returns the capability in caps matching codec, if any.
func FindCodec(caps RtpCapabilities, codec RtpCodecParameters) (RtpCodecCapability, bool) {
	for _, c := range caps.Codecs {
		if codecMatches(c.MimeType, c.ClockRate, c.Channels, codec.MimeType, codec.ClockRate, codec.Channels) {
			return c, true
		}
	}
	return RtpCodecCapability{}, false
}

// ValidateProduce checks that rtp carries at least one media codec of kind
// and that every media codec is known to the router.
func ValidateProduce(router RtpCapabilities, kind Kind, rtp RtpParameters) error {
	if len(rtp.Codecs) == 0 {
		return ErrNoCodecs
	}
	media := 0
	for _, codec := range rtp.Codecs {
		if isRtx(codec.MimeType) {
			continue
		}
		if KindOfMime(codec.MimeType) != kind {
			return ErrKindMismatch
		}
		if _, ok := FindCodec(router, codec); !ok {
			return ErrUnsupportedCodec
		}
		media++
	}
	if media == 0 {
		return ErrNoCodecs
	}
	return nil
}

// NegotiateConsumer selects the producer codecs the consumer can decode,
// rewriting payload types to the ones the consumer prefers.
func NegotiateConsumer(producer RtpParameters, caps RtpCapabilities) ([]RtpCodecParameters, error) {
	var out []RtpCodecParameters
	for _, codec := range producer.Codecs {
		if isRtx(codec.MimeType) {
			continue
		}
		capability, ok := FindCodec(caps, codec)
		if !ok {
			continue
		}
		negotiated := codec
		if capability.PreferredPayloadType != 0 {
			negotiated.PayloadType = capability.PreferredPayloadType
		}
		if len(capability.RtcpFeedback) > 0 {
			negotiated.RtcpFeedback = capability.RtcpFeedback
		}
		out = append(out, negotiated)
	}
	if len(out) == 0 {
		return nil, ErrNoCompatibleCodec
	}
	return out, nil
}
