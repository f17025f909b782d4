package app

import (
	"encoding/json"

	"github.com/dkeye/Cast/internal/core"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure of one broadcast.
type PublishResult struct {
	SendTo  int
	Dropped []*core.Session
}

// Hub fans session-wide events out to every connection on the endpoint,
// the originator included. Delivery is best effort.
type Hub struct {
	Registry *Registry
	Policy   Policy
}

func NewHub(reg *Registry, policy Policy) *Hub {
	return &Hub{Registry: reg, Policy: policy}
}

func (h *Hub) Broadcast(from core.SessionID, v any) PublishResult {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("broadcast marshal")
		return PublishResult{}
	}

	res := PublishResult{}
	for _, sess := range h.Registry.Sessions() {
		sig := sess.Signal()
		if sig == nil || sess.Closed() {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sess)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.hub").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")

	if h.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch h.Policy.OnBackPressure(slow) {
		case KickMember:
			log.Warn().Str("module", "app.hub").Str("sid", string(slow.ID())).Msg("kicking slow connection")
			h.Registry.Cancel(slow.ID())
			slow.Signal().Close()
		case MarkSlow, DropFrame, NoAction:
			log.Warn().Str("module", "app.hub").Str("sid", string(slow.ID())).Msg("broadcast dropped")
		}
	}
	return res
}
