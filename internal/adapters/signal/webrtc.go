package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
	"github.com/okutsev/huddle/internal/relay"
)

// handleSignalRelay forwards one directed negotiation message. Malformed
// payloads are dropped and logged; they never take a room down.
func (ctl *Controller) handleSignalRelay(sid core.SID, kind relay.Kind, data []byte) {
	var env struct {
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Target == "" {
		log.Warn().Str("module", "signal").Str("kind", string(kind)).Msg("signal without target, dropped")
		return
	}

	from, roomID, ok := ctl.Reg.MemberBySID(sid)
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("signal before join, dropped")
		return
	}

	msg, err := relay.Decode(kind, data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("kind", string(kind)).Msg("malformed signal, dropped")
		return
	}

	if err := ctl.Relay.Route(from, roomID, domain.Identity(env.Target), msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(roomID)).
			Str("target", env.Target).Msg("relay failed")
	}
}

func (ctl *Controller) handleShare(sid core.SID, kind relay.Kind, data []byte) {
	from, roomID, ok := ctl.Reg.MemberBySID(sid)
	if !ok {
		return
	}
	msg, err := relay.Decode(kind, data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("malformed share state, dropped")
		return
	}
	st, ok := msg.(relay.ShareState)
	if !ok {
		return
	}
	if err := ctl.Relay.Announce(from, roomID, st); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("share announce")
	}
}
