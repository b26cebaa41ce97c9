// Package relay forwards negotiation messages between participants of one
// room. It is transport-agnostic: payloads stay opaque, routing is by room
// id plus target identity only.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
	"github.com/okutsev/huddle/internal/registry"
)

type Relay struct {
	Reg *registry.Registry
}

func New(reg *registry.Registry) *Relay {
	return &Relay{Reg: reg}
}

// Route delivers one directed signaling message from sender to target within
// the sender's room. The payload is re-framed but never interpreted.
func (r *Relay) Route(from *core.Member, roomID domain.RoomID, target domain.Identity, msg Message) error {
	var frame core.Frame
	switch m := msg.(type) {
	case Offer:
		frame = marshalEvent(map[string]any{
			"type": KindOffer, "from": from.Meta.Identity,
			"fromName": from.Meta.DisplayName, "sdp": m.SDP,
		})
	case Answer:
		frame = marshalEvent(map[string]any{
			"type": KindAnswer, "from": from.Meta.Identity, "sdp": m.SDP,
		})
	case Candidate:
		ev := map[string]any{
			"type": KindCandidate, "from": from.Meta.Identity,
			"candidate": m.Candidate,
		}
		if m.SDPMid != nil {
			ev["sdpMid"] = *m.SDPMid
		}
		if m.SDPMLineIndex != nil {
			ev["sdpMLineIndex"] = *m.SDPMLineIndex
		}
		frame = marshalEvent(ev)
	case ShareState:
		return fmt.Errorf("share state is broadcast, not targeted")
	default:
		return fmt.Errorf("unroutable signal kind %q", msg.kind())
	}
	if frame == nil {
		return fmt.Errorf("marshal signal")
	}
	if err := r.Reg.SendToIdentity(roomID, target, frame); err != nil {
		return err
	}
	log.Debug().Str("module", "relay").Str("room", string(roomID)).
		Str("kind", string(msg.kind())).Str("from", string(from.Meta.Identity)).
		Str("target", string(target)).Msg("relayed")
	return nil
}

// Announce records a screen-share state change and broadcasts it to the
// room. Negotiation state is untouched: the media swap is in-place on the
// already established transports.
func (r *Relay) Announce(from *core.Member, roomID domain.RoomID, st ShareState) error {
	ann := domain.ScreenShareAnnouncement{
		Identity:  from.Meta.Identity,
		Username:  from.Meta.DisplayName,
		IsSharing: st.IsSharing,
		ShareKind: st.ShareKind,
	}
	if err := r.Reg.SetShare(roomID, ann); err != nil {
		return err
	}
	frame := marshalEvent(map[string]any{
		"type":      "user-screen-sharing",
		"identity":  ann.Identity,
		"username":  ann.Username,
		"isSharing": ann.IsSharing,
		"shareKind": ann.ShareKind,
	})
	_, err := r.Reg.Broadcast(roomID, from.SID, frame)
	return err
}

func marshalEvent(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal event")
		return nil
	}
	return b
}
