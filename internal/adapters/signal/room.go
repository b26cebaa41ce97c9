package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/admission"
	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
)

func (ctl *Controller) handleJoin(sid core.SID, identity domain.Identity, conn *wsConn, data []byte) {
	type joinPayload struct {
		Type     string `json:"type"`
		Room     string `json:"room"`
		Password string `json:"password,omitempty"`
		Name     string `json:"name"`
		Identity string `json:"identity,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, map[string]any{"type": "join-error", "reason": "BAD_PAYLOAD"})
		return
	}
	if p.Identity != "" {
		identity = domain.Identity(p.Identity)
	}

	res, err := ctl.Adm.Join(conn, sid, admission.JoinRequest{
		RoomID:      domain.RoomID(p.Room),
		Password:    p.Password,
		DisplayName: p.Name,
		Identity:    identity,
	})
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).
			Str("room", p.Room).Msg("join rejected")
		if errors.Is(err, domain.ErrRoomFull) {
			ctl.sendJSON(conn, map[string]any{"type": "room-full", "room": p.Room})
			return
		}
		ctl.sendJSON(conn, map[string]any{"type": "join-error", "reason": domain.Reason(err)})
		return
	}

	// The joined broadcast must be enqueued to existing members before the
	// joiner learns the member list: the joiner signals only after receiving
	// all-users, and per-connection queues are FIFO, so nobody can see an
	// offer from a peer they have not been introduced to.
	ctl.broadcast(res.Member, map[string]any{
		"type": "user-joined",
		"user": core.DTOOf(res.Member),
	})

	ctl.sendJSON(conn, struct {
		Type  string                `json:"type"`
		Room  string                `json:"room"`
		Kind  string                `json:"kind"`
		Self  core.ParticipantDTO   `json:"self"`
		Users []core.ParticipantDTO `json:"users"`
	}{
		Type:  "all-users",
		Room:  p.Room,
		Kind:  res.RoomKind.String(),
		Self:  core.DTOOf(res.Member),
		Users: res.Existing,
	})

	ctl.sendJSON(conn, struct {
		Type   string                           `json:"type"`
		Shares []domain.ScreenShareAnnouncement `json:"shares"`
	}{
		Type:   "initial-screen-sharing-state",
		Shares: res.Shares,
	})
}

// handleLeave detaches the participant from its room; the websocket itself
// stays open.
func (ctl *Controller) handleLeave(sid core.SID, conn *wsConn) {
	ctl.leaveAndNotify(sid)
	ctl.sendJSON(conn, map[string]any{"type": "left"})
}

// disconnect runs when the websocket dies for any reason.
func (ctl *Controller) disconnect(sid core.SID) {
	ctl.leaveAndNotify(sid)
}

func (ctl *Controller) leaveAndNotify(sid core.SID) {
	res, err := ctl.Adm.Leave(sid)
	if err != nil {
		return
	}
	if res.RoomEnded {
		return
	}
	frame, _ := json.Marshal(map[string]any{
		"type":     "user-left",
		"identity": res.Member.Meta.Identity,
	})
	if _, err := ctl.Reg.Broadcast(res.RoomID, res.Member.SID, frame); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(res.RoomID)).Msg("user-left broadcast")
	}
}

func (ctl *Controller) broadcast(from *core.Member, v any) {
	roomID, ok := ctl.Reg.RoomOf(from.SID)
	if !ok {
		return
	}
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	if _, err := ctl.Reg.Broadcast(roomID, from.SID, frame); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("broadcast")
	}
}
