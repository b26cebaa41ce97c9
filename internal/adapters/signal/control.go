package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/admission"
	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
)

type targetPayload struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

func (ctl *Controller) handleKick(sid core.SID, conn *wsConn, data []byte) {
	var p targetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad kick payload")
		return
	}
	victim, roomID, roomEnded, err := ctl.Adm.Kick(sid, domain.Identity(p.Target))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}

	_ = victim.Conn.TrySend(mustMarshal(map[string]any{
		"type":    "kicked-from-room",
		"message": "you have been removed from the room",
	}))
	victim.Conn.Close()

	if roomEnded {
		// The kick emptied an ephemeral room; there is nobody left to tell.
		return
	}
	frame, _ := json.Marshal(map[string]any{
		"type":     "user-left",
		"identity": victim.Meta.Identity,
	})
	if _, err := ctl.Reg.Broadcast(roomID, victim.SID, frame); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("kick broadcast")
	}
}

func (ctl *Controller) handlePromote(sid core.SID, conn *wsConn, data []byte) {
	var p targetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	target, _, err := ctl.Adm.Promote(sid, domain.Identity(p.Target))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	_ = target.Conn.TrySend(mustMarshal(map[string]any{"type": "promoted-to-admin"}))
}

func (ctl *Controller) handleDemote(sid core.SID, conn *wsConn, data []byte) {
	var p targetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	target, _, err := ctl.Adm.Demote(sid, domain.Identity(p.Target))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	_ = target.Conn.TrySend(mustMarshal(map[string]any{"type": "demoted-from-admin"}))
}

func (ctl *Controller) handleCreateRoom(sid core.SID, identity domain.Identity, conn *wsConn, data []byte) {
	type createPayload struct {
		Type       string   `json:"type"`
		Room       string   `json:"room"`
		Identity   string   `json:"identity,omitempty"`
		Password   string   `json:"password,omitempty"`
		Capacity   int      `json:"capacity,omitempty"`
		InviteOnly bool     `json:"inviteOnly,omitempty"`
		Admins     []string `json:"admins,omitempty"`
		Invited    []string `json:"invited,omitempty"`
	}
	var p createPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create payload")
		return
	}
	// Same override rule as join-room: an explicit identity wins over the
	// cookie default, so the creator can later join under the same identity.
	if p.Identity != "" {
		identity = domain.Identity(p.Identity)
	}
	opts := admission.RoomOptions{
		Password:   p.Password,
		Capacity:   p.Capacity,
		InviteOnly: p.InviteOnly,
	}
	for _, a := range p.Admins {
		opts.Admins = append(opts.Admins, domain.Identity(a))
	}
	for _, inv := range p.Invited {
		opts.Invited = append(opts.Invited, domain.Identity(inv))
	}
	if err := ctl.Adm.CreatePermanentRoom(domain.RoomID(p.Room), identity, opts); err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, map[string]any{"type": "room-created", "room": p.Room})
}

func (ctl *Controller) handleDeleteRoom(_ core.SID, identity domain.Identity, conn *wsConn, data []byte) {
	type deletePayload struct {
		Type     string `json:"type"`
		Room     string `json:"room"`
		Identity string `json:"identity,omitempty"`
	}
	var p deletePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if p.Identity != "" {
		identity = domain.Identity(p.Identity)
	}
	members, err := ctl.Adm.DeletePermanentRoom(domain.RoomID(p.Room), identity)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	bye := mustMarshal(map[string]any{
		"type":    "kicked-from-room",
		"message": "room was deleted",
	})
	for _, m := range members {
		_ = m.Conn.TrySend(bye)
		m.Conn.Close()
	}
	ctl.sendJSON(conn, map[string]any{"type": "room-deleted", "room": p.Room})
}

func (ctl *Controller) handleRoomInfo(conn *wsConn, data []byte) {
	type infoPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p infoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	info, err := ctl.Reg.RoomSnapshot(domain.RoomID(p.Room))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, map[string]any{"type": "room-info", "room": info})
}

func (ctl *Controller) handlePing(conn *wsConn) {
	ctl.sendJSON(conn, map[string]any{"type": "pong"})
}

func mustMarshal(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal")
		return core.Frame("{}")
	}
	return b
}
