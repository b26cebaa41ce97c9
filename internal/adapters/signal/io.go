package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
	"github.com/okutsev/huddle/internal/relay"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SID, identity domain.Identity, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.disconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleMessage(sid, identity, c, data)
		}
	}
}

// handleMessage dispatches one inbound envelope. Directed negotiation
// payloads are never inspected here beyond their kind.
func (ctl *Controller) handleMessage(sid core.SID, identity domain.Identity, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join-room":
		ctl.handleJoin(sid, identity, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "kick-user":
		ctl.handleKick(sid, c, data)
	case "promote-user":
		ctl.handlePromote(sid, c, data)
	case "demote-user":
		ctl.handleDemote(sid, c, data)
	case "create-permanent-room":
		ctl.handleCreateRoom(sid, identity, c, data)
	case "delete-permanent-room":
		ctl.handleDeleteRoom(sid, identity, c, data)
	case "get-room-info":
		ctl.handleRoomInfo(c, data)
	case "ping":
		ctl.handlePing(c)
	case string(relay.KindOffer), string(relay.KindAnswer), string(relay.KindCandidate):
		ctl.handleSignalRelay(sid, relay.Kind(env.Type), data)
	case string(relay.KindShareStarted), string(relay.KindShareStopped):
		ctl.handleShare(sid, relay.Kind(env.Type), data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, err error) {
	ctl.sendJSON(c, map[string]any{
		"type":   "error",
		"reason": domain.Reason(err),
	})
}
