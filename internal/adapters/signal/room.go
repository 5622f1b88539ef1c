package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/parley/internal/app"
	"github.com/avolkov/parley/internal/core"
	"github.com/avolkov/parley/internal/domain"
)

func (ctl *ChatWSController) handleJoinRoom(
	id domain.ClientID,
	conn *WsChatConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}

	room, err := domain.ParseRoomName(p.Room)
	if err != nil {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": err.Error(),
		})
		return
	}

	log.Info().Str("module", "signal").Str("client", string(id)).Str("room", string(room)).Msg("join-room")
	res := ctl.Relay.Join(id, room)
	if res.Status == app.NotConnected {
		return
	}

	// Room snapshot so the client can update its UI.
	ctl.sendJSON(conn, core.NewRoomStateEvent(room, res.Count))
}

// handleLeaveRoom drops the client back to global scope; the connection
// itself stays open.
func (ctl *ChatWSController) handleLeaveRoom(
	id domain.ClientID,
	conn *WsChatConn,
	data []byte,
) {
	type leavePayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad leave payload")
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}

	room, err := domain.ParseRoomName(p.Room)
	if err != nil {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": err.Error(),
		})
		return
	}

	log.Info().Str("module", "signal").Str("client", string(id)).Str("room", string(room)).Msg("leave-room")
	ctl.Relay.Leave(id, room)
}
