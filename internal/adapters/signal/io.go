package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/parley/internal/core"
	"github.com/avolkov/parley/internal/domain"
)

func (ctl *ChatWSController) writePump(ctx context.Context, c *WsChatConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
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

func (ctl *ChatWSController) readPump(ctx context.Context, id domain.ClientID, c *WsChatConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", string(id)).Msg("readPump closing")
		ctl.Relay.OnDisconnect(id)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("client", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(id, c, data)
		}
	}
}

func (ctl *ChatWSController) handleEvent(id domain.ClientID, c *WsChatConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case core.EventSendMessage:
		ctl.handleSendMessage(id, data)
	case core.EventJoinRoom:
		ctl.handleJoinRoom(id, c, data)
	case core.EventLeaveRoom:
		ctl.handleLeaveRoom(id, c, data)
	case core.EventPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *ChatWSController) sendJSON(c *WsChatConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *ChatWSController) handleSendMessage(id domain.ClientID, data []byte) {
	type messagePayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		return
	}
	ctl.Relay.OnMessage(id, p.Text)
}
