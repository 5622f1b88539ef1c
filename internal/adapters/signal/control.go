package signal

import "github.com/avolkov/parley/internal/core"

func (ctl *ChatWSController) handlePing(
	conn *WsChatConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: core.EventPong,
	}
	ctl.sendJSON(conn, resp)
}
