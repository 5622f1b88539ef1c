package app

import (
	"github.com/rs/zerolog/log"

	"github.com/avolkov/parley/internal/core"
	"github.com/avolkov/parley/internal/domain"
)

// Relay routes inbound client requests to the registry and emits the
// resulting events. It holds no state of its own; all emission happens on
// snapshots returned by the registry's atomic operations, so notification
// order within one operation is deterministic.
type Relay struct {
	Registry *Registry
	Policy   Policy
}

func NewRelay(reg *Registry, policy Policy) *Relay {
	return &Relay{Registry: reg, Policy: policy}
}

// OnConnect registers the connection, announces its id to it, and
// broadcasts the new presence count to everyone.
func (rl *Relay) OnConnect(id domain.ClientID, conn core.SignalConnection) error {
	count, err := rl.Registry.Connect(id, conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("client", string(id)).Msg("connect refused")
		return err
	}
	rl.sendTo(conn, core.NewSessionEvent(id))
	rl.broadcastPresence(count)
	return nil
}

// OnDisconnect purges the client. If it was in a room, the remaining
// members get a left notification before the presence count update.
func (rl *Relay) OnDisconnect(id domain.ClientID) {
	res := rl.Registry.Disconnect(id)
	if !res.WasConnected {
		return
	}
	if res.Room != "" {
		rl.notify(res.Remaining, domain.LeaveNotification(id, res.Room))
	}
	rl.broadcastPresence(res.Count)
}

// OnMessage dispatches one inbound text payload to the sender's current
// audience: its room's members, or the global scope when it has no room.
// Empty text is dropped without a reply.
func (rl *Relay) OnMessage(id domain.ClientID, text string) {
	msg, err := domain.NewMessage(id, text)
	if err != nil {
		log.Debug().Str("module", "app.relay").Str("client", string(id)).Msg("dropped empty message")
		return
	}
	frame, err := core.Encode(core.NewMessageEvent(msg))
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode message")
		return
	}
	rl.emit(rl.Registry.Audience(id), frame)
}

// Join moves the client into room. Switching rooms emits the left
// notification to the prior room before the joined notification to the new
// one. Re-joining the current room is a no-op.
func (rl *Relay) Join(id domain.ClientID, room domain.RoomName) JoinResult {
	res := rl.Registry.Join(id, room)
	switch res.Status {
	case NotConnected:
		log.Warn().Str("module", "app.relay").Str("client", string(id)).Str("room", string(room)).Msg("join for unknown client")
	case AlreadyMember:
	case Joined:
		if res.Prior != "" {
			rl.notify(res.PriorRemaining, domain.LeaveNotification(id, res.Prior))
		}
		rl.notify(res.Members, domain.JoinNotification(id, room))
	}
	return res
}

// Leave removes the client from room and notifies the remaining members.
// A leave for a room the client is not in is a no-op.
func (rl *Relay) Leave(id domain.ClientID, room domain.RoomName) {
	res := rl.Registry.Leave(id, room)
	if !res.Left {
		return
	}
	rl.notify(res.Remaining, domain.LeaveNotification(id, room))
}

func (rl *Relay) notify(targets []core.Target, n domain.Notification) {
	frame, err := core.Encode(core.NewNotificationEvent(n))
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode notification")
		return
	}
	rl.emit(targets, frame)
}

func (rl *Relay) broadcastPresence(count int) {
	frame, err := core.Encode(core.NewPresenceCountEvent(count))
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode presence count")
		return
	}
	rl.emit(rl.Registry.All(), frame)
}

func (rl *Relay) sendTo(conn core.SignalConnection, event any) {
	frame, err := core.Encode(event)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode event")
		return
	}
	_ = conn.TrySend(frame)
}

// emit fans a frame out to the targets. Failed sends are handed to the
// policy; the default action is to drop the frame for that client.
func (rl *Relay) emit(targets []core.Target, frame core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, t := range targets {
		if err := t.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, t.ID)
			if rl.Policy != nil && rl.Policy.OnBackPressure(t.ID) == KickMember {
				rl.OnDisconnect(t.ID)
				t.Conn.Close()
			}
			continue
		}
		res.SentTo++
	}
	if len(res.Dropped) > 0 {
		log.Debug().Str("module", "app.relay").Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("partial delivery")
	}
	return res
}
