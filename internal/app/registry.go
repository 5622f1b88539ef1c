package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/avolkov/parley/internal/core"
	"github.com/avolkov/parley/internal/domain"
)

// ErrDuplicateConnection is defensive only: the transport guarantees ids are
// unique per open connection, but a second connect for a live id must not
// corrupt the registry.
var ErrDuplicateConnection = errors.New("duplicate connection")

// Registry owns the presence set, the client->room membership table, and the
// room groups. One mutex guards all three so that a disconnect racing a join
// for the same client always lands in a consistent terminal state. Compound
// operations return connection snapshots; callers emit to those after the
// lock is released.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.ClientID]core.SignalConnection
	rooms   map[domain.ClientID]domain.RoomName
	groups  map[domain.RoomName]*core.Group
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[domain.ClientID]core.SignalConnection),
		rooms:   make(map[domain.ClientID]domain.RoomName),
		groups:  make(map[domain.RoomName]*core.Group),
	}
}

// Connect inserts id into the presence set and returns the new size.
func (r *Registry) Connect(id domain.ClientID, conn core.SignalConnection) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; ok {
		return len(r.clients), ErrDuplicateConnection
	}
	r.clients[id] = conn
	log.Info().Str("module", "app.registry").Str("client", string(id)).Int("online", len(r.clients)).Msg("client connected")
	return len(r.clients), nil
}

type DisconnectResult struct {
	WasConnected bool
	Count        int
	Room         domain.RoomName
	Remaining    []core.Target
}

// Disconnect removes id from the presence set and purges its room
// membership. Remaining holds the prior room's members after removal so the
// caller can notify them.
func (r *Registry) Disconnect(id domain.ClientID) DisconnectResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return DisconnectResult{Count: len(r.clients)}
	}
	res := DisconnectResult{WasConnected: true}
	if room, ok := r.rooms[id]; ok {
		res.Room = room
		res.Remaining = r.removeFromGroup(id, room)
	}
	delete(r.clients, id)
	res.Count = len(r.clients)
	log.Info().Str("module", "app.registry").Str("client", string(id)).Int("online", res.Count).Msg("client disconnected")
	return res
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) RoomOf(id domain.ClientID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

type JoinStatus int

const (
	Joined JoinStatus = iota
	AlreadyMember
	NotConnected
)

type JoinResult struct {
	Status JoinStatus
	// Prior is set when the join implicitly left another room first.
	Prior          domain.RoomName
	PriorRemaining []core.Target
	// Members is the new room's member set after the join, joiner included.
	Members []core.Target
	Count   int
}

// Join moves id into room, implicitly leaving any prior room first.
// Joining the current room again is a no-op (AlreadyMember).
func (r *Registry) Join(id domain.ClientID, room domain.RoomName) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.clients[id]
	if !ok {
		return JoinResult{Status: NotConnected}
	}
	res := JoinResult{Status: Joined}
	if prior, ok := r.rooms[id]; ok {
		if prior == room {
			g := r.groups[room]
			return JoinResult{Status: AlreadyMember, Members: g.Snapshot(), Count: g.Len()}
		}
		res.Prior = prior
		res.PriorRemaining = r.removeFromGroup(id, prior)
	}
	g, ok := r.groups[room]
	if !ok {
		g = core.NewGroup(room)
		r.groups[room] = g
	}
	g.Add(id, conn)
	r.rooms[id] = room
	res.Members = g.Snapshot()
	res.Count = g.Len()
	log.Info().Str("module", "app.registry").Str("client", string(id)).Str("room", string(room)).Msg("joined room")
	return res
}

type LeaveResult struct {
	Left      bool
	Remaining []core.Target
}

// Leave removes id from room if and only if it is a member of that room.
func (r *Registry) Leave(id domain.ClientID, room domain.RoomName) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rooms[id]; !ok || current != room {
		return LeaveResult{}
	}
	remaining := r.removeFromGroup(id, room)
	log.Info().Str("module", "app.registry").Str("client", string(id)).Str("room", string(room)).Msg("left room")
	return LeaveResult{Left: true, Remaining: remaining}
}

// Audience resolves the recipients for a message from id: the current room's
// members when id is in a room, otherwise every connected client that is in
// no room. The sender is part of its own audience in both scopes.
func (r *Registry) Audience(id domain.ClientID) []core.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[id]; ok {
		return r.groups[room].Snapshot()
	}
	out := make([]core.Target, 0, len(r.clients))
	for cid, conn := range r.clients {
		if _, inRoom := r.rooms[cid]; inRoom {
			continue
		}
		out = append(out, core.Target{ID: cid, Conn: conn})
	}
	return out
}

// All snapshots every open connection, for presence broadcasts.
func (r *Registry) All() []core.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Target, 0, len(r.clients))
	for id, conn := range r.clients {
		out = append(out, core.Target{ID: id, Conn: conn})
	}
	return out
}

// Rooms lists the active rooms with their member counts.
func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.groups, func(name domain.RoomName, g *core.Group) core.RoomInfo {
		return core.RoomInfo{Name: name, MemberCount: g.Len()}
	})
}

// removeFromGroup drops the membership entry and returns the room's
// remaining members. Empty groups are evicted. Callers hold r.mu.
func (r *Registry) removeFromGroup(id domain.ClientID, room domain.RoomName) []core.Target {
	delete(r.rooms, id)
	g, ok := r.groups[room]
	if !ok {
		return nil
	}
	g.Remove(id)
	if g.Len() == 0 {
		delete(r.groups, room)
		return nil
	}
	return g.Snapshot()
}
