package core

import "github.com/avolkov/parley/internal/domain"

// Group is a room's member set: the transport-level group primitive the
// membership table fans out through. It carries no lock of its own; the
// registry mutates and reads it only under its single coarse mutex.
type Group struct {
	name    domain.RoomName
	members map[domain.ClientID]SignalConnection
}

func NewGroup(name domain.RoomName) *Group {
	return &Group{
		name:    name,
		members: make(map[domain.ClientID]SignalConnection),
	}
}

func (g *Group) Name() domain.RoomName { return g.name }

func (g *Group) Len() int { return len(g.members) }

func (g *Group) Add(id domain.ClientID, conn SignalConnection) {
	g.members[id] = conn
}

func (g *Group) Remove(id domain.ClientID) {
	delete(g.members, id)
}

func (g *Group) Has(id domain.ClientID) bool {
	_, ok := g.members[id]
	return ok
}

// Snapshot copies the member connections so emission can happen after the
// registry lock is released.
func (g *Group) Snapshot() []Target {
	out := make([]Target, 0, len(g.members))
	for id, conn := range g.members {
		out = append(out, Target{ID: id, Conn: conn})
	}
	return out
}

// Target pairs a client id with its connection for post-lock emission.
type Target struct {
	ID   domain.ClientID
	Conn SignalConnection
}
