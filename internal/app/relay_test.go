package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avolkov/parley/internal/core"
	"github.com/avolkov/parley/internal/domain"
)

func (f *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) eventsOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, e := range f.events(t) {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func newTestRelay() *Relay {
	return NewRelay(NewRegistry(), SimplePolicy{})
}

func connect(t *testing.T, rl *Relay, id domain.ClientID) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	require.NoError(t, rl.OnConnect(id, conn))
	return conn
}

func TestRelay_Connect_AnnouncesSessionAndPresence(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()

	conn := connect(t, rl, "a")

	events := conn.events(t)
	req.Len(events, 2)
	req.Equal(core.EventSession, events[0]["type"])
	req.Equal("a", events[0]["clientId"])
	req.Equal(core.EventPresenceCount, events[1]["type"])
	req.EqualValues(1, events[1]["count"])
}

func TestRelay_PresenceCount_ReachesEveryClient(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()

	a := connect(t, rl, "a")
	b := connect(t, rl, "b")

	// b's arrival is announced to a as well
	counts := a.eventsOfType(t, core.EventPresenceCount)
	req.Len(counts, 2)
	req.EqualValues(2, counts[1]["count"])

	rl.OnDisconnect("b")

	counts = a.eventsOfType(t, core.EventPresenceCount)
	req.Len(counts, 3)
	req.EqualValues(1, counts[2]["count"])

	// the departed client gets nothing further
	req.Len(b.eventsOfType(t, core.EventPresenceCount), 1)
}

func TestRelay_DuplicateConnect_IsRefusedSilently(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()

	first := connect(t, rl, "a")
	first.drain()

	err := rl.OnConnect("a", &fakeConn{})

	req.ErrorIs(err, ErrDuplicateConnection)
	// no presence update went out for the refused connect
	req.Empty(first.eventsOfType(t, core.EventPresenceCount))
	req.Equal(1, rl.Registry.Size())
}

func TestRelay_GlobalMessage_ReachesRoomlessClientsOnly(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	c := connect(t, rl, "c")
	rl.Join("c", "x")
	a.drain()
	b.drain()
	c.drain()

	rl.OnMessage("a", "hello world")

	for _, conn := range []*fakeConn{a, b} {
		msgs := conn.eventsOfType(t, core.EventMessageReceived)
		req.Len(msgs, 1)
		req.Equal("hello world", msgs[0]["text"])
		req.Equal("a", msgs[0]["senderId"])
		req.NotZero(msgs[0]["timestamp"])
	}
	req.Empty(c.eventsOfType(t, core.EventMessageReceived))
}

func TestRelay_RoomMessage_ReachesRoomMembersOnly(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	c := connect(t, rl, "c")
	rl.Join("a", "x")
	rl.Join("b", "x")
	a.drain()
	b.drain()
	c.drain()

	rl.OnMessage("a", "room only")

	for _, conn := range []*fakeConn{a, b} {
		msgs := conn.eventsOfType(t, core.EventMessageReceived)
		req.Len(msgs, 1)
		req.Equal("room only", msgs[0]["text"])
	}
	req.Empty(c.eventsOfType(t, core.EventMessageReceived))
}

func TestRelay_EmptyMessage_IsDroppedSilently(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	a.drain()
	b.drain()

	rl.OnMessage("a", "   \t  ")

	req.Empty(a.events(t))
	req.Empty(b.events(t))
}

func TestRelay_Join_NotifiesRoomIncludingJoiner(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	rl.Join("a", "x")
	a.drain()
	b.drain()

	rl.Join("b", "x")

	for _, conn := range []*fakeConn{a, b} {
		joins := conn.eventsOfType(t, core.EventRoomJoined)
		req.Len(joins, 1)
		req.Equal("x", joins[0]["room"])
		req.Contains(joins[0]["message"], "joined x")
	}
}

func TestRelay_RoomSwitch_EmitsLeftThenJoined(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	c := connect(t, rl, "c")
	rl.Join("a", "x")
	rl.Join("b", "x")
	rl.Join("c", "y")
	a.drain()
	b.drain()
	c.drain()

	// When a switches from x to y
	rl.Join("a", "y")

	// Then x's remaining member got exactly one left notification
	lefts := b.eventsOfType(t, core.EventRoomLeft)
	req.Len(lefts, 1)
	req.Equal("x", lefts[0]["room"])
	req.Empty(b.eventsOfType(t, core.EventRoomJoined))

	// And y's member got exactly one joined notification
	joins := c.eventsOfType(t, core.EventRoomJoined)
	req.Len(joins, 1)
	req.Equal("y", joins[0]["room"])
	req.Empty(c.eventsOfType(t, core.EventRoomLeft))

	// And the switcher saw its own left-then-joined sequence in order
	events := a.events(t)
	req.Len(events, 2)
	req.Equal(core.EventRoomLeft, events[0]["type"])
	req.Equal(core.EventRoomJoined, events[1]["type"])
}

func TestRelay_RejoinCurrentRoom_EmitsNothing(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	rl.Join("a", "x")
	rl.Join("b", "x")
	a.drain()
	b.drain()

	res := rl.Join("a", "x")

	req.Equal(AlreadyMember, res.Status)
	req.Empty(a.events(t))
	req.Empty(b.events(t))
}

func TestRelay_Leave_NotifiesRemainingMembersOnly(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	rl.Join("a", "x")
	rl.Join("b", "x")
	a.drain()
	b.drain()

	rl.Leave("a", "x")

	lefts := b.eventsOfType(t, core.EventRoomLeft)
	req.Len(lefts, 1)
	req.Contains(lefts[0]["message"], "left x")
	req.Empty(a.events(t))
}

func TestRelay_Leave_WhenNotAMember_IsNoop(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	rl.Join("b", "x")
	a.drain()
	b.drain()

	rl.Leave("a", "x")

	req.Empty(a.events(t))
	req.Empty(b.events(t))
}

func TestRelay_Disconnect_NotifiesRoomOnce(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()
	a := connect(t, rl, "a")
	b := connect(t, rl, "b")
	c := connect(t, rl, "c")
	rl.Join("a", "x")
	rl.Join("b", "x")
	rl.Join("c", "y")
	a.drain()
	b.drain()
	c.drain()

	rl.OnDisconnect("a")

	lefts := b.eventsOfType(t, core.EventRoomLeft)
	req.Len(lefts, 1)
	req.Equal("x", lefts[0]["room"])

	// clients in other rooms see the presence change but no notification
	req.Empty(c.eventsOfType(t, core.EventRoomLeft))
	req.Len(c.eventsOfType(t, core.EventPresenceCount), 1)
}

type kickPolicy struct{}

func (kickPolicy) OnBackPressure(id domain.ClientID) BackpressureAction {
	return KickMember
}

func TestRelay_KickPolicy_EvictsUnreachableClient(t *testing.T) {
	req := require.New(t)
	rl := NewRelay(NewRegistry(), kickPolicy{})
	a := connect(t, rl, "a")
	stuck := &fakeConn{fail: true}
	// the failing conn never acks its session event, that is fine
	req.NoError(rl.OnConnect("b", stuck))
	a.drain()

	rl.OnMessage("a", "anyone there?")

	req.True(stuck.closed)
	req.Equal(1, rl.Registry.Size())
}

// Full walk of the two-client scenario: global chat, room switch, room
// scoping, and the return to global scope.
func TestRelay_TwoClientScenario(t *testing.T) {
	req := require.New(t)
	rl := newTestRelay()

	a := connect(t, rl, "a")
	b := connect(t, rl, "b")

	// A sends "hi" in global scope: both receive it
	rl.OnMessage("a", "hi")
	req.Len(a.eventsOfType(t, core.EventMessageReceived), 1)
	req.Len(b.eventsOfType(t, core.EventMessageReceived), 1)

	// A joins room x
	res := rl.Join("a", "x")
	req.Equal(Joined, res.Status)
	req.Equal(1, res.Count)
	a.drain()
	b.drain()

	// B sends "yo" while global: only B receives it
	rl.OnMessage("b", "yo")
	req.Empty(a.eventsOfType(t, core.EventMessageReceived))
	req.Len(b.eventsOfType(t, core.EventMessageReceived), 1)

	// A sends "hey" in x: only A receives it
	rl.OnMessage("a", "hey")
	req.Len(a.eventsOfType(t, core.EventMessageReceived), 1)
	req.Len(b.eventsOfType(t, core.EventMessageReceived), 1)
	a.drain()
	b.drain()

	// B joins x: both members get the joined notification
	res = rl.Join("b", "x")
	req.Equal(2, res.Count)
	req.Len(a.eventsOfType(t, core.EventRoomJoined), 1)
	req.Len(b.eventsOfType(t, core.EventRoomJoined), 1)
	a.drain()
	b.drain()

	// A leaves x: B, sole remaining member, gets the left notification
	rl.Leave("a", "x")
	req.Empty(a.events(t))
	req.Len(b.eventsOfType(t, core.EventRoomLeft), 1)

	// A is back in global scope
	_, ok := rl.Registry.RoomOf("a")
	req.False(ok)
}
