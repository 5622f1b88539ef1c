package core

import (
	"encoding/json"

	"github.com/avolkov/parley/internal/domain"
)

// Inbound event types (client -> server).
const (
	EventSendMessage = "send-message"
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventPing        = "ping"
)

// Outbound event types (server -> client).
const (
	EventSession         = "session"
	EventMessageReceived = "message-received"
	EventPresenceCount   = "presence-count-changed"
	EventRoomJoined      = "room-joined-notification"
	EventRoomLeft        = "room-left-notification"
	EventRoomState       = "room-state"
	EventPong            = "pong"
)

// Envelope is the minimal frame shape used to dispatch on type.
type Envelope struct {
	Type string `json:"type"`
}

type SessionEvent struct {
	Type     string          `json:"type"`
	ClientID domain.ClientID `json:"clientId"`
}

type MessageEvent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	SenderID  domain.ClientID `json:"senderId"`
	Timestamp int64           `json:"timestamp"`
}

type PresenceCountEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type NotificationEvent struct {
	Type    string          `json:"type"`
	Room    domain.RoomName `json:"room"`
	Message string          `json:"message"`
}

type RoomStateEvent struct {
	Type  string          `json:"type"`
	Room  domain.RoomName `json:"room"`
	Count int             `json:"count"`
}

func NewSessionEvent(id domain.ClientID) SessionEvent {
	return SessionEvent{Type: EventSession, ClientID: id}
}

func NewMessageEvent(m domain.Message) MessageEvent {
	return MessageEvent{
		Type:      EventMessageReceived,
		Text:      m.Text,
		SenderID:  m.Sender,
		Timestamp: m.SentAt.UnixMilli(),
	}
}

func NewPresenceCountEvent(count int) PresenceCountEvent {
	return PresenceCountEvent{Type: EventPresenceCount, Count: count}
}

func NewNotificationEvent(n domain.Notification) NotificationEvent {
	typ := EventRoomJoined
	if n.Kind == domain.NotifyLeave {
		typ = EventRoomLeft
	}
	return NotificationEvent{Type: typ, Room: n.Room, Message: n.Message}
}

func NewRoomStateEvent(room domain.RoomName, count int) RoomStateEvent {
	return RoomStateEvent{Type: EventRoomState, Room: room, Count: count}
}

// Encode marshals an outbound event into a Frame.
func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
