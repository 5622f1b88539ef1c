package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrMessageEmpty = errors.New("message empty")

// Message is one inbound chat payload. It lives for the duration of a
// single dispatch and is never stored.
type Message struct {
	Sender ClientID
	Text   string
	SentAt time.Time
}

// NewMessage trims the text and rejects messages that are empty after
// trimming.
func NewMessage(sender ClientID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrMessageEmpty
	}
	return Message{Sender: sender, Text: text, SentAt: time.Now()}, nil
}

type NotificationKind string

const (
	NotifyJoin  NotificationKind = "join"
	NotifyLeave NotificationKind = "leave"
)

// Notification is the ephemeral payload sent to a room when one member's
// membership changes.
type Notification struct {
	Kind    NotificationKind
	Room    RoomName
	Message string
}

func JoinNotification(id ClientID, room RoomName) Notification {
	return Notification{
		Kind:    NotifyJoin,
		Room:    room,
		Message: id.Short() + " joined " + string(room),
	}
}

func LeaveNotification(id ClientID, room RoomName) Notification {
	return Notification{
		Kind:    NotifyLeave,
		Room:    room,
		Message: id.Short() + " left " + string(room),
	}
}
