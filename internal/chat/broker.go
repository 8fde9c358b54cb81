package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Message is a validated chat message ready for fan-out. It exists only as
// a broadcast payload; nothing here persists it.
type Message struct {
	RoomKey   string
	Sender    Identity
	Body      string
	Timestamp time.Time
	Seq       uint64 // room-local, strictly increasing
}

// Broker validates chat messages and prepares them for delivery to the
// current members of a room.
type Broker struct {
	rooms  *Rooms
	maxLen int // rune limit on message bodies

	now func() time.Time // injectable clock for tests
}

func NewBroker(rooms *Rooms, maxLen int) *Broker {
	if maxLen <= 0 {
		maxLen = 2000
	}
	return &Broker{rooms: rooms, maxLen: maxLen, now: time.Now}
}

// Publish validates body, assigns the room's next sequence number and a
// server timestamp, and returns the message along with the member snapshot
// to deliver it to. The sender is included in the snapshot so its own view
// follows the canonical server-ordered stream.
//
// Errors: ErrEmptyMessage, ErrMessageTooLong, ErrNotAMember. A rejected
// message is never broadcast.
func (b *Broker) Publish(roomKey, connID string, sender Identity, body string) (Message, []string, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > b.maxLen {
		return Message{}, nil, ErrMessageTooLong
	}

	seq, err := b.rooms.NextSeq(roomKey, connID)
	if err != nil {
		return Message{}, nil, err
	}

	msg := Message{
		RoomKey:   roomKey,
		Sender:    sender,
		Body:      body,
		Timestamp: b.now().UTC(),
		Seq:       seq,
	}
	return msg, b.rooms.MembersOf(roomKey), nil
}
