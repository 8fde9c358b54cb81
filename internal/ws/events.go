package ws

import "encoding/json"

// Wire protocol: one JSON envelope per websocket text frame, both directions.

const (
	// inbound
	EventJoinRoom       = "join_asteroid_room"
	EventLeaveRoom      = "leave_asteroid_room"
	EventSendMessage    = "send_message"
	EventGetOnlineUsers = "get_online_users"

	// outbound
	EventConnectionEstablished = "connection_established"
	EventNewMessage            = "new_message"
	EventUserJoined            = "user_joined"
	EventUserLeft              = "user_left"
	EventOnlineUsers           = "online_users"
	EventError                 = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinRoomData struct {
	AsteroidID string `json:"asteroid_id"`
	UserEmail  string `json:"user_email"`
}

type leaveRoomData struct {
	AsteroidID string `json:"asteroid_id"`
}

type sendMessageData struct {
	AsteroidID string `json:"asteroid_id"`
	Message    string `json:"message"`
	UserID     string `json:"user_id,omitempty"`
}

type onlineUsersQuery struct {
	AsteroidID string `json:"asteroid_id"`
}

type connectionEstablishedData struct {
	SID string `json:"sid"`
}

type newMessageData struct {
	AsteroidID string `json:"asteroid_id"`
	UserEmail  string `json:"user_email"`
	UserID     string `json:"user_id,omitempty"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Seq        uint64 `json:"seq"`
}

type presenceData struct {
	AsteroidID string `json:"asteroid_id"`
	UserEmail  string `json:"user_email"`
}

type onlineUsersData struct {
	AsteroidID string   `json:"asteroid_id"`
	Users      []string `json:"users"`
	Count      int      `json:"count"`
}

type errorData struct {
	Message string `json:"message"`
}

// encode marshals an outbound envelope. Payload types here never fail to
// marshal, so the error is dropped.
func encode(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}
