package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/internal/app"
	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/internal/chat"
	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/pkg/auth"
	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/pkg/metrics"
	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/pkg/ratelimit"
)

// Hub is the session gateway: it owns connection lifecycles, translates
// inbound wire events into registry/rooms/broker calls, and pushes outbound
// events to members. It is the chat.Sink for membership notifications.
type Hub struct {
	log     *slog.Logger
	bus     *Bus // nil disables cross-instance relay
	jwt     *auth.JWT
	limiter *ratelimit.Limiter

	registry *chat.Registry
	rooms    *chat.Rooms
	broker   *chat.Broker

	instanceID string

	mu    sync.RWMutex
	conns map[string]*Conn // connection id -> transport
}

// NewHub wires the chat core to the transport layer.
func NewHub(logger *slog.Logger, bus *Bus, j *auth.JWT, cfg app.Config) *Hub {
	h := &Hub{
		log:        logger,
		bus:        bus,
		jwt:        j,
		limiter:    ratelimit.New(cfg.MsgRateMax, cfg.MsgRateWindow),
		instanceID: uuid.NewString(),
		conns:      map[string]*Conn{},
	}
	h.registry = chat.NewRegistry()
	h.rooms = chat.NewRooms(h.registry, h)
	h.broker = chat.NewBroker(h.rooms, cfg.MaxMessageLen)
	return h
}

// Rooms exposes the room table for the HTTP status handlers.
func (h *Hub) Rooms() *chat.Rooms { return h.rooms }

// Run relays frames published by other gateway instances to local members.
func (h *Hub) Run(ctx context.Context) {
	if h.bus != nil {
		go h.bus.Subscribe(ctx, func(f Frame) {
			if f.Origin == h.instanceID {
				return // broadcast locally already
			}
			members := h.rooms.MembersOf(f.Room)
			if len(members) == 0 {
				return
			}
			h.sendTo(members, f.Payload)
			metrics.BusFramesRelayed.Inc()
		})
	}
	<-ctx.Done()
}

// ServeWS handles a new /ws connection for the asteroid chat.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := chat.Identity{}
	if tok := r.URL.Query().Get("token"); tok != "" {
		uid, err := h.jwt.Verify(tok)
		if err != nil {
			// Bad tokens degrade to anonymous; chat does not require auth
			h.log.Warn("ws.token", "err", err)
		} else {
			identity.UserID = uid
		}
	}

	wsc, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewConn(uuid.NewString(), wsc)
	if err := h.registry.Register(c.ID(), identity); err != nil {
		h.log.Error("ws.register", "conn", c.ID(), "err", err)
		_ = c.Close()
		return
	}
	h.addConn(c)
	metrics.ConnectionsOpen.Inc()
	h.log.Info("ws.connect", "conn", c.ID(), "user", identity.UserID)

	// Outbound writer
	go c.WriteLoop(ctx)
	c.Send(encode(EventConnectionEstablished, connectionEstablishedData{SID: c.ID()}))

	// Inbound reader: one envelope per frame; malformed frames get an error
	// reply and the connection stays open
	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
			c.Send(encode(EventError, errorData{Message: "malformed event"}))
			continue
		}
		h.handleEvent(ctx, c, env)
	}

	h.disconnect(context.WithoutCancel(ctx), c)
	_ = c.Close()
}

func (h *Hub) handleEvent(ctx context.Context, c *Conn, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		h.handleJoin(ctx, c, env.Data)
	case EventLeaveRoom:
		h.handleLeave(ctx, c, env.Data)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, env.Data)
	case EventGetOnlineUsers:
		h.handleGetOnlineUsers(c, env.Data)
	default:
		c.Send(encode(EventError, errorData{Message: "unknown event: " + env.Event}))
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Conn, data json.RawMessage) {
	var d joinRoomData
	_ = json.Unmarshal(data, &d)
	if d.AsteroidID == "" {
		c.Send(encode(EventError, errorData{Message: "asteroid_id required"}))
		return
	}

	// The email only arrives with the join, so relabel now
	_ = h.registry.SetLabel(c.ID(), d.UserEmail)
	label := h.labelOf(c.ID())

	count := h.rooms.Join(d.AsteroidID, c.ID()) // sink notifies the others
	h.broadcastPresence(d.AsteroidID)
	h.publish(ctx, d.AsteroidID, encode(EventUserJoined, presenceData{
		AsteroidID: d.AsteroidID, UserEmail: label,
	}))
	h.syncRoomsGauge()

	h.log.Info("room.join", "conn", c.ID(), "room", d.AsteroidID, "user", label, "count", count)
}

func (h *Hub) handleLeave(ctx context.Context, c *Conn, data json.RawMessage) {
	var d leaveRoomData
	_ = json.Unmarshal(data, &d)
	if d.AsteroidID == "" {
		return
	}

	label := h.labelOf(c.ID())
	wasMember := false
	for _, id := range h.rooms.MembersOf(d.AsteroidID) {
		if id == c.ID() {
			wasMember = true
			break
		}
	}
	count, deleted := h.rooms.Leave(d.AsteroidID, c.ID())
	if wasMember && count > 0 {
		h.broadcastPresence(d.AsteroidID)
		h.publish(ctx, d.AsteroidID, encode(EventUserLeft, presenceData{
			AsteroidID: d.AsteroidID, UserEmail: label,
		}))
	}
	h.syncRoomsGauge()

	h.log.Info("room.leave", "conn", c.ID(), "room", d.AsteroidID, "count", count, "deleted", deleted)
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Conn, data json.RawMessage) {
	var d sendMessageData
	_ = json.Unmarshal(data, &d)
	if d.AsteroidID == "" {
		c.Send(encode(EventError, errorData{Message: "asteroid_id and message required"}))
		return
	}

	if !h.limiter.Allow(c.ID()) {
		metrics.MessagesRejected.WithLabelValues("rate_limited").Inc()
		c.Send(encode(EventError, errorData{Message: "rate limit exceeded"}))
		return
	}

	sender, err := h.registry.IdentityOf(c.ID())
	if err != nil {
		c.Send(encode(EventError, errorData{Message: "not connected"}))
		return
	}
	if sender.UserID == "" {
		// Unauthenticated sessions may still carry the app-level user id
		sender.UserID = d.UserID
	}

	msg, members, err := h.broker.Publish(d.AsteroidID, c.ID(), sender, d.Message)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues(rejectReason(err)).Inc()
		// Rejections go to the sender only, never the room
		c.Send(encode(EventError, errorData{Message: err.Error()}))
		return
	}

	payload := encode(EventNewMessage, newMessageData{
		AsteroidID: msg.RoomKey,
		UserEmail:  msg.Sender.Label,
		UserID:     msg.Sender.UserID,
		Message:    msg.Body,
		Timestamp:  msg.Timestamp.Format(time.RFC3339Nano),
		Seq:        msg.Seq,
	})
	h.sendTo(members, payload)
	h.publish(ctx, msg.RoomKey, payload)
	metrics.MessagesPublished.Inc()

	h.log.Debug("room.message", "conn", c.ID(), "room", msg.RoomKey, "seq", msg.Seq)
}

func (h *Hub) handleGetOnlineUsers(c *Conn, data json.RawMessage) {
	var d onlineUsersQuery
	_ = json.Unmarshal(data, &d)
	if d.AsteroidID == "" {
		return
	}
	// Reply to the requester only
	c.Send(encode(EventOnlineUsers, h.onlineUsers(d.AsteroidID)))
}

// disconnect tears down every trace of the connection: registry entry,
// room memberships, rate-limit bucket, transport map. Remaining members of
// each affected room get updated presence.
func (h *Hub) disconnect(ctx context.Context, c *Conn) {
	h.removeConn(c.ID())
	metrics.ConnectionsOpen.Dec()

	label := h.labelOf(c.ID())
	keys := h.registry.Deregister(c.ID())
	h.rooms.LeaveAll(c.ID(), keys)
	h.limiter.Forget(c.ID())

	for _, key := range keys {
		if h.rooms.PresenceCount(key) == 0 {
			continue
		}
		h.broadcastPresence(key)
		h.publish(ctx, key, encode(EventUserLeft, presenceData{
			AsteroidID: key, UserEmail: label,
		}))
	}
	h.syncRoomsGauge()

	h.log.Info("ws.disconnect", "conn", c.ID(), "rooms", len(keys))
}

// broadcastPresence pushes the current online_users snapshot to everyone in
// the room, the push-first counterpart of the get_online_users poll.
func (h *Hub) broadcastPresence(roomKey string) {
	snapshot := h.onlineUsers(roomKey)
	if snapshot.Count == 0 {
		return
	}
	h.sendTo(h.rooms.MembersOf(roomKey), encode(EventOnlineUsers, snapshot))
}

func (h *Hub) onlineUsers(roomKey string) onlineUsersData {
	members := h.rooms.MembersOf(roomKey)
	users := make([]string, 0, len(members))
	for _, id := range members {
		if ident, err := h.registry.IdentityOf(id); err == nil {
			users = append(users, ident.Label)
		}
	}
	return onlineUsersData{AsteroidID: roomKey, Users: users, Count: len(members)}
}

// MemberJoined implements chat.Sink: tell the existing members someone
// arrived. Must not block; Conn.Send never does.
func (h *Hub) MemberJoined(roomKey string, members []string, label string) {
	h.sendTo(members, encode(EventUserJoined, presenceData{AsteroidID: roomKey, UserEmail: label}))
}

// MemberLeft implements chat.Sink for the remaining members.
func (h *Hub) MemberLeft(roomKey string, members []string, label string) {
	h.sendTo(members, encode(EventUserLeft, presenceData{AsteroidID: roomKey, UserEmail: label}))
}

// sendTo queues payload on every given connection, skipping ids whose
// transport is gone.
func (h *Hub) sendTo(connIDs []string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		if c := h.conns[id]; c != nil {
			c.Send(payload)
		}
	}
}

// publish relays a frame to other gateway instances, best effort.
func (h *Hub) publish(ctx context.Context, roomKey string, payload []byte) {
	if h.bus == nil {
		return
	}
	err := h.bus.Publish(ctx, Frame{Room: roomKey, Origin: h.instanceID, Payload: payload})
	if err != nil {
		h.log.Warn("bus.publish", "room", roomKey, "err", err)
	}
}

func (h *Hub) addConn(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
}

func (h *Hub) removeConn(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

func (h *Hub) labelOf(connID string) string {
	ident, err := h.registry.IdentityOf(connID)
	if err != nil {
		return "Anonymous"
	}
	return ident.Label
}

func (h *Hub) syncRoomsGauge() {
	metrics.RoomsActive.Set(float64(len(h.rooms.Snapshot())))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return "empty"
	case errors.Is(err, chat.ErrMessageTooLong):
		return "too_long"
	case errors.Is(err, chat.ErrNotAMember):
		return "not_a_member"
	default:
		return "other"
	}
}
