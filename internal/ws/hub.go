package ws

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"chat-core/internal/observability"
	"chat-core/internal/protocol"
)

// SendBuffer is the outbound queue length of one session. A session that
// falls this far behind is dropped rather than blocking broadcasters.
const SendBuffer = 256

// Client is the outbound side of one live session.
type Client struct {
	info    ConnInfo
	send    chan protocol.Envelope
	dropped chan struct{}
	once    sync.Once
}

func NewClient(info ConnInfo) *Client {
	if info.ConnID == "" {
		info.ConnID = newConnID()
	}
	return &Client{
		info:    info,
		send:    make(chan protocol.Envelope, SendBuffer),
		dropped: make(chan struct{}),
	}
}

func (c *Client) Info() ConnInfo { return c.info }

// Outbound yields events queued for this session.
func (c *Client) Outbound() <-chan protocol.Envelope { return c.send }

// Dropped is closed when the hub gives up on this session.
func (c *Client) Dropped() <-chan struct{} { return c.dropped }

func (c *Client) drop() {
	c.once.Do(func() { close(c.dropped) })
}

// Hub is the session directory: user id to the set of that user's live
// sessions. It is built once at startup and passed to whatever needs it.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[uuid.UUID]map[string]*Client)}
}

// Register adds a session for userID and returns how many the user now has.
func (h *Hub) Register(userID uuid.UUID, client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[userID]; !ok {
		h.sessions[userID] = make(map[string]*Client)
	}
	h.sessions[userID][client.info.ConnID] = client
	return len(h.sessions[userID])
}

// Unregister removes one session and returns how many the user still has.
// Unknown sessions are ignored.
func (h *Hub) Unregister(userID uuid.UUID, client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.sessions[userID]
	if !ok {
		return 0
	}
	if current, ok := conns[client.info.ConnID]; ok && current == client {
		delete(conns, client.info.ConnID)
	}
	if len(conns) == 0 {
		delete(h.sessions, userID)
		return 0
	}
	return len(conns)
}

// Connected reports whether userID has at least one live session.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// SendIfConnected queues env on every session of userID. It returns false
// when nothing was queued; the event is then dropped, never retried.
func (h *Hub) SendIfConnected(userID uuid.UUID, env protocol.Envelope) bool {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.sessions[userID]))
	for _, c := range h.sessions[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		observability.IncBroadcastDrop("offline")
		return false
	}

	delivered := false
	for _, c := range conns {
		select {
		case c.send <- env:
			delivered = true
			observability.IncBroadcastDelivery(string(env.Type))
		default:
			observability.IncBroadcastDrop("buffer_full")
			log.Printf("ws send buffer full user_id=%s conn_id=%s", userID, c.info.ConnID)
			h.Unregister(userID, c)
			c.drop()
			publishSessionEvent(context.Background(), "ws_error", c.info, "send buffer full")
		}
	}
	return delivered
}
