package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// userStripes shards the per-user connect/disconnect lock.
const userStripes = 64

// ChatDirectory is the slice of the chat store the realtime layer reads.
type ChatDirectory interface {
	ParticipantLister
	PeerFinder
}

// Realtime bundles the process-wide live state: the session hub, presence,
// typing and the broadcaster that writes through the hub.
type Realtime struct {
	Hub         *Hub
	Presence    *Presence
	Typing      *Typing
	Broadcaster *Broadcaster

	stripes [userStripes]sync.Mutex
}

func NewRealtime(chats ChatDirectory) *Realtime {
	hub := NewHub()
	return &Realtime{
		Hub:         hub,
		Presence:    NewPresence(hub, chats),
		Typing:      NewTyping(TypingThrottle),
		Broadcaster: NewBroadcaster(chats, hub),
	}
}

// userLock serializes session count changes with the presence write they
// trigger, so a disconnect racing a reconnect cannot leave presence offline.
func (r *Realtime) userLock(userID uuid.UUID) *sync.Mutex {
	return &r.stripes[int(userID[15])%userStripes]
}

// Connect registers a session. The first session of a user flips presence
// to online.
func (r *Realtime) Connect(ctx context.Context, userID uuid.UUID, client *Client) {
	mu := r.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	if r.Hub.Register(userID, client) == 1 {
		r.Presence.Online(ctx, userID)
	}
}

// Disconnect unregisters a session. Presence goes offline only when the
// user's last session closes.
func (r *Realtime) Disconnect(ctx context.Context, userID uuid.UUID, client *Client) {
	mu := r.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	if r.Hub.Unregister(userID, client) == 0 {
		r.Presence.Offline(ctx, userID)
		r.Typing.Forget(userID)
	}
}
