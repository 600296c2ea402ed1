package ws

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"chat-core/internal/protocol"
)

// ParticipantLister loads the current participant set of a chat.
type ParticipantLister interface {
	ListParticipantIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)
}

// Broadcaster pushes events to every live session of a chat's participants.
// Offline participants are skipped; there is no buffering or retry.
type Broadcaster struct {
	chats ParticipantLister
	hub   *Hub
	seq   atomic.Uint64
}

func NewBroadcaster(chats ParticipantLister, hub *Hub) *Broadcaster {
	return &Broadcaster{chats: chats, hub: hub}
}

// Broadcast sends env to every participant and returns how many users had a
// live session.
func (b *Broadcaster) Broadcast(ctx context.Context, chatID uuid.UUID, env protocol.Envelope) (int, error) {
	return b.BroadcastExcept(ctx, chatID, uuid.Nil, env)
}

// BroadcastExcept is Broadcast without the except user.
func (b *Broadcaster) BroadcastExcept(ctx context.Context, chatID, except uuid.UUID, env protocol.Envelope) (int, error) {
	ids, err := b.chats.ListParticipantIDs(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("list participants: %w", err)
	}
	env = b.stamp(env)
	delivered := 0
	for _, id := range ids {
		if id == except {
			continue
		}
		if b.hub.SendIfConnected(id, env) {
			delivered++
		}
	}
	return delivered, nil
}

// SendTo delivers env to one user's sessions.
func (b *Broadcaster) SendTo(userID uuid.UUID, env protocol.Envelope) bool {
	return b.hub.SendIfConnected(userID, b.stamp(env))
}

func (b *Broadcaster) stamp(env protocol.Envelope) protocol.Envelope {
	env.Seq = b.seq.Add(1)
	return env
}
