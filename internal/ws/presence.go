package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/protocol"
)

// PresenceFanoutCeiling bounds which group and channel co-members hear about
// a user's presence. Direct-chat peers are always included.
const PresenceFanoutCeiling = 100

// PresenceState is what the tracker knows about one user.
type PresenceState struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// PeerFinder resolves the users that should hear a presence change.
type PeerFinder interface {
	ListRelevantPeers(ctx context.Context, userID uuid.UUID, ceiling int) ([]uuid.UUID, error)
}

// PresenceMirror copies presence to a store shared between processes.
type PresenceMirror interface {
	SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error
	GetPresence(ctx context.Context, userID uuid.UUID) (online bool, lastSeen time.Time, found bool, err error)
}

// Presence tracks online state per user and announces changes.
type Presence struct {
	states sync.Map // uuid.UUID -> PresenceState
	hub    *Hub
	peers  PeerFinder
	mirror PresenceMirror
	now    func() time.Time
}

func NewPresence(hub *Hub, peers PeerFinder) *Presence {
	return &Presence{hub: hub, peers: peers, now: func() time.Time { return time.Now().UTC() }}
}

// WithMirror attaches an optional cross-process mirror.
func (p *Presence) WithMirror(mirror PresenceMirror) *Presence {
	p.mirror = mirror
	return p
}

func (p *Presence) SetClock(now func() time.Time) { p.now = now }

// Online marks userID online and tells relevant peers.
func (p *Presence) Online(ctx context.Context, userID uuid.UUID) {
	state := PresenceState{Online: true, LastSeen: p.now()}
	p.states.Store(userID, state)
	p.mirrorState(ctx, userID, state)
	p.announce(ctx, userID, state)
}

// Offline records last-seen and tells relevant peers.
func (p *Presence) Offline(ctx context.Context, userID uuid.UUID) {
	state := PresenceState{Online: false, LastSeen: p.now()}
	p.states.Store(userID, state)
	p.mirrorState(ctx, userID, state)
	p.announce(ctx, userID, state)
}

// Get returns the local state, falling back to the mirror for users this
// process has never seen.
func (p *Presence) Get(ctx context.Context, userID uuid.UUID) (PresenceState, bool) {
	if v, ok := p.states.Load(userID); ok {
		return v.(PresenceState), true
	}
	if p.mirror == nil {
		return PresenceState{}, false
	}
	online, lastSeen, found, err := p.mirror.GetPresence(ctx, userID)
	if err != nil {
		log.Printf("presence mirror read failed user_id=%s: %v", userID, err)
		return PresenceState{}, false
	}
	if !found {
		return PresenceState{}, false
	}
	return PresenceState{Online: online, LastSeen: lastSeen}, true
}

func (p *Presence) mirrorState(ctx context.Context, userID uuid.UUID, state PresenceState) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.SetPresence(ctx, userID, state.Online, state.LastSeen); err != nil {
		log.Printf("presence mirror write failed user_id=%s: %v", userID, err)
	}
}

func (p *Presence) announce(ctx context.Context, userID uuid.UUID, state PresenceState) {
	if p.peers == nil {
		return
	}
	peers, err := p.peers.ListRelevantPeers(ctx, userID, PresenceFanoutCeiling)
	if err != nil {
		log.Printf("presence peers lookup failed user_id=%s: %v", userID, err)
		return
	}
	update := protocol.PresenceUpdate{UserID: userID, Online: state.Online}
	if !state.Online {
		lastSeen := state.LastSeen
		update.LastSeen = &lastSeen
	}
	env := protocol.MustEncode(protocol.TypePresenceUpdate, "", update)
	for _, peer := range peers {
		if peer == userID {
			continue
		}
		p.hub.SendIfConnected(peer, env)
	}
}
