// Package memstore keeps every repository in process memory. It backs tests
// and STORE=memory deployments.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

type pairKey struct {
	chat uuid.UUID
	user uuid.UUID
}

type mentionKey struct {
	chat    uuid.UUID
	user    uuid.UUID
	message uuid.UUID
}

type viewCounter struct {
	views      int64
	lastViewAt time.Time
}

type aggregateRead struct {
	isRead      bool
	firstReadAt time.Time
}

// Store is a mutex-guarded snapshot of the relational model.
type Store struct {
	mu sync.RWMutex

	users        map[uuid.UUID]models.User
	chats        map[uuid.UUID]models.Chat
	directKeys   map[string]uuid.UUID
	handles      map[string]uuid.UUID
	participants map[uuid.UUID]map[uuid.UUID]time.Time
	members      map[pairKey]models.Member
	grants       map[pairKey]models.AdminGrant
	mutes        map[pairKey]models.Mute
	messages     map[uuid.UUID]models.Message
	chatMessages map[uuid.UUID][]uuid.UUID
	views        map[uuid.UUID]viewCounter
	aggregates   map[uuid.UUID]aggregateRead
	perReader    map[uuid.UUID]map[uuid.UUID]time.Time
	mentions     map[mentionKey]models.MentionRecord

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]models.User),
		chats:        make(map[uuid.UUID]models.Chat),
		directKeys:   make(map[string]uuid.UUID),
		handles:      make(map[string]uuid.UUID),
		participants: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		members:      make(map[pairKey]models.Member),
		grants:       make(map[pairKey]models.AdminGrant),
		mutes:        make(map[pairKey]models.Mute),
		messages:     make(map[uuid.UUID]models.Message),
		chatMessages: make(map[uuid.UUID][]uuid.UUID),
		views:        make(map[uuid.UUID]viewCounter),
		aggregates:   make(map[uuid.UUID]aggregateRead),
		perReader:    make(map[uuid.UUID]map[uuid.UUID]time.Time),
		mentions:     make(map[mentionKey]models.MentionRecord),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's notion of now for default timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Chats() *ChatStore       { return &ChatStore{s: s} }
func (s *Store) Members() *MemberStore   { return &MemberStore{s: s} }
func (s *Store) Messages() *MessageStore { return &MessageStore{s: s} }
func (s *Store) Reads() *ReadStore       { return &ReadStore{s: s} }
func (s *Store) Mentions() *MentionStore { return &MentionStore{s: s} }
func (s *Store) Users() *UserStore       { return &UserStore{s: s} }

var (
	_ repositories.ChatRepository    = (*ChatStore)(nil)
	_ repositories.MemberRepository  = (*MemberStore)(nil)
	_ repositories.MessageRepository = (*MessageStore)(nil)
	_ repositories.ReadRepository    = (*ReadStore)(nil)
	_ repositories.MentionRepository = (*MentionStore)(nil)
	_ repositories.UserRepository    = (*UserStore)(nil)
)

// ReadSnapshot reports which read representations hold a row for a message.
type ReadSnapshot struct {
	Views       int64
	Aggregate   bool
	FirstReadAt time.Time
	Readers     int
}

// ReadState inspects the stored read representations of a message.
func (s *Store) ReadState(messageID uuid.UUID) ReadSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := ReadSnapshot{}
	if v, ok := s.views[messageID]; ok {
		snap.Views = v.views
	}
	if a, ok := s.aggregates[messageID]; ok {
		snap.Aggregate = a.isRead
		snap.FirstReadAt = a.firstReadAt
	}
	snap.Readers = len(s.perReader[messageID])
	return snap
}

// MessageCount returns how many messages a chat holds, deleted included.
func (s *Store) MessageCount(chatID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chatMessages[chatID])
}

func (s *Store) isParticipantLocked(chatID, userID uuid.UUID) bool {
	_, ok := s.participants[chatID][userID]
	return ok
}

func (s *Store) addMembershipLocked(chatID, userID uuid.UUID, at time.Time) bool {
	set, ok := s.participants[chatID]
	if !ok {
		set = make(map[uuid.UUID]time.Time)
		s.participants[chatID] = set
	}
	if _, exists := set[userID]; exists {
		return false
	}
	set[userID] = at
	key := pairKey{chat: chatID, user: userID}
	if _, exists := s.members[key]; !exists {
		s.members[key] = models.Member{ChatID: chatID, UserID: userID}
	}
	return true
}

func sortedParticipantIDs(set map[uuid.UUID]time.Time) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := set[ids[i]], set[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i].String() < ids[j].String()
	})
	return ids
}
