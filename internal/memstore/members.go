package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"chat-core/internal/models"
)

// MemberStore implements repositories.MemberRepository.
type MemberStore struct{ s *Store }

func (m *MemberStore) GetAdminGrant(_ context.Context, chatID, userID uuid.UUID) (models.AdminGrant, bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	grant, ok := m.s.grants[pairKey{chat: chatID, user: userID}]
	return grant, ok, nil
}

func (m *MemberStore) UpsertAdminGrant(_ context.Context, grant models.AdminGrant) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.grants[pairKey{chat: grant.ChatID, user: grant.UserID}] = grant
	return nil
}

func (m *MemberStore) DeleteAdminGrant(_ context.Context, chatID, userID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.grants, pairKey{chat: chatID, user: userID})
	return nil
}

func (m *MemberStore) ListAdminGrants(_ context.Context, chatID uuid.UUID) ([]models.AdminGrant, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []models.AdminGrant
	for key, grant := range m.s.grants {
		if key.chat == chatID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (m *MemberStore) GetMute(_ context.Context, chatID, userID uuid.UUID) (models.Mute, bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	mute, ok := m.s.mutes[pairKey{chat: chatID, user: userID}]
	return mute, ok, nil
}

func (m *MemberStore) UpsertMute(_ context.Context, mute models.Mute) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.mutes[pairKey{chat: mute.ChatID, user: mute.UserID}] = mute
	return nil
}

func (m *MemberStore) DeleteMute(_ context.Context, chatID, userID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.mutes, pairKey{chat: chatID, user: userID})
	return nil
}

func (m *MemberStore) GetMember(_ context.Context, chatID, userID uuid.UUID) (models.Member, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	member, ok := m.s.members[pairKey{chat: chatID, user: userID}]
	if !ok {
		return models.Member{ChatID: chatID, UserID: userID}, nil
	}
	return member, nil
}

func (m *MemberStore) AdvanceLastRead(_ context.Context, chatID, userID, messageID uuid.UUID) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey{chat: chatID, user: userID}
	member, ok := m.s.members[key]
	if !ok {
		member = models.Member{ChatID: chatID, UserID: userID}
	}
	next, ok := m.s.messages[messageID]
	if !ok {
		return false, nil
	}
	if member.LastReadMessageID != nil {
		if current, exists := m.s.messages[*member.LastReadMessageID]; exists && !next.Newer(current) {
			return false, nil
		}
	}
	id := messageID
	member.LastReadMessageID = &id
	m.s.members[key] = member
	return true, nil
}

func (m *MemberStore) SetNote(_ context.Context, chatID, userID uuid.UUID, note string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey{chat: chatID, user: userID}
	member, ok := m.s.members[key]
	if !ok {
		member = models.Member{ChatID: chatID, UserID: userID}
	}
	member.Note = note
	m.s.members[key] = member
	return nil
}

func (m *MemberStore) SetNotifyPrefs(_ context.Context, chatID, userID uuid.UUID, prefs models.NotifyPrefs) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey{chat: chatID, user: userID}
	member, ok := m.s.members[key]
	if !ok {
		member = models.Member{ChatID: chatID, UserID: userID}
	}
	member.MuteForever = prefs.MuteForever
	member.NotifyMuteUntil = prefs.MuteUntil
	member.NotifyType = prefs.NotifyType
	m.s.members[key] = member
	return nil
}
