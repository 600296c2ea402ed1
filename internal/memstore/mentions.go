package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// MentionStore implements repositories.MentionRepository.
type MentionStore struct{ s *Store }

func (m *MentionStore) InsertIfAbsent(_ context.Context, rec models.MentionRecord) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := mentionKey{chat: rec.ChatID, user: rec.UserID, message: rec.MessageID}
	if _, exists := m.s.mentions[key]; exists {
		return false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.s.now()
	}
	m.s.mentions[key] = rec
	return true, nil
}

func (m *MentionStore) List(_ context.Context, chatID, userID uuid.UUID, limit int) ([]models.MentionRecord, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []models.MentionRecord
	for key, rec := range m.s.mentions {
		if key.chat == chatID && key.user == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MentionStore) Clear(_ context.Context, chatID, userID uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var cleared int64
	for key := range m.s.mentions {
		if key.chat == chatID && key.user == userID {
			delete(m.s.mentions, key)
			cleared++
		}
	}
	return cleared, nil
}

// UserStore implements repositories.UserRepository.
type UserStore struct{ s *Store }

func (u *UserStore) GetUser(_ context.Context, userID uuid.UUID) (models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (u *UserStore) UpsertUser(_ context.Context, user models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user.Username = strings.ToLower(user.Username)
	for id, other := range u.s.users {
		if id != user.ID && other.Username == user.Username {
			return repositories.ErrUsernameTaken
		}
	}
	if existing, ok := u.s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = u.s.now()
	}
	u.s.users[user.ID] = user
	return nil
}
