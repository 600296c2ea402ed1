package memstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// MessageStore implements repositories.MessageRepository.
type MessageStore struct{ s *Store }

func (m *MessageStore) Create(_ context.Context, msg models.Message) (models.Message, error) {
	if msg.Content == nil {
		return models.Message{}, errors.New("empty content")
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.chats[msg.ChatID]; !ok {
		return models.Message{}, repositories.ErrChatNotFound
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.s.now()
	}
	m.s.messages[msg.ID] = msg
	m.s.chatMessages[msg.ChatID] = append(m.s.chatMessages[msg.ChatID], msg.ID)
	return msg, nil
}

func (m *MessageStore) Get(_ context.Context, messageID uuid.UUID) (models.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	msg, ok := m.s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (m *MessageStore) ListByIDs(_ context.Context, chatID uuid.UUID, ids []uuid.UUID) ([]models.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{}, len(ids))
	var out []models.Message
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if msg, ok := m.s.messages[id]; ok && msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Newer(out[i]) })
	return out, nil
}

func (m *MessageStore) Edit(_ context.Context, messageID uuid.UUID, content models.Content, editedAt time.Time) (models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.messages[messageID]
	if !ok || msg.Deleted() {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	at := editedAt
	msg.Content = content
	msg.EditedAt = &at
	m.s.messages[messageID] = msg
	return msg, nil
}

func (m *MessageStore) SoftDelete(_ context.Context, chatID uuid.UUID, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var deleted []uuid.UUID
	for _, id := range ids {
		msg, ok := m.s.messages[id]
		if !ok || msg.ChatID != chatID || msg.Deleted() {
			continue
		}
		deletedAt := at
		msg.DeletedAt = &deletedAt
		m.s.messages[id] = msg
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (m *MessageStore) SoftDeleteAll(_ context.Context, chatID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var deleted []uuid.UUID
	for _, id := range m.s.chatMessages[chatID] {
		msg := m.s.messages[id]
		if msg.Deleted() {
			continue
		}
		deletedAt := at
		msg.DeletedAt = &deletedAt
		m.s.messages[id] = msg
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (m *MessageStore) ListBefore(_ context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []models.Message
	for _, id := range m.s.chatMessages[chatID] {
		msg := m.s.messages[id]
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Newer(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MessageStore) CountAfter(_ context.Context, chatID uuid.UUID, after *uuid.UUID, excludeSender uuid.UUID) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var ref *models.Message
	if after != nil {
		msg, ok := m.s.messages[*after]
		if !ok {
			return 0, nil
		}
		ref = &msg
	}
	count := 0
	for _, id := range m.s.chatMessages[chatID] {
		msg := m.s.messages[id]
		if msg.Deleted() || msg.SenderID == excludeSender {
			continue
		}
		if ref != nil && !msg.Newer(*ref) {
			continue
		}
		count++
	}
	return count, nil
}
