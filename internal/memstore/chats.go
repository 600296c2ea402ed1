package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// ChatStore implements repositories.ChatRepository.
type ChatStore struct{ s *Store }

func (c *ChatStore) CreateDirectChat(_ context.Context, userA, userB uuid.UUID) (models.Chat, bool, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repositories.DirectKey(userA, userB)
	if id, ok := s.directKeys[key]; ok {
		return s.chats[id], false, nil
	}
	now := s.now()
	chat := models.Chat{ID: uuid.New(), Kind: models.ChatDirect, CreatedAt: now}
	s.chats[chat.ID] = chat
	s.directKeys[key] = chat.ID
	s.addMembershipLocked(chat.ID, userA, now)
	s.addMembershipLocked(chat.ID, userB, now)
	return chat, true, nil
}

func (c *ChatStore) CreateChat(_ context.Context, kind models.ChatKind, ownerID uuid.UUID, title string) (models.Chat, error) {
	if kind == models.ChatDirect {
		return models.Chat{}, errors.New("direct chats are created with CreateDirectChat")
	}
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := ownerID
	now := s.now()
	chat := models.Chat{ID: uuid.New(), Kind: kind, OwnerID: &owner, Title: title, CreatedAt: now}
	s.chats[chat.ID] = chat
	s.addMembershipLocked(chat.ID, ownerID, now)
	return chat, nil
}

func (c *ChatStore) GetChat(_ context.Context, chatID uuid.UUID) (models.Chat, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	chat, ok := c.s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (c *ChatStore) IsParticipant(_ context.Context, chatID, userID uuid.UUID) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.isParticipantLocked(chatID, userID), nil
}

func (c *ChatStore) ListParticipantIDs(_ context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return sortedParticipantIDs(c.s.participants[chatID]), nil
}

func (c *ChatStore) ListParticipants(_ context.Context, chatID uuid.UUID) ([]models.Participant, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	set := c.s.participants[chatID]
	out := make([]models.Participant, 0, len(set))
	for _, id := range sortedParticipantIDs(set) {
		out = append(out, models.Participant{
			ChatID:   chatID,
			UserID:   id,
			Username: c.s.users[id].Username,
			JoinedAt: set[id],
		})
	}
	return out, nil
}

func (c *ChatStore) CountParticipants(_ context.Context, chatID uuid.UUID) (int, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return len(c.s.participants[chatID]), nil
}

func (c *ChatStore) AddParticipant(_ context.Context, chatID, userID uuid.UUID) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.chats[chatID]; !ok {
		return false, repositories.ErrChatNotFound
	}
	return c.s.addMembershipLocked(chatID, userID, c.s.now()), nil
}

func (c *ChatStore) RemoveParticipant(_ context.Context, chatID, userID uuid.UUID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if set, ok := c.s.participants[chatID]; ok {
		delete(set, userID)
	}
	key := pairKey{chat: chatID, user: userID}
	delete(c.s.members, key)
	delete(c.s.grants, key)
	return nil
}

func (c *ChatStore) SetPinnedMessage(_ context.Context, chatID uuid.UUID, messageID *uuid.UUID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	chat, ok := c.s.chats[chatID]
	if !ok {
		return repositories.ErrChatNotFound
	}
	chat.PinnedMessageID = messageID
	c.s.chats[chatID] = chat
	return nil
}

func (c *ChatStore) SetVisibility(_ context.Context, chatID uuid.UUID, isPublic bool, handle *string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	chat, ok := c.s.chats[chatID]
	if !ok {
		return repositories.ErrChatNotFound
	}
	if handle != nil {
		if owner, taken := c.s.handles[*handle]; taken && owner != chatID {
			return repositories.ErrHandleTaken
		}
	}
	if chat.PublicHandle != nil {
		delete(c.s.handles, *chat.PublicHandle)
	}
	if handle != nil {
		value := *handle
		c.s.handles[value] = chatID
		chat.PublicHandle = &value
	} else {
		chat.PublicHandle = nil
	}
	chat.IsPublic = isPublic
	c.s.chats[chatID] = chat
	return nil
}

func (c *ChatStore) FindByHandle(_ context.Context, handle string) (models.Chat, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	id, ok := c.s.handles[handle]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	chat := c.s.chats[id]
	if !chat.IsPublic {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (c *ChatStore) SearchPublic(_ context.Context, prefix string, limit int) ([]models.Chat, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	var out []models.Chat
	for handle, id := range c.s.handles {
		chat := c.s.chats[id]
		if chat.IsPublic && strings.HasPrefix(handle, prefix) {
			out = append(out, chat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].PublicHandle < *out[j].PublicHandle })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *ChatStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Chat, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	var out []models.Chat
	for chatID, set := range c.s.participants {
		if _, ok := set[userID]; ok {
			out = append(out, c.s.chats[chatID])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (c *ChatStore) ListRelevantPeers(_ context.Context, userID uuid.UUID, ceiling int) ([]uuid.UUID, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for chatID, set := range c.s.participants {
		if _, member := set[userID]; !member {
			continue
		}
		if c.s.chats[chatID].Kind != models.ChatDirect && len(set) > ceiling {
			continue
		}
		for peer := range set {
			if peer == userID {
				continue
			}
			if _, dup := seen[peer]; dup {
				continue
			}
			seen[peer] = struct{}{}
			out = append(out, peer)
		}
	}
	return out, nil
}
