package chats

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
)

// PublicSearchLimit caps public handle search results.
const PublicSearchLimit = 20

// ListChats returns the caller's chats, newest first. With includeUnread each
// entry carries the count of live messages from others past the caller's
// last-read pointer.
func (s *Service) ListChats(ctx context.Context, userID uuid.UUID, includeUnread bool) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("chat listing failed", err)
	}
	out := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{Chat: chat}
		if includeUnread {
			member, err := s.members.GetMember(ctx, chat.ID, userID)
			if err != nil {
				return nil, apperr.Internal("member lookup failed", err)
			}
			n, err := s.messages.CountAfter(ctx, chat.ID, member.LastReadMessageID, userID)
			if err != nil {
				return nil, apperr.Internal("unread count failed", err)
			}
			summary.Unread = &n
		}
		out = append(out, summary)
	}
	return out, nil
}

// SearchPublic finds public chats by handle prefix.
func (s *Service) SearchPublic(ctx context.Context, query string) ([]models.Chat, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, apperr.Validation("handle query is required")
	}
	chats, err := s.chats.SearchPublic(ctx, query, PublicSearchLimit)
	if err != nil {
		return nil, apperr.Internal("public search failed", err)
	}
	return chats, nil
}

// ClearMessages deletes the whole history. Direct-chat members may clear;
// groups and channels need the owner or delete_messages. A pinned message
// is unpinned along with it.
func (s *Service) ClearMessages(ctx context.Context, actorID, chatID uuid.UUID) (int, error) {
	chat, err := s.auth.RequireMember(ctx, chatID, actorID)
	if err != nil {
		return 0, err
	}
	if chat.Kind != models.ChatDirect {
		if err := s.auth.RequirePermission(ctx, chat, actorID, models.PermDeleteMessages); err != nil {
			return 0, err
		}
	}
	deleted, err := s.messages.SoftDeleteAll(ctx, chatID, s.auth.Now().UTC())
	if err != nil {
		return 0, apperr.Internal("clear failed", err)
	}
	if chat.PinnedMessageID != nil {
		if err := s.chats.SetPinnedMessage(ctx, chatID, nil); err != nil {
			log.Printf("unpin after clear failed chat_id=%s: %v", chatID, err)
		} else {
			s.announce(ctx, chatID, protocol.ActionMessageUnpinned, actorID, map[string]uuid.UUID{"message_id": *chat.PinnedMessageID})
		}
	}
	if len(deleted) > 0 {
		env, err := protocol.Encode(protocol.TypeMessageDeleted, "", protocol.MessageDeleted{ChatID: chatID, MessageIDs: deleted})
		if err != nil {
			log.Printf("message_deleted encode failed chat_id=%s: %v", chatID, err)
		} else if _, err := s.bcast.Broadcast(ctx, chatID, env); err != nil {
			log.Printf("broadcast failed chat_id=%s: %v", chatID, err)
		}
	}
	log.Printf("chat history cleared chat_id=%s actor_id=%s deleted=%d", chatID, actorID, len(deleted))
	return len(deleted), nil
}
