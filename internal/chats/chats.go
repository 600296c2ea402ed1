// Package chats owns chat lifecycle: creation, membership changes, pinning
// and public visibility.
package chats

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/authority"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

const maxTitleRunes = 128

var handlePattern = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

// Role is how a participant is presented in listings.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParticipantView is one row of a participant listing.
type ParticipantView struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Broadcaster delivers chat actions to participants.
type Broadcaster interface {
	Broadcast(ctx context.Context, chatID uuid.UUID, env protocol.Envelope) (int, error)
	SendTo(userID uuid.UUID, env protocol.Envelope) bool
}

type Service struct {
	auth     *authority.Authority
	chats    repositories.ChatRepository
	members  repositories.MemberRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	bcast    Broadcaster
}

func NewService(auth *authority.Authority, chats repositories.ChatRepository, members repositories.MemberRepository,
	messages repositories.MessageRepository, users repositories.UserRepository, bcast Broadcaster) *Service {
	return &Service{
		auth:     auth,
		chats:    chats,
		members:  members,
		messages: messages,
		users:    users,
		bcast:    bcast,
	}
}

func (s *Service) requireUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Internal("user lookup failed", err)
	}
	return nil
}

// CreateDirect returns the direct chat between a and b, creating it on first
// use. The bool reports whether it was created.
func (s *Service) CreateDirect(ctx context.Context, a, b uuid.UUID) (models.Chat, bool, error) {
	if a == b {
		return models.Chat{}, false, apperr.Validation("cannot open a direct chat with yourself")
	}
	if err := s.requireUser(ctx, b); err != nil {
		return models.Chat{}, false, err
	}
	chat, created, err := s.chats.CreateDirectChat(ctx, a, b)
	if err != nil {
		return models.Chat{}, false, apperr.Internal("direct chat create failed", err)
	}
	if created {
		log.Printf("direct chat created chat_id=%s", chat.ID)
	}
	return chat, created, nil
}

func (s *Service) CreateGroup(ctx context.Context, ownerID uuid.UUID, title string) (models.Chat, error) {
	return s.create(ctx, models.ChatGroup, ownerID, title)
}

func (s *Service) CreateChannel(ctx context.Context, ownerID uuid.UUID, title string) (models.Chat, error) {
	return s.create(ctx, models.ChatChannel, ownerID, title)
}

func (s *Service) create(ctx context.Context, kind models.ChatKind, ownerID uuid.UUID, title string) (models.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Chat{}, apperr.Validation("title is required")
	}
	if len([]rune(title)) > maxTitleRunes {
		return models.Chat{}, apperr.Validation("title is too long")
	}
	chat, err := s.chats.CreateChat(ctx, kind, ownerID, title)
	if err != nil {
		return models.Chat{}, apperr.Internal("chat create failed", err)
	}
	log.Printf("chat created chat_id=%s kind=%s owner_id=%s", chat.ID, kind, ownerID)
	return chat, nil
}

// AddParticipant adds target to a group or channel. Adding an existing
// participant succeeds without a broadcast.
func (s *Service) AddParticipant(ctx context.Context, actorID, chatID, targetID uuid.UUID) (bool, error) {
	chat, err := s.auth.RequireMember(ctx, chatID, actorID)
	if err != nil {
		return false, err
	}
	if chat.Kind == models.ChatDirect {
		return false, apperr.Validation("direct chats have fixed participants")
	}
	if err := s.auth.RequirePermission(ctx, chat, actorID, models.PermInviteUsers); err != nil {
		return false, err
	}
	if err := s.requireUser(ctx, targetID); err != nil {
		return false, err
	}
	added, err := s.chats.AddParticipant(ctx, chatID, targetID)
	if err != nil {
		return false, apperr.Internal("participant add failed", err)
	}
	if added {
		s.announce(ctx, chatID, protocol.ActionUserJoined, actorID, map[string]uuid.UUID{"user_id": targetID})
	}
	return added, nil
}

// RemoveParticipant removes target. The owner can never be removed.
func (s *Service) RemoveParticipant(ctx context.Context, actorID, chatID, targetID uuid.UUID) error {
	chat, err := s.auth.ChatMeta(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.Kind == models.ChatDirect {
		return apperr.Validation("direct chats have fixed participants")
	}
	if err := s.auth.RequirePermission(ctx, chat, actorID, models.PermManageMembers); err != nil {
		return err
	}
	if chat.IsOwner(targetID) {
		return apperr.Validation("the owner cannot be removed")
	}
	return s.remove(ctx, chatID, actorID, targetID)
}

// Leave removes the caller. Owners must hand over the chat first.
func (s *Service) Leave(ctx context.Context, userID, chatID uuid.UUID) error {
	chat, err := s.auth.RequireMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if chat.Kind == models.ChatDirect {
		return apperr.Validation("direct chats cannot be left")
	}
	if chat.IsOwner(userID) {
		return apperr.Validation("transfer ownership first")
	}
	return s.remove(ctx, chatID, userID, userID)
}

func (s *Service) remove(ctx context.Context, chatID, actorID, targetID uuid.UUID) error {
	member, err := s.auth.IsMember(ctx, chatID, targetID)
	if err != nil {
		return err
	}
	if !member {
		return nil
	}
	if err := s.chats.RemoveParticipant(ctx, chatID, targetID); err != nil {
		return apperr.Internal("participant remove failed", err)
	}
	env := s.announce(ctx, chatID, protocol.ActionUserLeft, actorID, map[string]uuid.UUID{"user_id": targetID})
	if env != nil {
		s.bcast.SendTo(targetID, *env)
	}
	return nil
}

// Pin sets the chat's pinned message.
func (s *Service) Pin(ctx context.Context, actorID, chatID, messageID uuid.UUID) error {
	chat, err := s.requirePin(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && (msg.ChatID != chat.ID || msg.Deleted())) {
		return apperr.NotFound("message not found")
	}
	if err != nil {
		return apperr.Internal("message lookup failed", err)
	}
	if err := s.chats.SetPinnedMessage(ctx, chatID, &messageID); err != nil {
		return apperr.Internal("pin failed", err)
	}
	s.announce(ctx, chatID, protocol.ActionMessagePinned, actorID, map[string]uuid.UUID{"message_id": messageID})
	return nil
}

// Unpin clears the pinned message. Unpinning an unpinned chat succeeds.
func (s *Service) Unpin(ctx context.Context, actorID, chatID uuid.UUID) error {
	chat, err := s.requirePin(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if chat.PinnedMessageID == nil {
		return nil
	}
	if err := s.chats.SetPinnedMessage(ctx, chatID, nil); err != nil {
		return apperr.Internal("unpin failed", err)
	}
	s.announce(ctx, chatID, protocol.ActionMessageUnpinned, actorID, map[string]uuid.UUID{"message_id": *chat.PinnedMessageID})
	return nil
}

func (s *Service) requirePin(ctx context.Context, chatID, actorID uuid.UUID) (models.Chat, error) {
	chat, err := s.auth.RequireMember(ctx, chatID, actorID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Kind == models.ChatDirect {
		return chat, nil
	}
	if err := s.auth.RequirePermission(ctx, chat, actorID, models.PermPinMessages); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// SetVisibility makes a group or channel public under handle, or private.
func (s *Service) SetVisibility(ctx context.Context, actorID, chatID uuid.UUID, public bool, handle string) (models.Chat, error) {
	chat, err := s.auth.ChatMeta(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Kind == models.ChatDirect {
		return models.Chat{}, apperr.Validation("direct chats cannot be public")
	}
	if !chat.IsOwner(actorID) {
		return models.Chat{}, apperr.Forbidden("only the owner can change visibility")
	}
	var handlePtr *string
	if public {
		handle = strings.ToLower(strings.TrimSpace(handle))
		if !handlePattern.MatchString(handle) {
			return models.Chat{}, apperr.Validation("handle must be 3-32 characters of a-z, 0-9, _ or -")
		}
		handlePtr = &handle
	}
	err = s.chats.SetVisibility(ctx, chatID, public, handlePtr)
	if errors.Is(err, repositories.ErrHandleTaken) {
		return models.Chat{}, apperr.Validation("handle is already taken")
	}
	if err != nil {
		return models.Chat{}, apperr.Internal("visibility update failed", err)
	}
	chat.IsPublic = public
	chat.PublicHandle = handlePtr
	return chat, nil
}

// JoinPublic adds the caller to the public chat registered under handle.
func (s *Service) JoinPublic(ctx context.Context, userID uuid.UUID, handle string) (models.Chat, error) {
	chat, err := s.chats.FindByHandle(ctx, strings.ToLower(strings.TrimSpace(handle)))
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperr.NotFound("chat not found")
	}
	if err != nil {
		return models.Chat{}, apperr.Internal("chat lookup failed", err)
	}
	added, err := s.chats.AddParticipant(ctx, chat.ID, userID)
	if err != nil {
		return models.Chat{}, apperr.Internal("participant add failed", err)
	}
	if added {
		s.announce(ctx, chat.ID, protocol.ActionUserJoined, userID, map[string]uuid.UUID{"user_id": userID})
	}
	return chat, nil
}

// ListParticipants is visible to members only.
func (s *Service) ListParticipants(ctx context.Context, userID, chatID uuid.UUID) ([]ParticipantView, error) {
	chat, err := s.auth.RequireMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	participants, err := s.chats.ListParticipants(ctx, chatID)
	if err != nil {
		return nil, apperr.Internal("participant listing failed", err)
	}
	admins := map[uuid.UUID]struct{}{}
	if chat.Kind != models.ChatDirect {
		grants, err := s.members.ListAdminGrants(ctx, chatID)
		if err != nil {
			return nil, apperr.Internal("admin listing failed", err)
		}
		for _, g := range grants {
			admins[g.UserID] = struct{}{}
		}
	}
	out := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		role := RoleMember
		if chat.IsOwner(p.UserID) {
			role = RoleOwner
		} else if _, ok := admins[p.UserID]; ok {
			role = RoleAdmin
		}
		out = append(out, ParticipantView{UserID: p.UserID, Username: p.Username, Role: role, JoinedAt: p.JoinedAt})
	}
	return out, nil
}

func (s *Service) announce(ctx context.Context, chatID uuid.UUID, action string, actorID uuid.UUID, payload interface{}) *protocol.Envelope {
	env, err := protocol.Encode(protocol.TypeChatAction, "", protocol.ChatAction{
		ChatID:  chatID,
		Action:  action,
		ActorID: actorID,
		Payload: payload,
	})
	if err != nil {
		log.Printf("chat action encode failed chat_id=%s action=%s: %v", chatID, action, err)
		return nil
	}
	if _, err := s.bcast.Broadcast(ctx, chatID, env); err != nil {
		log.Printf("chat action broadcast failed chat_id=%s action=%s: %v", chatID, action, err)
	}
	return &env
}
