// Package authority answers membership and permission questions against the
// store. Nothing is cached: every call re-reads current state.
package authority

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// Authority is the read side of chat authorization.
type Authority struct {
	chats   repositories.ChatRepository
	members repositories.MemberRepository
	now     func() time.Time
}

// New builds an Authority.
func New(chats repositories.ChatRepository, members repositories.MemberRepository) *Authority {
	return &Authority{chats: chats, members: members, now: time.Now}
}

// SetClock replaces the time source used by mute checks.
func (a *Authority) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Authority) Now() time.Time { return a.now() }

// IsMember reports whether a Participant row exists.
func (a *Authority) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	ok, err := a.chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return false, apperr.Internal("membership lookup failed", err)
	}
	return ok, nil
}

// ChatMeta loads the chat, failing NotFound when it does not exist.
func (a *Authority) ChatMeta(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	chat, err := a.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperr.NotFound("chat not found")
	}
	if err != nil {
		return models.Chat{}, apperr.Internal("chat lookup failed", err)
	}
	return chat, nil
}

// EffectivePermissions returns every permission for the owner, the stored
// grant for anyone else, and nothing in direct chats.
func (a *Authority) EffectivePermissions(ctx context.Context, chat models.Chat, userID uuid.UUID) (models.PermissionSet, error) {
	if chat.IsOwner(userID) {
		return models.AllPermissions, nil
	}
	if chat.Kind == models.ChatDirect {
		return models.NoPermissions, nil
	}
	grant, found, err := a.members.GetAdminGrant(ctx, chat.ID, userID)
	if err != nil {
		return models.NoPermissions, apperr.Internal("permission lookup failed", err)
	}
	if !found {
		return models.NoPermissions, nil
	}
	return grant.Perms, nil
}

// IsMuted applies lazy expiry: a stored mute whose expiry has passed is ignored.
func (a *Authority) IsMuted(ctx context.Context, chatID, userID uuid.UUID, now time.Time) (bool, error) {
	mute, found, err := a.members.GetMute(ctx, chatID, userID)
	if err != nil {
		return false, apperr.Internal("mute lookup failed", err)
	}
	return found && mute.Active(now), nil
}

// RequireMember loads the chat and fails Forbidden for non-participants.
func (a *Authority) RequireMember(ctx context.Context, chatID, userID uuid.UUID) (models.Chat, error) {
	chat, err := a.ChatMeta(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	ok, err := a.IsMember(ctx, chatID, userID)
	if err != nil {
		return models.Chat{}, err
	}
	if !ok {
		return models.Chat{}, apperr.Forbidden("not a chat member")
	}
	return chat, nil
}

// RequirePermission fails Forbidden unless the user is the owner or holds perm.
func (a *Authority) RequirePermission(ctx context.Context, chat models.Chat, userID uuid.UUID, perm models.Permission) error {
	perms, err := a.EffectivePermissions(ctx, chat, userID)
	if err != nil {
		return err
	}
	if !perms.Has(perm) {
		return apperr.Forbidden("missing permission " + perm.String())
	}
	return nil
}

// CanSend checks, in order: membership, owner-only posting in channels, and mute.
func (a *Authority) CanSend(ctx context.Context, chatID, userID uuid.UUID) (models.Chat, error) {
	chat, err := a.RequireMember(ctx, chatID, userID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Kind == models.ChatChannel && !chat.IsOwner(userID) {
		return models.Chat{}, apperr.Forbidden("only the owner can post in a channel")
	}
	muted, err := a.IsMuted(ctx, chatID, userID, a.now())
	if err != nil {
		return models.Chat{}, err
	}
	if muted {
		return models.Chat{}, apperr.Forbidden("you are muted in this chat")
	}
	return chat, nil
}
