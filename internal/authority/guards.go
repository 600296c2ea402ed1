package authority

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

// AdminEntry is one row of the admin listing. The owner is reported with all
// permissions and no granter.
type AdminEntry struct {
	UserID      uuid.UUID               `json:"user_id"`
	IsOwner     bool                    `json:"is_owner"`
	Permissions models.AdminPermissions `json:"permissions"`
	GrantedBy   *uuid.UUID              `json:"granted_by,omitempty"`
	GrantedAt   *time.Time              `json:"granted_at,omitempty"`
}

// GrantPermissions is owner-only and requires the target to already be a
// participant. All five flags and the granter are overwritten together.
func (a *Authority) GrantPermissions(ctx context.Context, chatID, granter, target uuid.UUID, perms models.PermissionSet) (models.AdminGrant, error) {
	chat, err := a.ChatMeta(ctx, chatID)
	if err != nil {
		return models.AdminGrant{}, err
	}
	if chat.Kind == models.ChatDirect {
		return models.AdminGrant{}, apperr.Validation("direct chats have no admins")
	}
	if !chat.IsOwner(granter) {
		return models.AdminGrant{}, apperr.Forbidden("only the owner can grant permissions")
	}
	if chat.IsOwner(target) {
		return models.AdminGrant{}, apperr.Validation("owner already holds every permission")
	}
	member, err := a.IsMember(ctx, chatID, target)
	if err != nil {
		return models.AdminGrant{}, err
	}
	if !member {
		return models.AdminGrant{}, apperr.Validation("user must join chat first")
	}

	grant := models.AdminGrant{
		ChatID:    chatID,
		UserID:    target,
		Perms:     perms & models.AllPermissions,
		GrantedBy: granter,
		GrantedAt: a.now().UTC(),
	}
	if err := a.members.UpsertAdminGrant(ctx, grant); err != nil {
		return models.AdminGrant{}, apperr.Internal("grant failed", err)
	}
	return grant, nil
}

// Revoke is owner-only; revoking a non-admin succeeds.
func (a *Authority) Revoke(ctx context.Context, chatID, granter, target uuid.UUID) error {
	chat, err := a.ChatMeta(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsOwner(granter) {
		return apperr.Forbidden("only the owner can revoke permissions")
	}
	if err := a.members.DeleteAdminGrant(ctx, chatID, target); err != nil {
		return apperr.Internal("revoke failed", err)
	}
	return nil
}

func (a *Authority) requireManageMembers(ctx context.Context, chatID, actor uuid.UUID) (models.Chat, error) {
	chat, err := a.ChatMeta(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if err := a.RequirePermission(ctx, chat, actor, models.PermManageMembers); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// Mute silences target until now + max(minutes, 1) minutes.
func (a *Authority) Mute(ctx context.Context, chatID, actor, target uuid.UUID, minutes int) (models.Mute, error) {
	chat, err := a.requireManageMembers(ctx, chatID, actor)
	if err != nil {
		return models.Mute{}, err
	}
	if chat.IsOwner(target) {
		return models.Mute{}, apperr.Validation("the owner cannot be muted")
	}
	if minutes < 1 {
		minutes = 1
	}
	mute := models.Mute{
		ChatID: chatID,
		UserID: target,
		Until:  a.now().UTC().Add(time.Duration(minutes) * time.Minute),
	}
	if err := a.members.UpsertMute(ctx, mute); err != nil {
		return models.Mute{}, apperr.Internal("mute failed", err)
	}
	return mute, nil
}

// Unmute removes the mute row; unmuting an unmuted user succeeds.
func (a *Authority) Unmute(ctx context.Context, chatID, actor, target uuid.UUID) error {
	if _, err := a.requireManageMembers(ctx, chatID, actor); err != nil {
		return err
	}
	if err := a.members.DeleteMute(ctx, chatID, target); err != nil {
		return apperr.Internal("unmute failed", err)
	}
	return nil
}

// ListAdmins returns the owner followed by explicit grants. Members only.
func (a *Authority) ListAdmins(ctx context.Context, chatID, userID uuid.UUID) ([]AdminEntry, error) {
	chat, err := a.RequireMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	var out []AdminEntry
	if chat.OwnerID != nil {
		out = append(out, AdminEntry{UserID: *chat.OwnerID, IsOwner: true, Permissions: models.AllPermissions.Flags()})
	}
	grants, err := a.members.ListAdminGrants(ctx, chatID)
	if err != nil {
		return nil, apperr.Internal("admin listing failed", err)
	}
	for _, g := range grants {
		grantedBy, grantedAt := g.GrantedBy, g.GrantedAt
		out = append(out, AdminEntry{
			UserID:      g.UserID,
			Permissions: g.Perms.Flags(),
			GrantedBy:   &grantedBy,
			GrantedAt:   &grantedAt,
		})
	}
	return out, nil
}
