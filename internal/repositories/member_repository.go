package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// MemberRepository covers per-user chat state: admin grants, mutes, the
// last-read pointer and notes.
type MemberRepository interface {
	GetAdminGrant(ctx context.Context, chatID, userID uuid.UUID) (models.AdminGrant, bool, error)
	UpsertAdminGrant(ctx context.Context, grant models.AdminGrant) error
	DeleteAdminGrant(ctx context.Context, chatID, userID uuid.UUID) error
	ListAdminGrants(ctx context.Context, chatID uuid.UUID) ([]models.AdminGrant, error)
	GetMute(ctx context.Context, chatID, userID uuid.UUID) (models.Mute, bool, error)
	UpsertMute(ctx context.Context, mute models.Mute) error
	DeleteMute(ctx context.Context, chatID, userID uuid.UUID) error
	GetMember(ctx context.Context, chatID, userID uuid.UUID) (models.Member, error)
	AdvanceLastRead(ctx context.Context, chatID, userID, messageID uuid.UUID) (bool, error)
	SetNote(ctx context.Context, chatID, userID uuid.UUID, note string) error
	SetNotifyPrefs(ctx context.Context, chatID, userID uuid.UUID, prefs models.NotifyPrefs) error
}

// MemberRepo is a sqlx implementation of MemberRepository.
type MemberRepo struct {
	db *sqlx.DB
}

// NewMemberRepo constructs a MemberRepo.
func NewMemberRepo(db *sqlx.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

type adminGrantRow struct {
	ChatID    uuid.UUID `db:"chat_id"`
	UserID    uuid.UUID `db:"user_id"`
	GrantedBy uuid.UUID `db:"granted_by"`
	GrantedAt time.Time `db:"granted_at"`
	models.AdminPermissions
}

func (row adminGrantRow) toModel() models.AdminGrant {
	return models.AdminGrant{
		ChatID:    row.ChatID,
		UserID:    row.UserID,
		Perms:     row.AdminPermissions.Set(),
		GrantedBy: row.GrantedBy,
		GrantedAt: row.GrantedAt,
	}
}

const adminGrantColumns = `chat_id, user_id, can_change_info, can_delete_messages, can_invite_users,
        can_pin_messages, can_manage_members, granted_by, granted_at`

func (r *MemberRepo) GetAdminGrant(ctx context.Context, chatID, userID uuid.UUID) (models.AdminGrant, bool, error) {
	var row adminGrantRow
	err := r.db.GetContext(ctx, &row, `SELECT `+adminGrantColumns+` FROM chat_admin_permissions WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AdminGrant{}, false, nil
	}
	if err != nil {
		return models.AdminGrant{}, false, err
	}
	return row.toModel(), true, nil
}

// UpsertAdminGrant overwrites all five flags and the granter in one statement.
func (r *MemberRepo) UpsertAdminGrant(ctx context.Context, grant models.AdminGrant) error {
	flags := grant.Perms.Flags()
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_admin_permissions
        (chat_id, user_id, can_change_info, can_delete_messages, can_invite_users, can_pin_messages, can_manage_members, granted_by, granted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET
            can_change_info = EXCLUDED.can_change_info,
            can_delete_messages = EXCLUDED.can_delete_messages,
            can_invite_users = EXCLUDED.can_invite_users,
            can_pin_messages = EXCLUDED.can_pin_messages,
            can_manage_members = EXCLUDED.can_manage_members,
            granted_by = EXCLUDED.granted_by,
            granted_at = EXCLUDED.granted_at`,
		grant.ChatID, grant.UserID,
		flags.CanChangeInfo, flags.CanDeleteMessages, flags.CanInviteUsers, flags.CanPinMessages, flags.CanManageMembers,
		grant.GrantedBy, grant.GrantedAt)
	return err
}

func (r *MemberRepo) DeleteAdminGrant(ctx context.Context, chatID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_admin_permissions WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

func (r *MemberRepo) ListAdminGrants(ctx context.Context, chatID uuid.UUID) ([]models.AdminGrant, error) {
	var rows []adminGrantRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+adminGrantColumns+` FROM chat_admin_permissions WHERE chat_id=$1 ORDER BY granted_at ASC`, chatID); err != nil {
		return nil, err
	}
	grants := make([]models.AdminGrant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, row.toModel())
	}
	return grants, nil
}

func (r *MemberRepo) GetMute(ctx context.Context, chatID, userID uuid.UUID) (models.Mute, bool, error) {
	var mute models.Mute
	err := r.db.GetContext(ctx, &mute, `SELECT chat_id, user_id, muted_until FROM chat_mutes WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Mute{}, false, nil
	}
	if err != nil {
		return models.Mute{}, false, err
	}
	return mute, true, nil
}

func (r *MemberRepo) UpsertMute(ctx context.Context, mute models.Mute) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_mutes (chat_id, user_id, muted_until) VALUES ($1, $2, $3)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET muted_until = EXCLUDED.muted_until`, mute.ChatID, mute.UserID, mute.Until)
	return err
}

func (r *MemberRepo) DeleteMute(ctx context.Context, chatID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_mutes WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// GetMember returns the member row, or a zero-valued member when none exists yet.
func (r *MemberRepo) GetMember(ctx context.Context, chatID, userID uuid.UUID) (models.Member, error) {
	var member models.Member
	err := r.db.GetContext(ctx, &member, `SELECT chat_id, user_id, last_read_message_id, note,
        mute_forever, notify_mute_until, notify_type FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Member{ChatID: chatID, UserID: userID}, nil
	}
	return member, err
}

// AdvanceLastRead moves the pointer to messageID only when that message is
// strictly newer than the stored one. The comparison and the write are a
// single statement so concurrent readers cannot regress the pointer.
func (r *MemberRepo) AdvanceLastRead(ctx context.Context, chatID, userID, messageID uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_members (chat_id, user_id, last_read_message_id) VALUES ($1, $2, $3)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id
        WHERE chat_members.last_read_message_id IS NULL
           OR NOT EXISTS (SELECT 1 FROM messages cur WHERE cur.id = chat_members.last_read_message_id)
           OR (SELECT (cur.created_at, cur.id) FROM messages cur WHERE cur.id = chat_members.last_read_message_id)
            < (SELECT (nxt.created_at, nxt.id) FROM messages nxt WHERE nxt.id = EXCLUDED.last_read_message_id)
        RETURNING 1`, chatID, userID, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetNote stores the member's private note. An empty note clears it.
func (r *MemberRepo) SetNote(ctx context.Context, chatID, userID uuid.UUID, note string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id, note) VALUES ($1, $2, $3)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET note = EXCLUDED.note`, chatID, userID, note)
	return err
}

func (r *MemberRepo) SetNotifyPrefs(ctx context.Context, chatID, userID uuid.UUID, prefs models.NotifyPrefs) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id, mute_forever, notify_mute_until, notify_type)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET mute_forever = EXCLUDED.mute_forever,
            notify_mute_until = EXCLUDED.notify_mute_until, notify_type = EXCLUDED.notify_type`,
		chatID, userID, prefs.MuteForever, prefs.MuteUntil, prefs.NotifyType)
	return err
}
