package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-core/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrHandleTaken  = errors.New("public handle already taken")
)

// ChatRepository abstracts chat and participant persistence.
type ChatRepository interface {
	CreateDirectChat(ctx context.Context, userA, userB uuid.UUID) (models.Chat, bool, error)
	CreateChat(ctx context.Context, kind models.ChatKind, ownerID uuid.UUID, title string) (models.Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	ListParticipantIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)
	ListParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error)
	CountParticipants(ctx context.Context, chatID uuid.UUID) (int, error)
	AddParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) error
	SetPinnedMessage(ctx context.Context, chatID uuid.UUID, messageID *uuid.UUID) error
	SetVisibility(ctx context.Context, chatID uuid.UUID, isPublic bool, handle *string) error
	FindByHandle(ctx context.Context, handle string) (models.Chat, error)
	SearchPublic(ctx context.Context, prefix string, limit int) ([]models.Chat, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
	ListRelevantPeers(ctx context.Context, userID uuid.UUID, ceiling int) ([]uuid.UUID, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, kind, owner_id, title, is_public, public_handle, pinned_message_id, created_at`

const prefixedChatColumns = `c.id, c.kind, c.owner_id, c.title, c.is_public, c.public_handle, c.pinned_message_id, c.created_at`

// DirectKey is the order-independent identity of a direct chat between two users.
func DirectKey(userA, userB uuid.UUID) string {
	ids := []string{userA.String(), userB.String()}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// CreateDirectChat returns the direct chat between the two users, creating it
// together with both participant and member rows when it does not exist yet.
func (r *ChatRepo) CreateDirectChat(ctx context.Context, userA, userB uuid.UUID) (chat models.Chat, created bool, err error) {
	key := DirectKey(userA, userB)
	err = r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, key)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &chat, `INSERT INTO chats (id, kind, direct_key) VALUES ($1, $2, $3)
        ON CONFLICT (direct_key) DO NOTHING
        RETURNING `+chatColumns, uuid.New(), models.ChatDirect, key)
	if errors.Is(err, sql.ErrNoRows) {
		// lost the race to a concurrent creator
		_ = tx.Rollback()
		err = r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, key)
		return chat, false, err
	}
	if err != nil {
		return models.Chat{}, false, err
	}

	for _, userID := range []uuid.UUID{userA, userB} {
		if err = insertMembership(ctx, tx, chat.ID, userID); err != nil {
			return models.Chat{}, false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Chat{}, false, err
	}
	return chat, true, nil
}

// CreateChat creates a group or channel with its owner as first participant.
func (r *ChatRepo) CreateChat(ctx context.Context, kind models.ChatKind, ownerID uuid.UUID, title string) (chat models.Chat, err error) {
	if kind == models.ChatDirect {
		return models.Chat{}, errors.New("direct chats are created with CreateDirectChat")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &chat, `INSERT INTO chats (id, kind, owner_id, title) VALUES ($1, $2, $3, $4)
        RETURNING `+chatColumns, uuid.New(), kind, ownerID, title)
	if err != nil {
		return models.Chat{}, err
	}
	if err = insertMembership(ctx, tx, chat.ID, ownerID); err != nil {
		return models.Chat{}, err
	}
	err = tx.Commit()
	return chat, err
}

func insertMembership(ctx context.Context, tx *sqlx.Tx, chatID, userID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
        ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, userID); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
        ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, userID); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

func (r *ChatRepo) ListParticipantIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM chat_participants WHERE chat_id=$1`, chatID)
	return ids, err
}

// ListParticipants returns participants with their current usernames.
func (r *ChatRepo) ListParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, `SELECT p.chat_id, p.user_id, COALESCE(u.username, '') AS username, p.joined_at
        FROM chat_participants p
        LEFT JOIN users u ON u.id = p.user_id
        WHERE p.chat_id=$1
        ORDER BY p.joined_at ASC`, chatID)
	return participants, err
}

func (r *ChatRepo) CountParticipants(ctx context.Context, chatID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_participants WHERE chat_id=$1`, chatID)
	return count, err
}

// AddParticipant inserts the participant and member rows, reporting whether
// the user was newly added.
func (r *ChatRepo) AddParticipant(ctx context.Context, chatID, userID uuid.UUID) (added bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
        ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
        ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, userID); err != nil {
		return false, err
	}
	err = tx.Commit()
	return count > 0, err
}

// RemoveParticipant deletes the participant, member and admin rows together.
func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, query := range []string{
		`DELETE FROM chat_participants WHERE chat_id=$1 AND user_id=$2`,
		`DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`,
		`DELETE FROM chat_admin_permissions WHERE chat_id=$1 AND user_id=$2`,
	} {
		if _, err = tx.ExecContext(ctx, query, chatID, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChatRepo) SetPinnedMessage(ctx context.Context, chatID uuid.UUID, messageID *uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET pinned_message_id=$2 WHERE id=$1`, chatID, messageID)
	return expectRow(res, err, ErrChatNotFound)
}

// SetVisibility updates the public flag and handle. A unique violation on the
// handle maps to ErrHandleTaken.
func (r *ChatRepo) SetVisibility(ctx context.Context, chatID uuid.UUID, isPublic bool, handle *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET is_public=$2, public_handle=$3 WHERE id=$1`, chatID, isPublic, handle)
	if isUniqueViolation(err) {
		return ErrHandleTaken
	}
	return expectRow(res, err, ErrChatNotFound)
}

func (r *ChatRepo) FindByHandle(ctx context.Context, handle string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE public_handle=$1 AND is_public = TRUE`, handle)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// SearchPublic lists public chats whose handle starts with prefix, by handle.
func (r *ChatRepo) SearchPublic(ctx context.Context, prefix string, limit int) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats
        WHERE is_public = TRUE AND public_handle LIKE $1 ESCAPE '\'
        ORDER BY public_handle ASC LIMIT $2`, escapeLike(prefix)+"%", limit)
	return chats, err
}

// ListForUser returns every chat userID participates in, newest first.
func (r *ChatRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+prefixedChatColumns+` FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id
        WHERE p.user_id = $1 ORDER BY c.created_at DESC, c.id DESC`, userID)
	return chats, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// ListRelevantPeers returns co-participants of the user's direct chats and of
// chats with at most ceiling participants.
func (r *ChatRepo) ListRelevantPeers(ctx context.Context, userID uuid.UUID, ceiling int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT p2.user_id
        FROM chat_participants p1
        JOIN chats c ON c.id = p1.chat_id
        JOIN chat_participants p2 ON p2.chat_id = p1.chat_id AND p2.user_id <> p1.user_id
        WHERE p1.user_id = $1
        AND (c.kind = 'direct' OR (SELECT COUNT(*) FROM chat_participants p3 WHERE p3.chat_id = c.id) <= $2)`, userID, ceiling)
	return ids, err
}

func expectRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}

// uuidArray binds ids for `= ANY($n::uuid[])` with either driver.
func uuidArray(ids []uuid.UUID) interface{} {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return pq.Array(strs)
}
