package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	Get(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	ListByIDs(ctx context.Context, chatID uuid.UUID, ids []uuid.UUID) ([]models.Message, error)
	Edit(ctx context.Context, messageID uuid.UUID, content models.Content, editedAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, chatID uuid.UUID, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error)
	SoftDeleteAll(ctx context.Context, chatID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	ListBefore(ctx context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]models.Message, error)
	CountAfter(ctx context.Context, chatID uuid.UUID, after *uuid.UUID, excludeSender uuid.UUID) (int, error)
}

// MessageRepo is a sqlx-backed repository. Bodies are stored as tagged JSON.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID        uuid.UUID  `db:"id"`
	ChatID    uuid.UUID  `db:"chat_id"`
	SenderID  uuid.UUID  `db:"sender_id"`
	Content   []byte     `db:"content"`
	ReplyToID *uuid.UUID `db:"reply_to_id"`
	CreatedAt time.Time  `db:"created_at"`
	EditedAt  *time.Time `db:"edited_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func (row messageRow) toModel() (models.Message, error) {
	content, err := models.UnmarshalContent(row.Content)
	if err != nil {
		return models.Message{}, fmt.Errorf("decode message %s: %w", row.ID, err)
	}
	return models.Message{
		ID:        row.ID,
		ChatID:    row.ChatID,
		SenderID:  row.SenderID,
		Content:   content,
		ReplyToID: row.ReplyToID,
		CreatedAt: row.CreatedAt,
		EditedAt:  row.EditedAt,
		DeletedAt: row.DeletedAt,
	}, nil
}

func rowsToMessages(rows []messageRow) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

const messageColumns = `id, chat_id, sender_id, content, reply_to_id, created_at, edited_at, deleted_at`

// Create stores a message and returns it as persisted.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	body, err := models.MarshalContent(msg.Content)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	var row messageRow
	err = r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, chat_id, sender_id, kind, content, reply_to_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
        RETURNING `+messageColumns,
		msg.ID, msg.ChatID, msg.SenderID, string(msg.Content.Kind()), string(body), msg.ReplyToID, nullTime(msg.CreatedAt)).
		StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel()
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel()
}

// ListByIDs returns the subset of ids that belong to chatID.
func (r *MessageRepo) ListByIDs(ctx context.Context, chatID uuid.UUID, ids []uuid.UUID) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND id = ANY($2::uuid[])
        ORDER BY created_at ASC, id ASC`, chatID, uuidArray(ids)); err != nil {
		return nil, err
	}
	return rowsToMessages(rows)
}

// Edit replaces the body of a live message.
func (r *MessageRepo) Edit(ctx context.Context, messageID uuid.UUID, content models.Content, editedAt time.Time) (models.Message, error) {
	body, err := models.MarshalContent(content)
	if err != nil {
		return models.Message{}, err
	}
	var row messageRow
	err = r.db.QueryRowxContext(ctx, `UPDATE messages SET content=$2, kind=$3, edited_at=$4
        WHERE id=$1 AND deleted_at IS NULL
        RETURNING `+messageColumns, messageID, string(body), string(content.Kind()), editedAt).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel()
}

// SoftDelete flags live messages of the chat as deleted and returns the ids
// that changed.
func (r *MessageRepo) SoftDelete(ctx context.Context, chatID uuid.UUID, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var deleted []uuid.UUID
	err := r.db.SelectContext(ctx, &deleted, `UPDATE messages SET deleted_at=$3
        WHERE chat_id=$1 AND id = ANY($2::uuid[]) AND deleted_at IS NULL
        RETURNING id`, chatID, uuidArray(ids), at)
	return deleted, err
}

// SoftDeleteAll deletes every live message in the chat and returns their ids.
func (r *MessageRepo) SoftDeleteAll(ctx context.Context, chatID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	err := r.db.SelectContext(ctx, &deleted, `UPDATE messages SET deleted_at=$2
        WHERE chat_id=$1 AND deleted_at IS NULL RETURNING id`, chatID, at)
	return deleted, err
}

// ListBefore returns up to limit messages older than before, newest first.
func (r *MessageRepo) ListBefore(ctx context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	var rows []messageRow
	var err error
	if before == nil {
		err = r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
            WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, chatID, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
            WHERE chat_id=$1 AND created_at < $2 ORDER BY created_at DESC, id DESC LIMIT $3`, chatID, *before, limit)
	}
	if err != nil {
		return nil, err
	}
	return rowsToMessages(rows)
}

// CountAfter counts live messages from other senders newer than the given
// message. A nil pointer counts the whole chat.
func (r *MessageRepo) CountAfter(ctx context.Context, chatID uuid.UUID, after *uuid.UUID, excludeSender uuid.UUID) (int, error) {
	var count int
	var err error
	if after == nil {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
            WHERE chat_id=$1 AND deleted_at IS NULL AND sender_id <> $2`, chatID, excludeSender)
	} else {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m, messages ref
            WHERE ref.id=$3 AND m.chat_id=$1 AND m.deleted_at IS NULL AND m.sender_id <> $2
            AND (m.created_at, m.id) > (ref.created_at, ref.id)`, chatID, excludeSender, *after)
	}
	return count, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
