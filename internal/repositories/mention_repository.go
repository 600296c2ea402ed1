package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// MentionRepository stores the per-user mention queue.
type MentionRepository interface {
	InsertIfAbsent(ctx context.Context, rec models.MentionRecord) (bool, error)
	List(ctx context.Context, chatID, userID uuid.UUID, limit int) ([]models.MentionRecord, error)
	Clear(ctx context.Context, chatID, userID uuid.UUID) (int64, error)
}

type MentionRepo struct {
	db *sqlx.DB
}

func NewMentionRepo(db *sqlx.DB) *MentionRepo {
	return &MentionRepo{db: db}
}

// InsertIfAbsent is keyed on (chat, user, message); a retry inserts nothing.
func (r *MentionRepo) InsertIfAbsent(ctx context.Context, rec models.MentionRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO member_mentions (chat_id, user_id, message_id, excerpt, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (chat_id, user_id, message_id) DO NOTHING`,
		rec.ChatID, rec.UserID, rec.MessageID, rec.Excerpt, rec.CreatedAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

func (r *MentionRepo) List(ctx context.Context, chatID, userID uuid.UUID, limit int) ([]models.MentionRecord, error) {
	var records []models.MentionRecord
	err := r.db.SelectContext(ctx, &records, `SELECT chat_id, user_id, message_id, excerpt, created_at
        FROM member_mentions WHERE chat_id=$1 AND user_id=$2
        ORDER BY created_at DESC LIMIT $3`, chatID, userID, limit)
	return records, err
}

func (r *MentionRepo) Clear(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM member_mentions WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
