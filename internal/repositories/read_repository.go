package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// ReadRepository persists the three read-state representations. A message is
// only ever written through one of them.
type ReadRepository interface {
	IncrementViews(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkAggregate(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkPerReader(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, at time.Time) error
	CountReaders(ctx context.Context, messageID uuid.UUID) (int, error)
	ListReaders(ctx context.Context, messageID uuid.UUID, limit int) ([]models.Reader, error)
	PurgePerReaderBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReadRepo is a sqlx implementation of ReadRepository.
type ReadRepo struct {
	db *sqlx.DB
}

// NewReadRepo constructs a ReadRepo.
func NewReadRepo(db *sqlx.DB) *ReadRepo {
	return &ReadRepo{db: db}
}

func (r *ReadRepo) IncrementViews(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_views (message_id, views, last_view_at)
        SELECT id, 1, $2 FROM UNNEST($1::uuid[]) AS id
        ON CONFLICT (message_id) DO UPDATE SET views = message_views.views + 1, last_view_at = EXCLUDED.last_view_at`,
		uuidArray(ids), at)
	return err
}

// MarkAggregate flips the aggregate flag, keeping the first read time.
func (r *ReadRepo) MarkAggregate(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads_agg (message_id, is_read, first_read_at)
        SELECT id, TRUE, $2 FROM UNNEST($1::uuid[]) AS id
        ON CONFLICT (message_id) DO UPDATE SET is_read = TRUE,
            first_read_at = COALESCE(message_reads_agg.first_read_at, EXCLUDED.first_read_at)`,
		uuidArray(ids), at)
	return err
}

func (r *ReadRepo) MarkPerReader(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads_small (message_id, user_id, read_at)
        SELECT id, $2, $3 FROM UNNEST($1::uuid[]) AS id
        ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = EXCLUDED.read_at`,
		uuidArray(ids), userID, at)
	return err
}

func (r *ReadRepo) CountReaders(ctx context.Context, messageID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM message_reads_small WHERE message_id=$1`, messageID)
	return count, err
}

func (r *ReadRepo) ListReaders(ctx context.Context, messageID uuid.UUID, limit int) ([]models.Reader, error) {
	var readers []models.Reader
	err := r.db.SelectContext(ctx, &readers, `SELECT r.user_id, COALESCE(u.username, '') AS username, r.read_at
        FROM message_reads_small r
        LEFT JOIN users u ON u.id = r.user_id
        WHERE r.message_id=$1
        ORDER BY r.read_at DESC
        LIMIT $2`, messageID, limit)
	return readers, err
}

// PurgePerReaderBefore drops per-reader rows older than cutoff.
func (r *ReadRepo) PurgePerReaderBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_reads_small WHERE read_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
