package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// UserRepository reads identities. Registration lives outside this service.
type UserRepository interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpsertUser(ctx context.Context, user models.User) error
}

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, display_name, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpsertUser keeps the local identity mirror in sync with the token issuer.
// A username held by another id fails ErrUsernameTaken.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, username, display_name) VALUES ($1, LOWER($2), $3)
        ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, display_name = EXCLUDED.display_name`,
		user.ID, user.Username, user.DisplayName)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	return err
}
