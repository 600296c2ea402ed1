package db

import (
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the store with the requested driver ("postgres" for lib/pq,
// "pgx" for the pgx stdlib adapter) and applies migrations.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if driver != "postgres" && driver != "pgx" {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Printf("database migrations applied count=%d", len(migrations))
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY,
        username TEXT NOT NULL UNIQUE,
        display_name TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS chats (
        id UUID PRIMARY KEY,
        kind TEXT NOT NULL CHECK (kind IN ('direct', 'group', 'channel')),
        owner_id UUID,
        title TEXT NOT NULL DEFAULT '',
        is_public BOOLEAN NOT NULL DEFAULT FALSE,
        public_handle TEXT UNIQUE,
        pinned_message_id UUID,
        direct_key TEXT UNIQUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK ((kind = 'direct') = (owner_id IS NULL))
    );`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id UUID NOT NULL,
        joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (chat_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS chat_participants_user_idx ON chat_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS chat_members (
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id UUID NOT NULL,
        last_read_message_id UUID,
        note TEXT NOT NULL DEFAULT '',
        mute_forever BOOLEAN NOT NULL DEFAULT FALSE,
        notify_mute_until TIMESTAMPTZ,
        notify_type TEXT NOT NULL DEFAULT 'all' CHECK (notify_type IN ('all', 'mentions', 'none')),
        PRIMARY KEY (chat_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS chat_admin_permissions (
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id UUID NOT NULL,
        can_change_info BOOLEAN NOT NULL DEFAULT FALSE,
        can_delete_messages BOOLEAN NOT NULL DEFAULT FALSE,
        can_invite_users BOOLEAN NOT NULL DEFAULT FALSE,
        can_pin_messages BOOLEAN NOT NULL DEFAULT FALSE,
        can_manage_members BOOLEAN NOT NULL DEFAULT FALSE,
        granted_by UUID NOT NULL,
        granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (chat_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS chat_mutes (
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id UUID NOT NULL,
        muted_until TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (chat_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id UUID PRIMARY KEY,
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id UUID NOT NULL,
        kind TEXT NOT NULL,
        content JSONB NOT NULL,
        reply_to_id UUID,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        edited_at TIMESTAMPTZ,
        deleted_at TIMESTAMPTZ
    );`,
	`CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages (chat_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS message_views (
        message_id UUID PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
        views BIGINT NOT NULL DEFAULT 0,
        last_view_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS message_reads_agg (
        message_id UUID PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        first_read_at TIMESTAMPTZ
    );`,
	`CREATE TABLE IF NOT EXISTS message_reads_small (
        message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id UUID NOT NULL,
        read_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (message_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS message_reads_small_read_at_idx ON message_reads_small (read_at);`,
	`CREATE TABLE IF NOT EXISTS member_mentions (
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id UUID NOT NULL,
        message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        excerpt TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (chat_id, user_id, message_id)
    );`,
}
