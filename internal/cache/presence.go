package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"chat-core/internal/ws"
)

// PresenceTTL bounds how long a mirrored entry survives without a refresh.
const PresenceTTL = 7 * 24 * time.Hour

// RedisPresence mirrors presence into Redis so other processes can answer
// presence queries for users connected elsewhere.
type RedisPresence struct {
	client *redis.Client
	prefix string
}

type presenceEntry struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// NewRedisPresence connects to url and verifies the connection.
func NewRedisPresence(url string) (*RedisPresence, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisPresenceFromClient(c), nil
}

// NewRedisPresenceFromClient wraps an existing client.
func NewRedisPresenceFromClient(c *redis.Client) *RedisPresence {
	return &RedisPresence{client: c, prefix: "presence:"}
}

var _ ws.PresenceMirror = (*RedisPresence)(nil)

func (r *RedisPresence) key(userID uuid.UUID) string {
	return r.prefix + userID.String()
}

func (r *RedisPresence) SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error {
	raw, err := json.Marshal(presenceEntry{Online: online, LastSeen: lastSeen.UTC()})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID), raw, PresenceTTL).Err()
}

func (r *RedisPresence) GetPresence(ctx context.Context, userID uuid.UUID) (bool, time.Time, bool, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err == redis.Nil {
		return false, time.Time{}, false, nil
	}
	if err != nil {
		return false, time.Time{}, false, err
	}
	var entry presenceEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, time.Time{}, false, fmt.Errorf("redis: decode presence: %w", err)
	}
	return entry.Online, entry.LastSeen, true, nil
}

func (r *RedisPresence) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisPresence) Close() error {
	return r.client.Close()
}
