// Package mentions finds @username tokens in message text and keeps the
// per-user mention queue.
package mentions

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

const (
	// MaxTokens is the number of distinct tokens one message may carry.
	MaxTokens = 50
	// ExcerptRunes bounds the stored excerpt.
	ExcerptRunes = 120
)

func isTokenRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Extract returns the distinct lower-cased tokens that follow an '@', in order
// of first appearance. A bare '@' yields nothing.
func Extract(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(runes) && isTokenRune(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		token := strings.ToLower(string(runes[i+1 : j]))
		if _, dup := seen[token]; !dup {
			seen[token] = struct{}{}
			out = append(out, token)
		}
		i = j - 1
	}
	return out
}

// Validate extracts tokens and rejects messages over MaxTokens.
func Validate(text string) ([]string, error) {
	tokens := Extract(text)
	if len(tokens) > MaxTokens {
		return nil, apperr.Validation(fmt.Sprintf("too many mentions: %d, max %d", len(tokens), MaxTokens))
	}
	return tokens, nil
}

// Resolve matches tokens against participants by case-insensitive username.
// The author and unmatched tokens are dropped.
func Resolve(tokens []string, participants []models.Participant, authorID uuid.UUID) []uuid.UUID {
	if len(tokens) == 0 {
		return nil
	}
	byName := make(map[string]uuid.UUID, len(participants))
	for _, p := range participants {
		if p.UserID == authorID || p.Username == "" {
			continue
		}
		byName[strings.ToLower(p.Username)] = p.UserID
	}
	var out []uuid.UUID
	for _, token := range tokens {
		if id, ok := byName[token]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Excerpt returns at most ExcerptRunes runes of text.
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= ExcerptRunes {
		return text
	}
	return string(runes[:ExcerptRunes])
}

// ParticipantSource loads the current participant snapshot of a chat.
type ParticipantSource interface {
	ListParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error)
}

// Recorder persists mention records. Recording the same message twice
// creates nothing new.
type Recorder struct {
	chats ParticipantSource
	repo  repositories.MentionRepository
	now   func() time.Time
}

func NewRecorder(chats ParticipantSource, repo repositories.MentionRepository) *Recorder {
	return &Recorder{chats: chats, repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Record resolves tokens for msg and stores one record per recipient. It
// returns the users that got a new record.
func (r *Recorder) Record(ctx context.Context, msg models.Message, tokens []string) ([]uuid.UUID, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	participants, err := r.chats.ListParticipants(ctx, msg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	recipients := Resolve(tokens, participants, msg.SenderID)
	excerpt := Excerpt(models.PlainText(msg.Content))

	var created []uuid.UUID
	for _, userID := range recipients {
		inserted, err := r.repo.InsertIfAbsent(ctx, models.MentionRecord{
			ChatID:    msg.ChatID,
			UserID:    userID,
			MessageID: msg.ID,
			Excerpt:   excerpt,
			CreatedAt: r.now(),
		})
		if err != nil {
			return created, fmt.Errorf("insert mention user_id=%s: %w", userID, err)
		}
		if inserted {
			created = append(created, userID)
		}
	}
	if len(created) > 0 {
		log.Printf("mentions recorded chat_id=%s message_id=%s count=%d", msg.ChatID, msg.ID, len(created))
	}
	return created, nil
}

// List returns the caller's queue for a chat, newest first.
func (r *Recorder) List(ctx context.Context, chatID, userID uuid.UUID, limit int) ([]models.MentionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	records, err := r.repo.List(ctx, chatID, userID, limit)
	if err != nil {
		return nil, apperr.Internal("mentions lookup failed", err)
	}
	return records, nil
}

// Clear empties the caller's queue for a chat.
func (r *Recorder) Clear(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	n, err := r.repo.Clear(ctx, chatID, userID)
	if err != nil {
		return 0, apperr.Internal("mentions clear failed", err)
	}
	return n, nil
}
