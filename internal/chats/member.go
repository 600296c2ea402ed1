package chats

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

const maxNoteRunes = 1024

// Note returns the caller's private note for the chat, empty when unset.
func (s *Service) Note(ctx context.Context, userID, chatID uuid.UUID) (string, error) {
	member, err := s.member(ctx, userID, chatID)
	if err != nil {
		return "", err
	}
	return member.Note, nil
}

// SetNote stores a trimmed note. An empty note clears it.
func (s *Service) SetNote(ctx context.Context, userID, chatID uuid.UUID, note string) error {
	if _, err := s.auth.RequireMember(ctx, chatID, userID); err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if len([]rune(note)) > maxNoteRunes {
		return apperr.Validation("note is too long")
	}
	if err := s.members.SetNote(ctx, chatID, userID, note); err != nil {
		return apperr.Internal("note update failed", err)
	}
	return nil
}

func (s *Service) ClearNote(ctx context.Context, userID, chatID uuid.UUID) error {
	return s.SetNote(ctx, userID, chatID, "")
}

// NotifyPrefs returns the caller's notification preference for the chat.
func (s *Service) NotifyPrefs(ctx context.Context, userID, chatID uuid.UUID) (models.NotifyPrefs, error) {
	member, err := s.member(ctx, userID, chatID)
	if err != nil {
		return models.NotifyPrefs{}, err
	}
	return member.Prefs(), nil
}

// SetNotifyPrefs replaces the caller's preference. An empty type means
// "all"; mute_forever makes mute_until redundant, so it is dropped.
func (s *Service) SetNotifyPrefs(ctx context.Context, userID, chatID uuid.UUID, prefs models.NotifyPrefs) (models.NotifyPrefs, error) {
	if _, err := s.auth.RequireMember(ctx, chatID, userID); err != nil {
		return models.NotifyPrefs{}, err
	}
	if prefs.NotifyType == "" {
		prefs.NotifyType = models.NotifyAll
	}
	if !models.ValidNotifyType(prefs.NotifyType) {
		return models.NotifyPrefs{}, apperr.Validation("notify_type must be all, mentions or none")
	}
	if prefs.MuteForever {
		prefs.MuteUntil = nil
	}
	if prefs.MuteUntil != nil {
		until := prefs.MuteUntil.UTC().Truncate(time.Microsecond)
		prefs.MuteUntil = &until
	}
	if err := s.members.SetNotifyPrefs(ctx, chatID, userID, prefs); err != nil {
		return models.NotifyPrefs{}, apperr.Internal("notify update failed", err)
	}
	return prefs, nil
}

func (s *Service) member(ctx context.Context, userID, chatID uuid.UUID) (models.Member, error) {
	if _, err := s.auth.RequireMember(ctx, chatID, userID); err != nil {
		return models.Member{}, err
	}
	member, err := s.members.GetMember(ctx, chatID, userID)
	if err != nil {
		return models.Member{}, apperr.Internal("member lookup failed", err)
	}
	return member, nil
}
