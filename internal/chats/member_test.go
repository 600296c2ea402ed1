package chats

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

func TestNoteRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner, stranger := f.user(t, "owner"), f.user(t, "stranger")
	chat, err := f.svc.CreateGroup(ctx, owner, "g")
	require.NoError(t, err)

	note, err := f.svc.Note(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, note)

	require.NoError(t, f.svc.SetNote(ctx, owner, chat.ID, "  standup at 10 "))
	note, err = f.svc.Note(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup at 10", note)

	require.NoError(t, f.svc.ClearNote(ctx, owner, chat.ID))
	note, err = f.svc.Note(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, note)

	err = f.svc.SetNote(ctx, owner, chat.ID, strings.Repeat("x", maxNoteRunes+1))
	require.True(t, apperr.Is(err, apperr.KindValidation))
	require.True(t, apperr.Is(f.svc.SetNote(ctx, stranger, chat.ID, "hi"), apperr.KindForbidden))
	_, err = f.svc.Note(ctx, stranger, chat.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestNotifyPrefsDefaultsAndValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.user(t, "owner")
	chat, err := f.svc.CreateGroup(ctx, owner, "g")
	require.NoError(t, err)

	prefs, err := f.svc.NotifyPrefs(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyAll, prefs.NotifyType)
	assert.False(t, prefs.MuteForever)

	_, err = f.svc.SetNotifyPrefs(ctx, owner, chat.ID, models.NotifyPrefs{NotifyType: "loud"})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	until := time.Now().Add(time.Hour)
	saved, err := f.svc.SetNotifyPrefs(ctx, owner, chat.ID, models.NotifyPrefs{MuteForever: true, MuteUntil: &until, NotifyType: models.NotifyMentions})
	require.NoError(t, err)
	assert.Nil(t, saved.MuteUntil)

	prefs, err = f.svc.NotifyPrefs(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyMentions, prefs.NotifyType)
	assert.True(t, prefs.MuteForever)
	assert.True(t, prefs.Silenced(time.Now()))

	saved, err = f.svc.SetNotifyPrefs(ctx, owner, chat.ID, models.NotifyPrefs{MuteUntil: &until})
	require.NoError(t, err)
	assert.Equal(t, models.NotifyAll, saved.NotifyType)
	assert.True(t, saved.Silenced(time.Now()))
	assert.False(t, saved.Silenced(until.Add(time.Minute)))

	_, err = f.svc.NotifyPrefs(ctx, uuid.New(), chat.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
}
