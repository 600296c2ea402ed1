package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
	"chat-core/internal/authority"
	"chat-core/internal/memstore"
	"chat-core/internal/mentions"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []protocol.Envelope
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, _ uuid.UUID, env protocol.Envelope) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, env)
	return 1, nil
}

func (b *recordingBroadcaster) types() []protocol.MessageType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.MessageType, 0, len(b.sent))
	for _, env := range b.sent {
		out = append(out, env.Type)
	}
	return out
}

type fixture struct {
	store *memstore.Store
	auth  *authority.Authority
	svc   *Service
	bcast *recordingBroadcaster
	now   time.Time
}

func newFixture() *fixture {
	store := memstore.New()
	auth := authority.New(store.Chats(), store.Members())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{store: store, auth: auth, bcast: &recordingBroadcaster{}, now: now}
	auth.SetClock(func() time.Time { return f.now })
	recorder := mentions.NewRecorder(store.Chats(), store.Mentions())
	f.svc = NewService(auth, store.Messages(), recorder, f.bcast)
	return f
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.Users().UpsertUser(context.Background(), models.User{ID: id, Username: name}))
	return id
}

func (f *fixture) direct(t *testing.T, a, b uuid.UUID) models.Chat {
	t.Helper()
	chat, _, err := f.store.Chats().CreateDirectChat(context.Background(), a, b)
	require.NoError(t, err)
	return chat
}

func TestSendPersistsAndBroadcasts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)

	msg, err := f.svc.SendText(ctx, alice, chat.ID, "  hi  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", models.PlainText(msg.Content))
	assert.Equal(t, 1, f.store.MessageCount(chat.ID))
	assert.Equal(t, []protocol.MessageType{protocol.TypeNewMessage}, f.bcast.types())
}

func TestSendRejectsEmptyText(t *testing.T) {
	f := newFixture()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)

	_, err := f.svc.SendText(context.Background(), alice, chat.ID, "   ", nil)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, f.store.MessageCount(chat.ID))
}

func TestSendNonMemberForbidden(t *testing.T) {
	f := newFixture()
	alice, bob, eve := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "eve")
	chat := f.direct(t, alice, bob)

	_, err := f.svc.SendText(context.Background(), eve, chat.ID, "hi", nil)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Empty(t, f.bcast.types())
}

func TestSendMutedUntilExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner, member := f.user(t, "owner"), f.user(t, "member")
	chat, err := f.store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	_, err = f.store.Chats().AddParticipant(ctx, chat.ID, member)
	require.NoError(t, err)
	_, err = f.auth.Mute(ctx, chat.ID, owner, member, 10)
	require.NoError(t, err)

	_, err = f.svc.SendText(ctx, member, chat.ID, "hello", nil)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Zero(t, f.store.MessageCount(chat.ID))

	f.now = f.now.Add(11 * time.Minute)
	_, err = f.svc.SendText(ctx, member, chat.ID, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.MessageCount(chat.ID))
}

func TestSendChannelOwnerOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner, sub := f.user(t, "owner"), f.user(t, "sub")
	chat, err := f.store.Chats().CreateChat(ctx, models.ChatChannel, owner, "news")
	require.NoError(t, err)
	_, err = f.store.Chats().AddParticipant(ctx, chat.ID, sub)
	require.NoError(t, err)

	_, err = f.svc.SendText(ctx, sub, chat.ID, "hi", nil)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.SendText(ctx, owner, chat.ID, "hi", nil)
	require.NoError(t, err)
}

func TestSendTooManyMentionsPersistsNothing(t *testing.T) {
	f := newFixture()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)

	var b strings.Builder
	for i := 0; i <= mentions.MaxTokens; i++ {
		fmt.Fprintf(&b, "@user%d ", i)
	}
	_, err := f.svc.SendText(context.Background(), alice, chat.ID, b.String(), nil)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, f.store.MessageCount(chat.ID))
	assert.Empty(t, f.bcast.types())
}

func TestSendRecordsMentions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)

	_, err := f.svc.SendText(ctx, alice, chat.ID, "ping @Bob and @alice and @nobody", nil)
	require.NoError(t, err)

	bobs, err := f.store.Mentions().List(ctx, chat.ID, bob, 10)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
	alices, err := f.store.Mentions().List(ctx, chat.ID, alice, 10)
	require.NoError(t, err)
	assert.Empty(t, alices)
}

func TestSendReplyMustBeSameChat(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	first := f.direct(t, alice, bob)
	second := f.direct(t, alice, carol)

	original, err := f.svc.SendText(ctx, alice, first.ID, "one", nil)
	require.NoError(t, err)

	_, err = f.svc.SendText(ctx, alice, second.ID, "reply", &original.ID)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	reply, err := f.svc.SendText(ctx, bob, first.ID, "reply", &original.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, original.ID, *reply.ReplyToID)
}

func TestSendStickerAndGif(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)

	_, err := f.svc.SendSticker(ctx, alice, chat.ID, uuid.Nil)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	sticker, err := f.svc.SendSticker(ctx, alice, chat.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.ContentSticker, sticker.Content.Kind())

	_, err = f.svc.SendGif(ctx, alice, chat.ID, models.GifContent{GifID: "x"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	gif, err := f.svc.SendGif(ctx, alice, chat.ID, models.GifContent{GifID: "x", URL: "https://media.example/x.gif"})
	require.NoError(t, err)
	assert.Equal(t, models.ContentGif, gif.Content.Kind())
}

func TestEditOwnTextOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)
	msg, err := f.svc.SendText(ctx, alice, chat.ID, "draft", nil)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, bob, msg.ID, "hijack")
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	edited, err := f.svc.Edit(ctx, alice, msg.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", models.PlainText(edited.Content))
	require.NotNil(t, edited.EditedAt)
	assert.Contains(t, f.bcast.types(), protocol.TypeMessageEdited)

	sticker, err := f.svc.SendSticker(ctx, alice, chat.ID, uuid.New())
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, alice, sticker.ID, "text")
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDeleteRequiresOwnershipOrPermission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner, admin, member := f.user(t, "owner"), f.user(t, "admin"), f.user(t, "member")
	chat, err := f.store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	for _, id := range []uuid.UUID{admin, member} {
		_, err = f.store.Chats().AddParticipant(ctx, chat.ID, id)
		require.NoError(t, err)
	}
	_, err = f.auth.GrantPermissions(ctx, chat.ID, owner, admin, models.NewPermissionSet(models.PermDeleteMessages))
	require.NoError(t, err)

	mine, err := f.svc.SendText(ctx, member, chat.ID, "mine", nil)
	require.NoError(t, err)
	theirs, err := f.svc.SendText(ctx, owner, chat.ID, "theirs", nil)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, member, chat.ID, []uuid.UUID{mine.ID, theirs.ID})
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	deleted, err := f.svc.Delete(ctx, member, chat.ID, []uuid.UUID{mine.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{mine.ID}, deleted)

	deleted, err = f.svc.Delete(ctx, admin, chat.ID, []uuid.UUID{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{theirs.ID}, deleted)
}

func TestForwardFlattensProvenance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	ab := f.direct(t, alice, bob)
	bc := f.direct(t, bob, carol)
	ac := f.direct(t, alice, carol)

	original, err := f.svc.SendText(ctx, alice, ab.ID, "origin", nil)
	require.NoError(t, err)

	first, err := f.svc.Forward(ctx, bob, ab.ID, bc.ID, []uuid.UUID{original.ID})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.svc.Forward(ctx, carol, bc.ID, ac.ID, []uuid.UUID{first[0].ID})
	require.NoError(t, err)
	require.Len(t, second, 1)

	fwd, ok := second[0].Content.(models.ForwardContent)
	require.True(t, ok)
	assert.Equal(t, original.ID, fwd.FromMessageID)
	assert.Equal(t, ab.ID, fwd.FromChatID)
	assert.Equal(t, alice, fwd.FromSenderID)
	assert.Equal(t, "origin", models.PlainText(second[0].Content))
	assert.Equal(t, carol, second[0].SenderID)
}

func TestForwardNeedsSourceMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	ab := f.direct(t, alice, bob)
	ac := f.direct(t, alice, carol)
	msg, err := f.svc.SendText(ctx, alice, ab.ID, "secret", nil)
	require.NoError(t, err)

	_, err = f.svc.Forward(ctx, carol, ab.ID, ac.ID, []uuid.UUID{msg.ID})
	require.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestHistoryPagesNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	chat := f.direct(t, alice, bob)
	for i := 0; i < 5; i++ {
		f.now = f.now.Add(time.Second)
		_, err := f.svc.SendText(ctx, alice, chat.ID, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	page, err := f.svc.History(ctx, bob, chat.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", models.PlainText(page[0].Content))
	assert.Equal(t, "m3", models.PlainText(page[1].Content))

	before := page[1].CreatedAt
	page, err = f.svc.History(ctx, bob, chat.ID, &before, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	_, err = f.svc.History(ctx, uuid.New(), chat.ID, nil, 10)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
}
