package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

func TestCreateDirectChatIsGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := New()
	a, b := uuid.New(), uuid.New()

	chat, created, err := store.Chats().CreateDirectChat(ctx, a, b)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := store.Chats().CreateDirectChat(ctx, b, a)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, chat.ID, again.ID)

	count, err := store.Chats().CountParticipants(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestRemoveParticipantDropsMemberAndGrant(t *testing.T) {
	ctx := context.Background()
	store := New()
	owner, admin := uuid.New(), uuid.New()
	chat, err := store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	_, err = store.Chats().AddParticipant(ctx, chat.ID, admin)
	require.NoError(t, err)
	require.NoError(t, store.Members().UpsertAdminGrant(ctx, models.AdminGrant{ChatID: chat.ID, UserID: admin, Perms: models.AllPermissions, GrantedBy: owner}))

	require.NoError(t, store.Chats().RemoveParticipant(ctx, chat.ID, admin))

	member, err := store.Chats().IsParticipant(ctx, chat.ID, admin)
	require.NoError(t, err)
	assert.False(t, member)
	_, found, err := store.Members().GetAdminGrant(ctx, chat.ID, admin)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdvanceLastReadNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := New()
	a, b := uuid.New(), uuid.New()
	chat, _, err := store.Chats().CreateDirectChat(ctx, a, b)
	require.NoError(t, err)

	base := time.Now()
	older, err := store.Messages().Create(ctx, models.Message{ChatID: chat.ID, SenderID: a, Content: models.TextContent{Text: "1"}, CreatedAt: base})
	require.NoError(t, err)
	newer, err := store.Messages().Create(ctx, models.Message{ChatID: chat.ID, SenderID: a, Content: models.TextContent{Text: "2"}, CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)

	advanced, err := store.Members().AdvanceLastRead(ctx, chat.ID, b, newer.ID)
	require.NoError(t, err)
	require.True(t, advanced)

	advanced, err = store.Members().AdvanceLastRead(ctx, chat.ID, b, older.ID)
	require.NoError(t, err)
	require.False(t, advanced)

	member, err := store.Members().GetMember(ctx, chat.ID, b)
	require.NoError(t, err)
	require.Equal(t, newer.ID, *member.LastReadMessageID)
}

func TestListRelevantPeersRespectsCeiling(t *testing.T) {
	ctx := context.Background()
	store := New()
	user, peer := uuid.New(), uuid.New()
	_, _, err := store.Chats().CreateDirectChat(ctx, user, peer)
	require.NoError(t, err)

	big, err := store.Chats().CreateChat(ctx, models.ChatGroup, user, "big")
	require.NoError(t, err)
	crowd := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		crowd = append(crowd, id)
		_, err := store.Chats().AddParticipant(ctx, big.ID, id)
		require.NoError(t, err)
	}

	peers, err := store.Chats().ListRelevantPeers(ctx, user, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{peer}, peers)

	peers, err = store.Chats().ListRelevantPeers(ctx, user, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, append([]uuid.UUID{peer}, crowd...), peers)
}

func TestVisibilityHandleUnique(t *testing.T) {
	ctx := context.Background()
	store := New()
	owner := uuid.New()
	first, err := store.Chats().CreateChat(ctx, models.ChatChannel, owner, "one")
	require.NoError(t, err)
	second, err := store.Chats().CreateChat(ctx, models.ChatChannel, owner, "two")
	require.NoError(t, err)

	handle := "news"
	require.NoError(t, store.Chats().SetVisibility(ctx, first.ID, true, &handle))
	require.Error(t, store.Chats().SetVisibility(ctx, second.ID, true, &handle))

	found, err := store.Chats().FindByHandle(ctx, "news")
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
}

func TestUpsertUserUsernameUnique(t *testing.T) {
	ctx := context.Background()
	store := New()
	alice, other := uuid.New(), uuid.New()

	require.NoError(t, store.Users().UpsertUser(ctx, models.User{ID: alice, Username: "Alice"}))
	require.NoError(t, store.Users().UpsertUser(ctx, models.User{ID: alice, Username: "alice"}))
	err := store.Users().UpsertUser(ctx, models.User{ID: other, Username: "ALICE"})
	require.ErrorIs(t, err, repositories.ErrUsernameTaken)

	_, err = store.Users().GetUser(ctx, other)
	require.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestSoftDeleteAllSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	store := New()
	owner := uuid.New()
	chat, err := store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	first, err := store.Messages().Create(ctx, models.Message{ChatID: chat.ID, SenderID: owner, Content: models.TextContent{Text: "a"}})
	require.NoError(t, err)
	second, err := store.Messages().Create(ctx, models.Message{ChatID: chat.ID, SenderID: owner, Content: models.TextContent{Text: "b"}})
	require.NoError(t, err)
	_, err = store.Messages().SoftDelete(ctx, chat.ID, []uuid.UUID{first.ID}, time.Now())
	require.NoError(t, err)

	deleted, err := store.Messages().SoftDeleteAll(ctx, chat.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{second.ID}, deleted)
}
