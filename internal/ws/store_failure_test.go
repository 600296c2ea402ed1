package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/authority"
	"chat-core/internal/memstore"
	"chat-core/internal/mentions"
	"chat-core/internal/messaging"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/receipts"
)

var errStoreDown = errors.New("connection reset by peer")

// flakyMembers fails AdvanceLastRead while failing is set.
type flakyMembers struct {
	*memstore.MemberStore
	mu      sync.Mutex
	failing bool
}

func (f *flakyMembers) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyMembers) AdvanceLastRead(ctx context.Context, chatID, userID, messageID uuid.UUID) (bool, error) {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return false, errStoreDown
	}
	return f.MemberStore.AdvanceLastRead(ctx, chatID, userID, messageID)
}

type mockedStores struct {
	*harness
	messages *mocks.MessageRepositoryMock
	reads    *mocks.ReadRepositoryMock
	mentions *mocks.MentionRepositoryMock
	members  *flakyMembers
}

func newMockedHarness() *mockedStores {
	store := memstore.New()
	auth := authority.New(store.Chats(), store.Members())
	h := &harness{store: store, auth: auth, now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	auth.SetClock(h.clock)
	h.rt = NewRealtime(store.Chats())

	m := &mockedStores{
		harness:  h,
		messages: new(mocks.MessageRepositoryMock),
		reads:    new(mocks.ReadRepositoryMock),
		mentions: new(mocks.MentionRepositoryMock),
		members:  &flakyMembers{MemberStore: store.Members()},
	}
	recorder := mentions.NewRecorder(store.Chats(), m.mentions)
	h.svc = Services{
		Members: auth,
		Sender:  messaging.NewService(auth, m.messages, recorder, h.rt.Broadcaster),
		Reads:   receipts.NewEngine(auth, store.Chats(), m.members, m.messages, m.reads, h.rt.Broadcaster),
	}
	return m
}

func (m *mockedStores) group(t *testing.T, ctx context.Context, owner uuid.UUID, others ...uuid.UUID) models.Chat {
	t.Helper()
	chat, err := m.store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	for _, id := range others {
		_, err = m.store.Chats().AddParticipant(ctx, chat.ID, id)
		require.NoError(t, err)
	}
	return chat
}

func TestSessionSendPersistFailureIsInternal(t *testing.T) {
	m := newMockedHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob := m.user(t, "alice"), m.user(t, "bob")
	chat := m.group(t, ctx, alice, bob)

	stored := models.Message{ID: uuid.New(), ChatID: chat.ID, SenderID: alice, Content: models.TextContent{Text: "@bob again"}, CreatedAt: m.clock()}
	m.messages.On("Create", mock.Anything, mock.Anything).Return(nil, errStoreDown).Once()
	m.messages.On("Create", mock.Anything, mock.Anything).Return(stored, nil).Once()
	m.mentions.On("InsertIfAbsent", mock.Anything, mock.MatchedBy(func(rec models.MentionRecord) bool {
		return rec.UserID == bob && rec.MessageID == stored.ID
	})).Return(false, errStoreDown).Once()

	a := m.connect(t, ctx, alice)
	a.transport.send(t, protocol.TypeSendMessage, "r1", protocol.SendMessage{ChatID: chat.ID, Text: "hello"})
	errEnv := a.transport.next(t, protocol.TypeError)
	assert.Equal(t, "r1", errEnv.RequestID)
	assert.Equal(t, "internal", decode[protocol.ErrorMessage](t, errEnv).Code)
	assert.Equal(t, StateActive, a.session.State())

	// A mention write failure does not undo a committed send.
	a.transport.send(t, protocol.TypeSendMessage, "r2", protocol.SendMessage{ChatID: chat.ID, Text: "@bob again"})
	assert.Equal(t, "r2", a.transport.next(t, protocol.TypeAck).RequestID)
	assert.Equal(t, StateActive, a.session.State())

	require.NoError(t, a.close(t))
	m.messages.AssertExpectations(t)
	m.mentions.AssertExpectations(t)
}

func TestSessionReadStoreFailureIsInternal(t *testing.T) {
	m := newMockedHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob := m.user(t, "alice"), m.user(t, "bob")
	chat := m.group(t, ctx, alice, bob)

	msg := models.Message{ID: uuid.New(), ChatID: chat.ID, SenderID: alice, Content: models.TextContent{Text: "hi"}, CreatedAt: m.clock()}
	_, err := m.store.Messages().Create(ctx, msg)
	require.NoError(t, err)
	ids := []uuid.UUID{msg.ID}
	m.messages.On("ListByIDs", mock.Anything, chat.ID, ids).Return([]models.Message{msg}, nil)
	m.reads.On("MarkPerReader", mock.Anything, ids, bob, mock.Anything).Return(errStoreDown).Once()
	m.reads.On("MarkPerReader", mock.Anything, ids, bob, mock.Anything).Return(nil).Twice()
	m.reads.On("CountReaders", mock.Anything, msg.ID).Return(1, nil).Once()

	b := m.connect(t, ctx, bob)
	mark := protocol.MarkAsRead{ChatID: chat.ID, LastReadMessageID: msg.ID}

	b.transport.send(t, protocol.TypeMarkAsRead, "r1", mark)
	errEnv := b.transport.next(t, protocol.TypeError)
	assert.Equal(t, "r1", errEnv.RequestID)
	assert.Equal(t, "internal", decode[protocol.ErrorMessage](t, errEnv).Code)

	m.members.setFailing(true)
	b.transport.send(t, protocol.TypeMarkAsRead, "r2", mark)
	errEnv = b.transport.next(t, protocol.TypeError)
	assert.Equal(t, "r2", errEnv.RequestID)
	assert.Equal(t, "internal", decode[protocol.ErrorMessage](t, errEnv).Code)
	assert.Equal(t, StateActive, b.session.State())

	m.members.setFailing(false)
	b.transport.send(t, protocol.TypeMarkAsRead, "r3", mark)
	assert.Equal(t, "r3", b.transport.next(t, protocol.TypeAck).RequestID)
	member, err := m.store.Members().GetMember(ctx, chat.ID, bob)
	require.NoError(t, err)
	require.NotNil(t, member.LastReadMessageID)
	assert.Equal(t, msg.ID, *member.LastReadMessageID)

	require.NoError(t, b.close(t))
	m.reads.AssertExpectations(t)
}
