package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/authority"
	"chat-core/internal/memstore"
	"chat-core/internal/mentions"
	"chat-core/internal/messaging"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/receipts"
)

const frameWait = 2 * time.Second

type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case frame := <-f.in:
		return frame, nil
	case <-f.closed:
		return nil, ErrClosed
	}
}

func (f *fakeTransport) WriteFrame(data []byte) error {
	select {
	case <-f.closed:
		return ErrClosed
	default:
	}
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) send(t *testing.T, typ protocol.MessageType, requestID string, payload interface{}) {
	t.Helper()
	env := protocol.MustEncode(typ, requestID, payload)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	select {
	case f.in <- data:
	case <-time.After(frameWait):
		t.Fatalf("session did not read %s", typ)
	}
}

// next returns the first outbound frame of type typ, skipping others.
func (f *fakeTransport) next(t *testing.T, typ protocol.MessageType) protocol.Envelope {
	t.Helper()
	deadline := time.After(frameWait)
	for {
		select {
		case data := <-f.out:
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Type == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s frame", typ)
		}
	}
}

type harness struct {
	store *memstore.Store
	auth  *authority.Authority
	rt    *Realtime
	svc   Services
	now   time.Time
	mu    sync.Mutex
}

func newHarness() *harness {
	store := memstore.New()
	auth := authority.New(store.Chats(), store.Members())
	h := &harness{store: store, auth: auth, now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	auth.SetClock(h.clock)
	rt := NewRealtime(store.Chats())
	recorder := mentions.NewRecorder(store.Chats(), store.Mentions())
	h.rt = rt
	h.svc = Services{
		Members: auth,
		Sender:  messaging.NewService(auth, store.Messages(), recorder, rt.Broadcaster),
		Reads:   receipts.NewEngine(auth, store.Chats(), store.Members(), store.Messages(), store.Reads(), rt.Broadcaster),
	}
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, h.store.Users().UpsertUser(context.Background(), models.User{ID: id, Username: name}))
	return id
}

type running struct {
	transport *fakeTransport
	session   *Session
	done      chan error
}

func (h *harness) connect(t *testing.T, ctx context.Context, userID uuid.UUID) *running {
	t.Helper()
	tr := newFakeTransport()
	s := NewSession(h.rt, h.svc, userID, tr, ConnInfo{ConnectedAt: time.Now()})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.State() == StateActive }, frameWait, 5*time.Millisecond)
	return &running{transport: tr, session: s, done: done}
}

func (r *running) close(t *testing.T) error {
	t.Helper()
	require.NoError(t, r.transport.Close())
	select {
	case err := <-r.done:
		return err
	case <-time.After(frameWait):
		t.Fatalf("session did not stop")
	}
	return nil
}

func decode[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestSessionDirectChatRoundTrip(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	chat, _, err := h.store.Chats().CreateDirectChat(ctx, alice, bob)
	require.NoError(t, err)

	a := h.connect(t, ctx, alice)
	b := h.connect(t, ctx, bob)

	a.transport.send(t, protocol.TypeSendMessage, "r1", protocol.SendMessage{ChatID: chat.ID, Text: "hi"})
	ack := a.transport.next(t, protocol.TypeAck)
	assert.Equal(t, "r1", ack.RequestID)

	mine := decode[protocol.NewMessage](t, a.transport.next(t, protocol.TypeNewMessage))
	theirs := decode[protocol.NewMessage](t, b.transport.next(t, protocol.TypeNewMessage))
	assert.Equal(t, mine.Message.ID, theirs.Message.ID)
	assert.Equal(t, "hi", models.PlainText(theirs.Message.Content))

	b.transport.send(t, protocol.TypeMarkAsRead, "r2", protocol.MarkAsRead{ChatID: chat.ID, LastReadMessageID: theirs.Message.ID})
	b.transport.next(t, protocol.TypeAck)

	receipt := decode[protocol.MessagesRead](t, a.transport.next(t, protocol.TypeMessagesRead))
	assert.Equal(t, bob, receipt.ReaderID)
	assert.Equal(t, theirs.Message.ID, receipt.LastReadMessageID)
	require.NotNil(t, receipt.IsReadByPeer)
	assert.True(t, *receipt.IsReadByPeer)

	require.NoError(t, a.close(t))
	require.NoError(t, b.close(t))
}

func TestSessionMutedSendRejected(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	owner, member := h.user(t, "owner"), h.user(t, "member")
	chat, err := h.store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	_, err = h.store.Chats().AddParticipant(ctx, chat.ID, member)
	require.NoError(t, err)
	_, err = h.auth.Mute(ctx, chat.ID, owner, member, 5)
	require.NoError(t, err)

	m := h.connect(t, ctx, member)
	m.transport.send(t, protocol.TypeSendMessage, "r1", protocol.SendMessage{ChatID: chat.ID, Text: "let me talk"})
	errEnv := m.transport.next(t, protocol.TypeError)
	assert.Equal(t, "r1", errEnv.RequestID)
	assert.Equal(t, "forbidden", decode[protocol.ErrorMessage](t, errEnv).Code)
	assert.Zero(t, h.store.MessageCount(chat.ID))

	h.advance(6 * time.Minute)
	m.transport.send(t, protocol.TypeSendMessage, "r2", protocol.SendMessage{ChatID: chat.ID, Text: "finally"})
	assert.Equal(t, "r2", m.transport.next(t, protocol.TypeAck).RequestID)
	assert.Equal(t, 1, h.store.MessageCount(chat.ID))

	require.NoError(t, m.close(t))
}

func TestSessionTooManyMentions(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	chat, _, err := h.store.Chats().CreateDirectChat(ctx, alice, bob)
	require.NoError(t, err)

	var b strings.Builder
	for i := 0; i <= mentions.MaxTokens; i++ {
		fmt.Fprintf(&b, "@u%d ", i)
	}
	a := h.connect(t, ctx, alice)
	a.transport.send(t, protocol.TypeSendMessage, "r1", protocol.SendMessage{ChatID: chat.ID, Text: b.String()})
	assert.Equal(t, "validation", decode[protocol.ErrorMessage](t, a.transport.next(t, protocol.TypeError)).Code)
	assert.Zero(t, h.store.MessageCount(chat.ID))

	require.NoError(t, a.close(t))
}

func TestSessionDisconnectGoesOffline(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := h.user(t, "alice")

	connectedAt := time.Now().UTC()
	a := h.connect(t, ctx, alice)
	require.True(t, h.rt.Hub.Connected(alice))
	state, ok := h.rt.Presence.Get(ctx, alice)
	require.True(t, ok)
	assert.True(t, state.Online)

	require.NoError(t, a.close(t))
	assert.Equal(t, StateClosed, a.session.State())
	assert.False(t, h.rt.Hub.SendIfConnected(alice, protocol.Envelope{Type: protocol.TypeTyping}))

	state, ok = h.rt.Presence.Get(ctx, alice)
	require.True(t, ok)
	assert.False(t, state.Online)
	assert.False(t, state.LastSeen.Before(connectedAt))
}

func TestSessionSecondConnectionKeepsPresence(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := h.user(t, "alice")

	first := h.connect(t, ctx, alice)
	second := h.connect(t, ctx, alice)
	require.NoError(t, first.close(t))

	state, _ := h.rt.Presence.Get(ctx, alice)
	assert.True(t, state.Online)
	assert.True(t, h.rt.Hub.Connected(alice))

	require.NoError(t, second.close(t))
	state, _ = h.rt.Presence.Get(ctx, alice)
	assert.False(t, state.Online)
}

func TestSessionTypingIgnoredForNonMember(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob, eve := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "eve")
	chat, _, err := h.store.Chats().CreateDirectChat(ctx, alice, bob)
	require.NoError(t, err)

	e := h.connect(t, ctx, eve)
	e.transport.send(t, protocol.TypeStartTyping, "t1", protocol.StartTyping{ChatID: chat.ID})
	e.transport.send(t, "nonsense", "r-unknown", nil)

	select {
	case data := <-e.transport.out:
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, protocol.TypeError, env.Type)
		assert.Equal(t, "r-unknown", env.RequestID)
	case <-time.After(frameWait):
		t.Fatalf("no reply to unknown event")
	}

	require.NoError(t, e.close(t))
}

func TestSessionTypingReachesPeerOnly(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	chat, _, err := h.store.Chats().CreateDirectChat(ctx, alice, bob)
	require.NoError(t, err)

	a := h.connect(t, ctx, alice)
	b := h.connect(t, ctx, bob)

	a.transport.send(t, protocol.TypeStartTyping, "t1", protocol.StartTyping{ChatID: chat.ID})
	a.transport.next(t, protocol.TypeAck)
	typing := decode[protocol.Typing](t, b.transport.next(t, protocol.TypeTyping))
	assert.Equal(t, alice, typing.UserID)

	require.NoError(t, a.close(t))
	require.NoError(t, b.close(t))
}

func TestSessionContextCancelReleasesRegistry(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	alice := h.user(t, "alice")

	a := h.connect(t, ctx, alice)
	cancel()
	select {
	case err := <-a.done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(frameWait):
		t.Fatalf("session did not stop")
	}
	assert.False(t, h.rt.Hub.Connected(alice))
}
