package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/authority"
	"chat-core/internal/chats"
	"chat-core/internal/memstore"
	"chat-core/internal/mentions"
	"chat-core/internal/messaging"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/receipts"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

type testEnv struct {
	store  *memstore.Store
	auth   *authority.Authority
	rt     *ws.Realtime
	engine *receipts.Engine
	audit  *mocks.PublisherMock
	router *gin.Engine
	caller uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	auth := authority.New(store.Chats(), store.Members())
	rt := ws.NewRealtime(store.Chats())
	recorder := mentions.NewRecorder(store.Chats(), store.Mentions())
	engine := receipts.NewEngine(auth, store.Chats(), store.Members(), store.Messages(), store.Reads(), rt.Broadcaster)
	pub := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(pub, "audit.chat-core", "chat-core", "test")

	env := &testEnv{store: store, auth: auth, rt: rt, engine: engine, audit: pub}
	h := Handlers{
		Chats:    NewChatHandler(chats.NewService(auth, store.Chats(), store.Members(), store.Messages(), store.Users(), rt.Broadcaster), auth, audit),
		Messages: NewMessageHandler(messaging.NewService(auth, store.Messages(), recorder, rt.Broadcaster), engine, recorder, auth),
		Presence: NewPresenceHandler(rt.Presence),
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", env.caller)
		c.Next()
	})
	h.Register(r)
	RegisterDebugRoutes(r, audit, engine, time.Hour, true)
	env.router = r
	return env
}

func (e *testEnv) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.store.Users().UpsertUser(context.Background(), models.User{ID: id, Username: name}))
	return id
}

func (e *testEnv) do(t *testing.T, as uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	e.caller = as
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateGroupAndValidation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner")

	rec := env.do(t, owner, http.MethodPost, "/chats/group", gin.H{"title": "team"})
	require.Equal(t, http.StatusCreated, rec.Code)
	chat := decodeBody(t, rec)["chat"].(map[string]any)
	assert.Equal(t, "group", chat["kind"])

	rec = env.do(t, owner, http.MethodPost, "/chats/group", gin.H{"title": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody(t, rec)["code"])
}

func TestCreateDirectStatus(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.user(t, "a"), env.user(t, "b")

	rec := env.do(t, a, http.MethodPost, "/chats/direct", gin.H{"user_id": b})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, b, http.MethodPost, "/chats/direct", gin.H{"user_id": a})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidChatID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, env.user(t, "a"), http.MethodGet, "/chats/abc/messages", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveParticipantAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, inviter, member := env.user(t, "owner"), env.user(t, "inviter"), env.user(t, "member")
	chat, err := env.store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	_, err = env.store.Chats().AddParticipant(ctx, chat.ID, inviter)
	require.NoError(t, err)
	_, err = env.auth.GrantPermissions(ctx, chat.ID, owner, inviter, models.NewPermissionSet(models.PermInviteUsers))
	require.NoError(t, err)

	rec := env.do(t, inviter, http.MethodPost, "/chats/"+chat.ID.String()+"/participants", gin.H{"user_id": member})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["added"])

	rec = env.do(t, inviter, http.MethodDelete, "/chats/"+chat.ID.String()+"/participants/"+member.String(), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeBody(t, rec)["code"])

	env.audit.On("Publish", mock.Anything, "audit.chat-core", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.Payload.Action == telemetry.ActionRemoveParticipant && e.Payload.TargetID == member.String()
	})).Return(nil).Once()
	rec = env.do(t, owner, http.MethodDelete, "/chats/"+chat.ID.String()+"/participants/"+member.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	env.audit.AssertExpectations(t)
}

func TestMuteWithoutBodyDefaultsToOneMinute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, member := env.user(t, "owner"), env.user(t, "member")
	chat, err := env.store.Chats().CreateChat(ctx, models.ChatGroup, owner, "g")
	require.NoError(t, err)
	_, err = env.store.Chats().AddParticipant(ctx, chat.ID, member)
	require.NoError(t, err)
	env.audit.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/chats/"+chat.ID.String()+"/mutes/"+member.String(), nil)
	env.caller = owner
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	muted, err := env.auth.IsMuted(ctx, chat.ID, member, time.Now().Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, muted)

	rec = env.do(t, member, http.MethodPost, "/chats/"+chat.ID.String()+"/messages", gin.H{"text": "hi"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPostMessageAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := env.user(t, "alice"), env.user(t, "bob")
	chat, _, err := env.store.Chats().CreateDirectChat(ctx, a, b)
	require.NoError(t, err)
	base := "/chats/" + chat.ID.String()

	rec := env.do(t, a, http.MethodPost, base+"/messages", gin.H{"text": "hello @bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, b, http.MethodGet, base+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decodeBody(t, rec)["messages"].([]any)
	require.Len(t, msgs, 1)

	rec = env.do(t, b, http.MethodGet, base+"/unread", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["unread"])

	rec = env.do(t, b, http.MethodGet, base+"/mentions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["mentions"], 1)

	rec = env.do(t, env.user(t, "eve"), http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadersUnavailableForDirectChats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := env.user(t, "alice"), env.user(t, "bob")
	chat, _, err := env.store.Chats().CreateDirectChat(ctx, a, b)
	require.NoError(t, err)
	msg, err := env.store.Messages().Create(ctx, models.Message{ChatID: chat.ID, SenderID: a, Content: models.TextContent{Text: "x"}})
	require.NoError(t, err)

	rec := env.do(t, a, http.MethodGet, "/messages/"+msg.ID.String()+"/reads", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "unavailable", decodeBody(t, rec)["code"])
}

func TestPresenceUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, env.user(t, "a"), http.MethodGet, "/users/"+uuid.NewString()+"/presence", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["online"])
	assert.Nil(t, resp["last_seen"])
}

func TestPurgeRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, env.user(t, "a"), http.MethodPost, "/admin/reads/purge?older_than=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["deleted"])

	rec = env.do(t, env.user(t, "b"), http.MethodPost, "/admin/reads/purge?older_than=soon", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
