package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateDirectChat(ctx context.Context, userA, userB uuid.UUID) (models.Chat, bool, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, kind models.ChatKind, ownerID uuid.UUID, title string) (models.Chat, error) {
	args := m.Called(ctx, kind, ownerID, title)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListParticipantIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, chatID)
	var ids []uuid.UUID
	if val := args.Get(0); val != nil {
		ids = val.([]uuid.UUID)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) ListParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error) {
	args := m.Called(ctx, chatID)
	var list []models.Participant
	if val := args.Get(0); val != nil {
		list = val.([]models.Participant)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) CountParticipants(ctx context.Context, chatID uuid.UUID) (int, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) AddParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetPinnedMessage(ctx context.Context, chatID uuid.UUID, messageID *uuid.UUID) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetVisibility(ctx context.Context, chatID uuid.UUID, isPublic bool, handle *string) error {
	args := m.Called(ctx, chatID, isPublic, handle)
	return args.Error(0)
}

func (m *ChatRepositoryMock) FindByHandle(ctx context.Context, handle string) (models.Chat, error) {
	args := m.Called(ctx, handle)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListRelevantPeers(ctx context.Context, userID uuid.UUID, ceiling int) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID, ceiling)
	var ids []uuid.UUID
	if val := args.Get(0); val != nil {
		ids = val.([]uuid.UUID)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) SearchPublic(ctx context.Context, prefix string, limit int) ([]models.Chat, error) {
	args := m.Called(ctx, prefix, limit)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

type MemberRepositoryMock struct {
	mock.Mock
}

func (m *MemberRepositoryMock) GetAdminGrant(ctx context.Context, chatID, userID uuid.UUID) (models.AdminGrant, bool, error) {
	args := m.Called(ctx, chatID, userID)
	var grant models.AdminGrant
	if val := args.Get(0); val != nil {
		grant = val.(models.AdminGrant)
	}
	return grant, args.Bool(1), args.Error(2)
}

func (m *MemberRepositoryMock) UpsertAdminGrant(ctx context.Context, grant models.AdminGrant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MemberRepositoryMock) DeleteAdminGrant(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MemberRepositoryMock) ListAdminGrants(ctx context.Context, chatID uuid.UUID) ([]models.AdminGrant, error) {
	args := m.Called(ctx, chatID)
	var grants []models.AdminGrant
	if val := args.Get(0); val != nil {
		grants = val.([]models.AdminGrant)
	}
	return grants, args.Error(1)
}

func (m *MemberRepositoryMock) GetMute(ctx context.Context, chatID, userID uuid.UUID) (models.Mute, bool, error) {
	args := m.Called(ctx, chatID, userID)
	var mute models.Mute
	if val := args.Get(0); val != nil {
		mute = val.(models.Mute)
	}
	return mute, args.Bool(1), args.Error(2)
}

func (m *MemberRepositoryMock) UpsertMute(ctx context.Context, mute models.Mute) error {
	args := m.Called(ctx, mute)
	return args.Error(0)
}

func (m *MemberRepositoryMock) DeleteMute(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MemberRepositoryMock) GetMember(ctx context.Context, chatID, userID uuid.UUID) (models.Member, error) {
	args := m.Called(ctx, chatID, userID)
	var member models.Member
	if val := args.Get(0); val != nil {
		member = val.(models.Member)
	}
	return member, args.Error(1)
}

func (m *MemberRepositoryMock) AdvanceLastRead(ctx context.Context, chatID, userID, messageID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MemberRepositoryMock) SetNote(ctx context.Context, chatID, userID uuid.UUID, note string) error {
	args := m.Called(ctx, chatID, userID, note)
	return args.Error(0)
}

func (m *MemberRepositoryMock) SetNotifyPrefs(ctx context.Context, chatID, userID uuid.UUID, prefs models.NotifyPrefs) error {
	args := m.Called(ctx, chatID, userID, prefs)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListByIDs(ctx context.Context, chatID uuid.UUID, ids []uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, chatID, ids)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID uuid.UUID, content models.Content, editedAt time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, content, editedAt)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, chatID uuid.UUID, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, chatID, ids, at)
	var deleted []uuid.UUID
	if val := args.Get(0); val != nil {
		deleted = val.([]uuid.UUID)
	}
	return deleted, args.Error(1)
}

func (m *MessageRepositoryMock) ListBefore(ctx context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountAfter(ctx context.Context, chatID uuid.UUID, after *uuid.UUID, excludeSender uuid.UUID) (int, error) {
	args := m.Called(ctx, chatID, after, excludeSender)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteAll(ctx context.Context, chatID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, chatID, at)
	var deleted []uuid.UUID
	if val := args.Get(0); val != nil {
		deleted = val.([]uuid.UUID)
	}
	return deleted, args.Error(1)
}

type ReadRepositoryMock struct {
	mock.Mock
}

func (m *ReadRepositoryMock) IncrementViews(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	args := m.Called(ctx, ids, at)
	return args.Error(0)
}

func (m *ReadRepositoryMock) MarkAggregate(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	args := m.Called(ctx, ids, at)
	return args.Error(0)
}

func (m *ReadRepositoryMock) MarkPerReader(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, ids, userID, at)
	return args.Error(0)
}

func (m *ReadRepositoryMock) CountReaders(ctx context.Context, messageID uuid.UUID) (int, error) {
	args := m.Called(ctx, messageID)
	return args.Int(0), args.Error(1)
}

func (m *ReadRepositoryMock) ListReaders(ctx context.Context, messageID uuid.UUID, limit int) ([]models.Reader, error) {
	args := m.Called(ctx, messageID, limit)
	var readers []models.Reader
	if val := args.Get(0); val != nil {
		readers = val.([]models.Reader)
	}
	return readers, args.Error(1)
}

func (m *ReadRepositoryMock) PurgePerReaderBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MentionRepositoryMock struct {
	mock.Mock
}

func (m *MentionRepositoryMock) InsertIfAbsent(ctx context.Context, rec models.MentionRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *MentionRepositoryMock) List(ctx context.Context, chatID, userID uuid.UUID, limit int) ([]models.MentionRecord, error) {
	args := m.Called(ctx, chatID, userID, limit)
	var records []models.MentionRecord
	if val := args.Get(0); val != nil {
		records = val.([]models.MentionRecord)
	}
	return records, args.Error(1)
}

func (m *MentionRepositoryMock) Clear(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UpsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MemberRepository = (*MemberRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ReadRepository = (*ReadRepositoryMock)(nil)
var _ repositories.MentionRepository = (*MentionRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
