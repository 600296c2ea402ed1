// Package messaging creates, edits, deletes and forwards messages and fans
// the results out to chat participants.
package messaging

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chat-core/internal/apperr"
	"chat-core/internal/authority"
	"chat-core/internal/mentions"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	MaxTextRunes        = 4096
	MaxForwardBatch     = 100
)

// Broadcaster fans an event out to a chat's live participants.
type Broadcaster interface {
	Broadcast(ctx context.Context, chatID uuid.UUID, env protocol.Envelope) (int, error)
}

type Service struct {
	auth     *authority.Authority
	messages repositories.MessageRepository
	mentions *mentions.Recorder
	bcast    Broadcaster
}

func NewService(auth *authority.Authority, messages repositories.MessageRepository, recorder *mentions.Recorder, bcast Broadcaster) *Service {
	return &Service{auth: auth, messages: messages, mentions: recorder, bcast: bcast}
}

func validateContent(content models.Content) error {
	switch c := content.(type) {
	case models.TextContent:
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return apperr.Validation("message text is empty")
		}
		if utf8.RuneCountInString(text) > MaxTextRunes {
			return apperr.Validation("message text is too long")
		}
	case models.StickerContent:
		if c.StickerID == uuid.Nil {
			return apperr.Validation("sticker_id is required")
		}
	case models.GifContent:
		if c.GifID == "" || c.URL == "" {
			return apperr.Validation("gif id and url are required")
		}
	case models.ForwardContent:
		return apperr.Validation("forwards are created by forwarding")
	default:
		return apperr.Validation("message content is required")
	}
	return nil
}

// Send is the single write path for new messages: content checks, the send
// guard, mention limits, reply target, persist, broadcast, then mentions.
func (s *Service) Send(ctx context.Context, userID, chatID uuid.UUID, content models.Content, replyToID *uuid.UUID) (models.Message, error) {
	ctx, span := otel.Tracer("chat-core/messaging").Start(ctx, "messaging.send")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID.String()))

	if content == nil {
		return models.Message{}, apperr.Validation("message content is required")
	}
	if text, ok := content.(models.TextContent); ok {
		content = models.TextContent{Text: strings.TrimSpace(text.Text)}
	}
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}
	if _, err := s.auth.CanSend(ctx, chatID, userID); err != nil {
		return models.Message{}, err
	}
	tokens, err := mentions.Validate(models.PlainText(content))
	if err != nil {
		return models.Message{}, err
	}
	if replyToID != nil {
		if err := s.checkReplyTarget(ctx, chatID, *replyToID); err != nil {
			return models.Message{}, err
		}
	}

	msg, err := s.messages.Create(ctx, models.Message{
		ChatID:    chatID,
		SenderID:  userID,
		Content:   content,
		ReplyToID: replyToID,
		CreatedAt: s.auth.Now().UTC(),
	})
	if err != nil {
		return models.Message{}, apperr.Internal("message persist failed", err)
	}
	span.SetAttributes(attribute.String("message.id", msg.ID.String()))

	s.publish(ctx, chatID, protocol.TypeNewMessage, protocol.NewMessage{Message: msg})
	s.recordMentions(ctx, msg, tokens)
	return msg, nil
}

func (s *Service) SendText(ctx context.Context, userID, chatID uuid.UUID, text string, replyToID *uuid.UUID) (models.Message, error) {
	return s.Send(ctx, userID, chatID, models.TextContent{Text: text}, replyToID)
}

func (s *Service) SendSticker(ctx context.Context, userID, chatID, stickerID uuid.UUID) (models.Message, error) {
	return s.Send(ctx, userID, chatID, models.StickerContent{StickerID: stickerID}, nil)
}

func (s *Service) SendGif(ctx context.Context, userID, chatID uuid.UUID, gif models.GifContent) (models.Message, error) {
	return s.Send(ctx, userID, chatID, gif, nil)
}

func (s *Service) checkReplyTarget(ctx context.Context, chatID, replyToID uuid.UUID) error {
	target, err := s.messages.Get(ctx, replyToID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return apperr.Validation("reply target not found")
	}
	if err != nil {
		return apperr.Internal("reply target lookup failed", err)
	}
	if target.ChatID != chatID {
		return apperr.Validation("reply target belongs to another chat")
	}
	return nil
}

// Edit replaces the text of the caller's own live text message.
func (s *Service) Edit(ctx context.Context, userID, messageID uuid.UUID, text string) (models.Message, error) {
	msg, err := s.load(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := s.auth.RequireMember(ctx, msg.ChatID, userID); err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != userID {
		return models.Message{}, apperr.Forbidden("only the sender can edit a message")
	}
	if msg.Deleted() {
		return models.Message{}, apperr.NotFound("message not found")
	}
	if msg.Content.Kind() != models.ContentText {
		return models.Message{}, apperr.Validation("only text messages can be edited")
	}
	content := models.TextContent{Text: strings.TrimSpace(text)}
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}
	tokens, err := mentions.Validate(content.Text)
	if err != nil {
		return models.Message{}, err
	}

	edited, err := s.messages.Edit(ctx, messageID, content, s.auth.Now().UTC())
	if err != nil {
		return models.Message{}, apperr.Internal("message edit failed", err)
	}
	s.publish(ctx, edited.ChatID, protocol.TypeMessageEdited, protocol.MessageEdited{Message: edited})
	s.recordMentions(ctx, edited, tokens)
	return edited, nil
}

// Delete soft-deletes messages of one chat. Every message must be the
// caller's own unless they are the owner or hold delete_messages.
func (s *Service) Delete(ctx context.Context, userID, chatID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("message_ids is required")
	}
	chat, err := s.auth.RequireMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByIDs(ctx, chatID, ids)
	if err != nil {
		return nil, apperr.Internal("message lookup failed", err)
	}
	if len(msgs) == 0 {
		return nil, apperr.NotFound("message not found")
	}
	perms, err := s.auth.EffectivePermissions(ctx, chat, userID)
	if err != nil {
		return nil, err
	}
	targets := make([]uuid.UUID, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != userID && !perms.CanDeleteMessages() {
			return nil, apperr.Forbidden("missing permission delete_messages")
		}
		targets = append(targets, m.ID)
	}

	deleted, err := s.messages.SoftDelete(ctx, chatID, targets, s.auth.Now().UTC())
	if err != nil {
		return nil, apperr.Internal("message delete failed", err)
	}
	if len(deleted) > 0 {
		s.publish(ctx, chatID, protocol.TypeMessageDeleted, protocol.MessageDeleted{ChatID: chatID, MessageIDs: deleted})
	}
	return deleted, nil
}

// Forward copies messages from one chat into another. Each copy is a
// snapshot; forwarding a forward keeps the original provenance.
func (s *Service) Forward(ctx context.Context, userID, fromChatID, toChatID uuid.UUID, ids []uuid.UUID) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("message_ids is required")
	}
	if len(ids) > MaxForwardBatch {
		return nil, apperr.Validation("too many messages to forward")
	}
	if _, err := s.auth.RequireMember(ctx, fromChatID, userID); err != nil {
		return nil, err
	}
	if _, err := s.auth.CanSend(ctx, toChatID, userID); err != nil {
		return nil, err
	}
	sources, err := s.messages.ListByIDs(ctx, fromChatID, ids)
	if err != nil {
		return nil, apperr.Internal("message lookup failed", err)
	}
	live := sources[:0]
	for _, m := range sources {
		if !m.Deleted() {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return nil, apperr.NotFound("message not found")
	}
	sort.Slice(live, func(i, j int) bool { return live[j].Newer(live[i]) })

	out := make([]models.Message, 0, len(live))
	for _, src := range live {
		created, err := s.messages.Create(ctx, models.Message{
			ChatID:    toChatID,
			SenderID:  userID,
			Content:   snapshot(src),
			CreatedAt: s.auth.Now().UTC(),
		})
		if err != nil {
			return out, apperr.Internal("forward persist failed", err)
		}
		s.publish(ctx, toChatID, protocol.TypeNewMessage, protocol.NewMessage{Message: created})
		out = append(out, created)
	}
	return out, nil
}

func snapshot(src models.Message) models.ForwardContent {
	if fwd, ok := src.Content.(models.ForwardContent); ok {
		return fwd
	}
	return models.ForwardContent{
		Original:      src.Content,
		FromChatID:    src.ChatID,
		FromSenderID:  src.SenderID,
		FromMessageID: src.ID,
	}
}

// History pages backwards from before, newest first.
func (s *Service) History(ctx context.Context, userID, chatID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	if _, err := s.auth.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	msgs, err := s.messages.ListBefore(ctx, chatID, before, limit)
	if err != nil {
		return nil, apperr.Internal("history lookup failed", err)
	}
	return msgs, nil
}

// Get returns one message to a member of its chat.
func (s *Service) Get(ctx context.Context, userID, messageID uuid.UUID) (models.Message, error) {
	msg, err := s.load(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := s.auth.RequireMember(ctx, msg.ChatID, userID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *Service) load(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, apperr.NotFound("message not found")
	}
	if err != nil {
		return models.Message{}, apperr.Internal("message lookup failed", err)
	}
	return msg, nil
}

func (s *Service) publish(ctx context.Context, chatID uuid.UUID, typ protocol.MessageType, payload interface{}) {
	env, err := protocol.Encode(typ, "", payload)
	if err != nil {
		log.Printf("broadcast encode failed chat_id=%s type=%s: %v", chatID, typ, err)
		return
	}
	if _, err := s.bcast.Broadcast(ctx, chatID, env); err != nil {
		log.Printf("broadcast failed chat_id=%s type=%s: %v", chatID, typ, err)
	}
}

// recordMentions never fails the send; the message is already committed.
func (s *Service) recordMentions(ctx context.Context, msg models.Message, tokens []string) {
	if s.mentions == nil || len(tokens) == 0 {
		return
	}
	if _, err := s.mentions.Record(ctx, msg, tokens); err != nil {
		log.Printf("mention record failed chat_id=%s message_id=%s: %v", msg.ChatID, msg.ID, err)
	}
}
