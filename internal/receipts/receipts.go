// Package receipts records read state under one of three representations
// chosen per chat, and tells interested users about it.
package receipts

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chat-core/internal/apperr"
	"chat-core/internal/authority"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

// SmallGroupReadCeiling is the largest group that keeps per-reader rows.
const SmallGroupReadCeiling = 100

const (
	defaultReadersLimit = 50
	maxReadersLimit     = 200
)

// Policy names a read-state representation.
type Policy string

const (
	PolicyViewCounter Policy = "view_counter"
	PolicyAggregate   Policy = "aggregate"
	PolicyPerReader   Policy = "per_reader"
)

// SelectPolicy picks the representation from the chat kind and its current
// participant count.
func SelectPolicy(kind models.ChatKind, participants int) Policy {
	switch {
	case kind == models.ChatChannel:
		return PolicyViewCounter
	case kind == models.ChatDirect, participants > SmallGroupReadCeiling:
		return PolicyAggregate
	default:
		return PolicyPerReader
	}
}

// Notifier delivers a receipt to one user's live sessions.
type Notifier interface {
	SendTo(userID uuid.UUID, env protocol.Envelope) bool
}

type Engine struct {
	auth     *authority.Authority
	chats    repositories.ChatRepository
	members  repositories.MemberRepository
	messages repositories.MessageRepository
	reads    repositories.ReadRepository
	notifier Notifier
}

func NewEngine(auth *authority.Authority, chats repositories.ChatRepository, members repositories.MemberRepository,
	messages repositories.MessageRepository, reads repositories.ReadRepository, notifier Notifier) *Engine {
	return &Engine{
		auth:     auth,
		chats:    chats,
		members:  members,
		messages: messages,
		reads:    reads,
		notifier: notifier,
	}
}

// MarkRead applies a batch of read marks by userID in chatID. Ids from other
// chats are ignored. The reader's last-read pointer only moves forward.
// Group and channel senders hear about every batch; a direct-chat peer only
// hears when the pointer moved.
func (e *Engine) MarkRead(ctx context.Context, userID, chatID uuid.UUID, ids []uuid.UUID) error {
	ctx, span := otel.Tracer("chat-core/receipts").Start(ctx, "receipts.mark_read")
	defer span.End()

	chat, err := e.auth.RequireMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return apperr.Validation("no messages to mark")
	}

	msgs, err := e.messages.ListByIDs(ctx, chatID, ids)
	if err != nil {
		return apperr.Internal("message lookup failed", err)
	}
	if len(msgs) == 0 {
		return apperr.NotFound("message not found")
	}
	readIDs := make([]uuid.UUID, 0, len(msgs))
	newest := msgs[0]
	for _, m := range msgs {
		readIDs = append(readIDs, m.ID)
		if m.Newer(newest) {
			newest = m
		}
	}

	count, err := e.chats.CountParticipants(ctx, chatID)
	if err != nil {
		return apperr.Internal("participant count failed", err)
	}
	policy := SelectPolicy(chat.Kind, count)
	span.SetAttributes(attribute.String("receipts.policy", string(policy)), attribute.Int("receipts.batch", len(readIDs)))

	now := e.auth.Now().UTC()
	switch policy {
	case PolicyViewCounter:
		err = e.reads.IncrementViews(ctx, readIDs, now)
	case PolicyAggregate:
		err = e.reads.MarkAggregate(ctx, readIDs, now)
	default:
		err = e.reads.MarkPerReader(ctx, readIDs, userID, now)
	}
	if err != nil {
		return apperr.Internal("read state update failed", err)
	}
	observability.IncReadReceipts(string(policy), len(readIDs))

	advanced, err := e.members.AdvanceLastRead(ctx, chatID, userID, newest.ID)
	if err != nil {
		return apperr.Internal("last read update failed", err)
	}

	if chat.Kind == models.ChatDirect {
		// is_read_by_peer covers everything up to the pointer, so a stale
		// batch adds nothing the peer was not already told.
		if advanced {
			e.notifyPeer(ctx, chatID, userID, newest.ID)
		}
		return nil
	}
	e.notifySenders(ctx, chatID, userID, policy, msgs)
	return nil
}

func (e *Engine) notifyPeer(ctx context.Context, chatID, readerID, lastRead uuid.UUID) {
	ids, err := e.chats.ListParticipantIDs(ctx, chatID)
	if err != nil {
		log.Printf("receipt peer lookup failed chat_id=%s: %v", chatID, err)
		return
	}
	readByPeer := true
	env := protocol.MustEncode(protocol.TypeMessagesRead, "", protocol.MessagesRead{
		ChatID:            chatID,
		ReaderID:          readerID,
		LastReadMessageID: lastRead,
		IsReadByPeer:      &readByPeer,
	})
	for _, id := range ids {
		if id != readerID {
			e.notifier.SendTo(id, env)
		}
	}
}

// notifySenders tells each original sender about their newest message in
// the batch. Counts are exact only under the per-reader policy.
func (e *Engine) notifySenders(ctx context.Context, chatID, readerID uuid.UUID, policy Policy, msgs []models.Message) {
	latest := map[uuid.UUID]models.Message{}
	for _, m := range msgs {
		if m.SenderID == readerID {
			continue
		}
		if cur, ok := latest[m.SenderID]; !ok || m.Newer(cur) {
			latest[m.SenderID] = m
		}
	}
	for senderID, m := range latest {
		payload := protocol.MessagesRead{ChatID: chatID, ReaderID: readerID, LastReadMessageID: m.ID}
		if policy == PolicyPerReader {
			n, err := e.reads.CountReaders(ctx, m.ID)
			if err != nil {
				log.Printf("receipt count failed message_id=%s: %v", m.ID, err)
			} else {
				payload.ReadCount = &n
			}
		}
		e.notifier.SendTo(senderID, protocol.MustEncode(protocol.TypeMessagesRead, "", payload))
	}
}

// ListReaders enumerates who read a message. It only works under the
// per-reader policy; other chats fail Unavailable. The caller must be the
// owner, the sender, or hold delete_messages.
func (e *Engine) ListReaders(ctx context.Context, userID, messageID uuid.UUID, limit int) ([]models.Reader, error) {
	msg, err := e.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, apperr.Internal("message lookup failed", err)
	}
	chat, err := e.auth.RequireMember(ctx, msg.ChatID, userID)
	if err != nil {
		return nil, err
	}
	count, err := e.chats.CountParticipants(ctx, chat.ID)
	if err != nil {
		return nil, apperr.Internal("participant count failed", err)
	}
	if SelectPolicy(chat.Kind, count) != PolicyPerReader {
		return nil, apperr.Unavailable("reader list is not available at this scale")
	}
	if msg.SenderID != userID {
		if err := e.auth.RequirePermission(ctx, chat, userID, models.PermDeleteMessages); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = defaultReadersLimit
	}
	if limit > maxReadersLimit {
		limit = maxReadersLimit
	}
	readers, err := e.reads.ListReaders(ctx, messageID, limit)
	if err != nil {
		return nil, apperr.Internal("readers lookup failed", err)
	}
	return readers, nil
}

// UnreadCount counts live messages from others newer than the caller's
// last-read pointer.
func (e *Engine) UnreadCount(ctx context.Context, userID, chatID uuid.UUID) (int, error) {
	if _, err := e.auth.RequireMember(ctx, chatID, userID); err != nil {
		return 0, err
	}
	member, err := e.members.GetMember(ctx, chatID, userID)
	if err != nil {
		return 0, apperr.Internal("member lookup failed", err)
	}
	n, err := e.messages.CountAfter(ctx, chatID, member.LastReadMessageID, userID)
	if err != nil {
		return 0, apperr.Internal("unread count failed", err)
	}
	return n, nil
}

// PurgePerReader deletes per-reader rows older than olderThan.
func (e *Engine) PurgePerReader(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := e.auth.Now().UTC().Add(-olderThan)
	n, err := e.reads.PurgePerReaderBefore(ctx, cutoff)
	if err != nil {
		return 0, apperr.Internal("purge failed", err)
	}
	log.Printf("per-reader receipts purged cutoff=%s deleted=%d", cutoff.Format(time.RFC3339), n)
	return n, nil
}
