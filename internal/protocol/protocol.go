// Package protocol defines the JSON frames exchanged over a live session.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/models"
)

// MessageType names a frame.
type MessageType string

// Inbound frames.
const (
	TypeSendMessage MessageType = "send_message"
	TypeStartTyping MessageType = "start_typing"
	TypeMarkAsRead  MessageType = "mark_as_read"
)

// Outbound frames.
const (
	TypeNewMessage     MessageType = "new_message"
	TypeMessageEdited  MessageType = "message_edited"
	TypeMessageDeleted MessageType = "message_deleted"
	TypeMessagesRead   MessageType = "messages_read"
	TypePresenceUpdate MessageType = "presence_update"
	TypeTyping         MessageType = "typing"
	TypeChatAction     MessageType = "chat_action"
	TypeAck            MessageType = "ack"
	TypeError          MessageType = "error"
)

// Chat action verbs.
const (
	ActionUserJoined      = "user_joined"
	ActionUserLeft        = "user_left"
	ActionMessagePinned   = "message_pinned"
	ActionMessageUnpinned = "message_unpinned"
)

// Envelope wraps every frame. Seq is stamped on outbound frames by the
// broadcaster so clients can detect gaps; it is never used for ordering.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SendMessage carries a body in the tagged form produced by
// models.MarshalContent. A bare text field is accepted as a shorthand.
type SendMessage struct {
	ChatID    uuid.UUID       `json:"chat_id"`
	Text      string          `json:"text,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	ReplyToID *uuid.UUID      `json:"reply_to_id,omitempty"`
}

// Body resolves the content of a SendMessage frame.
func (m SendMessage) Body() (models.Content, error) {
	if len(m.Content) > 0 && string(m.Content) != "null" {
		content, err := models.UnmarshalContent(m.Content)
		if err != nil {
			return nil, err
		}
		if content.Kind() == models.ContentForward {
			return nil, fmt.Errorf("forwards are not sent directly")
		}
		return content, nil
	}
	return models.TextContent{Text: m.Text}, nil
}

type StartTyping struct {
	ChatID uuid.UUID `json:"chat_id"`
}

type MarkAsRead struct {
	ChatID            uuid.UUID   `json:"chat_id"`
	LastReadMessageID uuid.UUID   `json:"last_read_message_id"`
	MessageIDs        []uuid.UUID `json:"message_ids,omitempty"`
}

// IDs returns the batch being marked, always including LastReadMessageID.
func (m MarkAsRead) IDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(m.MessageIDs)+1)
	out := make([]uuid.UUID, 0, len(m.MessageIDs)+1)
	for _, id := range append([]uuid.UUID{m.LastReadMessageID}, m.MessageIDs...) {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type NewMessage struct {
	Message models.Message `json:"message"`
}

type MessageEdited struct {
	Message models.Message `json:"message"`
}

type MessageDeleted struct {
	ChatID     uuid.UUID   `json:"chat_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

// MessagesRead is the receipt payload. ReadCount is set only under the
// small-group policy and IsReadByPeer only in direct chats.
type MessagesRead struct {
	ChatID            uuid.UUID `json:"chat_id"`
	ReaderID          uuid.UUID `json:"reader_id"`
	LastReadMessageID uuid.UUID `json:"last_read_message_id"`
	ReadCount         *int      `json:"read_count,omitempty"`
	IsReadByPeer      *bool     `json:"is_read_by_peer,omitempty"`
}

type PresenceUpdate struct {
	UserID   uuid.UUID  `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type Typing struct {
	ChatID uuid.UUID `json:"chat_id"`
	UserID uuid.UUID `json:"user_id"`
}

type ChatAction struct {
	ChatID  uuid.UUID   `json:"chat_id"`
	Action  string      `json:"action"`
	ActorID uuid.UUID   `json:"actor_id"`
	Payload interface{} `json:"payload,omitempty"`
}

type Ack struct {
	RequestID string `json:"request_id"`
}

// ErrorMessage is sent to the actor only. Code is one of the apperr codes.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode builds an envelope for typ around data.
func Encode(typ MessageType, requestID string, data interface{}) (Envelope, error) {
	env := Envelope{Type: typ, RequestID: requestID}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	env.Data = raw
	return env, nil
}

// MustEncode is Encode for payloads built from this package's own types.
func MustEncode(typ MessageType, requestID string, data interface{}) Envelope {
	env, err := Encode(typ, requestID, data)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope payload into v.
func Decode(env Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
