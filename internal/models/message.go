package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentKind tags the variant of a message body.
type ContentKind string

const (
	ContentText    ContentKind = "text"
	ContentSticker ContentKind = "sticker"
	ContentGif     ContentKind = "gif"
	ContentForward ContentKind = "forward"
)

// Content is the closed set of message bodies. Implementations live in this
// package only.
type Content interface {
	Kind() ContentKind
	sealed()
}

type TextContent struct {
	Text string `json:"text"`
}

type StickerContent struct {
	StickerID uuid.UUID `json:"sticker_id"`
}

type GifContent struct {
	GifID      string `json:"id"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
	Provider   string `json:"provider"`
}

// ForwardContent is a snapshot of another message taken at forward time.
type ForwardContent struct {
	Original      Content
	FromChatID    uuid.UUID
	FromSenderID  uuid.UUID
	FromMessageID uuid.UUID
}

func (TextContent) Kind() ContentKind    { return ContentText }
func (StickerContent) Kind() ContentKind { return ContentSticker }
func (GifContent) Kind() ContentKind     { return ContentGif }
func (ForwardContent) Kind() ContentKind { return ContentForward }

func (TextContent) sealed()    {}
func (StickerContent) sealed() {}
func (GifContent) sealed()     {}
func (ForwardContent) sealed() {}

// PlainText returns the searchable text of a body, following forwards.
func PlainText(c Content) string {
	switch v := c.(type) {
	case TextContent:
		return v.Text
	case ForwardContent:
		return PlainText(v.Original)
	default:
		return ""
	}
}

type contentJSON struct {
	Kind      ContentKind  `json:"kind"`
	Text      string       `json:"text,omitempty"`
	StickerID *uuid.UUID   `json:"sticker_id,omitempty"`
	Gif       *GifContent  `json:"gif,omitempty"`
	Forward   *forwardJSON `json:"forward,omitempty"`
}

type forwardJSON struct {
	FromChatID    uuid.UUID   `json:"from_chat_id"`
	FromSenderID  uuid.UUID   `json:"from_sender_id"`
	FromMessageID uuid.UUID   `json:"from_message_id"`
	Original      contentJSON `json:"original"`
}

func toContentJSON(c Content) (contentJSON, error) {
	switch v := c.(type) {
	case TextContent:
		return contentJSON{Kind: ContentText, Text: v.Text}, nil
	case StickerContent:
		id := v.StickerID
		return contentJSON{Kind: ContentSticker, StickerID: &id}, nil
	case GifContent:
		gif := v
		return contentJSON{Kind: ContentGif, Gif: &gif}, nil
	case ForwardContent:
		if _, nested := v.Original.(ForwardContent); nested {
			return contentJSON{}, fmt.Errorf("forward of forward must be flattened")
		}
		original, err := toContentJSON(v.Original)
		if err != nil {
			return contentJSON{}, err
		}
		return contentJSON{Kind: ContentForward, Forward: &forwardJSON{
			FromChatID:    v.FromChatID,
			FromSenderID:  v.FromSenderID,
			FromMessageID: v.FromMessageID,
			Original:      original,
		}}, nil
	case nil:
		return contentJSON{}, fmt.Errorf("empty content")
	default:
		return contentJSON{}, fmt.Errorf("unknown content type %T", c)
	}
}

func fromContentJSON(raw contentJSON) (Content, error) {
	switch raw.Kind {
	case ContentText:
		return TextContent{Text: raw.Text}, nil
	case ContentSticker:
		if raw.StickerID == nil {
			return nil, fmt.Errorf("sticker content without sticker_id")
		}
		return StickerContent{StickerID: *raw.StickerID}, nil
	case ContentGif:
		if raw.Gif == nil {
			return nil, fmt.Errorf("gif content without gif")
		}
		return *raw.Gif, nil
	case ContentForward:
		if raw.Forward == nil {
			return nil, fmt.Errorf("forward content without forward")
		}
		if raw.Forward.Original.Kind == ContentForward {
			return nil, fmt.Errorf("forward of forward must be flattened")
		}
		original, err := fromContentJSON(raw.Forward.Original)
		if err != nil {
			return nil, err
		}
		return ForwardContent{
			Original:      original,
			FromChatID:    raw.Forward.FromChatID,
			FromSenderID:  raw.Forward.FromSenderID,
			FromMessageID: raw.Forward.FromMessageID,
		}, nil
	default:
		return nil, fmt.Errorf("unknown content kind %q", raw.Kind)
	}
}

// MarshalContent encodes a body with its kind tag.
func MarshalContent(c Content) ([]byte, error) {
	raw, err := toContentJSON(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// UnmarshalContent decodes a body produced by MarshalContent.
func UnmarshalContent(data []byte) (Content, error) {
	var raw contentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromContentJSON(raw)
}

// Message is the shared envelope around a Content body.
type Message struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	SenderID  uuid.UUID
	Content   Content
	ReplyToID *uuid.UUID
	CreatedAt time.Time
	EditedAt  *time.Time
	DeletedAt *time.Time
}

func (m Message) Deleted() bool { return m.DeletedAt != nil }

// Newer orders messages by creation time, breaking ties on id so that the
// order is total.
func (m Message) Newer(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.After(other.CreatedAt)
	}
	return m.ID.String() > other.ID.String()
}

type messageJSON struct {
	ID        uuid.UUID       `json:"id"`
	ChatID    uuid.UUID       `json:"chat_id"`
	SenderID  uuid.UUID       `json:"sender_id"`
	Content   json.RawMessage `json:"content"`
	ReplyToID *uuid.UUID      `json:"reply_to_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	EditedAt  *time.Time      `json:"edited_at,omitempty"`
	Deleted   bool            `json:"deleted"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// MarshalJSON renders deleted messages with an empty body.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		ReplyToID: m.ReplyToID,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
		Deleted:   m.Deleted(),
		DeletedAt: m.DeletedAt,
	}
	if m.Deleted() {
		out.Content = json.RawMessage("null")
	} else {
		body, err := MarshalContent(m.Content)
		if err != nil {
			return nil, err
		}
		out.Content = body
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Message{
		ID:        in.ID,
		ChatID:    in.ChatID,
		SenderID:  in.SenderID,
		ReplyToID: in.ReplyToID,
		CreatedAt: in.CreatedAt,
		EditedAt:  in.EditedAt,
		DeletedAt: in.DeletedAt,
	}
	if len(in.Content) == 0 || string(in.Content) == "null" {
		return nil
	}
	content, err := UnmarshalContent(in.Content)
	if err != nil {
		return err
	}
	m.Content = content
	return nil
}

// Reader is one row of the per-reader receipt representation.
type Reader struct {
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	Username string    `db:"username" json:"username"`
	ReadAt   time.Time `db:"read_at" json:"read_at"`
}

// MentionRecord is a notification-queue entry for a mentioned user.
type MentionRecord struct {
	ChatID    uuid.UUID `db:"chat_id" json:"chat_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	Excerpt   string    `db:"excerpt" json:"excerpt"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
