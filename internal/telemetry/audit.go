package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Audit actions for privileged chat changes.
const (
	ActionGrant             = "admin_granted"
	ActionRevoke            = "admin_revoked"
	ActionMute              = "member_muted"
	ActionUnmute            = "member_unmuted"
	ActionRemoveParticipant = "participant_removed"
	ActionClearHistory      = "history_cleared"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level    string `json:"level"`
	Text     string `json:"text"`
	Action   string `json:"action,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.emit(ctx, requestID, userID, AuditPayload{Level: level, Text: text})
}

// Action records a privileged change made by actor to target in chatID.
func (e *AuditEmitter) Action(ctx context.Context, action string, chatID, targetID uuid.UUID, requestID string, actor *string) {
	e.emit(ctx, requestID, actor, AuditPayload{
		Level:    "INFO",
		Text:     action,
		Action:   action,
		ChatID:   chatID.String(),
		TargetID: targetID.String(),
	})
}

func (e *AuditEmitter) emit(ctx context.Context, requestID string, userID *string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	user := ""
	if userID != nil {
		user = *userID
	}
	log.Printf("audit emit: level=%s action=%s chat_id=%s request_id=%s user_id=%s text=%q",
		payload.Level, payload.Action, payload.ChatID, requestID, user, payload.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
