package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
)

// SessionState is the lifecycle of one live connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// ErrDropped ends a session whose outbound queue overflowed.
var ErrDropped = errors.New("outbound channel dropped")

// MembershipChecker answers "is user a participant of chat".
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// MessageSender persists and broadcasts a new message.
type MessageSender interface {
	Send(ctx context.Context, userID, chatID uuid.UUID, content models.Content, replyToID *uuid.UUID) (models.Message, error)
}

// ReadMarker applies a batch of read marks.
type ReadMarker interface {
	MarkRead(ctx context.Context, userID, chatID uuid.UUID, ids []uuid.UUID) error
}

// Services are the domain actions a session dispatches to.
type Services struct {
	Members MembershipChecker
	Sender  MessageSender
	Reads   ReadMarker
}

// Session owns one live connection: it serves inbound frames in arrival
// order and writes the user's outbound events back to the transport.
type Session struct {
	rt        *Realtime
	svc       Services
	userID    uuid.UUID
	transport Transport
	client    *Client
	state     atomic.Int32
}

// NewSession builds a session for an already authenticated user.
func NewSession(rt *Realtime, svc Services, userID uuid.UUID, transport Transport, info ConnInfo) *Session {
	info.UserID = userID
	return &Session{
		rt:        rt,
		svc:       svc,
		userID:    userID,
		transport: transport,
		client:    NewClient(info),
	}
}

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) Info() ConnInfo { return s.client.info }

type inboundResult struct {
	frame []byte
	err   error
}

// Run blocks until the client closes, the transport fails, the outbound
// channel is dropped or ctx ends. Registry and presence are always released
// before it returns. A clean client close returns nil.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.rt.Connect(ctx, s.userID, s.client)
	s.state.Store(int32(StateActive))
	defer func() {
		s.state.Store(int32(StateClosed))
		_ = s.transport.Close()
		s.rt.Disconnect(context.WithoutCancel(ctx), s.userID, s.client)
	}()

	inbound := make(chan inboundResult)
	go s.readLoop(ctx, inbound)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.client.Dropped():
			return ErrDropped
		case in := <-inbound:
			if in.err != nil {
				return cleanClose(in.err)
			}
			if err := s.dispatch(ctx, in.frame); err != nil {
				return cleanClose(err)
			}
		case env := <-s.client.Outbound():
			if err := s.write(env); err != nil {
				return cleanClose(err)
			}
		}
	}
}

// cleanClose maps a peer-initiated close to a nil error.
func cleanClose(err error) error {
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (s *Session) readLoop(ctx context.Context, inbound chan<- inboundResult) {
	for {
		frame, err := s.transport.ReadFrame()
		select {
		case inbound <- inboundResult{frame: frame, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) write(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("ws encode failed user_id=%s type=%s: %v", s.userID, env.Type, err)
		return nil
	}
	return s.transport.WriteFrame(data)
}

// dispatch handles one inbound frame. Only transport failures are returned;
// domain errors become error events for this session.
func (s *Session) dispatch(ctx context.Context, frame []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return s.replyError("", apperr.Validation("malformed frame"))
	}

	switch env.Type {
	case protocol.TypeSendMessage:
		return s.handleSend(ctx, env)
	case protocol.TypeStartTyping:
		return s.handleTyping(ctx, env)
	case protocol.TypeMarkAsRead:
		return s.handleMarkRead(ctx, env)
	default:
		return s.replyError(env.RequestID, apperr.Validation("unknown event type"))
	}
}

func (s *Session) handleSend(ctx context.Context, env protocol.Envelope) error {
	var in protocol.SendMessage
	if err := protocol.Decode(env, &in); err != nil {
		return s.replyError(env.RequestID, apperr.Validation("invalid send_message payload"))
	}
	content, err := in.Body()
	if err != nil {
		return s.replyError(env.RequestID, apperr.Validation(err.Error()))
	}
	if _, err := s.svc.Sender.Send(ctx, s.userID, in.ChatID, content, in.ReplyToID); err != nil {
		return s.replyError(env.RequestID, err)
	}
	return s.ack(env.RequestID)
}

func (s *Session) handleTyping(ctx context.Context, env protocol.Envelope) error {
	var in protocol.StartTyping
	if err := protocol.Decode(env, &in); err != nil {
		return s.replyError(env.RequestID, apperr.Validation("invalid start_typing payload"))
	}
	if !s.member(ctx, in.ChatID) {
		return nil
	}
	if s.rt.Typing.Touch(in.ChatID, s.userID, s.rt.Presence.now()) {
		typing := protocol.MustEncode(protocol.TypeTyping, "", protocol.Typing{ChatID: in.ChatID, UserID: s.userID})
		if _, err := s.rt.Broadcaster.BroadcastExcept(ctx, in.ChatID, s.userID, typing); err != nil {
			log.Printf("typing broadcast failed chat_id=%s user_id=%s: %v", in.ChatID, s.userID, err)
		}
	}
	return s.ack(env.RequestID)
}

func (s *Session) handleMarkRead(ctx context.Context, env protocol.Envelope) error {
	var in protocol.MarkAsRead
	if err := protocol.Decode(env, &in); err != nil {
		return s.replyError(env.RequestID, apperr.Validation("invalid mark_as_read payload"))
	}
	if !s.member(ctx, in.ChatID) {
		return nil
	}
	ids := in.IDs()
	if len(ids) == 0 {
		return s.replyError(env.RequestID, apperr.Validation("last_read_message_id is required"))
	}
	if err := s.svc.Reads.MarkRead(ctx, s.userID, in.ChatID, ids); err != nil {
		return s.replyError(env.RequestID, err)
	}
	return s.ack(env.RequestID)
}

// member hides both "not a member" and lookup failures from the client.
func (s *Session) member(ctx context.Context, chatID uuid.UUID) bool {
	ok, err := s.svc.Members.IsMember(ctx, chatID, s.userID)
	if err != nil {
		log.Printf("ws membership check failed chat_id=%s user_id=%s: %v", chatID, s.userID, err)
		return false
	}
	return ok
}

func (s *Session) ack(requestID string) error {
	if requestID == "" {
		return nil
	}
	return s.write(protocol.MustEncode(protocol.TypeAck, requestID, protocol.Ack{RequestID: requestID}))
}

func (s *Session) replyError(requestID string, err error) error {
	kind := apperr.KindOf(err)
	code := apperr.Code(kind)
	if kind == apperr.KindInternal {
		log.Printf("ws action failed user_id=%s conn_id=%s: %v", s.userID, s.client.info.ConnID, err)
	}
	observability.IncSessionError(code)
	return s.write(protocol.MustEncode(protocol.TypeError, requestID, protocol.ErrorMessage{
		Code:    code,
		Message: apperr.Message(err),
	}))
}
