package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chat-core/internal/apperr"
	"chat-core/internal/observability"
)

// IdentityResolver turns the bearer credential into a user id.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, credential string) (uuid.UUID, error)
}

// Handler upgrades GET /ws into a live session.
type Handler struct {
	rt       *Realtime
	svc      Services
	resolver IdentityResolver
	baseCtx  context.Context
}

// NewHandler constructs a Handler. Sessions live until their connection
// closes or baseCtx ends.
func NewHandler(baseCtx context.Context, rt *Realtime, svc Services, resolver IdentityResolver) *Handler {
	return &Handler{rt: rt, svc: svc, resolver: resolver, baseCtx: baseCtx}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and runs the session in its own goroutine.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-core/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}

	userID, err := h.resolver.ResolveIdentity(ctx, token)
	if err != nil {
		kind := apperr.KindOf(err)
		span.SetAttributes(attribute.String("ws.reject", apperr.Code(kind)))
		if kind == apperr.KindInternal {
			log.Printf("ws identity resolution failed: %v", err)
		}
		c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Message(err), "code": apperr.Code(kind)})
		return
	}
	span.SetAttributes(attribute.String("user.id", userID.String()))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := observability.ClientFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    client.DeviceID,
		IP:          client.IP,
		RequestID:   client.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	session := NewSession(h.rt, h.svc, userID, NewWebsocketTransport(conn), info)

	observability.IncWSActive("session")
	publishSessionEvent(ctx, "ws_connect", info, "")
	log.Printf("ws connected user_id=%s conn_id=%s", userID, info.ConnID)

	go func() {
		runErr := session.Run(h.baseCtx)
		observability.DecWSActive("session")
		reason := ""
		if runErr != nil {
			reason = runErr.Error()
			if !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, ErrDropped) {
				publishSessionEvent(h.baseCtx, "ws_error", info, reason)
			}
		}
		publishSessionEvent(context.WithoutCancel(h.baseCtx), "ws_disconnect", info, reason)
		log.Printf("ws disconnected user_id=%s conn_id=%s reason=%q", userID, info.ConnID, reason)
	}()
}
