package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"chat-core/internal/observability"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// publishSessionEvent emits a ws_events envelope and counts it.
func publishSessionEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent("session", event)
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, observability.SessionRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "session",
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": info.identity(),
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
