package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
)

type resolverFunc func(ctx context.Context, credential string) (uuid.UUID, error)

func (f resolverFunc) ResolveIdentity(ctx context.Context, credential string) (uuid.UUID, error) {
	return f(ctx, credential)
}

func TestHandshakeRejectionUsesErrorKind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness()

	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"bad token":   {apperr.Unauthorized("invalid token"), http.StatusUnauthorized, "unauthorized"},
		"store down":  {apperr.Internal("user lookup failed", errors.New("db down")), http.StatusInternalServerError, "internal"},
		"name in use": {apperr.Validation("username is already taken"), http.StatusBadRequest, "validation"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resolver := resolverFunc(func(context.Context, string) (uuid.UUID, error) { return uuid.Nil, tc.err })
			r := gin.New()
			r.GET("/ws", NewHandler(context.Background(), h.rt, h.svc, resolver).Handle)

			req := httptest.NewRequest(http.MethodGet, "/ws?token=x", nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
		})
	}
}
