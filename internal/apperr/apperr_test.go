package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("send: %w", Forbidden("muted"))
	require.Equal(t, KindForbidden, KindOf(err))
	require.True(t, Is(err, KindForbidden))
	require.Equal(t, "muted", Message(err))
}

func TestKindOfForeignError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
	assert.False(t, Is(nil, KindInternal))
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("store failure", cause)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "store failure: connection reset", err.Error())
	assert.Equal(t, "store failure", Message(err))
}

func TestCodesAndStatuses(t *testing.T) {
	cases := []struct {
		kind   Kind
		code   string
		status int
	}{
		{KindUnauthorized, "unauthorized", http.StatusUnauthorized},
		{KindForbidden, "forbidden", http.StatusForbidden},
		{KindNotFound, "not_found", http.StatusNotFound},
		{KindValidation, "validation", http.StatusBadRequest},
		{KindUnavailable, "unavailable", http.StatusConflict},
		{KindInternal, "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, Code(tc.kind))
		assert.Equal(t, tc.status, HTTPStatus(tc.kind))
	}
}
