package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("READ_PURGE_AFTER", "48h")

	cfg := Load()
	require.Equal(t, "memory", cfg.Store)
	require.True(t, cfg.DebugRoutes)
	require.Equal(t, 48*time.Hour, cfg.ReadPurgeAfter)
	require.Equal(t, "chat-core", cfg.ServiceName)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DEBUG_ROUTES", "sometimes")
	t.Setenv("READ_PURGE_AFTER", "-5m")

	cfg := Load()
	require.False(t, cfg.DebugRoutes)
	require.Equal(t, 7*24*time.Hour, cfg.ReadPurgeAfter)
}
