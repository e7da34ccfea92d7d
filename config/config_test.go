package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryEnv sets the minimum environment for an in-process deployment.
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDP_SIGNING_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("FEED_BACKEND", "memory")
	t.Setenv("PRESENCE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	memoryEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("PRESENCE_TTL", "")
	t.Setenv("ASSISTANT_CONCURRENCY", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 60*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 4, cfg.AssistantConcurrency)
	assert.False(t, cfg.UsesPostgres())
}

func TestLoadConfigBackendsAreCaseInsensitive(t *testing.T) {
	memoryEnv(t)
	t.Setenv("PRESENCE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.PresenceBackend)
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":        {"IDP_SIGNING_SECRET": ""},
		"unknown store":         {"STORE_BACKEND": "mongo"},
		"redis presence no url": {"PRESENCE_BACKEND": "redis"},
		"postgres without url":  {"STORE_BACKEND": "postgres", "FEED_BACKEND": "postgres"},
		"memory store pg feed":  {"FEED_BACKEND": "postgres", "DATABASE_URL": "postgres://x"},
		"bad ttl":               {"PRESENCE_TTL": "soon"},
		"non positive ttl":      {"PRESENCE_TTL": "-1s"},
		"bad smtp port":         {"SMTP_PORT": "smtp"},
		"bad assistant workers": {"ASSISTANT_CONCURRENCY": "many"},
		"bad can create groups": {"DEFAULT_CAN_CREATE_GROUPS": "perhaps"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			memoryEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSMTPEnabled(t *testing.T) {
	assert.False(t, (&Config{}).SMTPEnabled())
	assert.True(t, (&Config{SMTPHost: "smtp.example.com"}).SMTPEnabled())
}
