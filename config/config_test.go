package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("JWT_SECRET", "s")
	for _, k := range []string{"PORT", "STORE_DRIVER", "JWT_EXPIRY", "INVITE_TOKEN_BYTES", "REGISTRATION_TRANSITIONS", "CORS_ALLOWED_ORIGINS", "REQUEST_TIMEOUT", "SES_INSECURE_SKIP_VERIFY", "EMAIL_PROVIDER"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, TransitionsPermissive, cfg.RegistrationTransitions)
	assert.Equal(t, "noop", cfg.EmailProvider)
	assert.Zero(t, cfg.InviteTokenBytes)
	assert.Empty(t, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("INVITE_TOKEN_BYTES", "32")
	t.Setenv("REGISTRATION_TRANSITIONS", "strict")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("SES_INSECURE_SKIP_VERIFY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 32, cfg.InviteTokenBytes)
	assert.Equal(t, TransitionsStrict, cfg.RegistrationTransitions)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.SESInsecureSkipVerify)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"short tokens", map[string]string{"INVITE_TOKEN_BYTES": "8"}},
		{"bad policy", map[string]string{"REGISTRATION_TRANSITIONS": "loose"}},
		{"bad expiry", map[string]string{"JWT_EXPIRY": "forever"}},
		{"missing secret in production", map[string]string{"JWT_SECRET": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GO_ENV", "production")
			t.Setenv("JWT_SECRET", "s")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
