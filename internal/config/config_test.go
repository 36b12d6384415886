package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndFillsDefaults(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "0123456789abcdef-secret")
	path := writeConfig(t, `
app:
  env: test
auth:
  jwt_secret: ${TEST_JWT_SECRET}
  admin_emails: [" Admin@Example.com "]
database:
  path: /tmp/auditorium-test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0123456789abcdef-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"admin@example.com"}, cfg.Auth.AdminEmails)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/auditorium-test.db", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	assert.Equal(t, 15*time.Minute, cfg.ConsistencyInterval())
	assert.Equal(t, "auditorium", cfg.Tracing.ServiceName)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: from-file-secret-value
http:
  addr: ":9000"
`)
	t.Setenv("AUDITORIUM_HTTP_ADDR", ":7000")
	t.Setenv("AUDITORIUM_JWT_SECRET", "from-env-secret-value")
	t.Setenv("AUDITORIUM_ADMIN_EMAILS", "a@example.com,b@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "from-env-secret-value", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Auth.AdminEmails)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "app:\n  env: dev\n"},
		{"short secret", "auth:\n  jwt_secret: short\n"},
		{"unknown driver", "auth:\n  jwt_secret: 0123456789abcdef\ndatabase:\n  driver: mongo\n"},
		{"postgres without dsn", "auth:\n  jwt_secret: 0123456789abcdef\ndatabase:\n  driver: postgres\n"},
		{"bad admin email", "auth:\n  jwt_secret: 0123456789abcdef\n  admin_emails: [nope]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
