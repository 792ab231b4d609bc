package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"JWT_SECRET": testSecret})
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.LedgerDriver)
	assert.Equal(t, "https://accounts.google.com", cfg.GoogleIssuer)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 256, cfg.WSSendBuffer)
	assert.Equal(t, 54*time.Second, cfg.WSPingInterval)
	assert.Equal(t, 2000, cfg.MaxMessageLength)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"JWT_SECRET":           testSecret,
		"APP_ADDR":             ":8080",
		"LEDGER_DRIVER":        "sqlite",
		"LEDGER_DSN":           "/tmp/relay.db",
		"CORS_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"PROVIDER_TIMEOUT":     "2s",
	})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.LedgerDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.ProviderTimeout)
}

func TestLoadFrom_Validation(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{
			name: "short secret",
			vars: map[string]string{"JWT_SECRET": "short"},
			want: "JWT_SECRET",
		},
		{
			name: "unknown driver",
			vars: map[string]string{"JWT_SECRET": testSecret, "LEDGER_DRIVER": "mongo"},
			want: "LEDGER_DRIVER",
		},
		{
			name: "sqlite without dsn",
			vars: map[string]string{"JWT_SECRET": testSecret, "LEDGER_DRIVER": "sqlite"},
			want: "LEDGER_DSN",
		},
		{
			name: "surreal without url",
			vars: map[string]string{"JWT_SECRET": testSecret, "LEDGER_DRIVER": "surreal"},
			want: "SURREAL_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %s", err, tt.want)
		})
	}
}

func TestLoadFrom_DevModeAllowsShortSecret(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"APP_DEV": "true", "JWT_SECRET": "dev"})
	require.NoError(t, err)
	assert.True(t, cfg.DevMode)
}

func TestRequireProvider(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"JWT_SECRET": testSecret})
	require.NoError(t, err)
	assert.Error(t, cfg.RequireProvider())

	cfg.GoogleClientID = "client-123.apps.googleusercontent.com"
	assert.NoError(t, cfg.RequireProvider())
}
