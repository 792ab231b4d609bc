// Package testutils holds helpers shared by package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/domain"
)

// Secret is the signing secret used by test configurations.
const Secret = "0123456789abcdef0123456789abcdef"

// Config builds a config for tests. Values come from an optional .env.test at
// the project root, then the defaults below, then overrides. The process
// environment is never read.
func Config(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()

	vars := map[string]string{}
	if root, ok := projectRoot(); ok {
		if env, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil {
			for k, v := range env {
				vars[k] = v
			}
		}
	}
	vars["JWT_SECRET"] = Secret
	vars["APP_ADDR"] = "127.0.0.1:0"
	for k, v := range overrides {
		vars[k] = v
	}

	cfg, err := config.LoadFrom(vars)
	require.NoError(t, err)
	return cfg
}

// Credentials returns a signer matching cfg.
func Credentials(t *testing.T, cfg *config.Config) *auth.Credentials {
	t.Helper()
	creds, err := auth.NewCredentials(auth.CredentialConfig{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer})
	require.NoError(t, err)
	return creds
}

// Token issues a session credential for identity.
func Token(t *testing.T, creds *auth.Credentials, identity domain.Identity) string {
	t.Helper()
	token, _, err := creds.Issue(identity)
	require.NoError(t, err)
	return token
}

// projectRoot walks up from the working directory to the directory holding go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
