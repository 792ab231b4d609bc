package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "relay v"+version+"\n", out)
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ISSUER", "relay")
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "token", "--id", "u-42", "--username", "dana")
	require.NoError(t, err)

	creds, err := auth.NewCredentials(auth.CredentialConfig{Secret: []byte(testSecret), Issuer: "relay"})
	require.NoError(t, err)
	identity, err := creds.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-42", identity.ID)
	assert.Equal(t, "dana", identity.Username)
}
