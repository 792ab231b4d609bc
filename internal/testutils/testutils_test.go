package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/domain"
)

func TestConfig_Overrides(t *testing.T) {
	cfg := Config(t, map[string]string{"LEDGER_CACHE_SIZE": "4"})
	assert.Equal(t, Secret, cfg.JWTSecret)
	assert.Equal(t, 4, cfg.LedgerCacheSize)
	assert.Equal(t, "127.0.0.1:0", cfg.Addr)
}

func TestToken_Verifies(t *testing.T) {
	cfg := Config(t, nil)
	creds := Credentials(t, cfg)

	token := Token(t, creds, domain.Identity{ID: "u-1", Username: "alice"})
	identity, err := creds.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)
}

func TestProjectRoot(t *testing.T) {
	root, ok := projectRoot()
	require.True(t, ok)
	assert.FileExists(t, root+"/go.mod")
}
