package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCodeDeterministic(t *testing.T) {
	code1 := DeriveCode("machine-id:abc", "salt")
	code2 := DeriveCode("machine-id:abc", "salt")
	assert.Equal(t, code1, code2)
	assert.Len(t, code1, codeLength)

	for _, r := range code1 {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
	}

	assert.NotEqual(t, code1, DeriveCode("machine-id:other", "salt"))
	assert.NotEqual(t, code1, DeriveCode("machine-id:abc", "other-salt"))
}

func TestPairingStartCodeStable(t *testing.T) {
	dataDir := t.TempDir()

	p, err := NewPairing(dataDir)
	require.NoError(t, err)
	code1, err := p.StartCode()
	require.NoError(t, err)

	// A new Pairing over the same data dir reads the cached material.
	p2, err := NewPairing(dataDir)
	require.NoError(t, err)
	code2, err := p2.StartCode()
	require.NoError(t, err)
	assert.Equal(t, code1, code2)
}

func TestPairingSaltEnvOverride(t *testing.T) {
	t.Setenv(SaltEnv, "pinned-salt")

	p1, err := NewPairing(t.TempDir())
	require.NoError(t, err)
	code1, err := p1.StartCode()
	require.NoError(t, err)

	p2, err := NewPairing(t.TempDir())
	require.NoError(t, err)
	code2, err := p2.StartCode()
	require.NoError(t, err)

	// Same machine, same pinned salt: same code even across data dirs.
	assert.Equal(t, code1, code2)
}

func TestUserStore(t *testing.T) {
	store, err := NewUserStore(t.TempDir())
	require.NoError(t, err)

	_, ok := store.ChatID()
	assert.False(t, ok)

	require.NoError(t, store.Remember(123456))
	id, ok := store.ChatID()
	require.True(t, ok)
	assert.Equal(t, int64(123456), id)

	require.NoError(t, store.Forget())
	_, ok = store.ChatID()
	assert.False(t, ok)

	// Forget on an empty store is not an error.
	require.NoError(t, store.Forget())
}
