package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessKeys_MintParse(t *testing.T) {
	keys := NewAccessKeys("test-secret", time.Minute)
	key, err := keys.Mint("agent:pk:ed25519:abc", "skill-1", true)
	require.NoError(t, err)
	assert.NotEmpty(t, key.ID)

	c, err := keys.Parse(key.Token)
	require.NoError(t, err)
	assert.Equal(t, key.ID, c.ID)
	assert.Equal(t, "agent:pk:ed25519:abc", c.Subject)
	assert.Equal(t, "skill-1", c.SkillID)
	assert.True(t, c.Simulated)
}

func TestAccessKeys_UniqueIDs(t *testing.T) {
	keys := NewAccessKeys("s", time.Minute)
	a, err := keys.Mint("id", "skill", false)
	require.NoError(t, err)
	b, err := keys.Mint("id", "skill", false)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestAccessKeys_Rejects(t *testing.T) {
	keys := NewAccessKeys("s", time.Minute)
	key, err := keys.Mint("id", "skill", false)
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		_, err := NewAccessKeys("other", time.Minute).Parse(key.Token)
		assert.ErrorIs(t, err, ErrInvalidAccessKey)
	})
	t.Run("expired", func(t *testing.T) {
		later := NewAccessKeys("s", time.Minute)
		later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err := later.Parse(key.Token)
		assert.ErrorIs(t, err, ErrInvalidAccessKey)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := keys.Parse("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidAccessKey)
	})
}

func TestSecrets(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	hash, err := HashSecret(secret)
	require.NoError(t, err)

	assert.NoError(t, CompareSecret(hash, secret))
	assert.ErrorIs(t, CompareSecret(hash, secret+"x"), ErrInvalidCredentials)
}
