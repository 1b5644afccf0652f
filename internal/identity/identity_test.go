package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := FromPublicKey(pub)
	require.NoError(t, err)
	return pub, priv, id
}

func TestDeriveChallenge(t *testing.T) {
	assert.Equal(t, "Hive-402 Ingestion Request: skill_abc123", DeriveChallenge("skill_abc123"))
}

func TestPublishMessage(t *testing.T) {
	assert.Equal(t, "My Skill:2500000:agent:pk:ed25519:xyz", PublishMessage("My Skill", 2_500_000, "agent:pk:ed25519:xyz"))
}

func TestFromPublicKey_Deterministic(t *testing.T) {
	pub, _, id := newKey(t)
	again, err := FromPublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.True(t, strings.HasPrefix(id, "agent:pk:ed25519:"))

	_, err = FromPublicKey(pub[:31])
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestVerify(t *testing.T) {
	pub, priv, id := newKey(t)
	_, _, otherID := newKey(t)
	msg := DeriveChallenge("skill-1")
	sig := Sign(priv, msg)
	pubHex := hex.EncodeToString(pub)

	cases := []struct {
		name     string
		identity string
		pubHex   string
		sig      string
		msg      string
		want     error
	}{
		{"valid", id, pubHex, sig, msg, nil},
		{"0x prefixed", id, "0x" + pubHex, "0x" + sig, msg, nil},
		{"identity not owned by key", otherID, pubHex, sig, msg, ErrIdentityMismatch},
		{"signature over other message", id, pubHex, sig, DeriveChallenge("skill-2"), ErrInvalidSignature},
		{"bad public key hex", id, "zz", sig, msg, ErrInvalidEncoding},
		{"short signature", id, pubHex, sig[:10], msg, ErrInvalidEncoding},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(tc.identity, tc.pubHex, tc.sig, tc.msg)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
