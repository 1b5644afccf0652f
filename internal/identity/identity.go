// Package identity binds a claimed identity to an ed25519 key and checks
// signatures over ingestion challenges.
package identity

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// ProtocolName prefixes every challenge.
const ProtocolName = "Hive-402"

const (
	identityPrefix = "agent:pk:ed25519:"
	publicKeyLen   = ed25519.PublicKeySize
)

var (
	ErrInvalidEncoding  = errors.New("invalid key or signature encoding")
	ErrIdentityMismatch = errors.New("public key does not own the claimed identity")
	ErrInvalidSignature = errors.New("invalid signature")
)

// DeriveChallenge returns the string a requester must sign to ingest skillID.
// It is a pure function of skillID so both sides rebuild it without a round trip.
func DeriveChallenge(skillID string) string {
	return ProtocolName + " Ingestion Request: " + skillID
}

// PublishMessage is the string a provider signs when publishing a skill.
func PublishMessage(title string, priceUnits int64, providerIdentity string) string {
	return title + ":" + strconv.FormatInt(priceUnits, 10) + ":" + providerIdentity
}

// FromPublicKey derives the identity owned by pub.
func FromPublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != publicKeyLen {
		return "", ErrInvalidEncoding
	}
	return identityPrefix + base64.RawURLEncoding.EncodeToString(pub), nil
}

// ParsePublicKey decodes a hex-encoded ed25519 public key.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil || len(raw) != publicKeyLen {
		return nil, ErrInvalidEncoding
	}
	return ed25519.PublicKey(raw), nil
}

// Verify checks that publicKeyHex owns claimedIdentity and that signatureHex
// is its signature over message.
func Verify(claimedIdentity, publicKeyHex, signatureHex, message string) error {
	pub, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return err
	}
	derived, err := FromPublicKey(pub)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(claimedIdentity)) != 1 {
		return ErrIdentityMismatch
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signatureHex), "0x"))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidEncoding
	}
	if !ed25519.Verify(pub, []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign is the client-side counterpart of Verify, returning hex.
func Sign(priv ed25519.PrivateKey, message string) string {
	return hex.EncodeToString(ed25519.Sign(priv, []byte(message)))
}
