package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const DefaultAccessKeyTTL = 15 * time.Minute

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAccessKey   = errors.New("invalid access key")
)

// AccessClaims is carried by an access key minted on release.
type AccessClaims struct {
	jwt.RegisteredClaims
	SkillID   string `json:"skill_id"`
	Simulated bool   `json:"simulated,omitempty"`
}

// AccessKey is a freshly minted key and its identifiers.
type AccessKey struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// AccessKeys mints and parses HS256 access keys. Single use is enforced by
// the redeemer, keyed on the token id.
type AccessKeys struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAccessKeys(secret string, ttl time.Duration) *AccessKeys {
	if secret == "" {
		secret = "supersecretmvp"
	}
	if ttl <= 0 {
		ttl = DefaultAccessKeyTTL
	}
	return &AccessKeys{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (k *AccessKeys) TTL() time.Duration { return k.ttl }

func (k *AccessKeys) Mint(identity, skillID string, simulated bool) (*AccessKey, error) {
	now := k.now()
	c := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
		SkillID:   skillID,
		Simulated: simulated,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(k.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access key: %w", err)
	}
	return &AccessKey{Token: tok, ID: c.ID, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (k *AccessKeys) Parse(token string) (*AccessClaims, error) {
	tok, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return k.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(k.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessKey, err)
	}
	c, ok := tok.Claims.(*AccessClaims)
	if !ok || !tok.Valid || c.ID == "" {
		return nil, ErrInvalidAccessKey
	}
	return c, nil
}

// GenerateSecret returns a new random agent secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "hk_" + hex.EncodeToString(b), nil
}

func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CompareSecret(hash, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
