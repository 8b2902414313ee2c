package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HS256 signing secret accepted.
const MinSecretLength = 32

var (
	// ErrInvalidToken is returned for malformed, badly signed or incomplete tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for tokens past their expiry.
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the JWT payload. The "userid" claim identifies the owner of
// issuers and certificates.
type Claims struct {
	UserID string `json:"userid"`
	jwt.RegisteredClaims
}

// TokenAuthority signs and verifies bearer tokens. The HMAC secret is held
// in a memguard enclave and only decrypted for the duration of a call.
type TokenAuthority struct {
	secret *memguard.Enclave
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenAuthority copies secret into an enclave.
func NewTokenAuthority(secret []byte, issuer string, ttl time.Duration) (*TokenAuthority, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	// NewEnclave wipes its argument.
	buf := append([]byte(nil), secret...)
	return &TokenAuthority{
		secret: memguard.NewEnclave(buf),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue mints a token for userID. A zero ttl uses the authority's default.
func (t *TokenAuthority) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id must not be empty")
	}
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	key, err := t.secret.Open()
	if err != nil {
		return "", fmt.Errorf("opening signing key: %w", err)
	}
	defer key.Destroy()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
}

// Verify parses and validates a token string and returns its claims.
func (t *TokenAuthority) Verify(token string) (*Claims, error) {
	key, err := t.secret.Open()
	if err != nil {
		return nil, fmt.Errorf("opening signing key: %w", err)
	}
	defer key.Destroy()

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key.Bytes(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userid claim", ErrInvalidToken)
	}
	return claims, nil
}
