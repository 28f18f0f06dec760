// Package token issues and verifies the stateless access tokens handed out
// at login. A Signer is a pure function of its inputs and an immutable
// symmetric secret; it is safe for unsynchronized concurrent use.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the token cannot be decoded at all.
	ErrMalformed = errors.New("malformed access token")
	// ErrInvalidSignature is returned when the MAC does not match.
	ErrInvalidSignature = errors.New("invalid access token signature")
	// ErrExpired is returned when the token is past its expiry.
	ErrExpired = errors.New("access token expired")
)

const tokenTypeAccess = "access"

// Claims is the payload carried by an access token. Subject duplicates
// Username in the registered claims for interoperability with generic JWT
// tooling.
type Claims struct {
	PrincipalID string `json:"userId"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	TokenType   string `json:"tokenType"`
	jwt.RegisteredClaims
}

// Config for a Signer. Secret must be at least 32 bytes; Leeway bounds the
// tolerated clock skew on expiry checks and is applied explicitly rather
// than relying on wall clocks agreeing.
type Config struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
}

// Signer creates and verifies HMAC-signed access tokens.
type Signer struct {
	config Config
	now    func() time.Time
}

// NewSigner validates cfg and returns a ready Signer.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("signer secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Signer{config: cfg, now: time.Now}, nil
}

// WithClock replaces the time source. Test hook only; the returned Signer
// shares the config.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	return &Signer{config: s.config, now: now}
}

// Issue creates a signed access token for the given principal. The token is
// self-contained: verification needs only the secret, never the store.
func (s *Signer) Issue(principalID, username, role string) (string, error) {
	now := s.now()
	claims := Claims{
		PrincipalID: principalID,
		Username:    username,
		Role:        role,
		TokenType:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTTL)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify decodes the token, recomputes the MAC, and checks issuer, expiry,
// and token type. Every failure is a typed error value; attacker-controlled
// input can never panic this path.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.config.Secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Subject returns the username carried by a valid token. It verifies first;
// an invalid token yields the verification error.
func (s *Signer) Subject(tokenStr string) (string, error) {
	claims, err := s.Verify(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
