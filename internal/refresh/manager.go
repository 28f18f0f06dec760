// Package refresh generates, redeems, and revokes the long-lived opaque
// refresh credentials. The raw token is 32 bytes of CSPRNG output encoded
// base64url; only its SHA-256 is persisted, so a leaked store cannot be
// replayed against the service.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record matches the presented token.
	// Lookup misses are never treated as valid; this path fails closed.
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpired is returned for a record past its expiry.
	ErrExpired = errors.New("refresh token expired")
	// ErrRevoked is returned for a record that was explicitly revoked.
	ErrRevoked = errors.New("refresh token revoked")
)

const rawTokenBytes = 32

// Store is the durable persistence required by the Manager. Implementations
// must provide at-least atomic single-record read/insert/update; no
// cross-record transactions are needed.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	FindByHash(ctx context.Context, tokenHash string) (*Record, error)
	Revoke(ctx context.Context, tokenHash string, at time.Time, reason string) error
	RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time, reason string) (int, error)
}

// Manager owns the refresh-credential lifecycle.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a Manager with the given store and refresh TTL
// (days-scale; 7 days is the conventional default).
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("refresh store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("refresh TTL must be positive")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source. Test hook only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	return &Manager{store: m.store, ttl: m.ttl, now: now}
}

// HashToken computes the stored form of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue mints a fresh opaque token for the principal, persists its hashed
// record, and returns the raw value. The raw value must never be stored or
// logged by callers either.
func (m *Manager) Issue(ctx context.Context, principalID string, meta Metadata) (string, error) {
	var secret [rawTokenBytes]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(secret[:])

	now := m.now()
	rec := &Record{
		ID:          uuid.NewString(),
		TokenHash:   HashToken(raw),
		PrincipalID: principalID,
		ExpiresAt:   now.Add(m.ttl),
		DeviceInfo:  meta.DeviceInfo,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("persist refresh token: %w", err)
	}
	return raw, nil
}

// Redeem resolves a raw token to its record and checks validity. The token
// value is not rotated: the same raw value redeems until expiry or
// revocation. That leaves a replay window bounded by the TTL, accepted here
// to keep clients stateless between logins.
func (m *Manager) Redeem(ctx context.Context, raw string) (*Record, error) {
	rec, err := m.store.FindByHash(ctx, HashToken(raw))
	if err != nil {
		return nil, err
	}
	if rec.IsRevoked {
		return nil, ErrRevoked
	}
	if !m.now().Before(rec.ExpiresAt) {
		return nil, ErrExpired
	}
	return rec, nil
}

// Revoke marks the matching record revoked with the given reason. Revoking
// an already-revoked record is a no-op; an unknown token is ErrNotFound.
func (m *Manager) Revoke(ctx context.Context, raw string, reason string) error {
	return m.store.Revoke(ctx, HashToken(raw), m.now(), reason)
}

// RevokeAll revokes every non-revoked record for a principal and returns how
// many were terminated. A principal with no records yields 0, not an error,
// so the operation is idempotent.
func (m *Manager) RevokeAll(ctx context.Context, principalID string, reason string) (int, error) {
	return m.store.RevokeAllForPrincipal(ctx, principalID, m.now(), reason)
}
