package refresh

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	byHash map[string]*Record

	insertErr error
	findErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: make(map[string]*Record)}
}

func (s *fakeStore) Insert(_ context.Context, rec *Record) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := *rec
	s.byHash[rec.TokenHash] = &cp
	return nil
}

func (s *fakeStore) FindByHash(_ context.Context, tokenHash string) (*Record, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Revoke(_ context.Context, tokenHash string, at time.Time, reason string) error {
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return ErrNotFound
	}
	if rec.IsRevoked {
		return nil
	}
	rec.IsRevoked = true
	rec.RevokedAt = &at
	rec.RevokedReason = reason
	return nil
}

func (s *fakeStore) RevokeAllForPrincipal(_ context.Context, principalID string, at time.Time, reason string) (int, error) {
	n := 0
	for _, rec := range s.byHash {
		if rec.PrincipalID != principalID || rec.IsRevoked {
			continue
		}
		rec.IsRevoked = true
		rec.RevokedAt = &at
		rec.RevokedReason = reason
		n++
	}
	return n, nil
}

func newTestManager(t *testing.T, store Store, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(store, ttl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndRedeem(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, 7*24*time.Hour)

	raw, err := m.Issue(context.Background(), "user-1", Metadata{DeviceInfo: "android", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if raw == "" {
		t.Fatal("Issue returned empty token")
	}

	rec, err := m.Redeem(context.Background(), raw)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if rec.PrincipalID != "user-1" {
		t.Errorf("PrincipalID = %q, want user-1", rec.PrincipalID)
	}
	if rec.DeviceInfo != "android" || rec.IPAddress != "10.0.0.1" {
		t.Errorf("metadata not persisted: %+v", rec)
	}

	// Validity is idempotent: redeeming does not consume the token.
	if _, err := m.Redeem(context.Background(), raw); err != nil {
		t.Fatalf("second Redeem: %v", err)
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	m := newTestManager(t, newFakeStore(), time.Hour)

	_, err := m.Redeem(context.Background(), "never-issued")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Redeem unknown = %v, want ErrNotFound", err)
	}
}

func TestRedeemExpired(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	m := newTestManager(t, store, time.Hour).WithClock(func() time.Time { return clock })

	raw, err := m.Issue(context.Background(), "user-1", Metadata{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock = base.Add(59 * time.Minute)
	if _, err := m.Redeem(context.Background(), raw); err != nil {
		t.Fatalf("Redeem before expiry: %v", err)
	}

	// Expiry boundary is exclusive: exactly at ExpiresAt the token is dead.
	clock = base.Add(time.Hour)
	if _, err := m.Redeem(context.Background(), raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("Redeem at expiry = %v, want ErrExpired", err)
	}
}

func TestRevokeThenRedeemFails(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, time.Hour)

	raw, err := m.Issue(context.Background(), "user-1", Metadata{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := m.Revoke(context.Background(), raw, ReasonUserLogout); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, err := m.Redeem(context.Background(), raw); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Redeem after revoke = %v, want ErrRevoked", err)
	}

	rec := store.byHash[HashToken(raw)]
	if rec.RevokedReason != ReasonUserLogout {
		t.Errorf("RevokedReason = %q, want %q", rec.RevokedReason, ReasonUserLogout)
	}
	if rec.RevokedAt == nil {
		t.Error("RevokedAt not set")
	}
}

func TestRevokeIdempotent(t *testing.T) {
	m := newTestManager(t, newFakeStore(), time.Hour)

	raw, err := m.Issue(context.Background(), "user-1", Metadata{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := m.Revoke(context.Background(), raw, ReasonUserLogout); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	if err := m.Revoke(context.Background(), raw, ReasonAdminRevoke); err != nil {
		t.Fatalf("repeat Revoke = %v, want nil", err)
	}
}

func TestRevokeUnknownToken(t *testing.T) {
	m := newTestManager(t, newFakeStore(), time.Hour)

	if err := m.Revoke(context.Background(), "never-issued", ReasonUserLogout); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Revoke unknown = %v, want ErrNotFound", err)
	}
}

func TestRevokeAll(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, time.Hour)

	var tokens []string
	for i := 0; i < 3; i++ {
		raw, err := m.Issue(context.Background(), "user-1", Metadata{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		tokens = append(tokens, raw)
	}
	other, err := m.Issue(context.Background(), "user-2", Metadata{})
	if err != nil {
		t.Fatalf("Issue other: %v", err)
	}

	n, err := m.RevokeAll(context.Background(), "user-1", ReasonSecurityEvent)
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 3 {
		t.Errorf("RevokeAll count = %d, want 3", n)
	}

	for _, raw := range tokens {
		if _, err := m.Redeem(context.Background(), raw); !errors.Is(err, ErrRevoked) {
			t.Errorf("Redeem after RevokeAll = %v, want ErrRevoked", err)
		}
	}
	if _, err := m.Redeem(context.Background(), other); err != nil {
		t.Errorf("other principal affected by RevokeAll: %v", err)
	}

	// Second sweep has nothing left to terminate.
	n, err = m.RevokeAll(context.Background(), "user-1", ReasonSecurityEvent)
	if err != nil {
		t.Fatalf("second RevokeAll: %v", err)
	}
	if n != 0 {
		t.Errorf("second RevokeAll count = %d, want 0", n)
	}
}

func TestRevokeAllNoSessions(t *testing.T) {
	m := newTestManager(t, newFakeStore(), time.Hour)

	n, err := m.RevokeAll(context.Background(), "nobody", ReasonAdminRevoke)
	if err != nil {
		t.Fatalf("RevokeAll = %v, want nil", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestRawTokenNeverStored(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, time.Hour)

	raw, err := m.Issue(context.Background(), "user-1", Metadata{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for hash, rec := range store.byHash {
		if strings.Contains(hash, raw) || strings.Contains(rec.TokenHash, raw) {
			t.Fatal("raw token value leaked into the store")
		}
	}
	if HashToken(raw) != HashToken(raw) {
		t.Fatal("HashToken not deterministic")
	}
}

func TestIssueTokensDistinct(t *testing.T) {
	m := newTestManager(t, newFakeStore(), time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		raw, err := m.Issue(context.Background(), "user-1", Metadata{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[raw] {
			t.Fatal("duplicate refresh token issued")
		}
		seen[raw] = true
	}
}

func TestIssueStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection lost")
	m := newTestManager(t, store, time.Hour)

	if _, err := m.Issue(context.Background(), "user-1", Metadata{}); err == nil {
		t.Fatal("Issue with failing store: want error")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := NewManager(newFakeStore(), 0); err == nil {
		t.Error("zero TTL accepted")
	}
}
