// Package store provides the refresh-token persistence backends: an
// in-memory map for tests and single-node deployments, Postgres for
// durable production state, and Redis for deployments that already run
// a shared cache tier.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/cropwise/auth-service/internal/refresh"
)

// Memory is a mutex-guarded in-process refresh.Store.
type Memory struct {
	mu     sync.Mutex
	byHash map[string]*refresh.Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byHash: make(map[string]*refresh.Record)}
}

func (s *Memory) Insert(_ context.Context, rec *refresh.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.byHash[rec.TokenHash] = &cp
	return nil
}

func (s *Memory) FindByHash(_ context.Context, tokenHash string) (*refresh.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Memory) Revoke(_ context.Context, tokenHash string, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return refresh.ErrNotFound
	}
	if rec.IsRevoked {
		return nil
	}
	rec.IsRevoked = true
	rec.RevokedAt = &at
	rec.RevokedReason = reason
	return nil
}

func (s *Memory) RevokeAllForPrincipal(_ context.Context, principalID string, at time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
