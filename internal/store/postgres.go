package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cropwise/auth-service/internal/refresh"
)

// Postgres persists refresh tokens in the refresh_tokens table created by
// the migrations under migrations/.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Insert(ctx context.Context, rec *refresh.Record) error {
	const query = `
		INSERT INTO refresh_tokens
			(id, token_hash, principal_id, expires_at, is_revoked,
			 device_info, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.TokenHash, rec.PrincipalID, rec.ExpiresAt, rec.IsRevoked,
		rec.DeviceInfo, rec.IPAddress, rec.UserAgent, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("refresh token hash collision: %w", err)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *Postgres) FindByHash(ctx context.Context, tokenHash string) (*refresh.Record, error) {
	const query = `
		SELECT id, token_hash, principal_id, expires_at, is_revoked,
		       device_info, ip_address, user_agent, created_at,
		       revoked_at, revoked_reason
		FROM refresh_tokens
		WHERE token_hash = $1`
	rec := &refresh.Record{}
	var revokedReason *string
	err := s.pool.QueryRow(ctx, query, tokenHash).Scan(
		&rec.ID, &rec.TokenHash, &rec.PrincipalID, &rec.ExpiresAt, &rec.IsRevoked,
		&rec.DeviceInfo, &rec.IPAddress, &rec.UserAgent, &rec.CreatedAt,
		&rec.RevokedAt, &revokedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if revokedReason != nil {
		rec.RevokedReason = *revokedReason
	}
	return rec, nil
}

func (s *Postgres) Revoke(ctx context.Context, tokenHash string, at time.Time, reason string) error {
	const query = `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE token_hash = $1 AND NOT is_revoked`
	tag, err := s.pool.Exec(ctx, query, tokenHash, at, reason)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "never existed" from "already revoked": the latter
		// is a successful no-op.
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`,
			tokenHash,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if !exists {
			return refresh.ErrNotFound
		}
	}
	return nil
}

func (s *Postgres) RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time, reason string) (int, error) {
	const query = `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE principal_id = $1 AND NOT is_revoked`
	tag, err := s.pool.Exec(ctx, query, principalID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke principal refresh tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
