package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres backs the directory with the users table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const principalColumns = `id, username, password_hash, email, real_name,
	phone_number, role, status, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*Principal, error) {
	p := &Principal{}
	err := row.Scan(
		&p.ID, &p.Username, &p.PasswordHash, &p.Email, &p.RealName,
		&p.PhoneNumber, &p.Role, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	return p, nil
}

func (d *Postgres) FindByUsername(ctx context.Context, username string) (*Principal, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM users WHERE username = $1`, username)
	return scanPrincipal(row)
}

func (d *Postgres) FindByID(ctx context.Context, id string) (*Principal, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM users WHERE id = $1`, id)
	return scanPrincipal(row)
}

func (d *Postgres) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (d *Postgres) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	if phone == "" {
		return false, nil
	}
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE phone_number = $1)`, phone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check phone: %w", err)
	}
	return exists, nil
}

// mapUniqueViolation translates a 23505 into the matching duplicate
// sentinel based on the violated constraint name.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	if strings.Contains(pgErr.ConstraintName, "phone") {
		return ErrDuplicatePhone
	}
	return ErrDuplicateUsername
}

func (d *Postgres) Create(ctx context.Context, p *Principal) error {
	const query = `
		INSERT INTO users
			(id, username, password_hash, email, real_name, phone_number,
			 role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := d.pool.Exec(ctx, query,
		p.ID, p.Username, p.PasswordHash, p.Email, p.RealName, p.PhoneNumber,
		p.Role, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create principal: %w", err)
	}
	return nil
}

func (d *Postgres) Update(ctx context.Context, p *Principal) error {
	const query = `
		UPDATE users
		SET username = $2, password_hash = $3, email = $4, real_name = $5,
		    phone_number = $6, role = $7, status = $8, updated_at = $9
		WHERE id = $1`
	tag, err := d.pool.Exec(ctx, query,
		p.ID, p.Username, p.PasswordHash, p.Email, p.RealName, p.PhoneNumber,
		p.Role, p.Status, p.UpdatedAt,
	)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Postgres) List(ctx context.Context, offset, limit int) ([]*Principal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.pool.Query(ctx,
		`SELECT `+principalColumns+` FROM users ORDER BY created_at LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []*Principal
	for rows.Next() {
		p := &Principal{}
		err := rows.Scan(
			&p.ID, &p.Username, &p.PasswordHash, &p.Email, &p.RealName,
			&p.PhoneNumber, &p.Role, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	return out, nil
}
