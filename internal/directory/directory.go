// Package directory holds the principal (user) model and the lookup
// interface the authentication layer depends on.
package directory

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Roles. The set is closed; anything else is rejected at validation.
const (
	RoleAdmin      = "ADMIN"
	RoleFarmer     = "FARMER"
	RoleTechnician = "TECHNICIAN"
)

// Account statuses. Only ACTIVE principals may authenticate.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusBanned   = "BANNED"
)

var (
	ErrNotFound          = errors.New("principal not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicatePhone    = errors.New("phone number already registered")
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// ValidUsername reports whether the name is 3-20 characters of letters,
// digits, and underscores.
func ValidUsername(name string) bool {
	return usernameRe.MatchString(name)
}

// ValidRole reports membership in the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleFarmer, RoleTechnician:
		return true
	}
	return false
}

// ValidStatus reports membership in the closed status set.
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusInactive, StatusBanned:
		return true
	}
	return false
}

// Principal is a stored account. PasswordHash is the argon2id encoded hash
// and must never leave the service.
type Principal struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	RealName     string
	PhoneNumber  string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Directory is the principal lookup and maintenance contract.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	Create(ctx context.Context, p *Principal) error
	Update(ctx context.Context, p *Principal) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit int) ([]*Principal, error)
}
