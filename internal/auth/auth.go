// Package auth orchestrates credential verification and token issuance on
// top of the directory, the password hasher, the JWT signer, and the
// refresh-token manager.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cropwise/auth-service/internal/apperr"
	"github.com/cropwise/auth-service/internal/directory"
	"github.com/cropwise/auth-service/internal/password"
	"github.com/cropwise/auth-service/internal/refresh"
	"github.com/cropwise/auth-service/internal/token"
)

// One message for unknown-user and wrong-password so responses do not leak
// which usernames exist.
const loginFailedMessage = "invalid username or password"

// Summary is the principal view returned to clients. No password hash.
type Summary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	RealName    string `json:"realName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

func summarize(p *directory.Principal) Summary {
	return Summary{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		RealName:    p.RealName,
		PhoneNumber: p.PhoneNumber,
		Role:        p.Role,
		Status:      p.Status,
	}
}

// RegisterInput carries a signup request.
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	RealName    string
	PhoneNumber string
	Role        string
}

// TokenPair is the issuance result for login and refresh.
type TokenPair struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	TokenType    string  `json:"tokenType"`
	ExpiresIn    int64   `json:"expiresIn"`
	Principal    Summary `json:"user"`
}

// Authenticator implements the credential lifecycle operations.
type Authenticator struct {
	dir       directory.Directory
	hasher    *password.Hasher
	signer    *token.Signer
	refresh   *refresh.Manager
	accessTTL time.Duration
	log       *zap.Logger
}

// Config wires an Authenticator. All fields are required.
type Config struct {
	Directory directory.Directory
	Hasher    *password.Hasher
	Signer    *token.Signer
	Refresh   *refresh.Manager
	AccessTTL time.Duration
	Logger    *zap.Logger
}

// New validates the wiring and returns an Authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Directory == nil {
		return nil, errors.New("directory is required")
	}
	if cfg.Hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("token signer is required")
	}
	if cfg.Refresh == nil {
		return nil, errors.New("refresh manager is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Authenticator{
		dir:       cfg.Directory,
		hasher:    cfg.Hasher,
		signer:    cfg.Signer,
		refresh:   cfg.Refresh,
		accessTTL: cfg.AccessTTL,
		log:       cfg.Logger,
	}, nil
}

func validateRegister(in *RegisterInput) error {
	if !directory.ValidUsername(in.Username) {
		return apperr.Validation("username must be 3-20 letters, digits, or underscores")
	}
	if n := len(in.Password); n < 6 || n > 20 {
		return apperr.Validation("password must be 6-20 characters")
	}
	if in.Role == "" {
		in.Role = directory.RoleFarmer
	}
	if !directory.ValidRole(in.Role) {
		return apperr.Validation("unknown role: " + in.Role)
	}
	return nil
}

// Register creates a new ACTIVE principal.
func (a *Authenticator) Register(ctx context.Context, in RegisterInput) (*Summary, error) {
	if err := validateRegister(&in); err != nil {
		return nil, err
	}

	taken, err := a.dir.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("check username: %w", err))
	}
	if taken {
		return nil, apperr.Conflict("username already taken")
	}
	if in.PhoneNumber != "" {
		taken, err := a.dir.ExistsByPhone(ctx, in.PhoneNumber)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("check phone: %w", err))
		}
		if taken {
			return nil, apperr.Conflict("phone number already registered")
		}
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now()
	p := &directory.Principal{
		ID:           uuid.NewString(),
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		RealName:     in.RealName,
		PhoneNumber:  in.PhoneNumber,
		Role:         in.Role,
		Status:       directory.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.dir.Create(ctx, p); err != nil {
		switch {
		case errors.Is(err, directory.ErrDuplicateUsername):
			return nil, apperr.Conflict("username already taken")
		case errors.Is(err, directory.ErrDuplicatePhone):
			return nil, apperr.Conflict("phone number already registered")
		}
		return nil, apperr.Internal(fmt.Errorf("create principal: %w", err))
	}

	a.log.Info("principal registered",
		zap.String("principal_id", p.ID),
		zap.String("role", p.Role))
	s := summarize(p)
	return &s, nil
}

// Login verifies the credentials and issues an access/refresh pair.
func (a *Authenticator) Login(ctx context.Context, username, plaintext string, meta refresh.Metadata) (*TokenPair, error) {
	p, err := a.dir.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, apperr.Unauthorized(loginFailedMessage)
		}
		return nil, apperr.Internal(fmt.Errorf("lookup principal: %w", err))
	}
	if !a.hasher.Matches(plaintext, p.PasswordHash) {
		return nil, apperr.Unauthorized(loginFailedMessage)
	}
	if p.Status != directory.StatusActive {
		return nil, apperr.Forbidden("account is not active")
	}

	pair, err := a.issuePair(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	a.log.Info("login succeeded", zap.String("principal_id", p.ID))
	return pair, nil
}

func (a *Authenticator) issuePair(ctx context.Context, p *directory.Principal, meta refresh.Metadata) (*TokenPair, error) {
	access, err := a.signer.Issue(p.ID, p.Username, p.Role)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("issue access token: %w", err))
	}
	raw, err := a.refresh.Issue(ctx, p.ID, meta)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("issue refresh token: %w", err))
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(a.accessTTL.Seconds()),
		Principal:    summarize(p),
	}, nil
}

// Refresh redeems a refresh token for a fresh access token. The refresh
// value itself is not rotated; the caller keeps presenting the same one.
func (a *Authenticator) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	rec, err := a.refresh.Redeem(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrNotFound),
			errors.Is(err, refresh.ErrExpired),
			errors.Is(err, refresh.ErrRevoked):
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, apperr.Internal(fmt.Errorf("redeem refresh token: %w", err))
	}

	p, err := a.dir.FindByID(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			// Account deleted after issuance; the token is orphaned.
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, apperr.Internal(fmt.Errorf("lookup principal: %w", err))
	}
	if p.Status != directory.StatusActive {
		return nil, apperr.Forbidden("account is not active")
	}

	access, err := a.signer.Issue(p.ID, p.Username, p.Role)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("issue access token: %w", err))
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(a.accessTTL.Seconds()),
		Principal:    summarize(p),
	}, nil
}

// Logout revokes the presented refresh token.
func (a *Authenticator) Logout(ctx context.Context, raw string) error {
	err := a.refresh.Revoke(ctx, raw, refresh.ReasonUserLogout)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return apperr.NotFound("refresh token not found")
		}
		return apperr.Internal(fmt.Errorf("revoke refresh token: %w", err))
	}
	return nil
}

// RevokeAllSessions terminates every active refresh token for the principal
// and reports how many were revoked. Zero is a valid outcome.
func (a *Authenticator) RevokeAllSessions(ctx context.Context, principalID, reason string) (int, error) {
	n, err := a.refresh.RevokeAll(ctx, principalID, reason)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("revoke sessions: %w", err))
	}
	if n > 0 {
		a.log.Info("sessions revoked",
			zap.String("principal_id", principalID),
			zap.String("reason", reason),
			zap.Int("count", n))
	}
	return n, nil
}

// VerifyAccessToken reports whether the token is currently acceptable.
func (a *Authenticator) VerifyAccessToken(tok string) bool {
	_, err := a.signer.Verify(tok)
	return err == nil
}

// VerifyAndClaims verifies the token and returns its claims for callers that
// need the embedded identity, such as the request middleware.
func (a *Authenticator) VerifyAndClaims(tok string) (*token.Claims, error) {
	claims, err := a.signer.Verify(tok)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return claims, nil
}
