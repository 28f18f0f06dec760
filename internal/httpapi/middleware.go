package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cropwise/auth-service/internal/auth"
	"github.com/cropwise/auth-service/internal/directory"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	ID       string
	Username string
	Role     string
}

type identityKey struct{}

// IdentityFrom extracts the caller identity, if the request authenticated.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok
}

// publicPrefixes are reachable without a bearer token.
var publicPrefixes = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/refresh",
	"/api/system/",
	"/swagger",
	"/docs",
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Authenticate resolves the bearer token once per request and attaches the
// caller identity. It never rejects by itself: an absent, malformed, or
// invalid token leaves the request unauthenticated and lets the
// authorization middleware decide. Public paths skip verification entirely.
func Authenticate(a *auth.Authenticator, dir directory.Directory, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims, err := a.VerifyAndClaims(raw)
		if err != nil {
			c.Next()
			return
		}

		// Confirm the principal still exists and is active; a stale token
		// for a deleted or deactivated account carries no identity.
		p, err := dir.FindByUsername(c.Request.Context(), claims.Username)
		if err != nil {
			if !errors.Is(err, directory.ErrNotFound) {
				log.Warn("identity lookup failed", zap.Error(err))
			}
			c.Next()
			return
		}
		if p.Status != directory.StatusActive {
			c.Next()
			return
		}

		ident := &Identity{ID: p.ID, Username: p.Username, Role: p.Role}
		ctx := context.WithValue(c.Request.Context(), identityKey{}, ident)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// RequireAuth rejects requests that carry no authenticated identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c.Request.Context()); !ok {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}
		c.Next()
	}
}

// RequireRole rejects authenticated callers whose role does not match.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := IdentityFrom(c.Request.Context())
		if !ok {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if ident.Role != role {
			respondError(c, http.StatusForbidden, "insufficient privileges")
			return
		}
		c.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
