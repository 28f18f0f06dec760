package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cropwise/auth-service/internal/apperr"
	"github.com/cropwise/auth-service/internal/auth"
	"github.com/cropwise/auth-service/internal/refresh"
)

// AuthHandler serves the credential lifecycle endpoints.
type AuthHandler struct {
	auth *auth.Authenticator
	log  *zap.Logger
}

// NewAuthHandler builds the handler. A nil logger falls back to a no-op.
func NewAuthHandler(a *auth.Authenticator, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{auth: a, log: log}
}

type registerRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Email       string `json:"email"`
	RealName    string `json:"realName"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceInfo string `json:"deviceInfo"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// handleError logs internals and writes the envelope for any service error.
func (h *AuthHandler) handleError(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error("auth request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	respondAppError(c, err)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		RealName:    req.RealName,
		PhoneNumber: req.PhoneNumber,
		Role:        req.Role,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, summary)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	meta := refresh.Metadata{
		DeviceInfo: req.DeviceInfo,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	pair, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, meta)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondOK(c, http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondOK(c, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		// An unknown token on logout is a bad request, not a missing
		// resource: the endpoint itself was found.
		if apperr.KindOf(err) == apperr.KindNotFound {
			respondError(c, http.StatusBadRequest, apperr.ClientMessage(err))
			return
		}
		h.handleError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil)
}

type revokeAllResponse struct {
	RevokedCount int `json:"revokedCount"`
}

func (h *AuthHandler) RevokeAll(c *gin.Context) {
	ident, ok := IdentityFrom(c.Request.Context())
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	n, err := h.auth.RevokeAllSessions(c.Request.Context(), ident.ID, refresh.ReasonSecurityEvent)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondOK(c, http.StatusOK, revokeAllResponse{RevokedCount: n})
}
