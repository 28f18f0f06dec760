package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cropwise/auth-service/internal/directory"
)

// UserHandler serves principal profile management. Reads of other accounts
// and all destructive operations are admin-only; a caller may always read
// and update their own profile.
type UserHandler struct {
	dir directory.Directory
	log *zap.Logger
}

func NewUserHandler(dir directory.Directory, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{dir: dir, log: log}
}

type userView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	RealName    string    `json:"realName,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func viewOf(p *directory.Principal) userView {
	return userView{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		RealName:    p.RealName,
		PhoneNumber: p.PhoneNumber,
		Role:        p.Role,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *UserHandler) canAccess(c *gin.Context, targetID string) bool {
	ident, ok := IdentityFrom(c.Request.Context())
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return false
	}
	if ident.Role != directory.RoleAdmin && ident.ID != targetID {
		respondError(c, http.StatusForbidden, "insufficient privileges")
		return false
	}
	return true
}

func (h *UserHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !h.canAccess(c, id) {
		return
	}

	p, err := h.dir.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			respondError(c, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error("user lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	respondOK(c, http.StatusOK, viewOf(p))
}

func (h *UserHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if offset < 0 || limit < 0 || limit > 200 {
		respondError(c, http.StatusBadRequest, "invalid pagination")
		return
	}

	principals, err := h.dir.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.log.Error("user list failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]userView, 0, len(principals))
	for _, p := range principals {
		views = append(views, viewOf(p))
	}
	respondOK(c, http.StatusOK, views)
}

type updateUserRequest struct {
	Email       *string `json:"email"`
	RealName    *string `json:"realName"`
	PhoneNumber *string `json:"phoneNumber"`
	Role        *string `json:"role"`
	Status      *string `json:"status"`
}

func (h *UserHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !h.canAccess(c, id) {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ident, _ := IdentityFrom(c.Request.Context())
	isAdmin := ident.Role == directory.RoleAdmin

	// Role and status are privilege-bearing fields.
	if (req.Role != nil || req.Status != nil) && !isAdmin {
		respondError(c, http.StatusForbidden, "insufficient privileges")
		return
	}
	if req.Role != nil && !directory.ValidRole(*req.Role) {
		respondError(c, http.StatusBadRequest, "unknown role: "+*req.Role)
		return
	}
	if req.Status != nil && !directory.ValidStatus(*req.Status) {
		respondError(c, http.StatusBadRequest, "unknown status: "+*req.Status)
		return
	}

	p, err := h.dir.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			respondError(c, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error("user lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	if req.Email != nil {
		p.Email = *req.Email
	}
	if req.RealName != nil {
		p.RealName = *req.RealName
	}
	if req.PhoneNumber != nil {
		p.PhoneNumber = *req.PhoneNumber
	}
	if req.Role != nil {
		p.Role = *req.Role
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	p.UpdatedAt = time.Now()

	if err := h.dir.Update(c.Request.Context(), p); err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound):
			respondError(c, http.StatusNotFound, "user not found")
		case errors.Is(err, directory.ErrDuplicatePhone):
			respondError(c, http.StatusBadRequest, "phone number already registered")
		default:
			h.log.Error("user update failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	respondOK(c, http.StatusOK, viewOf(p))
}

func (h *UserHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.dir.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			respondError(c, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error("user delete failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	respondOK(c, http.StatusOK, nil)
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

func (h *UserHandler) CheckUsername(c *gin.Context) {
	exists, err := h.dir.ExistsByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.log.Error("username check failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	respondOK(c, http.StatusOK, existsResponse{Exists: exists})
}

func (h *UserHandler) CheckPhone(c *gin.Context) {
	exists, err := h.dir.ExistsByPhone(c.Request.Context(), c.Param("phone"))
	if err != nil {
		h.log.Error("phone check failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	respondOK(c, http.StatusOK, existsResponse{Exists: exists})
}
