package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cropwise/auth-service/internal/auth"
	"github.com/cropwise/auth-service/internal/directory"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Auth      *auth.Authenticator
	Directory directory.Directory
	Logger    *zap.Logger
}

// NewRouter builds the gin engine with all routes and middleware attached.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(Authenticate(cfg.Auth, cfg.Directory, log))

	authHandler := NewAuthHandler(cfg.Auth, log)
	userHandler := NewUserHandler(cfg.Directory, log)

	api := r.Group("/api")

	ar := api.Group("/auth")
	ar.POST("/register", authHandler.Register)
	ar.POST("/login", authHandler.Login)
	ar.POST("/refresh", authHandler.Refresh)
	ar.POST("/logout", RequireAuth(), authHandler.Logout)
	ar.POST("/revoke-all", RequireAuth(), authHandler.RevokeAll)

	ur := api.Group("/users", RequireAuth())
	ur.GET("/check/username/:username", userHandler.CheckUsername)
	ur.GET("/check/phone/:phone", userHandler.CheckPhone)
	ur.GET("", RequireRole(directory.RoleAdmin), userHandler.List)
	ur.GET("/:id", userHandler.Get)
	ur.PUT("/:id", userHandler.Update)
	ur.DELETE("/:id", RequireRole(directory.RoleAdmin), userHandler.Delete)

	api.GET("/system/health", healthHandler(time.Now()))

	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptimeSec"`
}

func healthHandler(startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, http.StatusOK, healthResponse{
			Status:    "UP",
			UptimeSec: int64(time.Since(startedAt).Seconds()),
		})
	}
}
