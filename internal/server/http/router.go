package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

type RouterConfig struct {
	CORSOrigins    []string
	LoginRateLimit float64
	LoginBurst     int
}

// NewRouter mounts the profile API under /api.
//
//	POST  /api/auth/login   {id_token}            -> {token, token_type, expires_at, user}
//	POST  /api/auth/ngo/register {name, email, password} -> 201 {token, token_type, expires_at, user}
//	POST  /api/auth/ngo/login    {email, password}       -> {token, token_type, expires_at, user}
//	GET   /api/me                                 -> profile
//	PATCH /api/me           {name?, photo_url?, wallet_address?}
//	POST  /api/logout
//	POST  /api/me/avatar    {content_type}        -> {key, url}
func NewRouter(svc ProfileService, cfg RouterConfig, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log.With("module", "http")))

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", common.AuthorizationHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) { fail(c, http.StatusNotFound, "not found") })

	h := NewHandler(svc)
	api := r.Group("/api")

	login := api.Group("/auth")
	if cfg.LoginRateLimit > 0 && cfg.LoginBurst > 0 {
		login.Use(rateLimit(newIPLimiter(cfg.LoginRateLimit, cfg.LoginBurst)))
	}
	login.POST("/login", h.Login)
	login.POST("/ngo/register", h.RegisterNGO)
	login.POST("/ngo/login", h.LoginNGO)

	authed := api.Group("", bearerAuth(svc))
	authed.GET("/me", h.Me)
	authed.PATCH("/me", h.PatchMe)
	authed.POST("/me/avatar", h.Avatar)
	authed.POST("/logout", h.Logout)

	return r
}
