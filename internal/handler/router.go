package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pickupper/backend/internal/obs"
	"github.com/pickupper/backend/internal/service"
)

type RouterDeps struct {
	Auth            *service.AuthService
	Pinger          Pinger
	Logger          zerolog.Logger
	Version         string
	AllowedOrigins  []string
	LoginRatePerSec float64
	LoginRateBurst  int
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(d.Logger), Logging(), CORSMiddleware(d.AllowedOrigins))

	auth := NewAuthHandler(d.Auth)
	roles := NewRoleHandler(d.Auth)

	r.GET("/", Root)
	r.GET("/version", Version(d.Version))
	r.GET("/healthz", Healthz(d.Pinger))
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	r.POST("/login", RateLimit(d.LoginRatePerSec, d.LoginRateBurst), auth.Login)
	r.POST("/access", auth.Access)

	r.GET("/me", Gate(d.Auth, RequireAuthenticated), auth.Me)
	r.PUT("/me/password", Gate(d.Auth, RequireAuthenticated), auth.ChangePassword)
	r.GET("/roles", Gate(d.Auth, RequireSupervisor), roles.List)
	r.PUT("/user/:id/role", Gate(d.Auth, RequireAdmin), roles.SetUserRole)

	return r
}
