package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pickupper/backend/internal/model"
	"github.com/pickupper/backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login exchanges credentials for a refresh token living Active seconds.
//
//	POST /login {"Username", "Password", "Active", "DeviceInfo"} -> 201 {"Token"}
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.UserLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, model.BadRequest("invalid request body"))
		return
	}

	secret, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.TokenOnly{Token: secret})
}

// Access exchanges the bearer refresh token for a new access token.
//
//	POST /access, Authorization: Bearer <refresh> -> 201 {"Token"}
func (h *AuthHandler) Access(c *gin.Context) {
	secret, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		writeError(c, model.BadRequest("missing bearer token"))
		return
	}

	access, err := h.svc.Refresh(c.Request.Context(), secret)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.TokenOnly{Token: access})
}

// Me describes the caller of an access token.
func (h *AuthHandler) Me(c *gin.Context) {
	p := GetPrincipal(c)
	if p == nil {
		writeError(c, model.ErrUnauthorized)
		return
	}
	user, err := h.svc.GetUser(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MeResponse{
		UserID:          user.ID,
		Username:        user.Username,
		PermissionLevel: user.Role.PermissionLevel.String(),
		DeviceInfo:      p.DeviceInfo,
	})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	p := GetPrincipal(c)
	if p == nil {
		writeError(c, model.ErrUnauthorized)
		return
	}
	var req model.PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, model.BadRequest("invalid request body"))
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), p.UserID, req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "ok"})
}
