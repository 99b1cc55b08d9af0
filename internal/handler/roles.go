package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pickupper/backend/internal/model"
	"github.com/pickupper/backend/internal/service"
)

type RoleHandler struct {
	svc *service.AuthService
}

func NewRoleHandler(svc *service.AuthService) *RoleHandler {
	return &RoleHandler{svc: svc}
}

func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.svc.ListRoles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]model.RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, model.RoleResponse{
			ID:              r.ID,
			PermissionLevel: int16(r.PermissionLevel),
			Role:            r.Role,
			Description:     r.Description,
		})
	}
	c.JSON(http.StatusOK, out)
}

// SetUserRole moves a user to the role of another tier.
//
//	PUT /user/:id/role {"PermissionLevel": 0|1|2}
func (h *RoleHandler) SetUserRole(c *gin.Context) {
	var req model.RoleChange
	if err := c.ShouldBindJSON(&req); err != nil || req.PermissionLevel == nil {
		writeError(c, model.BadRequest("PermissionLevel is required"))
		return
	}
	if err := h.svc.SetUserRole(c.Request.Context(), c.Param("id"), *req.PermissionLevel); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "ok"})
}
