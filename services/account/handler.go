package account

import (
	"net/http"

	"cesworld/pkg/errutil"
	"cesworld/pkg/httpapi"
	"cesworld/services/audit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func registerRoutes(routes *httpapi.Routes, h *Handler) {
	routes.Admin.GET("/users/:id", h.Get)
	routes.Admin.PATCH("/users/:id/role", h.ChangeRole)
}

func (h *Handler) Get(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type roleBody struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) ChangeRole(c *gin.Context) {
	var body roleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	u, err := h.service.ChangeRole(c.Request.Context(), audit.ActorFrom(c), c.Param("id"), body.Role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}
