package audit

import (
	"net/http"

	"cesworld/pkg/errutil"
	"cesworld/pkg/httpapi"
	"cesworld/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ActorFrom builds the audit actor for an admin request.
func ActorFrom(c *gin.Context) Actor {
	session, _ := middleware.SessionFrom(c)
	return Actor{
		UserID:    session.UserID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func registerRoutes(routes *httpapi.Routes, s *Service) {
	routes.Admin.GET("/audit-logs", s.handleList)
}

func (s *Service) handleList(c *gin.Context) {
	var f Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	data, page, err := s.List(c.Request.Context(), f)
	if err != nil {
		c.Error(errutil.Internal("failed to list audit logs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data, "page": page})
}
