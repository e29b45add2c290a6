package scheduler

import (
	"net/http"

	"cesworld/pkg/errutil"
	"cesworld/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

func registerRoutes(routes *httpapi.Routes, s *Service) {
	routes.Admin.GET("/jobs", s.handleList)
	routes.Admin.POST("/jobs/:name/run", s.handleRun)
}

func (s *Service) handleList(c *gin.Context) {
	var f Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	data, page, err := s.List(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "page": page})
}

// handleRun enqueues a daily job for today outside the nightly schedule.
func (s *Service) handleRun(c *gin.Context) {
	job, err := s.Enqueue(c.Request.Context(), c.Param("name"), s.now())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}
