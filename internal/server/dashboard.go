package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) Dashboard(c *gin.Context) {
	daysBack := 0
	if raw := c.Query("days_back"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("days_back", "invalid_days_back", "days_back must be a non-negative integer"))
			return
		}
		daysBack = parsed
	}

	result, err := s.dashboardSvc.Query(c.Request.Context(), daysBack)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
