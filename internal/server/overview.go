package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	overviewdomain "github.com/atelierhq/atelier/internal/overview/domain"
)

func (s *Server) GetOverview(c *gin.Context) {
	var req overviewdomain.OverviewRequest

	if v := strings.TrimSpace(c.Query("start")); v != "" {
		start, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: invalid start: %v", ErrInvalidRequest, err))
			return
		}
		req.Start = start
	}
	if v := strings.TrimSpace(c.Query("end")); v != "" {
		end, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: invalid end: %v", ErrInvalidRequest, err))
			return
		}
		req.End = end
	}
	if v := strings.TrimSpace(c.Query("months")); v != "" {
		months, err := strconv.Atoi(v)
		if err != nil || months < 1 {
			AbortWithError(c, fmt.Errorf("%w: invalid months", ErrInvalidRequest))
			return
		}
		req.Months = months
	}

	resp, err := s.overviewSvc.GetOverview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
