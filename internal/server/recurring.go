package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
)

func (s *Server) CreateRecurringPattern(c *gin.Context) {
	var req recurringdomain.CreatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	item, err := s.recurringSvc.CreatePattern(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListRecurringPatterns(c *gin.Context) {
	items, err := s.recurringSvc.ListPatterns(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) PauseRecurringPattern(c *gin.Context) {
	item, err := s.recurringSvc.PausePattern(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ResumeRecurringPattern(c *gin.Context) {
	item, err := s.recurringSvc.ResumePattern(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteRecurringPattern(c *gin.Context) {
	if err := s.recurringSvc.DeletePattern(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ScheduleInvoice(c *gin.Context) {
	var req recurringdomain.ScheduleInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	item, err := s.recurringSvc.Schedule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListScheduledInvoices(c *gin.Context) {
	items, err := s.recurringSvc.ListScheduled(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CancelScheduledInvoice(c *gin.Context) {
	item, err := s.recurringSvc.CancelScheduled(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
