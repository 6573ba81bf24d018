package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListInvoiceReminders(c *gin.Context) {
	items, err := s.reminderSvc.ListForInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) SkipReminder(c *gin.Context) {
	item, err := s.reminderSvc.Skip(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DispatchReminders(c *gin.Context) {
	result, err := s.reminderSvc.DispatchDue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
