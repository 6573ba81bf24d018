package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"

	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) CreateDepositInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	req.Type = invoicedomain.InvoiceTypeDeposit

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest

	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status := invoicedomain.InvoiceStatus(v)
		req.Status = &status
	}
	if v := strings.TrimSpace(c.Query("type")); v != "" {
		invoiceType := invoicedomain.InvoiceType(v)
		req.Type = &invoiceType
	}
	if v := strings.TrimSpace(c.Query("client_id")); v != "" {
		req.ClientID = &v
	}

	items, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req invoicedomain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	item, err := s.invoiceSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	if err := s.invoiceSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type transitionRequest struct {
	Event invoicedomain.Event `json:"event"`
}

// TransitionInvoiceStatus exposes the caller-driven lifecycle events. Payment
// and overdue events only happen through their own operations, never here.
func (s *Server) TransitionInvoiceStatus(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	var (
		item invoicedomain.Invoice
		err  error
	)
	switch req.Event {
	case invoicedomain.EventSend:
		item, err = s.invoiceSvc.Send(c.Request.Context(), c.Param("id"))
	case invoicedomain.EventView:
		item, err = s.invoiceSvc.MarkViewed(c.Request.Context(), c.Param("id"))
	case invoicedomain.EventVoid:
		item, err = s.invoiceSvc.Void(c.Request.Context(), c.Param("id"))
	default:
		err = fmt.Errorf("%w: event %q is not caller-driven", invoicedomain.ErrValidation, req.Event)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req invoicedomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	req.InvoiceID = c.Param("id")

	item, err := s.invoiceSvc.RecordPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListPayments(c *gin.Context) {
	items, err := s.invoiceSvc.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ApplyCredit(c *gin.Context) {
	var req invoicedomain.ApplyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	req.TargetInvoiceID = c.Param("id")

	item, err := s.invoiceSvc.ApplyCredit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetDepositBalance(c *gin.Context) {
	balance, err := s.invoiceSvc.DepositBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) CalculateLateFee(c *gin.Context) {
	quote, err := s.lateFeeSvc.Calculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) ApplyLateFee(c *gin.Context) {
	quote, err := s.lateFeeSvc.Apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) ProcessLateFees(c *gin.Context) {
	result, err := s.lateFeeSvc.ProcessAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CheckOverdueInvoices(c *gin.Context) {
	result, err := s.invoiceSvc.CheckOverdue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	if s.pdfProvider == nil {
		AbortWithError(c, fmt.Errorf("pdf rendering is not configured"))
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	clientName := ""
	if client, err := s.clientSvc.GetByID(c.Request.Context(), item.ClientID.String()); err == nil {
		clientName = client.Name
	}

	reader, err := s.pdfProvider.GenerateInvoice(c.Request.Context(), item, clientName)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	document, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("%s.pdf", slug.Make(item.InvoiceNumber))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", document)
}
