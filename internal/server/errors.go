package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	clientdomain "github.com/atelierhq/atelier/internal/client/domain"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	"github.com/atelierhq/atelier/internal/latefee"
	projectdomain "github.com/atelierhq/atelier/internal/project/domain"
	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
)

// Machine codes carried in the error envelope. Clients branch on the code,
// never on the message.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNotEditable           = "NOT_EDITABLE"
	CodeProtectedState        = "PROTECTED_STATE"
	CodeOverpayment           = "OVERPAYMENT"
	CodeInsufficientCredit    = "INSUFFICIENT_CREDIT"
	CodeLateFeeAlreadyApplied = "LATE_FEE_ALREADY_APPLIED"
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeInternalError         = "INTERNAL_ERROR"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// ErrorHandlingMiddleware maps domain sentinel errors to the JSON envelope.
// Handlers record errors with AbortWithError and never write status
// themselves on the failure path.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, code := mapError(lastErr.Err)
		message := lastErr.Err.Error()
		if status == http.StatusInternalServerError {
			// Internals stay in the logs.
			message = "internal server error"
		}

		c.AbortWithStatusJSON(status, errorResponse{
			Success: false,
			Code:    code,
			Error:   message,
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, CodeInvalidToken

	case errors.Is(err, invoicedomain.ErrOverpayment):
		return http.StatusUnprocessableEntity, CodeOverpayment
	case errors.Is(err, invoicedomain.ErrInsufficientCredit):
		return http.StatusUnprocessableEntity, CodeInsufficientCredit
	case errors.Is(err, invoicedomain.ErrNotEditable):
		return http.StatusConflict, CodeNotEditable
	case errors.Is(err, invoicedomain.ErrProtectedState):
		return http.StatusConflict, CodeProtectedState
	case errors.Is(err, latefee.ErrAlreadyApplied):
		return http.StatusConflict, CodeLateFeeAlreadyApplied

	case isNotFoundError(err):
		return http.StatusNotFound, CodeNotFound
	case isValidationError(err):
		return http.StatusBadRequest, CodeValidationError

	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, clientdomain.ErrNotFound),
		errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, recurringdomain.ErrNotFound),
		errors.Is(err, reminderdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrValidation),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, clientdomain.ErrInvalidID),
		errors.Is(err, clientdomain.ErrInvalidName),
		errors.Is(err, clientdomain.ErrInvalidEmail),
		errors.Is(err, projectdomain.ErrInvalidID),
		errors.Is(err, projectdomain.ErrInvalidName),
		errors.Is(err, projectdomain.ErrInvalidStatus),
		errors.Is(err, recurringdomain.ErrInvalidID),
		errors.Is(err, recurringdomain.ErrInvalidFrequency),
		errors.Is(err, recurringdomain.ErrNotPending),
		errors.Is(err, reminderdomain.ErrInvalidID),
		errors.Is(err, reminderdomain.ErrAlreadySent),
		errors.Is(err, latefee.ErrNotEligible):
		return true
	default:
		return false
	}
}
