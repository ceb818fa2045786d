package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	"github.com/smallbiznis/creatorpay/internal/fee"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

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

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, feescheduledomain.ErrNoActiveSchedule),
		errors.Is(err, payoutdomain.ErrStatementUnavailable):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same buckets the client
// sees, plus the sentinel code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	code := payload.Type
	if status != http.StatusInternalServerError {
		code = strings.TrimSpace(err.Error())
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isTransactionValidationError(err),
		isChargebackValidationError(err),
		isPayoutValidationError(err),
		isFeeScheduleValidationError(err),
		errors.Is(err, ledgerdomain.ErrInvalidCreator),
		errors.Is(err, ledgerdomain.ErrInvalidTransactionID):
		return true
	default:
		return false
	}
}

func isTransactionValidationError(err error) bool {
	switch {
	case errors.Is(err, transactiondomain.ErrInvalidCreator),
		errors.Is(err, transactiondomain.ErrInvalidFanUser),
		errors.Is(err, transactiondomain.ErrInvalidProductType),
		errors.Is(err, transactiondomain.ErrInvalidProvider),
		errors.Is(err, transactiondomain.ErrInvalidProviderEventID),
		errors.Is(err, transactiondomain.ErrInvalidOccurredAt),
		errors.Is(err, transactiondomain.ErrUnsupportedCurrency),
		errors.Is(err, transactiondomain.ErrInvalidPageToken),
		errors.Is(err, fee.ErrInvalidFeeInput):
		return true
	default:
		return false
	}
}

func isChargebackValidationError(err error) bool {
	switch {
	case errors.Is(err, chargebackdomain.ErrInvalidProviderCaseID),
		errors.Is(err, chargebackdomain.ErrInvalidTransactionRef),
		errors.Is(err, chargebackdomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isPayoutValidationError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrInvalidCreator),
		errors.Is(err, payoutdomain.ErrInvalidTransferID),
		errors.Is(err, payoutdomain.ErrInvalidFailureReason):
		return true
	default:
		return false
	}
}

func isFeeScheduleValidationError(err error) bool {
	switch {
	case errors.Is(err, feescheduledomain.ErrInvalidSchedule),
		errors.Is(err, feescheduledomain.ErrScheduleInPast),
		errors.Is(err, feescheduledomain.ErrInvalidTier),
		errors.Is(err, feescheduledomain.ErrInvalidCreator),
		errors.Is(err, feescheduledomain.ErrInvalidPayoutFrequency):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, transactiondomain.ErrInvalidTransition),
		errors.Is(err, chargebackdomain.ErrTransactionNotChargeable),
		errors.Is(err, chargebackdomain.ErrChargebackAlreadyResolved),
		errors.Is(err, payoutdomain.ErrInvalidTransition),
		errors.Is(err, payoutdomain.ErrClaimConflict),
		errors.Is(err, feescheduledomain.ErrDuplicateEffectiveFrom):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, chargebackdomain.ErrNotFound),
		errors.Is(err, chargebackdomain.ErrTransactionNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if code == "unsupported_currency" {
		return "currency"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unsupported_currency":
		return "currency is not the settlement currency"
	default:
		return "invalid value"
	}
}
