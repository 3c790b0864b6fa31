package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payrail/internal/gateway/direct"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	walletdomain "github.com/smallbiznis/payrail/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
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
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrForbidden      = errors.New("forbidden")
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
	return ErrInvalidRequest
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if fieldErrs := asFieldErrors(err); fieldErrs != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldErrs,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "request", Code: err.Error(), Message: "invalid value"},
			},
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, gatewaydomain.ErrTokenNotOwned):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, gatewaydomain.ErrOrderNotPayable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "order no longer needs payment",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asFieldErrors(err error) []ValidationError {
	var vErrs direct.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return nil
	}
	converted := make([]ValidationError, 0, len(vErrs))
	for _, fe := range vErrs {
		converted = append(converted, ValidationError{
			Field:   fe.Field,
			Code:    "invalid_" + fe.Field,
			Message: fe.Message,
		})
	}
	return converted
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrInvalidOrder),
		errors.Is(err, tokendomain.ErrInvalidToken),
		errors.Is(err, tokendomain.ErrInvalidOwner),
		errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, gatewaydomain.ErrInvalidSignature),
		errors.Is(err, walletdomain.ErrEmptyCart),
		errors.Is(err, walletdomain.ErrIncompleteAuthorization),
		errors.Is(err, walletdomain.ErrTotalMismatch):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, orderdomain.ErrProductNotFound),
		errors.Is(err, tokendomain.ErrTokenNotFound),
		errors.Is(err, gatewaydomain.ErrOrderNotFound),
		errors.Is(err, gatewaydomain.ErrTokenNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// isUnprocessableError covers requests that are well-formed but refused
// by gateway policy or transaction state.
func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, gatewaydomain.ErrCaptureNotSupported),
		errors.Is(err, gatewaydomain.ErrCaptureWindowExpired),
		errors.Is(err, gatewaydomain.ErrOrderFullyCaptured),
		errors.Is(err, gatewaydomain.ErrCaptureExceedsRemaining),
		errors.Is(err, gatewaydomain.ErrCaptureExceedsMaximum),
		errors.Is(err, gatewaydomain.ErrNoAuthorization),
		errors.Is(err, gatewaydomain.ErrRefundNotSupported),
		errors.Is(err, gatewaydomain.ErrVoidNotAvailable),
		errors.Is(err, gatewaydomain.ErrOperationNotSupported),
		errors.Is(err, gatewaydomain.ErrTokenizationNotSupported):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
