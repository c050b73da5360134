package server

import (
	"errors"
	"net/http"

	auditdomain "github.com/UrrutyLabs/encuentraya-payments/internal/audit/domain"
	orderdomain "github.com/UrrutyLabs/encuentraya-payments/internal/order/domain"
	paymentdomain "github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
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

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, paymentdomain.ErrClientRoleRequired),
		errors.Is(err, paymentdomain.ErrAdminRoleRequired),
		errors.Is(err, paymentdomain.ErrNotOrderOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrOrderNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrPaymentAlreadyExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrOrderNotPayable),
		errors.Is(err, paymentdomain.ErrQuoteNotAccepted),
		errors.Is(err, paymentdomain.ErrMissingHourlyPricing),
		errors.Is(err, paymentdomain.ErrPaymentNotAuthorized),
		errors.Is(err, paymentdomain.ErrPaymentNotCaptured),
		errors.Is(err, paymentdomain.ErrMissingProviderReference),
		errors.Is(err, paymentdomain.ErrNoAuthorizedAmount),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, paymentdomain.ErrRefundUnsupported),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "provider_not_found",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrInvalidConfig):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "payment provider unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
