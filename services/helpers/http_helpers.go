package helpers

import (
	"errors"
	"net/http"

	"auction-house/internal/auctionerrors"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	utils.JSONError(c, http.StatusBadRequest, auctionerrors.KindValidation.String(), "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to an HTTP status, a stable error
// code and a message safe to show to clients.
func MapErrorToHTTP(err error) (int, string, string) {
	if errors.Is(err, auctionerrors.ErrPaymentProvider) {
		return http.StatusBadGateway, "payment_provider", auctionerrors.ErrPaymentProvider.Error()
	}

	kind := auctionerrors.KindOf(err)
	message := auctionerrors.PublicMessage(err)

	switch kind {
	case auctionerrors.KindValidation:
		return http.StatusBadRequest, kind.String(), message
	case auctionerrors.KindStateConflict:
		return http.StatusConflict, kind.String(), message
	case auctionerrors.KindAuthExpired, auctionerrors.KindUnauthorized:
		return http.StatusUnauthorized, kind.String(), message
	case auctionerrors.KindForbidden:
		return http.StatusForbidden, kind.String(), message
	case auctionerrors.KindNotFound:
		return http.StatusNotFound, kind.String(), message
	default:
		return http.StatusInternalServerError, kind.String(), "internal server error"
	}
}

// RespondError writes the mapped error and logs it; internal failures are
// logged at error level, everything else as a warning.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, code, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, code, message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
