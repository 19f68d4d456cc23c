package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-devradar-backend/internal/services"
)

// Error codes returned in the "code" field of the error envelope. Clients
// switch on these; messages are for humans and may change.
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "quota_exceeded",
//	  "message": "You've reached your maximum check-ins (5/5). ..."
//	}
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "service_unavailable"

	// check-in domain
	ErrCodeQuotaExceeded      = "quota_exceeded"
	ErrCodeLocation           = "location_error"
	ErrCodeNotOwner           = "not_owner"
	ErrCodeInvalidProfile     = "invalid_profile"
	ErrCodeInvalidCoordinates = "invalid_coordinates"
	ErrCodeNoIdentity         = "no_identity"
	ErrCodeStore              = "store_error"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)

// failService maps a service error to status and code. Unknown errors are
// reported as internal.
func failService(c *gin.Context, err error) {
	var quota *services.QuotaExceededError
	var loc *services.LocationError
	switch {
	case errors.As(err, &quota):
		fail(c, http.StatusConflict, ErrCodeQuotaExceeded, quota.Error())
	case errors.As(err, &loc):
		fail(c, http.StatusUnprocessableEntity, ErrCodeLocation, loc.Error())
	case errors.Is(err, services.ErrInvalidProfile):
		fail(c, http.StatusBadRequest, ErrCodeInvalidProfile, err.Error())
	case errors.Is(err, services.ErrInvalidCoordinates):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCoordinates, err.Error())
	case errors.Is(err, services.ErrNoIdentity):
		fail(c, http.StatusUnauthorized, ErrCodeNoIdentity, err.Error())
	case errors.Is(err, services.ErrCheckInNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrNotOwner):
		fail(c, http.StatusForbidden, ErrCodeNotOwner, err.Error())
	case errors.Is(err, services.ErrStore):
		fail(c, http.StatusInternalServerError, ErrCodeStore, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
