package errutil

import "net/http"

// CoreStatus is the machine-readable error code returned to API clients.
type CoreStatus string

const (
	StatusBadRequest            CoreStatus = "invalid_request"
	StatusValidationFailed      CoreStatus = "validation_failed"
	StatusNotFound              CoreStatus = "not_found"
	StatusUnauthorized          CoreStatus = "unauthenticated"
	StatusForbidden             CoreStatus = "forbidden"
	StatusPermissionCheckFailed CoreStatus = "permission_check_failed"
	StatusConflict              CoreStatus = "conflict"
	StatusUnprocessableEntity   CoreStatus = "unprocessable_entity"
	StatusInsufficientPoints    CoreStatus = "insufficient_points"
	StatusRewardNotActive       CoreStatus = "reward_not_active"
	StatusFeatureDisabled       CoreStatus = "feature_disabled"
	StatusInternal              CoreStatus = "internal"
	StatusServiceUnavailable    CoreStatus = "service_unavailable"
)

// HTTPStatus maps the code to the HTTP status written on the response.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusRewardNotActive:
		return http.StatusConflict
	case StatusUnprocessableEntity, StatusInsufficientPoints:
		return http.StatusUnprocessableEntity
	case StatusFeatureDisabled, StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
