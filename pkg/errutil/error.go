package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

// JSON is the response body. The wrapped error stays in the logs only.
func (e BaseError) JSON() any {
	return map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

// As reports whether err carries a BaseError anywhere in its chain.
func As(err error) (BaseError, bool) {
	var be BaseError
	if errors.As(err, &be) {
		return be, true
	}
	return be, false
}

// Is reports whether err carries a BaseError with the given code.
func Is(err error, code CoreStatus) bool {
	be, ok := As(err)
	return ok && be.Code == code
}

func with(code CoreStatus, msg string, err error, options []Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

func NotFound(msg string, err error, options ...Option) error {
	return with(StatusNotFound, msg, err, options)
}

func UnprocessableEntity(msg string, err error, options ...Option) error {
	return with(StatusUnprocessableEntity, msg, err, options)
}

func Conflict(msg string, err error, options ...Option) error {
	return with(StatusConflict, msg, err, options)
}

func BadRequest(msg string, err error, options ...Option) error {
	return with(StatusBadRequest, msg, err, options)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return with(StatusValidationFailed, msg, err, options)
}

func Internal(msg string, err error, options ...Option) error {
	return with(StatusInternal, msg, err, options)
}

func Unauthorized(msg string, err error, options ...Option) error {
	return with(StatusUnauthorized, msg, err, options)
}

func Forbidden(msg string, err error, options ...Option) error {
	return with(StatusForbidden, msg, err, options)
}

func PermissionCheckFailed(msg string, err error, options ...Option) error {
	return with(StatusPermissionCheckFailed, msg, err, options)
}

func InsufficientPoints(msg string, err error, options ...Option) error {
	return with(StatusInsufficientPoints, msg, err, options)
}

func RewardNotActive(msg string, err error, options ...Option) error {
	return with(StatusRewardNotActive, msg, err, options)
}

func FeatureDisabled(msg string, err error, options ...Option) error {
	return with(StatusFeatureDisabled, msg, err, options)
}
