package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/fairshare/internal/service"
)

type ApiError struct {
	StatusCode int                  `json:"status_code"`
	Message    string               `json:"message"`
	Fields     []service.FieldError `json:"fields,omitempty"`
	Err        error                `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewMethodNotAllowedError() *ApiError {
	return newApiError(http.StatusMethodNotAllowed)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewTooManyRequestsError() *ApiError {
	return newApiError(http.StatusTooManyRequests)
}

// errorFromService maps a service error onto the HTTP error returned to the
// caller. Anything that is not a typed service error is internal and keeps
// its cause out of the response body.
func errorFromService(err error) *ApiError {
	var serr *service.Error
	if !errors.As(err, &serr) {
		return NewInternalServerError(err)
	}

	var apiErr *ApiError
	switch serr.Kind {
	case service.KindInvalidInput:
		apiErr = NewBadRequestError()
		apiErr.Fields = serr.Fields
	case service.KindUnauthenticated:
		apiErr = NewUnauthorizedError()
	case service.KindForbidden:
		apiErr = NewForbiddenError()
	case service.KindNotFound:
		apiErr = NewNotFoundError()
	case service.KindConflict:
		apiErr = NewConflictError()
	default:
		return NewInternalServerError(err)
	}

	if serr.Message != "" {
		apiErr.Message = serr.Message
	}
	apiErr.Err = err
	return apiErr
}
