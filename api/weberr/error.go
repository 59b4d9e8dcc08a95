package weberr

import (
	"net/http"
	"strings"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Reason string            `json:"reason"`
	Fields map[string]string `json:"fields,omitempty"`
}

type RequestError struct {
	Err error
}

func (r *RequestError) Error() string { return r.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

func NewError(err error, msg string, status int, opts ...Opt) error {
	e := &RequestError{Err: err}
	opts = append([]Opt{WithResponse(
		&ErrorResponse{Error: msg, Reason: reason(status)},
		status,
	)}, opts...)

	return Wrap(e, opts...)
}

func NotFound(err error, opts ...Opt) error {
	return NewError(
		err,
		"the resource could not be found",
		http.StatusNotFound,
		opts...,
	)
}

func InternalError(err error, opts ...Opt) error {
	return NewError(
		err,
		"the server encountered a problem and could not process your request",
		http.StatusInternalServerError,
		opts...,
	)
}

func BadRequest(err error, opts ...Opt) error {
	return NewError(
		err,
		"bad request",
		http.StatusBadRequest,
		opts...,
	)
}

func TooManyRequests(err error, opts ...Opt) error {
	return NewError(
		err,
		"too many requests, slow down",
		http.StatusTooManyRequests,
		opts...,
	)
}

func reason(status int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
