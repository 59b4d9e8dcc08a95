// Package weberr decorates errors with what the error middleware needs: the
// body and status to answer with and the fields to log.
package weberr

import (
	"errors"

	"github.com/sirupsen/logrus"
)

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

// WithResponse answers the request with body and status.
func WithResponse(body *ErrorResponse, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

// WithInput reports the offending input fields in the response body. It must
// come after the option that sets the response.
func WithInput(fields map[string]string) Opt {
	return func(err error) error {
		var re *responseError
		if errors.As(err, &re) {
			body := *re.body
			body.Fields = fields
			return &responseError{error: re.error, body: &body, status: re.status}
		}
		return err
	}
}

// WithLogFields adds fields to the log entry of the failed request only.
func WithLogFields(fields logrus.Fields) Opt {
	return func(err error) error {
		return &logError{error: err, fields: fields}
	}
}

func Response(err error) (body *ErrorResponse, status int, ok bool) {
	var re *responseError
	if errors.As(err, &re) {
		return re.body, re.status, true
	}
	return nil, 0, false
}

// LogFields collects the log fields of every layer of err.
func LogFields(err error) logrus.Fields {
	out := logrus.Fields{}
	for err != nil {
		if le, ok := err.(*logError); ok {
			for k, v := range le.fields {
				if _, seen := out[k]; !seen {
					out[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return out
}

type responseError struct {
	error
	body   *ErrorResponse
	status int
}

func (e *responseError) Unwrap() error { return e.error }

type logError struct {
	error
	fields logrus.Fields
}

func (e *logError) Unwrap() error { return e.error }
