package weberr

import (
	"net/http"

	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

var statuses = map[failure.Class]int{
	failure.Validation: http.StatusUnprocessableEntity,
	failure.Staleness:  http.StatusConflict,
	failure.Terminal:   http.StatusGone,
	failure.Busy:       http.StatusConflict,
	failure.Backend:    http.StatusBadGateway,
	failure.NotFound:   http.StatusNotFound,
	failure.Integrity:  http.StatusInternalServerError,
	failure.Degraded:   http.StatusServiceUnavailable,
}

func StatusOf(c failure.Class) int {
	if s, ok := statuses[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Failure renders a classified core error. The reason travels next to the
// message so clients can branch on it.
func Failure(err error) (body *ErrorResponse, status int, ok bool) {
	fe, ok := failure.As(err)
	if !ok {
		return nil, 0, false
	}
	return &ErrorResponse{Error: fe.Message, Reason: fe.Reason, Fields: fe.Fields}, StatusOf(fe.Class), true
}
