package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestErrors(t *testing.T) {
	log, _ := test.NewNullLogger()

	tests := []struct {
		name   string
		err    error
		status int
		body   weberr.ErrorResponse
	}{
		{
			name:   "validation",
			err:    failure.New(failure.Validation, "invalid_input", "email is invalid").WithFields(map[string]string{"email": "email is invalid"}),
			status: http.StatusUnprocessableEntity,
			body:   weberr.ErrorResponse{Error: "email is invalid", Reason: "invalid_input", Fields: map[string]string{"email": "email is invalid"}},
		},
		{
			name:   "wrapped staleness",
			err:    fmt.Errorf("settling payment: %w", failure.New(failure.Staleness, "total_changed", "cart total changed")),
			status: http.StatusConflict,
			body:   weberr.ErrorResponse{Error: "cart total changed", Reason: "total_changed"},
		},
		{
			name:   "busy",
			err:    failure.ErrInProgress,
			status: http.StatusConflict,
			body:   weberr.ErrorResponse{Error: "submission in progress", Reason: "submission_in_progress"},
		},
		{
			name:   "terminal",
			err:    failure.ErrCartCompleted,
			status: http.StatusGone,
			body:   weberr.ErrorResponse{Error: "cart is already completed", Reason: "cart_completed"},
		},
		{
			name:   "degraded",
			err:    failure.New(failure.Degraded, "bundle_partially_removed", "bundle partially removed"),
			status: http.StatusServiceUnavailable,
			body:   weberr.ErrorResponse{Error: "bundle partially removed", Reason: "bundle_partially_removed"},
		},
		{
			name:   "bad request with input",
			err:    weberr.BadRequest(errors.New("unknown domain"), weberr.WithInput(map[string]string{"domain": "unknown domain"})),
			status: http.StatusBadRequest,
			body:   weberr.ErrorResponse{Error: "bad request", Reason: "bad_request", Fields: map[string]string{"domain": "unknown domain"}},
		},
		{
			name:   "unclassified",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   weberr.ErrorResponse{Error: "Internal Server Error", Reason: "internal"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Errors(log)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				return tc.err
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if err := h(context.Background(), w, r); err != nil {
				t.Fatalf("expected the error to be handled, got %v", err)
			}

			if w.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, w.Code)
			}
			var got weberr.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if diff := cmp.Diff(tc.body, got); diff != "" {
				t.Fatalf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorsLogFields(t *testing.T) {
	log, hook := test.NewNullLogger()

	h := Errors(log)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		err := weberr.TooManyRequests(errors.New("slow down"), weberr.WithLogFields(logrus.Fields{"client": "10.0.0.1"}))
		return fmt.Errorf("limiting: %w", err)
	})

	w := httptest.NewRecorder()
	if err := h(context.Background(), w, httptest.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("expected the error to be handled, got %v", err)
	}

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["client"] != "10.0.0.1" {
		t.Fatalf("expected the client to be logged, got %+v", entry)
	}
}
