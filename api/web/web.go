// Package web holds the handler signature shared by every route and the JSON
// helpers the handlers answer with.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// MaxBody caps every decoded request body.
const MaxBody = 1 << 20

type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

type Middleware func(Handler) Handler

func WrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h := mw[i]
		if h != nil {
			handler = h(handler)
		}
	}

	return handler
}

// Respond writes data as JSON. Cart and payment state changes under the
// client's feet, so no response may be stored by a cache.
func Respond(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	w.Header().Set("Cache-Control", "no-store")

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cannot marshal response data: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(jsonData); err != nil {
		return fmt.Errorf("cannot write response data to response writer: %w", err)
	}

	return nil
}

// Decode reads exactly one JSON value into val and refuses unknown fields.
func Decode(w http.ResponseWriter, r *http.Request, val any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("body must hold a single JSON value")
	}

	return nil
}

// DecodeOptional is Decode for endpoints whose body may be left out; val
// keeps its zero value then.
func DecodeOptional(w http.ResponseWriter, r *http.Request, val any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := Decode(w, r, val)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func Param(r *http.Request, key string) string {
	m := mux.Vars(r)
	return m[key]
}
