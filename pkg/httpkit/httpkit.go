// Package httpkit holds the small HTTP helpers shared by the API handlers.
//
// Handlers return the http.HandlerFunc that writes their response, so every
// branch of a handler ends in a single return of JSON, JsonError or WithHeader.
package httpkit

import (
	"context"
	"encoding/json"
	"net/http"
)

// HTTPError is an error that knows its status code and keeps the cause for logs
type HTTPError interface {
	error
	HTTPCode() int
	Cause() error
}

// HandlerFunc is a handler that decides on a response writer instead of writing directly
type HandlerFunc func(http.ResponseWriter, *http.Request) http.HandlerFunc

func (h HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(WithErrorTracking(r.Context()))
	if respond := h(w, r); respond != nil {
		respond(w, r)
	}
}

// JSON responds 200 with data
func JSON(data any) http.HandlerFunc {
	return JSONStatus(http.StatusOK, data)
}

// JSONStatus responds with status and data
func JSONStatus(status int, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, data)
	}
}

// JsonError records err for the access log and responds with its code and safe message
func JsonError(err HTTPError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetError(r.Context(), err)
		writeJSON(w, err.HTTPCode(), err)
	}
}

// WithHeader sets key on the response before next writes it; an empty value sets nothing
func WithHeader(key, value string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if value != "" {
			w.Header().Set(key, value)
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json; charset=utf-8")
	}
	if h.Get("X-Content-Type-Options") == "" {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorSlotKey struct{}

// errorSlot lets a handler hand its error to the logging middleware up the chain
type errorSlot struct {
	err error
}

// WithErrorTracking adds an error slot to ctx unless one is already there
func WithErrorTracking(ctx context.Context) context.Context {
	if _, ok := ctx.Value(errorSlotKey{}).(*errorSlot); ok {
		return ctx
	}
	return context.WithValue(ctx, errorSlotKey{}, &errorSlot{})
}

// SetError stores err in the slot of ctx, if any
func SetError(ctx context.Context, err error) {
	if slot, ok := ctx.Value(errorSlotKey{}).(*errorSlot); ok {
		slot.err = err
	}
}

// Error returns the error stored in ctx, or nil
func Error(ctx context.Context) error {
	if slot, ok := ctx.Value(errorSlotKey{}).(*errorSlot); ok {
		return slot.err
	}
	return nil
}
