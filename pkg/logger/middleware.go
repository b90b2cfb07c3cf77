package logger

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/attester/pkg/httpkit"
)

// RequestIDHeader carries the request correlation id
const RequestIDHeader = "X-Request-ID"

// AccessLogMessage is the message of every access log line
const AccessLogMessage = "request served"

type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytesOut int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytesOut += n
	return n, err
}

// NewMiddleware logs one line per request. Server errors are logged at error level,
// client errors at warn, everything else at info. The request id is taken from
// X-Request-ID or generated, and echoed on the response.
func NewMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			r = r.WithContext(httpkit.WithErrorTracking(r.Context()))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes_in", max(0, r.ContentLength)),
				slog.Int("bytes_out", rec.bytesOut),
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", r.URL.RawQuery))
			}
			if err := httpkit.Error(r.Context()); err != nil {
				attrs = append(attrs, slog.String("error", causeOf(err).Error()))
			}

			logger.LogAttrs(r.Context(), levelFor(rec.status), AccessLogMessage, attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// causeOf prefers the detailed cause of an HTTP error over its public message
func causeOf(err error) error {
	var httpErr httpkit.HTTPError
	if errors.As(err, &httpErr) && httpErr.Cause() != nil {
		return httpErr.Cause()
	}
	return err
}
