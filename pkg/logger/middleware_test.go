package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/pkg/httpkit"
	"github.com/screwyprof/attester/pkg/logger"
)

type statusError struct {
	code  int
	cause error
}

func (e statusError) Error() string { return http.StatusText(e.code) }
func (e statusError) HTTPCode() int { return e.code }
func (e statusError) Cause() error  { return e.cause }

type accessLine struct {
	Level     string  `json:"level"`
	Msg       string  `json:"msg"`
	RequestID string  `json:"request_id"`
	Method    string  `json:"method"`
	Path      string  `json:"path"`
	Query     string  `json:"query"`
	Status    int     `json:"status"`
	Duration  float64 `json:"duration"`
	BytesIn   int     `json:"bytes_in"`
	BytesOut  int     `json:"bytes_out"`
	Error     string  `json:"error"`
}

func serveLogged(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, accessLine) {
	t.Helper()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := httptest.NewRecorder()

	logger.NewMiddleware(log)(h).ServeHTTP(rec, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var line accessLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	return rec, line
}

func failWith(code int, cause error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpkit.JsonError(statusError{code: code, cause: cause})(w, r)
	})
}

func TestNewMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("it logs one line per request with path and query", func(t *testing.T) {
		t.Parallel()

		// Arrange
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
		req := httptest.NewRequest(http.MethodGet, "/delegates?page=2&per_page=10", nil)

		// Act
		rec, line := serveLogged(t, h, req)

		// Assert
		assert.Equal(t, "INFO", line.Level)
		assert.Equal(t, logger.AccessLogMessage, line.Msg)
		assert.Equal(t, http.MethodGet, line.Method)
		assert.Equal(t, "/delegates", line.Path)
		assert.Equal(t, "page=2&per_page=10", line.Query)
		assert.Equal(t, http.StatusOK, line.Status)
		assert.Equal(t, rec.Body.Len(), line.BytesOut)
		assert.Empty(t, line.Error)
	})

	t.Run("it picks the level from the status class", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			code  int
			level string
		}{
			{code: http.StatusBadRequest, level: "WARN"},
			{code: http.StatusNotFound, level: "WARN"},
			{code: http.StatusConflict, level: "WARN"},
			{code: http.StatusInternalServerError, level: "ERROR"},
			{code: http.StatusServiceUnavailable, level: "ERROR"},
		}

		for _, tc := range tests {
			// Act
			_, line := serveLogged(t, failWith(tc.code, errors.New("boom")), httptest.NewRequest(http.MethodGet, "/attestations", nil))

			// Assert
			assert.Equal(t, tc.level, line.Level, "status %d", tc.code)
			assert.Equal(t, tc.code, line.Status)
		}
	})

	t.Run("it logs the cause rather than the public message", func(t *testing.T) {
		t.Parallel()

		// Arrange
		h := failWith(http.StatusInternalServerError, errors.New("reading attester checkpoint: connection refused"))

		// Act
		rec, line := serveLogged(t, h, httptest.NewRequest(http.MethodGet, "/delegates", nil))

		// Assert
		assert.Contains(t, rec.Body.String(), "Internal Server Error")
		assert.Equal(t, "reading attester checkpoint: connection refused", line.Error)
	})

	t.Run("it measures duration and body sizes", func(t *testing.T) {
		t.Parallel()

		// Arrange
		body := `{"date":"2024-12-03"}`
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(5 * time.Millisecond)
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("queued"))
		})
		req := httptest.NewRequest(http.MethodPost, "/attestations/execute", strings.NewReader(body))

		// Act
		_, line := serveLogged(t, h, req)

		// Assert
		assert.GreaterOrEqual(t, line.Duration, float64(5*time.Millisecond))
		assert.Equal(t, len(body), line.BytesIn)
		assert.Equal(t, len("queued"), line.BytesOut)
		assert.Equal(t, http.StatusAccepted, line.Status)
		assert.Empty(t, line.Query)
	})

	t.Run("it echoes an incoming request id", func(t *testing.T) {
		t.Parallel()

		// Arrange
		req := httptest.NewRequest(http.MethodGet, "/delegates", nil)
		req.Header.Set(logger.RequestIDHeader, "run-42")

		// Act
		rec, line := serveLogged(t, http.NotFoundHandler(), req)

		// Assert
		assert.Equal(t, "run-42", line.RequestID)
		assert.Equal(t, "run-42", rec.Header().Get(logger.RequestIDHeader))
	})

	t.Run("it generates a request id when none is sent", func(t *testing.T) {
		t.Parallel()

		// Act
		rec, line := serveLogged(t, http.NotFoundHandler(), httptest.NewRequest(http.MethodGet, "/delegates", nil))

		// Assert
		assert.Len(t, line.RequestID, 36)
		assert.Equal(t, line.RequestID, rec.Header().Get(logger.RequestIDHeader))
	})
}
