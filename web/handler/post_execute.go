package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/pkg/httpkit"
	"github.com/screwyprof/attester/web/api"
	"github.com/screwyprof/attester/web/handler/bind"
)

const (
	PostExecuteRoute = http.MethodPost + " " + "/attestations/execute"

	// APIKeyHeader carries the key guarding the trigger
	APIKeyHeader = "X-API-Key"
)

// Sentinel errors
var (
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrRunFailed     = errors.New("attestation run failed")
)

// Trigger runs the attestation batch
type Trigger interface {
	Run(ctx context.Context, date time.Time) (attester.Result, error)
	RunLatest(ctx context.Context) (attester.Result, error)
}

type PostExecute struct {
	trigger Trigger
	apiKey  string
}

// NewPostExecute creates the trigger handler; an empty apiKey leaves it unguarded
func NewPostExecute(trigger Trigger, apiKey string) *PostExecute {
	return &PostExecute{trigger: trigger, apiKey: apiKey}
}

func (h *PostExecute) AddRoutes(m *http.ServeMux) {
	m.Handle(PostExecuteRoute, httpkit.HandlerFunc(h.PostExecute))
}

func (h *PostExecute) PostExecute(_ http.ResponseWriter, r *http.Request) http.HandlerFunc {
	if !h.authorized(r) {
		return httpkit.JsonError(api.Unauthorized(ErrInvalidAPIKey))
	}

	req := bind.PostExecuteRequest(r)
	date, err := bind.ParseDate(req.Date)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	var result attester.Result
	if date.IsZero() {
		result, err = h.trigger.RunLatest(r.Context())
	} else {
		result, err = h.trigger.Run(r.Context(), date)
	}

	switch {
	case err == nil:
		return httpkit.JSON(bind.PostExecuteResponse(result))
	case errors.Is(err, attester.ErrRunInProgress),
		errors.Is(err, attester.ErrAlreadyPublished),
		errors.Is(err, attester.ErrDataNotReady):
		return httpkit.JsonError(api.Conflict(err))
	default:
		return httpkit.JsonError(api.InternalServerError(fmt.Errorf("%w: %w", ErrRunFailed, err)))
	}
}

func (h *PostExecute) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}
	got := r.Header.Get(APIKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}
