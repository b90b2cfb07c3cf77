package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/screwyprof/attester/pkg/httpkit"
	"github.com/screwyprof/attester/web/api"
	"github.com/screwyprof/attester/web/handler/bind"
	"github.com/screwyprof/attester/web/snapshot"
)

const GetAttestationsRoute = http.MethodGet + " " + "/attestations"

type GetAttestations struct {
	finder snapshot.Finder
}

func NewGetAttestations(finder snapshot.Finder) *GetAttestations {
	return &GetAttestations{finder: finder}
}

func (h *GetAttestations) AddRoutes(m *http.ServeMux) {
	m.Handle(GetAttestationsRoute, httpkit.HandlerFunc(h.GetAttestations))
}

func (h *GetAttestations) GetAttestations(_ http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req := bind.GetAttestationRequest(r)

	pipeline, err := snapshot.ParsePipeline(req.Pipeline)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	date, err := bind.ParseDate(req.Date)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	diff, err := h.finder.FindAttestation(r.Context(), pipeline, date)
	if errors.Is(err, snapshot.ErrNotPublished) {
		return httpkit.JsonError(api.NotFound(err))
	}
	if err != nil {
		return httpkit.JsonError(api.InternalServerError(fmt.Errorf("%w: %w", ErrQueryFailed, err)))
	}

	return httpkit.JSON(bind.GetAttestationResponse(pipeline, diff))
}
