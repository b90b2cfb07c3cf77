package bind

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/votingpower"
	"github.com/screwyprof/attester/web/api"
	"github.com/screwyprof/attester/web/snapshot"
)

// Sentinel errors for request binding
var (
	ErrInvalidDate    = errors.New("invalid date parameter")
	ErrInvalidPage    = errors.New("invalid page parameter")
	ErrInvalidPerPage = errors.New("invalid per_page parameter")

	ErrDateNotISO = errors.New("date must be YYYY-MM-DD")

	ErrPageNotNumeric  = errors.New("page must be numeric")
	ErrPageNotPositive = errors.New("page must be positive")

	ErrPerPageNotNumeric  = errors.New("per_page must be numeric")
	ErrPerPageNotPositive = errors.New("per_page must be positive")
	ErrPerPageTooLarge    = errors.New("per_page must be between 1 and 100")
)

// GetDelegatesRequest binds the query of GET /delegates with defaults
func GetDelegatesRequest(r *http.Request) (api.DelegatesRequest, error) {
	query := r.URL.Query()
	req := api.DelegatesRequest{
		Pipeline: query.Get("pipeline"),
		Date:     query.Get("date"),
		Page:     snapshot.DefaultPage,
		PerPage:  snapshot.DefaultPerPage,
	}

	if pageParam := query.Get("page"); pageParam != "" {
		page, err := parsePageNumber(pageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPage, err)
		}
		req.Page = page
	}

	if perPageParam := query.Get("per_page"); perPageParam != "" {
		perPage, err := parsePerPageLimit(perPageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPerPage, err)
		}
		req.PerPage = perPage
	}

	return req, nil
}

// GetAttestationRequest binds the query of GET /attestations
func GetAttestationRequest(r *http.Request) api.AttestationRequest {
	query := r.URL.Query()
	return api.AttestationRequest{
		Pipeline: query.Get("pipeline"),
		Date:     query.Get("date"),
	}
}

// PostExecuteRequest binds the query of POST /attestations/execute
func PostExecuteRequest(r *http.Request) api.ExecuteRequest {
	return api.ExecuteRequest{Date: r.URL.Query().Get("date")}
}

// ParseDate parses an optional YYYY-MM-DD date; empty yields the zero time
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidDate, ErrDateNotISO)
	}
	return d, nil
}

func parsePageNumber(pageParam string) (uint64, error) {
	page, err := strconv.ParseUint(pageParam, 10, 64)
	if err != nil {
		return 0, ErrPageNotNumeric
	}
	if page == 0 {
		return 0, ErrPageNotPositive
	}
	return page, nil
}

func parsePerPageLimit(perPageParam string) (uint64, error) {
	perPage, err := strconv.ParseUint(perPageParam, 10, 64)
	if err != nil {
		return 0, ErrPerPageNotNumeric
	}
	if perPage == 0 {
		return 0, ErrPerPageNotPositive
	}
	if perPage > snapshot.MaxPerPage {
		return 0, ErrPerPageTooLarge
	}
	return perPage, nil
}

// GetDelegatesResponse binds a snapshot page to the API response
func GetDelegatesResponse(page *snapshot.DelegatesPage) api.DelegatesResponse {
	data := make([]api.Delegate, len(page.Delegates))
	for i, d := range page.Delegates {
		data[i] = api.Delegate{
			Rank:                d.Rank,
			Delegate:            d.Delegate.String(),
			DirectVotingPower:   d.DirectVotingPower.String(),
			AdvancedVotingPower: d.AdvancedVotingPower.String(),
			TotalVotingPower:    d.TotalVotingPower.String(),
			FetchTimestamp:      d.FetchTimestamp.UTC().Format(time.RFC3339),
		}
	}
	return api.DelegatesResponse{
		Pipeline: page.Pipeline.String(),
		Date:     page.Date.Format(time.DateOnly),
		Data:     data,
	}
}

// GetAttestationResponse binds a published diff to the API response
func GetAttestationResponse(p attester.Pipeline, diff votingpower.AttestationDiff) api.AttestationResponse {
	return api.AttestationResponse{
		Pipeline: p.String(),
		Date:     diff.Date.Format(time.DateOnly),
		Issue:    addresses(diff.Issue),
		Revoke:   addresses(diff.Revoke),
	}
}

// PostExecuteResponse binds a completed run to the API response
func PostExecuteResponse(result attester.Result) api.ExecuteResponse {
	resp := api.ExecuteResponse{
		RunID:      result.RunID.String(),
		Date:       result.Date.Format(time.DateOnly),
		DurationMS: result.Duration.Milliseconds(),
		Pipelines:  make([]api.PipelineSummary, len(result.Pipelines)),
	}
	if !result.Baseline.IsZero() {
		resp.Baseline = result.Baseline.Format(time.DateOnly)
	}
	for i, pa := range result.Pipelines {
		resp.Pipelines[i] = api.PipelineSummary{
			Pipeline: pa.Pipeline.String(),
			Ranked:   len(pa.Ranked),
			Issued:   len(pa.Diff.Issue),
			Revoked:  len(pa.Diff.Revoke),
		}
	}
	return resp
}

func addresses(in []votingpower.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}
