package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/screwyprof/attester/pkg/httpkit"
	"github.com/screwyprof/attester/web/api"
	"github.com/screwyprof/attester/web/handler/bind"
	"github.com/screwyprof/attester/web/snapshot"
)

const GetDelegatesRoute = http.MethodGet + " " + "/delegates"

// Sentinel errors
var (
	ErrQueryFailed = errors.New("failed to query snapshots")
)

type GetDelegates struct {
	finder snapshot.Finder
}

func NewGetDelegates(finder snapshot.Finder) *GetDelegates {
	return &GetDelegates{
		finder: finder,
	}
}

func (h *GetDelegates) AddRoutes(m *http.ServeMux) {
	m.Handle(GetDelegatesRoute, httpkit.HandlerFunc(h.GetDelegates))
}

func (h *GetDelegates) GetDelegates(_ http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.GetDelegatesRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	date, err := bind.ParseDate(req.Date)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	criteria, err := snapshot.NewDelegatesCriteria(req.Pipeline, date, req.Page, req.PerPage)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	page, err := h.finder.FindDelegates(r.Context(), criteria)
	if errors.Is(err, snapshot.ErrNotPublished) {
		return httpkit.JsonError(api.NotFound(err))
	}
	if err != nil {
		return httpkit.JsonError(api.InternalServerError(fmt.Errorf("%w: %w", ErrQueryFailed, err)))
	}

	return httpkit.WithHeader("Link", buildPaginationLinks(page, r.URL), httpkit.JSON(bind.GetDelegatesResponse(page)))
}

// buildPaginationLinks creates a GitHub-style Link header with prev and next pages.
// first and last are omitted; last would need a count query.
func buildPaginationLinks(page *snapshot.DelegatesPage, baseURL *url.URL) string {
	var links []string

	u := *baseURL
	query := u.Query()

	link := func(number uint64, rel string) string {
		query.Set("page", strconv.FormatUint(number, 10))
		query.Set("per_page", strconv.FormatUint(page.Size.Uint64(), 10))
		u.RawQuery = query.Encode()
		return fmt.Sprintf(`<%s>; rel="%s"`, u.String(), rel)
	}

	if page.HasPrevious() {
		links = append(links, link(page.Number.Uint64()-1, "prev"))
	}
	if page.HasNext() {
		links = append(links, link(page.Number.Uint64()+1, "next"))
	}

	return strings.Join(links, ", ")
}
