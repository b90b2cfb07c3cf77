package api

// DelegatesRequest represents the query parameters for GET /delegates
type DelegatesRequest struct {
	Pipeline string `query:"pipeline"` // without_partial_vp or with_partial_vp (default)
	Date     string `query:"date"`     // YYYY-MM-DD, latest published when empty
	Page     uint64 `query:"page"`     // default 1
	PerPage  uint64 `query:"per_page"` // default 50, max 100
}

// Delegate is one ranked row. Amounts are base-unit integers.
type Delegate struct {
	Rank                int    `json:"rank"`
	Delegate            string `json:"delegate"`
	DirectVotingPower   string `json:"direct_voting_power"`
	AdvancedVotingPower string `json:"advanced_voting_power"`
	TotalVotingPower    string `json:"total_voting_power"`
	FetchTimestamp      string `json:"fetch_timestamp"`
}

// DelegatesResponse represents the response of GET /delegates
type DelegatesResponse struct {
	Pipeline string     `json:"pipeline"`
	Date     string     `json:"date"`
	Data     []Delegate `json:"data"`
}

// AttestationRequest represents the query parameters for GET /attestations
type AttestationRequest struct {
	Pipeline string `query:"pipeline"`
	Date     string `query:"date"`
}

// AttestationResponse represents the response of GET /attestations
type AttestationResponse struct {
	Pipeline string   `json:"pipeline"`
	Date     string   `json:"date"`
	Issue    []string `json:"issue"`
	Revoke   []string `json:"revoke"`
}

// ExecuteRequest represents the query parameters for POST /attestations/execute
type ExecuteRequest struct {
	Date string `query:"date"` // YYYY-MM-DD, previous UTC day when empty
}

// PipelineSummary counts what a run published for one pipeline
type PipelineSummary struct {
	Pipeline string `json:"pipeline"`
	Ranked   int    `json:"ranked"`
	Issued   int    `json:"issued"`
	Revoked  int    `json:"revoked"`
}

// ExecuteResponse represents the response of POST /attestations/execute
type ExecuteResponse struct {
	RunID      string            `json:"run_id"`
	Date       string            `json:"date"`
	Baseline   string            `json:"baseline,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Pipelines  []PipelineSummary `json:"pipelines"`
}
