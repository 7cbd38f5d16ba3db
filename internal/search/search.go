package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Snippet        string `json:"snippet"`
	OrganizationID string `json:"organizationId"`
	Status         string `json:"status"`
	CurrentPhase   string `json:"currentPhase,omitempty"`
}

// Query describes a search request. OrganizationID is always set by the
// caller; searches never cross tenant boundaries.
type Query struct {
	Text           string
	OrganizationID string
	FilterStatus   string // empty = all statuses
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over proposals.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push proposals into a search index.
type Indexer interface {
	IndexProposal(p ProposalRecord) error
	DeleteProposal(id string) error
}

// ProposalRecord is the data we index for a proposal.
type ProposalRecord struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Agency         string `json:"agency"`
	Description    string `json:"description"`
	OrganizationID string `json:"organizationId"`
	Status         string `json:"status"`
	CurrentPhase   string `json:"currentPhase"`
}
