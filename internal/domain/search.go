package domain

import "encoding/json"

// SearchResultSet is the result of a package search: at most 10 packages,
// in the upstream's relevance order.
type SearchResultSet struct {
	query           string
	packages        []PackageSummary
	moreResultsHint string
}

const maxSearchResults = 10

// NewSearchResultSet validates and constructs a SearchResultSet.
// query must be non-empty; packages must hold between 1 and 10 entries.
func NewSearchResultSet(query string, packages []PackageSummary, moreResultsHint string) (SearchResultSet, error) {
	if query == "" {
		return SearchResultSet{}, Invalid("search result set: query must not be empty")
	}
	if len(packages) == 0 {
		return SearchResultSet{}, Invalid("search result set %q: packages must not be empty", query)
	}
	if len(packages) > maxSearchResults {
		return SearchResultSet{}, Invalid("search result set %q: packages must hold at most %d entries, got %d", query, maxSearchResults, len(packages))
	}
	return SearchResultSet{
		query:           query,
		packages:        append([]PackageSummary(nil), packages...),
		moreResultsHint: moreResultsHint,
	}, nil
}

func (s SearchResultSet) Query() string                { return s.query }
func (s SearchResultSet) Packages() []PackageSummary    { return append([]PackageSummary(nil), s.packages...) }
func (s SearchResultSet) MoreResultsHint() string       { return s.moreResultsHint }

type searchResultSetJSON struct {
	Query           string           `json:"query"`
	Packages        []PackageSummary `json:"packages"`
	MoreResultsHint string           `json:"moreResultsHint,omitempty"`
}

func (s SearchResultSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(searchResultSetJSON{
		Query:           s.query,
		Packages:        s.packages,
		MoreResultsHint: s.moreResultsHint,
	})
}

func (s *SearchResultSet) UnmarshalJSON(data []byte) error {
	var raw searchResultSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewSearchResultSet(raw.Query, raw.Packages, raw.MoreResultsHint)
	if err != nil {
		return err
	}
	*s = built
	return nil
}
