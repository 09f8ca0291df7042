package model

// BBoxExtra is the search extra carrying a "minx,miny,maxx,maxy" filter.
const BBoxExtra = "ext_bbox"

const (
	DefaultSearchRows = 20
	MaxSearchRows     = 1000
)

// SearchParams is the mutable search request handed to BeforeSearch hooks.
type SearchParams struct {
	// Q is the backend query string. Hooks may rewrite it.
	Q string `json:"q"`
	// Text is the caller's original free text, before any rewriting.
	Text   string            `json:"-"`
	Extras map[string]string `json:"extras,omitempty"`
	// FilterIDs restricts results to these package IDs when non-nil.
	FilterIDs   []string `json:"-"`
	AbortSearch bool     `json:"-"`
	Rows        int      `json:"rows"`
	Start       int      `json:"start"`
}

// Normalize applies the row defaults and caps.
func (p *SearchParams) Normalize() {
	if p.Rows <= 0 {
		p.Rows = DefaultSearchRows
	}
	if p.Rows > MaxSearchRows {
		p.Rows = MaxSearchRows
	}
	if p.Start < 0 {
		p.Start = 0
	}
}

// SearchResult is the outcome of a package search.
type SearchResult struct {
	Count   int       `json:"count"`
	Results []Package `json:"results"`
	Q       string    `json:"q,omitempty"`
}
