// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultLimit is the page size used when the client sends none.
const DefaultLimit = 20

// MaxLimit caps client-supplied page sizes.
const MaxLimit = 100

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Skip returns the number of documents before this page.
func (p Page) Skip() int64 { return int64((p.Page - 1) * p.Limit) }

// Apply sets skip and limit on a Find.
func (p Page) Apply(find *options.FindOptions) *options.FindOptions {
	return find.SetSkip(p.Skip()).SetLimit(int64(p.Limit))
}

// Parse reads "page" and "limit" from the query string. Missing or invalid
// values fall back to page 1 and DefaultLimit; limit is capped at MaxLimit.
func Parse(r *http.Request) Page {
	p := Page{Page: 1, Limit: DefaultLimit}
	if n, err := strconv.Atoi(query.Get(r, "page")); err == nil && n >= 1 {
		p.Page = n
	}
	if n, err := strconv.Atoi(query.Get(r, "limit")); err == nil && n >= 1 {
		p.Limit = n
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Meta describes a page of results for JSON responses.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
}

// NewMeta computes page metadata for total matching documents.
func NewMeta(p Page, total int64) Meta {
	pages := int64(0)
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    int64(p.Page) < pages,
	}
}
