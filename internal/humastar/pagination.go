// pagination.go: HATEOAS pagination via RFC 8288 Link headers.
//
// Response bodies implement Pager to emit first/prev/next/last links;
// LinkTransformer sets the headers.
package humastar

import "fmt"

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a generic paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// NewPage slices all into the page at offset/limit.
func NewPage[T any](all []T, offset, limit int) PageBody[T] {
	p := PageBody[T]{Total: len(all), Offset: offset, Limit: limit, Data: []T{}}
	if offset >= len(all) {
		return p
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	p.Data = all[offset:end]
	return p
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
// An unlimited page has no links.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit <= 0 {
		return nil
	}
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, basePath, offset, p.Limit, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	last := max((p.Total-1)/p.Limit*p.Limit, 0)
	return append(links, link(last, "last"))
}
