package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 link headers derived from the OpenAPI paths, keyed
// by operation path. Create it before the API so Transformer can be put in
// the Huma config, then call Build once every route is registered.
type Links struct {
	mu    sync.RWMutex
	byOp  map[string][]string
	entry string
}

// NewLinks creates an empty link set whose entry point is entry (e.g.
// "/health").
func NewLinks(entry string) *Links {
	return &Links{byOp: map[string][]string{}, entry: entry}
}

// Build walks the OpenAPI spec and generates hypermedia links. Operations
// tagged "editor" (Datastar SSE) are skipped.
func (l *Links) Build(api huma.API) {
	oapi := api.OpenAPI()
	byOp := map[string][]string{}
	add := func(from, to, rel string) {
		val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
		if !slices.Contains(byOp[from], val) {
			byOp[from] = append(byOp[from], val)
		}
	}

	var collections, items []string
	for p, pi := range oapi.Paths {
		if slices.Contains(primaryTags(pi), "editor") {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	slices.Sort(collections)
	slices.Sort(items)

	// item <-> collection
	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; ok {
			add(item, parent, "collection")
			add(item, parent, "up")
			add(parent, item, "item")
		}
	}

	for _, coll := range collections {
		if coll != l.entry {
			add(coll, l.entry, "up")
			add(l.entry, coll, lastSegment(coll))
		}
		if pi := oapi.Paths[coll]; pi.Post != nil {
			add(coll, coll, "create-form")
		}
		if ref := responseSchemaRef(oapi.Paths[coll]); ref != "" {
			add(coll, "/openapi.json#/components/schemas/"+ref, "describedby")
		}
	}
	add(l.entry, "/openapi.json", "service-desc")
	add(l.entry, "/docs", "service-doc")

	for p, pi := range oapi.Paths {
		headers, ok := byOp[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}

	l.mu.Lock()
	l.byOp = byOp
	l.mu.Unlock()
}

// For returns the link headers generated for an operation path.
func (l *Links) For(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.byOp[opPath])
}

// Root returns the entry point's links for use by non-Huma handlers.
func (l *Links) Root() []string {
	return l.For(l.entry)
}

// Transformer returns a Huma Transformer that adds the generated links, a
// self link for item paths, and the pagination and action links of the
// response body.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks documents the links on the operation's 2xx response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return lastSegment(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if r, ok := strings.CutPrefix(params, `rel="`); ok {
		rel = strings.TrimSuffix(r, `"`)
	}
	return rel, href
}
