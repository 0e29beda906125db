package humastar

import "fmt"

// Action is a state-dependent hypermedia action link. Response bodies
// implement Actor to emit conditional RFC 8288 Link headers with method
// and title extension parameters:
//
//	</api/v1/features/applyEdits>; rel="delete"; method="POST"; title="Delete sighting"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
	Schema string // JSON Schema URL for the request body
}

// Actor is implemented by response bodies that provide actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link header value.
func (a Action) LinkHeader() string {
	h := fmt.Sprintf(`<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		h += fmt.Sprintf(`; method="%s"`, a.Method)
	}
	if a.Title != "" {
		h += fmt.Sprintf(`; title="%s"`, a.Title)
	}
	if a.Schema != "" {
		h += fmt.Sprintf(`; schema="%s"`, a.Schema)
	}
	return h
}

// ActionDef is a reusable action template. Pattern takes the resource id
// through a single %v verb.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
	Schema  string
}

// ActionsFor expands defs for one resource id.
func ActionsFor(id any, defs []ActionDef) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		href := d.Pattern
		if hasVerb(d.Pattern) {
			href = fmt.Sprintf(d.Pattern, id)
		}
		actions[i] = Action{
			Rel:    d.Rel,
			Href:   href,
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		}
	}
	return actions
}

func hasVerb(pattern string) bool {
	for i := 0; i+1 < len(pattern); i++ {
		if pattern[i] == '%' && pattern[i+1] != '%' {
			return true
		}
		if pattern[i] == '%' {
			i++
		}
	}
	return false
}
