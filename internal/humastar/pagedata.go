// pagedata.go maps the OpenAPI spec back to page template data: the
// initial data-signals JSON and the routes of the page's operations, so the
// HTML never hardcodes URLs.
package humastar

import (
	"encoding/json"
	"fmt"
	"html/template"
	"maps"

	"github.com/danielgtaylor/huma/v2"
)

// PageData holds what a page template needs from the API.
type PageData struct {
	// Signals is the JSON for data-signals initialization.
	Signals template.JS
	// Routes maps operation IDs to paths.
	Routes map[string]string
	// Extra carries page-specific values.
	Extra map[string]any
}

// Route returns the path of an operation, or "" when not registered.
func (pd PageData) Route(operationID string) string {
	return pd.Routes[operationID]
}

// Post returns a Datastar @post action for an operation.
func (pd PageData) Post(operationID string) template.JS {
	return template.JS(fmt.Sprintf("@post('%s')", pd.Routes[operationID]))
}

// BuildPageData discovers the routes of operations tagged tag and encodes
// the initial signals.
func BuildPageData(api huma.API, tag string, signals map[string]any) (PageData, error) {
	pd := PageData{Routes: map[string]string{}, Extra: map[string]any{}}
	for p, pi := range api.OpenAPI().Paths {
		for _, op := range operationsOf(pi) {
			if op == nil || op.OperationID == "" {
				continue
			}
			for _, t := range op.Tags {
				if t == tag {
					pd.Routes[op.OperationID] = p
				}
			}
		}
	}

	js, err := EncodeSignals(signals)
	if err != nil {
		return PageData{}, err
	}
	pd.Signals = js
	return pd, nil
}

// EncodeSignals renders signals for a data-signals attribute.
func EncodeSignals(signals map[string]any) (template.JS, error) {
	init := maps.Clone(signals)
	if init == nil {
		init = map[string]any{}
	}
	data, err := json.Marshal(init)
	if err != nil {
		return "", fmt.Errorf("encode page signals: %w", err)
	}
	return template.JS(data), nil
}
