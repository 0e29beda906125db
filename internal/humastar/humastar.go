// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// It provides:
//   - SSE: Huma streaming to the Datastar SSE protocol via [SSE] and [NewSSE]
//   - Signals: Datastar signal parsing via [Signals] and [SignalsInput]
//   - Rendering: fragment list/select helpers and runtime form templates
//   - Links: RFC 8288 hypermedia links, pagination and actions
//
// Usage:
//
//	type ClickHandler struct {
//	    humastar.Handler
//	    sessions *Sessions
//	}
//
//	func (h *ClickHandler) Click(ctx context.Context, in *humastar.SignalsInput) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Signals(map[string]any{"state": "selected"})
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-critters/internal/templates"
)

// Handler is an embeddable base for Huma handlers that produce Datastar SSE
// responses.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// RenderList renders items with a named template, or an empty state if none.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	return RenderList(h.Renderer, tmpl, items, emptyTitle, emptyMsg)
}

// RenderSelect renders select options from a placeholder and option list.
func (h *Handler) RenderSelect(placeholder string, options []SelectOptionData) string {
	return RenderSelect(h.Renderer, placeholder, options)
}

// SSE wraps a Datastar SSE generator.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch sends HTML to replace inner content at a CSS selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
	)
}

// Replace replaces outer HTML at a CSS selector.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
	)
}

// Error sends an error signal to the UI.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Success sends a success signal to the UI.
func (s SSE) Success(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"success": msg})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Signals is the flat JSON object of Datastar signals sent in a request.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	signals := Signals{}
	if len(bytes.TrimSpace(body)) == 0 {
		return signals, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a string signal value, or "" if not found.
func (s Signals) String(key string) string {
	switch v := s[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// Int64 returns an integer signal value. Numeric strings are accepted.
func (s Signals) Int64(key string) (int64, bool) {
	switch v := s[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Float returns a float64 signal value. Numeric strings are accepted.
func (s Signals) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool returns a bool signal value, or false if not found.
func (s Signals) Bool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

// Has returns true if the signal key exists (even if zero-valued).
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// SignalsInput is an input struct for handlers that receive Datastar signals.
type SignalsInput struct {
	RawBody []byte
}

// MustParse parses signals or returns a Huma 400 error.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// SelectOptionData holds data for rendering a <select> option template.
type SelectOptionData struct {
	Value    string
	Label    string
	Selected bool
}

// RenderList renders items with a named template, or an empty state if none.
func RenderList(r *templates.Renderer, tmpl string, items []any, emptyTitle, emptyMsg string) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		r.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": emptyTitle, "Message": emptyMsg,
		})
		return buf.String()
	}
	for _, item := range items {
		r.RenderToBuffer(&buf, tmpl, item)
	}
	return buf.String()
}

// RenderSelect renders <option> elements from a placeholder and option list.
func RenderSelect(r *templates.Renderer, placeholder string, options []SelectOptionData) string {
	var buf bytes.Buffer
	r.RenderToBuffer(&buf, "select-option", SelectOptionData{Label: placeholder})
	for _, opt := range options {
		r.RenderToBuffer(&buf, "select-option", opt)
	}
	return buf.String()
}
