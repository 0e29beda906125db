package editor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-critters/internal/config"
	edit "github.com/joeblew999/plat-critters/internal/editor"
	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/humastar"
)

// FormPrefix prefixes the attribute form signals, e.g. attr_comments.
const FormPrefix = "attr_"

// datetimeLayout is what <input type="datetime-local"> binds.
const datetimeLayout = "2006-01-02T15:04"

// FeatureRow is the data of the feature-row fragment.
type FeatureRow struct {
	ID       int64
	Category string
	Time     int64
	Comments string
	Excluded bool
	Selected bool
}

// TemplateItem is the data of the template-item fragment.
type TemplateItem struct {
	Name     string
	Category string
	Action   string
}

// push sends the whole session state: signals, the feature list and the
// map data. Form signals are only sent when withForm is set so a live
// update never overwrites what the user is typing.
func (h *Handler) push(sse humastar.SSE, s *Session, actionErr error, withForm bool) {
	snap := s.Editor.Snapshot()
	signals := h.stateSignals(s, snap, actionErr)
	if withForm {
		maps.Copy(signals, h.formSignals(snap.Selected))
	}
	sse.Signals(signals)
	sse.Patch(h.renderRows(s, snap.SelectedID()), "#feature-list")
	sse.DispatchCustomEvent("view-changed", map[string]any{
		"collection": h.collection(s),
		"selected":   snap.SelectedID(),
	})
}

func (h *Handler) stateSignals(s *Session, snap edit.Snapshot, actionErr error) map[string]any {
	vis := snap.Panel.Visibility()
	window := s.Slider.Values()

	msg := snap.ErrorMessage()
	if msg == "" && actionErr != nil && !errors.Is(actionErr, edit.ErrSuperseded) {
		msg = actionErr.Error()
	}
	tmpl := ""
	if snap.Template != nil {
		tmpl = snap.Template.Name
	}

	return map[string]any{
		"state":              snap.State(),
		"panel":              snap.Panel.String(),
		"addfeature":         vis.AddFeature,
		"attributeeditor":    vis.AttributeEditor,
		"updateinstructions": vis.UpdateInstructions,
		"cursor":             string(snap.Cursor),
		"selectedid":         snap.SelectedID(),
		"template":           tmpl,
		"error":              msg,
		"expression":         s.View.DefinitionExpression(),
		"sliderstart":        window.Start.UnixMilli(),
		"sliderend":          window.End.UnixMilli(),
		"playing":            s.Playing(),
	}
}

// formSignals fills the form from the selected feature, or clears it.
func (h *Handler) formSignals(sel *feature.Feature) map[string]any {
	out := make(map[string]any, len(h.cfg.Form))
	for _, f := range h.cfg.Form {
		key := FormPrefix + f.Name
		switch {
		case sel == nil:
			out[key] = ""
		case f.Input == "datetime":
			out[key] = ""
			if t, ok := sel.Attributes.Time(f.Name); ok {
				out[key] = t.UTC().Format(datetimeLayout)
			}
		default:
			out[key] = sel.Attributes.String(f.Name)
		}
	}
	return out
}

// formValues reads the submitted attribute form. Fields without a signal
// are left untouched on the feature.
func formValues(cfg config.Config, signals humastar.Signals) (map[string]any, error) {
	values := map[string]any{}
	for _, f := range cfg.Form {
		key := FormPrefix + f.Name
		if !signals.Has(key) {
			continue
		}
		raw := strings.TrimSpace(signals.String(key))
		if f.Input != "datetime" {
			values[f.Name] = raw
			continue
		}
		if raw == "" {
			continue
		}
		t, err := parseDateTime(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		values[f.Name] = t.UnixMilli()
	}
	return values, nil
}

func parseDateTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	for _, layout := range []string{datetimeLayout, "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

func (h *Handler) renderRows(s *Session, selected int64) string {
	rendered := s.View.Rendered()
	items := make([]any, 0, len(rendered))
	for _, r := range rendered {
		row := FeatureRow{
			ID:       r.Feature.ID,
			Category: r.Feature.Attributes.String(h.cfg.Layer.CategoryField),
			Comments: r.Feature.Attributes.String(feature.FieldComments),
			Excluded: r.Excluded,
			Selected: r.Feature.ID == selected,
		}
		if t, ok := r.Feature.Attributes.Time(h.cfg.Layer.TimeField); ok {
			row.Time = t.UnixMilli()
		}
		items = append(items, row)
	}
	return h.RenderList("feature-row", items, "No sightings", "Nothing matches the current filter")
}

// collection is the view's GeoJSON with excluded and highlighted flags.
func (h *Handler) collection(s *Session) *geojson.FeatureCollection {
	highlighted := s.View.Highlighted()
	fc := geojson.NewFeatureCollection()
	for _, r := range s.View.Rendered() {
		gf := feature.ToGeoJSON(r.Feature)
		gf.Properties["excluded"] = r.Excluded
		_, hl := slices.BinarySearch(highlighted, r.Feature.ID)
		gf.Properties["highlighted"] = hl
		fc.Append(gf)
	}
	return fc
}

func (h *Handler) renderTemplates(action string) string {
	items := make([]any, 0, len(h.cfg.Templates))
	for _, t := range h.cfg.Templates {
		items = append(items, TemplateItem{
			Name:     t.Name,
			Category: t.Attributes.String(h.cfg.Layer.CategoryField),
			Action:   action,
		})
	}
	return h.RenderList("template-item", items, "No templates", "Configure templates to add sightings")
}

func (h *Handler) renderCategoryOptions() string {
	opts := make([]humastar.SelectOptionData, 0, len(h.cfg.Categories()))
	for _, c := range h.cfg.Categories() {
		opts = append(opts, humastar.SelectOptionData{Value: c, Label: c})
	}
	return h.RenderSelect("All animals", opts)
}
