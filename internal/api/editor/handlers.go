package editor

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-critters/internal/config"
	edit "github.com/joeblew999/plat-critters/internal/editor"
	"github.com/joeblew999/plat-critters/internal/filter"
	"github.com/joeblew999/plat-critters/internal/humastar"
	"github.com/joeblew999/plat-critters/internal/templates"
)

// Handler serves the editor's Datastar actions. Every action answers with
// the session state so the panels, cursor and error always match the
// coordinator.
type Handler struct {
	humastar.Handler
	sessions *Sessions
	cfg      config.Config
}

// NewHandler builds the handler and registers the attribute form template.
func NewHandler(sessions *Sessions, renderer *templates.Renderer) (*Handler, error) {
	h := &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		cfg:      sessions.cfg,
	}
	fields := make([]humastar.FormField, 0, len(h.cfg.Form))
	for _, f := range h.cfg.Form {
		ff := humastar.FormField{Name: f.Name, Label: f.Label, Input: f.Input}
		if f.Input == "category" {
			ff.Options = h.cfg.Categories()
		}
		fields = append(fields, ff)
	}
	if err := humastar.RegisterForm(renderer, "attribute-form", FormPrefix, fields); err != nil {
		return nil, err
	}
	return h, nil
}

func editorOp(id, method, path, summary string) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Tags:        []string{"editor"},
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Register(api, editorOp("editor-session", http.MethodPost, "/api/v1/editor/sessions", "Start an edit session"), h.CreateSession)
	huma.Register(api, editorOp("editor-events", http.MethodGet, "/api/v1/editor/events", "Stream session state"), h.Events)
	huma.Register(api, editorOp("editor-click", http.MethodPost, "/api/v1/editor/click", "Map click"), h.Click)
	huma.Register(api, editorOp("editor-template", http.MethodPost, "/api/v1/editor/template", "Select a feature template"), h.Template)
	huma.Register(api, editorOp("editor-submit", http.MethodPost, "/api/v1/editor/submit", "Save the attribute form"), h.Submit)
	huma.Register(api, editorOp("editor-delete", http.MethodPost, "/api/v1/editor/delete", "Delete the selected feature"), h.Delete)
	huma.Register(api, editorOp("editor-cancel", http.MethodPost, "/api/v1/editor/cancel", "Drop the selection or placement"), h.Cancel)
	huma.Register(api, editorOp("editor-filter-time", http.MethodPost, "/api/v1/editor/filter/time", "Move the time slider"), h.FilterTime)
	huma.Register(api, editorOp("editor-filter-category", http.MethodPost, "/api/v1/editor/filter/category", "Filter by category"), h.FilterCategory)
	huma.Register(api, editorOp("editor-filter-play", http.MethodPost, "/api/v1/editor/filter/play", "Start or stop the slider animation"), h.FilterPlay)
}

type SessionOutput struct {
	Body struct {
		ID string `json:"id" doc:"Session ID, sent back as the sessionid signal"`
	}
}

func (h *Handler) CreateSession(ctx context.Context, input *humastar.EmptyInput) (*SessionOutput, error) {
	s, err := h.sessions.Create(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to start session", err)
	}
	out := &SessionOutput{}
	out.Body.ID = s.ID
	return out, nil
}

// session resolves the sessionid signal.
func (h *Handler) session(input *humastar.SignalsInput) (*Session, humastar.Signals, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, nil, err
	}
	id := signals.String("sessionid")
	if id == "" {
		return nil, nil, huma.Error400BadRequest("sessionid is required")
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		return nil, nil, huma.Error404NotFound("session not found")
	}
	return s, signals, nil
}

func (h *Handler) respond(s *Session, actionErr error, withForm bool) *huma.StreamResponse {
	return h.Stream(func(sse humastar.SSE) {
		h.push(sse, s, actionErr, withForm)
	})
}

// Click forwards a map click. Without both lon and lat the click carries
// no map point.
func (h *Handler) Click(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	var ev edit.ClickEvent
	lon, okLon := signals.Float("lon")
	lat, okLat := signals.Float("lat")
	if okLon && okLat {
		ev.MapPoint = &orb.Point{lon, lat}
	}
	err = s.Editor.MapClick(ctx, ev)
	return h.respond(s, err, true), nil
}

func (h *Handler) Template(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	t, ok := h.cfg.Template(signals.String("template"))
	if !ok {
		return nil, huma.Error400BadRequest("unknown template " + signals.String("template"))
	}
	s.Editor.TemplateSelected(t)
	return h.respond(s, nil, true), nil
}

func (h *Handler) Submit(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	values, err := formValues(h.cfg, signals)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	err = s.Editor.SubmitForm(ctx, values)
	return h.respond(s, err, true), nil
}

func (h *Handler) Delete(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, _, err := h.session(input)
	if err != nil {
		return nil, err
	}
	err = s.Editor.RequestDelete(ctx)
	return h.respond(s, err, true), nil
}

func (h *Handler) Cancel(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, _, err := h.session(input)
	if err != nil {
		return nil, err
	}
	s.Editor.Deselect()
	return h.respond(s, nil, true), nil
}

// FilterTime either steps the slider one stop (signal step) or drags its
// end thumb to until (epoch ms), then filters the view to the end thumb.
func (h *Handler) FilterTime(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	switch until, ok := signals.Int64("until"); {
	case signals.Bool("step"):
		s.Slider.Step()
	case ok:
		s.Slider.SetEnd(time.UnixMilli(until))
	default:
		return nil, huma.Error400BadRequest("until or step is required")
	}
	err = h.applySlider(ctx, s)
	return h.respond(s, err, false), nil
}

func (h *Handler) applySlider(ctx context.Context, s *Session) error {
	effect := s.Slider.Effect()
	s.View.SetEffect(&effect)
	return s.View.SetFilter(ctx, s.Slider.Filter(h.cfg.Layer.TimeField))
}

// FilterCategory replaces the view filter with a category match; an empty
// category removes it.
func (h *Handler) FilterCategory(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	f := filter.None()
	if c := signals.String("category"); c != "" {
		if !slices.Contains(h.cfg.Categories(), c) {
			return nil, huma.Error400BadRequest("unknown category " + c)
		}
		f = filter.Category(h.cfg.Layer.CategoryField, c)
	}
	err = s.View.SetFilter(ctx, f)
	return h.respond(s, err, false), nil
}

// FilterPlay toggles the slider animation. Each step refilters the view
// and re-renders through the events stream.
func (h *Handler) FilterPlay(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	s, _, err := h.session(input)
	if err != nil {
		return nil, err
	}
	if !s.StopPlay() {
		s.StartPlay(context.WithoutCancel(ctx), func(ctx context.Context) {
			s.Slider.Play(ctx, func(filter.Extent) {
				if err := h.applySlider(ctx, s); err != nil {
					h.sessions.logger.Warn().Err(err).Str("session", s.ID).Msg("slider step failed")
				}
				s.notify()
			})
		})
	}
	return h.respond(s, nil, false), nil
}
