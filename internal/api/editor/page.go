package editor

import (
	"html/template"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/humastar"
)

// PageTemplate is the editor page inside the web file system.
const PageTemplate = "editor.html"

// Page serves the editor page. Each load starts a fresh session whose ID is
// seeded into the page signals.
type Page struct {
	handler *Handler
	routes  humastar.PageData
	logger  zerolog.Logger
}

// NewPage discovers the editor routes from api. Call it after
// RegisterRoutes.
func NewPage(api huma.API, h *Handler, logger zerolog.Logger) (*Page, error) {
	pd, err := humastar.BuildPageData(api, "editor", nil)
	if err != nil {
		return nil, err
	}
	return &Page{handler: h, routes: pd, logger: logger}, nil
}

// InitialSignals is the signal set of a fresh session.
func (h *Handler) InitialSignals(s *Session) map[string]any {
	signals := h.stateSignals(s, s.Editor.Snapshot(), nil)
	maps.Copy(signals, h.formSignals(nil))
	signals["sessionid"] = s.ID
	signals["lon"] = nil
	signals["lat"] = nil
	signals["category"] = ""
	signals["until"] = s.Slider.Values().End.UnixMilli()
	signals["step"] = false
	return signals
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := p.handler
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		p.logger.Error().Err(err).Msg("start editor session")
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	pd := p.routes
	if pd.Signals, err = humastar.EncodeSignals(h.InitialSignals(s)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	form, err := h.Renderer.Render("attribute-form", nil)
	if err != nil {
		p.logger.Error().Err(err).Msg("render attribute form")
	}
	full := s.Slider.Full()
	pd.Extra = map[string]any{
		"Layer":           h.cfg.Layer,
		"Center":          h.cfg.View.Center,
		"Zoom":            h.cfg.View.Zoom,
		"TemplatesHTML":   template.HTML(h.renderTemplates(string(pd.Post("editor-template")))),
		"FormHTML":        template.HTML(form),
		"CategoryOptions": template.HTML(h.renderCategoryOptions()),
		"SliderStart":     full.Start.UnixMilli(),
		"SliderEnd":       full.End.UnixMilli(),
		"SliderStep":      h.cfg.SliderSettings().Stop.Milliseconds(),
	}

	html, err := h.Renderer.Render(PageTemplate, pd)
	if err != nil {
		p.logger.Error().Err(err).Msg("render editor page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
