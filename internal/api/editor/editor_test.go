package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/config"
	edit "github.com/joeblew999/plat-critters/internal/editor"
	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/filter"
	"github.com/joeblew999/plat-critters/internal/service"
	"github.com/joeblew999/plat-critters/internal/store"
	"github.com/joeblew999/plat-critters/internal/templates"
	"github.com/joeblew999/plat-critters/web"
)

type testEditor struct {
	mux      *http.ServeMux
	sessions *Sessions
	features *service.FeatureService
}

func newTestEditor(t *testing.T) *testEditor {
	t.Helper()
	return newTestEditorWith(t, config.Default())
}

func newTestEditorWith(t *testing.T, cfg config.Config) *testEditor {
	t.Helper()
	features := service.NewFeatureService(store.NewMemoryStore(""), service.NewEventBus(), cfg, zerolog.Nop())
	renderer, err := templates.New(web.FS, templates.FragmentsGlob, templates.PagesGlob)
	if err != nil {
		t.Fatal(err)
	}
	sessions := NewSessions(features, time.Minute, zerolog.Nop())
	h, err := NewHandler(sessions, renderer)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	humaCfg := huma.DefaultConfig("Test", "1.0.0")
	humaCfg.CreateHooks = nil
	api := humago.New(mux, humaCfg)
	h.RegisterRoutes(api)
	page, err := NewPage(api, h, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mux.Handle("GET /editor", page)
	return &testEditor{mux: mux, sessions: sessions, features: features}
}

func (e *testEditor) post(t *testing.T, path string, signals map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(signals)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEditor) session(t *testing.T) string {
	t.Helper()
	rec := e.post(t, "/api/v1/editor/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out.ID
}

func (e *testEditor) all(t *testing.T) []feature.Feature {
	t.Helper()
	fs, err := e.features.Query(context.Background(), feature.Query{})
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func mustContain(t *testing.T, rec *httptest.ResponseRecorder, wants ...string) {
	t.Helper()
	body := rec.Body.String()
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("response missing %s:\n%s", want, body)
		}
	}
}

func TestEditorCreateUpdateDelete(t *testing.T) {
	e := newTestEditor(t)
	id := e.session(t)

	rec := e.post(t, "/api/v1/editor/template", map[string]any{"sessionid": id, "template": "Fox"})
	if rec.Code != http.StatusOK {
		t.Fatalf("template status = %d: %s", rec.Code, rec.Body.String())
	}
	mustContain(t, rec, "datastar-patch-signals", `"state":"placing"`, `"cursor":"crosshair"`, `"template":"Fox"`)

	rec = e.post(t, "/api/v1/editor/click", map[string]any{"sessionid": id, "lon": -71.6, "lat": 42.29})
	mustContain(t, rec,
		`"state":"selected"`,
		`"attributeeditor":true`,
		`"addfeature":false`,
		`"attr_critter_type":"fox"`,
		`"error":""`,
		"#feature-list",
		"view-changed",
	)
	created := e.all(t)
	if len(created) != 1 || created[0].Geometry != (orb.Point{-71.6, 42.29}) {
		t.Fatalf("features = %+v", created)
	}

	rec = e.post(t, "/api/v1/editor/submit", map[string]any{
		"sessionid":         id,
		"attr_critter_type": "deer",
		"attr_time":         "2019-11-28T10:30",
		"attr_comments":     "by the creek",
	})
	mustContain(t, rec, `"state":"selected"`, `"attr_comments":"by the creek"`, `"attr_time":"2019-11-28T10:30"`)
	updated := e.all(t)[0]
	if updated.Attributes.String(feature.FieldCategory) != "deer" || updated.Attributes.String(feature.FieldComments) != "by the creek" {
		t.Fatalf("updated = %+v", updated.Attributes)
	}
	if at, _ := updated.Attributes.Time(feature.FieldTime); !at.Equal(time.Date(2019, 11, 28, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("time = %v", at)
	}

	rec = e.post(t, "/api/v1/editor/delete", map[string]any{"sessionid": id})
	mustContain(t, rec, `"state":"idle"`, `"addfeature":true`, `"attributeeditor":false`, `"attr_comments":""`, "No sightings")
	if n := len(e.all(t)); n != 0 {
		t.Fatalf("features after delete = %d", n)
	}
}

func TestEditorSurfacesActionErrors(t *testing.T) {
	e := newTestEditor(t)
	id := e.session(t)

	rec := e.post(t, "/api/v1/editor/delete", map[string]any{"sessionid": id})
	mustContain(t, rec, `"state":"idle"`, edit.ErrNoSelection.Error())

	e.post(t, "/api/v1/editor/template", map[string]any{"sessionid": id, "template": "Deer"})
	rec = e.post(t, "/api/v1/editor/click", map[string]any{"sessionid": id})
	mustContain(t, rec, `"state":"placing"`, edit.ErrNoMapPoint.Error())

	rec = e.post(t, "/api/v1/editor/cancel", map[string]any{"sessionid": id})
	mustContain(t, rec, `"state":"idle"`, `"cursor":"auto"`)
}

func TestEditorRejectsBadRequests(t *testing.T) {
	e := newTestEditor(t)
	id := e.session(t)

	cases := []struct {
		name    string
		path    string
		signals map[string]any
		want    int
	}{
		{"no session", "/api/v1/editor/click", map[string]any{}, http.StatusBadRequest},
		{"unknown session", "/api/v1/editor/click", map[string]any{"sessionid": "nope"}, http.StatusNotFound},
		{"unknown template", "/api/v1/editor/template", map[string]any{"sessionid": id, "template": "Dragon"}, http.StatusBadRequest},
		{"bad date", "/api/v1/editor/submit", map[string]any{"sessionid": id, "attr_time": "yesterday"}, http.StatusBadRequest},
		{"unknown category", "/api/v1/editor/filter/category", map[string]any{"sessionid": id, "category": "dragon"}, http.StatusBadRequest},
		{"time without value", "/api/v1/editor/filter/time", map[string]any{"sessionid": id}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := e.post(t, tc.path, tc.signals); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestEditorFilters(t *testing.T) {
	e := newTestEditor(t)
	id := e.session(t)
	s, _ := e.sessions.Get(id)
	before := s.Slider.Values()

	rec := e.post(t, "/api/v1/editor/filter/time", map[string]any{"sessionid": id, "step": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	after := s.Slider.Values()
	if got := after.End.Sub(before.End); got != time.Hour {
		t.Fatalf("step moved end by %v", got)
	}
	if got := s.View.DefinitionExpression(); !strings.HasPrefix(got, "time ") {
		t.Fatalf("expression = %q", got)
	}

	rec = e.post(t, "/api/v1/editor/filter/category", map[string]any{"sessionid": id, "category": "fox"})
	mustContain(t, rec, `"expression":"critter_type = 'fox'"`)

	rec = e.post(t, "/api/v1/editor/filter/category", map[string]any{"sessionid": id, "category": ""})
	mustContain(t, rec, `"expression":""`)
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEditorFilterPlayToggles(t *testing.T) {
	cfg := config.Default()
	cfg.Slider.PlayRate = 5 * time.Millisecond
	e := newTestEditorWith(t, cfg)
	id := e.session(t)
	s, _ := e.sessions.Get(id)
	start := s.Slider.Values().End

	rec := e.post(t, "/api/v1/editor/filter/play", map[string]any{"sessionid": id})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	mustContain(t, rec, `"playing":true`)
	if !s.Playing() {
		t.Fatal("animation not running after first toggle")
	}

	// Each step moves the end thumb and refilters the view to it.
	waitFor(t, "the slider to advance", func() bool { return s.Slider.Values().End.After(start) })
	waitFor(t, "the view to follow the slider", func() bool {
		return s.View.DefinitionExpression() == s.Slider.Filter(feature.FieldTime).Expression()
	})

	rec = e.post(t, "/api/v1/editor/filter/play", map[string]any{"sessionid": id})
	mustContain(t, rec, `"playing":false`)
	if s.Playing() {
		t.Fatal("animation still running after second toggle")
	}
	time.Sleep(10 * time.Millisecond)
	stopped := s.Slider.Values().End
	time.Sleep(30 * time.Millisecond)
	if got := s.Slider.Values().End; !got.Equal(stopped) {
		t.Fatalf("slider moved after stop: %v -> %v", stopped, got)
	}
}

func TestEditorFilterPlayRunsToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Slider.PlayRate = time.Millisecond
	cfg.Slider.End = cfg.Slider.Start.Add(cfg.Slider.Window + 3*cfg.Slider.Stop)
	e := newTestEditorWith(t, cfg)
	id := e.session(t)
	s, _ := e.sessions.Get(id)

	e.post(t, "/api/v1/editor/filter/play", map[string]any{"sessionid": id})
	waitFor(t, "the animation to finish", func() bool { return !s.Playing() })

	if got := s.Slider.Values().End; !got.Equal(cfg.Slider.End) {
		t.Fatalf("end thumb = %v, want %v", got, cfg.Slider.End)
	}
	want := filter.Until(feature.FieldTime, cfg.Slider.End).Expression()
	if got := s.View.DefinitionExpression(); got != want {
		t.Fatalf("expression = %q, want %q", got, want)
	}
}

func TestEditorPage(t *testing.T) {
	e := newTestEditor(t)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/editor", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	mustContain(t, rec,
		"/api/v1/editor/events",
		"/api/v1/editor/click",
		"data-bind:attr_comments",
		`data-template="Fox"`,
		"sessionid",
	)
	if e.sessions.Len() != 1 {
		t.Fatalf("sessions = %d", e.sessions.Len())
	}
}

func TestSessionsSweepAndRefresh(t *testing.T) {
	e := newTestEditor(t)
	id := e.session(t)
	s, _ := e.sessions.Get(id)

	_, err := e.features.ApplyEdits(context.Background(), feature.Edits{Adds: []feature.Feature{{
		Geometry:   orb.Point{1, 1},
		Attributes: feature.Attributes{feature.FieldCategory: "fox"},
	}}})
	if err != nil {
		t.Fatal(err)
	}
	e.sessions.Refresh(context.Background())
	if n := len(s.View.Rendered()); n != 1 {
		t.Fatalf("rendered after refresh = %d", n)
	}
	select {
	case <-s.Changes():
	default:
		t.Fatal("refresh did not signal the session")
	}

	if n := e.sessions.Sweep(); n != 0 {
		t.Fatalf("swept fresh session: %d", n)
	}
	e.sessions.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n := e.sessions.Sweep(); n != 1 {
		t.Fatalf("swept = %d", n)
	}
	if _, ok := e.sessions.Get(id); ok {
		t.Fatal("expired session still present")
	}
}

func TestFormValues(t *testing.T) {
	cfg := config.Default()
	values, err := formValues(cfg, map[string]any{
		"attr_critter_type": "coyote",
		"attr_time":         "",
		"other":             "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[feature.FieldCategory] != "coyote" {
		t.Fatalf("values = %+v", values)
	}

	values, err = formValues(cfg, map[string]any{"attr_time": json.Number("1574900000000")})
	if err != nil {
		t.Fatal(err)
	}
	if values[feature.FieldTime] != int64(1574900000000) {
		t.Fatalf("values = %+v", values)
	}
}
