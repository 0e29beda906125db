package humastar

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/go-cmp/cmp"

	"github.com/joeblew999/plat-critters/internal/templates"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"sessionid":"abc","lon":-71.6,"until":1575158400000,"haspoint":true,"n":"12"}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.String("sessionid") != "abc" || !s.Bool("haspoint") {
		t.Fatalf("signals = %v", s)
	}
	if lon, ok := s.Float("lon"); !ok || lon != -71.6 {
		t.Fatalf("lon = %v, %v", lon, ok)
	}
	if until, ok := s.Int64("until"); !ok || until != 1575158400000 {
		t.Fatalf("until = %v, %v", until, ok)
	}
	if n, ok := s.Int64("n"); !ok || n != 12 {
		t.Fatalf("n = %v, %v", n, ok)
	}
	if _, ok := s.Float("missing"); ok {
		t.Fatal("missing signal reported present")
	}

	empty, err := ParseSignals(nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty body = %v, %v", empty, err)
	}
	if _, err := (&SignalsInput{RawBody: []byte("{")}).MustParse(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPaginationLinks(t *testing.T) {
	p := NewPage([]int{1, 2, 3, 4, 5}, 2, 2)
	if diff := cmp.Diff([]int{3, 4}, p.Data); diff != "" {
		t.Fatalf("data (-want +got):\n%s", diff)
	}
	want := []string{
		`</f?offset=0&limit=2>; rel="first"`,
		`</f?offset=0&limit=2>; rel="prev"`,
		`</f?offset=4&limit=2>; rel="next"`,
		`</f?offset=4&limit=2>; rel="last"`,
	}
	if diff := cmp.Diff(want, p.PaginationLinks("/f")); diff != "" {
		t.Fatalf("links (-want +got):\n%s", diff)
	}
	if links := NewPage([]int{1}, 0, 0).PaginationLinks("/f"); links != nil {
		t.Fatalf("unlimited page links = %v", links)
	}
	if got := NewPage([]int{1}, 5, 2); len(got.Data) != 0 || got.Total != 1 {
		t.Fatalf("past end = %+v", got)
	}
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor(int64(42), []ActionDef{
		{Rel: "self", Pattern: "/api/v1/features/%d", Method: "GET"},
		{Rel: "delete", Pattern: "/api/v1/features/applyEdits", Method: "POST", Title: "Delete sighting"},
	})
	if actions[0].Href != "/api/v1/features/42" || actions[1].Href != "/api/v1/features/applyEdits" {
		t.Fatalf("actions = %+v", actions)
	}
	want := `</api/v1/features/applyEdits>; rel="delete"; method="POST"; title="Delete sighting"`
	if got := actions[1].LinkHeader(); got != want {
		t.Fatalf("header = %s", got)
	}
}

func TestRegisterForm(t *testing.T) {
	fsys := fstest.MapFS{"t/base.html": {Data: []byte(`{{define "base"}}ok{{end}}`)}}
	r, err := templates.New(fsys, "t/*.html")
	if err != nil {
		t.Fatal(err)
	}
	err = RegisterForm(r, "attribute-form", "attr_", []FormField{
		{Name: "critter_type", Label: "Choose an animal", Input: "category", Options: []string{"fox", "deer"}},
		{Name: "time", Input: "datetime"},
		{Name: "comments", Label: "Comments", Input: "textarea"},
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render("attribute-form", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`<select data-bind:attr_critter_type>`,
		`<option value="fox">fox</option>`,
		`<input type="datetime-local" data-bind:attr_time>`,
		`<textarea rows="3" data-bind:attr_comments></textarea>`,
		`<label>time</label>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("form missing %q:\n%s", want, out)
		}
	}
}

type thing struct {
	ID int `json:"id"`
}

type thingBody struct {
	ID int `json:"id"`
}

func (thingBody) Actions() []Action {
	return []Action{{Rel: "delete", Href: "/things/1", Method: "DELETE"}}
}

func TestLinksTransformer(t *testing.T) {
	links := NewLinks("/health")
	cfg := huma.DefaultConfig("Test API", "1.0.0")
	cfg.CreateHooks = nil
	cfg.Transformers = append([]huma.Transformer{links.Transformer()}, cfg.Transformers...)
	_, api := humatest.New(t, cfg)

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{ Body thing }, error) {
		return &struct{ Body thing }{}, nil
	})
	huma.Get(api, "/things", func(ctx context.Context, _ *struct{}) (*struct{ Body PageBody[thing] }, error) {
		return &struct{ Body PageBody[thing] }{Body: NewPage([]thing{{1}, {2}, {3}}, 0, 2)}, nil
	})
	huma.Get(api, "/things/{id}", func(ctx context.Context, _ *struct {
		ID int `path:"id"`
	}) (*struct{ Body thingBody }, error) {
		return &struct{ Body thingBody }{}, nil
	})
	links.Build(api)

	resp := api.Get("/things/1")
	got := strings.Join(resp.Header().Values("Link"), "\n")
	for _, want := range []string{
		`</things>; rel="collection"`,
		`</things/1>; rel="self"`,
		`</things/1>; rel="delete"; method="DELETE"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("item links missing %q:\n%s", want, got)
		}
	}

	resp = api.Get("/things")
	got = strings.Join(resp.Header().Values("Link"), "\n")
	if !strings.Contains(got, `</things?offset=2&limit=2>; rel="next"`) {
		t.Errorf("collection links missing next:\n%s", got)
	}
	if !strings.Contains(strings.Join(links.Root(), "\n"), `</things>; rel="things"`) {
		t.Errorf("root links = %v", links.Root())
	}
}
