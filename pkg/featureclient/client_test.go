package featureclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/api"
	"github.com/joeblew999/plat-critters/internal/config"
	"github.com/joeblew999/plat-critters/internal/editor"
	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/filter"
	"github.com/joeblew999/plat-critters/internal/service"
	"github.com/joeblew999/plat-critters/internal/store"
	"github.com/joeblew999/plat-critters/internal/view"
	"github.com/joeblew999/plat-critters/pkg/featureclient"
)

func newServer(t *testing.T) *featureclient.Client {
	t.Helper()
	svc := service.NewFeatureService(store.NewMemoryStore(""), service.NewEventBus(), config.Default(), zerolog.Nop())
	mux := http.NewServeMux()
	cfg := huma.DefaultConfig("Test", "1.0.0")
	cfg.CreateHooks = nil
	api.RegisterRoutes(humago.New(mux, cfg), &api.Services{Features: svc}, api.NewInfoHandler("", "memory", "reportsLayer"))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return featureclient.New(ts.URL)
}

func TestHealth(t *testing.T) {
	status, err := newServer(t).Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != "ok" {
		t.Fatalf("status=%q, want ok", status)
	}
}

func TestApplyEditsAndQuery(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	res, err := c.ApplyEdits(ctx, feature.Edits{Adds: []feature.Feature{
		{Geometry: orb.Point{1, 1}, Attributes: feature.Attributes{feature.FieldCategory: "fox", feature.FieldTime: 1574900000000}},
		{Geometry: orb.Point{2, 2}, Attributes: feature.Attributes{feature.FieldCategory: "deer", feature.FieldTime: 1575900000000}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.AddResults) != 2 || !res.AddResults[1].Success {
		t.Fatalf("result = %+v", res)
	}

	foxes, err := c.Query(ctx, feature.Query{Where: filter.Category(feature.FieldCategory, "fox")})
	if err != nil {
		t.Fatal(err)
	}
	if len(foxes) != 1 || foxes[0].Geometry != (orb.Point{1, 1}) {
		t.Fatalf("foxes = %+v", foxes)
	}

	early, err := c.Query(ctx, feature.Query{Where: filter.Until(feature.FieldTime, time.UnixMilli(1575000000000))})
	if err != nil {
		t.Fatal(err)
	}
	if len(early) != 1 || early[0].Attributes.String(feature.FieldCategory) != "fox" {
		t.Fatalf("early = %+v", early)
	}

	byID, err := c.Query(ctx, feature.Query{ObjectIDs: []int64{res.AddResults[1].ObjectID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 1 || byID[0].ID != res.AddResults[1].ObjectID {
		t.Fatalf("byID = %+v", byID)
	}
}

func TestRejectedBatchIsApplyError(t *testing.T) {
	c := newServer(t)
	_, err := c.ApplyEdits(context.Background(), feature.Edits{Adds: []feature.Feature{
		{Geometry: orb.Point{1, 1}, Attributes: feature.Attributes{feature.FieldCategory: "dragon"}},
	}})
	var ae *feature.ApplyError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v", err)
	}
	if ae.Code != feature.CodeInvalidAttribute || ae.Name != "invalid-attribute" {
		t.Fatalf("apply error = %+v", ae)
	}
}

func TestUnreachableIsTransportError(t *testing.T) {
	c := featureclient.New("http://127.0.0.1:1")
	_, err := c.Query(context.Background(), feature.Query{})
	var ae *feature.ApplyError
	if !errors.As(err, &ae) || ae.Code != feature.CodeTransport {
		t.Fatalf("err = %v", err)
	}
}

func TestCoordinatorOverClient(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()
	v := view.New("reportsLayer", c, 0.01)
	coord := editor.New(c, v)

	fox, _ := config.Default().Template("Fox")
	coord.TemplateSelected(fox)
	p := orb.Point{-71.6, 42.29}
	if err := coord.MapClick(ctx, editor.ClickEvent{MapPoint: &p}); err != nil {
		t.Fatal(err)
	}
	snap := coord.Snapshot()
	if snap.Mode != editor.ModeSelected || snap.Selected.Attributes.String(feature.FieldCategory) != "fox" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
