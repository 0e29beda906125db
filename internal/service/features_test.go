package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/config"
	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/store"
)

func newTestService(t *testing.T) (*FeatureService, *EventBus) {
	t.Helper()
	bus := NewEventBus()
	svc := NewFeatureService(store.NewMemoryStore(""), bus, config.Default(), zerolog.Nop())
	svc.now = func() time.Time { return time.UnixMilli(1575000000000) }
	t.Cleanup(func() { svc.Close() })
	return svc, bus
}

func TestApplyEditsStampsTimeAndPublishes(t *testing.T) {
	svc, bus := newTestService(t)
	events := bus.Subscribe()
	defer bus.Unsubscribe(events)

	res, err := svc.ApplyEdits(context.Background(), feature.Edits{Adds: []feature.Feature{{
		Geometry:   orb.Point{10, 20},
		Attributes: feature.Attributes{feature.FieldCategory: "fox"},
	}}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.AddResults[0].ObjectID

	got, ok, err := svc.Get(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("Get(%d) = %v, %v", id, ok, err)
	}
	if ts, ok := got.Attributes.Time(feature.FieldTime); !ok || ts.UnixMilli() != 1575000000000 {
		t.Fatalf("time not stamped: %+v", got.Attributes)
	}

	select {
	case e := <-events:
		want := Event{Resource: ResourceFeatures, Action: ActionCreated, ID: id}
		if e != want {
			t.Fatalf("event = %+v, want %+v", e, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestApplyEditsRejectsUnknownCategory(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ApplyEdits(context.Background(), feature.Edits{Adds: []feature.Feature{{
		Geometry:   orb.Point{1, 1},
		Attributes: feature.Attributes{feature.FieldCategory: "unicorn"},
	}}})
	var ae *feature.ApplyError
	if !errors.As(err, &ae) || ae.Code != feature.CodeInvalidAttribute {
		t.Fatalf("err = %v, want invalid attribute", err)
	}
	all, _ := svc.Query(context.Background(), feature.Query{})
	if len(all) != 0 {
		t.Fatal("rejected batch must not reach the store")
	}
}

func TestApplyEditsRejectsBadTime(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ApplyEdits(context.Background(), feature.Edits{Updates: []feature.Feature{{
		ID:         1,
		Attributes: feature.Attributes{feature.FieldTime: "yesterday"},
	}}})
	var ae *feature.ApplyError
	if !errors.As(err, &ae) || ae.Code != feature.CodeInvalidAttribute {
		t.Fatalf("err = %v, want invalid attribute", err)
	}
}

func TestGetMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, ok, err := svc.Get(context.Background(), 7)
	if err != nil || ok {
		t.Fatalf("Get(7) = %v, %v", ok, err)
	}
}

func TestImportIgnoresIDs(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Import(context.Background(), []feature.Feature{
		{ID: 500, Geometry: orb.Point{1, 1}, Attributes: feature.Attributes{feature.FieldCategory: "deer"}},
		{ID: 500, Geometry: orb.Point{2, 2}, Attributes: feature.Attributes{feature.FieldCategory: "fox"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.AddResults) != 2 || res.AddResults[0].ObjectID == res.AddResults[1].ObjectID {
		t.Fatalf("import results = %+v", res.AddResults)
	}
}

func TestEventBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	for i := 0; i < 40; i++ {
		bus.Publish(Event{Resource: ResourceFeatures, Action: ActionUpdated, ID: int64(i)})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want %d", len(ch), cap(ch))
	}
	if got := bus.Dropped(); got != int64(40-cap(ch)) {
		t.Fatalf("dropped = %d, want %d", got, 40-cap(ch))
	}
	bus.Unsubscribe(ch)
	bus.Publish(Event{})
}

func TestEventBusFiltersByResource(t *testing.T) {
	bus := NewEventBus()
	features := bus.Subscribe(ResourceFeatures)
	all := bus.Subscribe()
	defer bus.Unsubscribe(features)
	defer bus.Unsubscribe(all)

	bus.Publish(Event{Resource: "templates", Action: ActionUpdated})
	bus.Publish(Event{Resource: ResourceFeatures, Action: ActionDeleted, ID: 3})

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
	if len(features) != 1 {
		t.Fatalf("features subscriber got %d events, want 1", len(features))
	}
	if e := <-features; e.Action != ActionDeleted || e.ID != 3 {
		t.Fatalf("event = %+v", e)
	}
}
