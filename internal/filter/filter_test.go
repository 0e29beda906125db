package filter

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joeblew999/plat-critters/internal/feature"
)

func TestExpression(t *testing.T) {
	until := time.UnixMilli(1577836800000)
	cases := []struct {
		name string
		f    Filter
		want string
	}{
		{"none", None(), ""},
		{"time", Until(feature.FieldTime, until), "time <= 1577836800000"},
		{"category", Category(feature.FieldCategory, "fox"), "critter_type = 'fox'"},
		{"quoted", Category(feature.FieldCategory, "o'possum"), "critter_type = 'o''possum'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Expression(); got != tc.want {
				t.Fatalf("Expression() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	bound := time.Date(2019, 12, 3, 0, 0, 0, 0, time.UTC)
	before := feature.Feature{Attributes: feature.Attributes{feature.FieldTime: bound.Add(-time.Hour).UnixMilli(), feature.FieldCategory: "fox"}}
	after := feature.Feature{Attributes: feature.Attributes{feature.FieldTime: bound.Add(time.Hour).UnixMilli(), feature.FieldCategory: "deer"}}
	undated := feature.Feature{Attributes: feature.Attributes{feature.FieldCategory: "fox"}}

	tf := Until(feature.FieldTime, bound)
	if !tf.Match(before) || tf.Match(after) || tf.Match(undated) {
		t.Fatal("time filter mismatch")
	}
	cf := Category(feature.FieldCategory, "fox")
	if !cf.Match(before) || cf.Match(after) || !cf.Match(undated) {
		t.Fatal("category filter mismatch")
	}
	if !None().Match(after) {
		t.Fatal("empty filter must match everything")
	}
}

func TestSQL(t *testing.T) {
	clause, args := Category(feature.FieldCategory, "fox").SQL()
	if clause != "json_extract_string(attributes, ?) = ?" {
		t.Fatalf("clause = %q", clause)
	}
	if diff := cmp.Diff([]any{"$.critter_type", "fox"}, args); diff != "" {
		t.Fatalf("args mismatch:\n%s", diff)
	}
	if clause, args := None().SQL(); clause != "" || args != nil {
		t.Fatalf("none SQL = %q %v", clause, args)
	}
}

func TestValidate(t *testing.T) {
	if err := Category("critter_type", "fox").Validate(); err != nil {
		t.Fatal(err)
	}
	if err := Category("x; drop table", "fox").Validate(); err == nil {
		t.Fatal("expected invalid field error")
	}
}

func newTestSlider(t *testing.T) *TimeSlider {
	t.Helper()
	start := time.Date(2019, 11, 25, 0, 0, 0, 0, time.UTC)
	s, err := NewSlider(SliderConfig{
		Full:     Extent{Start: start, End: start.Add(10 * 24 * time.Hour)},
		Stop:     24 * time.Hour,
		PlayRate: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSliderDefaultsToSevenDayWindow(t *testing.T) {
	s := newTestSlider(t)
	v := s.Values()
	if got := v.End.Sub(v.Start); got != 7*24*time.Hour {
		t.Fatalf("window = %v", got)
	}
}

func TestSliderStepClampsToFullExtent(t *testing.T) {
	s := newTestSlider(t)
	steps := 0
	for {
		_, moved := s.Step()
		if !moved {
			break
		}
		steps++
	}
	if steps != 3 {
		t.Fatalf("steps = %d, want 3", steps)
	}
	if !s.Values().End.Equal(s.Full().End) {
		t.Fatalf("end = %v, want %v", s.Values().End, s.Full().End)
	}
}

func TestSliderFilterAndEffect(t *testing.T) {
	s := newTestSlider(t)
	end := s.Full().Start.Add(48 * time.Hour)
	s.SetEnd(end)
	f := s.Filter(feature.FieldTime)
	if f.Kind != KindTime || !f.Until.Equal(end) {
		t.Fatalf("filter = %+v", f)
	}
	if e := s.Effect(); e.Excluded != ExcludedEffect || !e.Included.End.Equal(end) {
		t.Fatalf("effect = %+v", e)
	}
	if _, err := s.SetValues(Extent{Start: end, End: end.Add(-time.Hour)}); err == nil {
		t.Fatal("expected bad extent")
	}
}

func TestSliderPlayRunsToEnd(t *testing.T) {
	s := newTestSlider(t)
	var ticks int
	if err := s.Play(context.Background(), func(Extent) { ticks++ }); err != nil {
		t.Fatal(err)
	}
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
}

func TestSliderPlayStopsOnCancel(t *testing.T) {
	s := newTestSlider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Play(ctx, nil); err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
}
