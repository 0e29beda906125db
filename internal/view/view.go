// Package view models the map view's rendering of the managed layer: the
// set of rendered features, hit-testing against them, highlights, the one
// active filter and the time-slider effect.
package view

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/filter"
)

// Source is the feature query side of the store.
type Source interface {
	Query(ctx context.Context, q feature.Query) ([]feature.Feature, error)
}

// Hit is the topmost rendered feature under a point.
type Hit struct {
	LayerID  string
	ObjectID int64
	Distance float64
}

// Rendered is a feature as currently drawn.
type Rendered struct {
	Feature  feature.Feature
	Excluded bool
}

// LayerView is the per-session view of one layer.
type LayerView struct {
	mu         sync.RWMutex
	layerID    string
	source     Source
	tolerance  float64
	filter     filter.Filter
	effect     *filter.Effect
	timeField  string
	index      rtree.RTreeG[int64]
	features   map[int64]feature.Feature
	highlights map[int64]int
	// gen counts refreshes; only the latest started one may write.
	gen uint64
}

// New creates a view of layerID backed by source. Tolerance is the hit
// radius in map units.
func New(layerID string, source Source, tolerance float64) *LayerView {
	return &LayerView{
		layerID:    layerID,
		source:     source,
		tolerance:  tolerance,
		timeField:  feature.FieldTime,
		features:   make(map[int64]feature.Feature),
		highlights: make(map[int64]int),
	}
}

// LayerID returns the id of the layer this view renders.
func (v *LayerView) LayerID() string { return v.layerID }

// Refresh re-queries the source with the active filter and rebuilds the
// hit-test index. When refreshes overlap only the last one started is
// drawn, so the index always matches the active filter.
func (v *LayerView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	f := v.filter
	v.mu.Unlock()

	features, err := v.source.Query(ctx, feature.Query{Where: f})
	if err != nil {
		return fmt.Errorf("refresh layer %s: %w", v.layerID, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return nil
	}
	v.index = rtree.RTreeG[int64]{}
	v.features = make(map[int64]feature.Feature, len(features))
	for _, ft := range features {
		p := [2]float64{ft.Geometry[0], ft.Geometry[1]}
		v.index.Insert(p, p, ft.ID)
		v.features[ft.ID] = ft
	}
	return nil
}

// SetFilter replaces the active filter and refreshes.
func (v *LayerView) SetFilter(ctx context.Context, f filter.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// Filter returns the active filter.
func (v *LayerView) Filter() filter.Filter {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.filter
}

// DefinitionExpression returns the active filter's expression.
func (v *LayerView) DefinitionExpression() string {
	return v.Filter().Expression()
}

// SetEffect sets the time-window effect; nil clears it.
func (v *LayerView) SetEffect(e *filter.Effect) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.effect = e
}

// HitTest returns the topmost rendered feature within tolerance of p. The
// nearest point wins; ties go to the highest object id, which is drawn
// last.
func (v *LayerView) HitTest(p orb.Point) (Hit, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	min := [2]float64{p[0] - v.tolerance, p[1] - v.tolerance}
	max := [2]float64{p[0] + v.tolerance, p[1] + v.tolerance}

	var best Hit
	found := false
	v.index.Search(min, max, func(pmin, _ [2]float64, id int64) bool {
		d := planar.Distance(p, orb.Point(pmin))
		if d > v.tolerance {
			return true
		}
		if !found || d < best.Distance || (d == best.Distance && id > best.ObjectID) {
			best = Hit{LayerID: v.layerID, ObjectID: id, Distance: d}
			found = true
		}
		return true
	})
	return best, found
}

// Rendered lists the drawn features ordered by object id, flagging those
// outside the effect window.
func (v *LayerView) Rendered() []Rendered {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Rendered, 0, len(v.features))
	for _, ft := range v.features {
		r := Rendered{Feature: ft}
		if v.effect != nil {
			t, ok := ft.Attributes.Time(v.timeField)
			r.Excluded = !ok || !v.effect.Included.Contains(t)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature.ID < out[j].Feature.ID })
	return out
}

// Feature returns a rendered feature by id.
func (v *LayerView) Feature(id int64) (feature.Feature, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ft, ok := v.features[id]
	return ft, ok
}
