// Package store implements the feature service's storage: apply-edits
// batches and queries over the sightings layer.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/joeblew999/plat-critters/internal/feature"
)

// MemoryStore keeps features in memory and persists them as JSON.
type MemoryStore struct {
	dataDir  string
	features map[int64]feature.Feature
	nextID   int64
	mu       sync.RWMutex
}

type memorySnapshot struct {
	NextID   int64             `json:"nextId"`
	Features []feature.Feature `json:"features"`
}

// NewMemoryStore creates a store persisted under dataDir. An empty dataDir
// keeps everything in memory.
func NewMemoryStore(dataDir string) *MemoryStore {
	s := &MemoryStore{
		dataDir:  dataDir,
		features: make(map[int64]feature.Feature),
		nextID:   1,
	}
	s.loadFromDisk()
	return s
}

// ApplyEdits applies adds, then updates, then deletes. Item failures are
// reported per item; the batch itself only fails when persisting fails.
func (s *MemoryStore) ApplyEdits(ctx context.Context, edits feature.Edits) (feature.EditsResult, error) {
	if err := ctx.Err(); err != nil {
		return feature.EditsResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The batch is built on a copy and only swapped in once persisted.
	features := maps.Clone(s.features)
	nextID := s.nextID

	res := newResult()
	for _, f := range edits.Adds {
		if !feature.ValidPoint(f.Geometry) {
			res.AddResults = append(res.AddResults, failed(0, feature.InvalidGeometry("point out of range")))
			continue
		}
		f = f.Clone()
		f.ID = nextID
		nextID++
		features[f.ID] = f
		res.AddResults = append(res.AddResults, succeeded(f.ID))
	}
	for _, f := range edits.Updates {
		if _, ok := features[f.ID]; !ok {
			res.UpdateResults = append(res.UpdateResults, failed(f.ID, feature.NotFound(f.ID)))
			continue
		}
		if !feature.ValidPoint(f.Geometry) {
			res.UpdateResults = append(res.UpdateResults, failed(f.ID, feature.InvalidGeometry("point out of range")))
			continue
		}
		features[f.ID] = f.Clone()
		res.UpdateResults = append(res.UpdateResults, succeeded(f.ID))
	}
	for _, id := range edits.Deletes {
		if _, ok := features[id]; !ok {
			res.DeleteResults = append(res.DeleteResults, failed(id, feature.NotFound(id)))
			continue
		}
		delete(features, id)
		res.DeleteResults = append(res.DeleteResults, succeeded(id))
	}

	if err := s.saveToDisk(nextID, features); err != nil {
		return feature.EditsResult{}, fmt.Errorf("persist features: %w", err)
	}
	s.features = features
	s.nextID = nextID
	return res, nil
}

// Query returns matching features ordered by object id.
func (s *MemoryStore) Query(ctx context.Context, q feature.Query) ([]feature.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []feature.Feature
	if len(q.ObjectIDs) > 0 {
		for _, id := range q.ObjectIDs {
			if f, ok := s.features[id]; ok {
				out = append(out, f.Clone())
			}
		}
	} else {
		for _, f := range s.features {
			out = append(out, f.Clone())
		}
	}

	if q.Where != nil {
		out = slices.DeleteFunc(out, func(f feature.Feature) bool { return !q.Where.Match(f) })
	}
	slices.SortFunc(out, byID)
	out = slices.CompactFunc(out, func(a, b feature.Feature) bool { return a.ID == b.ID })
	if out == nil {
		out = []feature.Feature{}
	}
	return q.Page(out), nil
}

// Close is a no-op; every batch is already persisted.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) dataFile() string {
	return filepath.Join(s.dataDir, "features.json")
}

// loadFromDisk loads a previous snapshot if one exists.
func (s *MemoryStore) loadFromDisk() {
	if s.dataDir == "" {
		return
	}
	data, err := os.ReadFile(s.dataFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var snap memorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return // Invalid JSON, start empty
	}
	for _, f := range snap.Features {
		s.features[f.ID] = f
		if f.ID >= s.nextID {
			s.nextID = f.ID + 1
		}
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
}

func (s *MemoryStore) saveToDisk(nextID int64, features map[int64]feature.Feature) error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	snap := memorySnapshot{NextID: nextID, Features: make([]feature.Feature, 0, len(features))}
	for _, f := range features {
		snap.Features = append(snap.Features, f)
	}
	slices.SortFunc(snap.Features, byID)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.dataFile(), data, 0644)
}

func newResult() feature.EditsResult {
	return feature.EditsResult{
		AddResults:    []feature.EditResult{},
		UpdateResults: []feature.EditResult{},
		DeleteResults: []feature.EditResult{},
	}
}

func succeeded(id int64) feature.EditResult {
	return feature.EditResult{ObjectID: id, Success: true}
}

func failed(id int64, err *feature.ApplyError) feature.EditResult {
	return feature.EditResult{ObjectID: id, Error: err}
}

func byID(a, b feature.Feature) int {
	return cmp.Compare(a.ID, b.ID)
}

// Stats counts sightings per category value of field.
func (s *MemoryStore) Stats(ctx context.Context, field, timeField string) ([]feature.CategoryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byCat := map[string]*feature.CategoryStats{}
	for _, f := range s.features {
		cat := f.Attributes.String(field)
		st, ok := byCat[cat]
		if !ok {
			st = &feature.CategoryStats{Category: cat}
			byCat[cat] = st
		}
		st.Count++
		if t, ok := f.Attributes.Time(timeField); ok {
			if st.First.IsZero() || t.Before(st.First) {
				st.First = t
			}
			if t.After(st.Last) {
				st.Last = t
			}
		}
	}

	out := make([]feature.CategoryStats, 0, len(byCat))
	for _, st := range byCat {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b feature.CategoryStats) int { return cmp.Compare(a.Category, b.Category) })
	return out, nil
}
