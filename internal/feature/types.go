// Package feature holds the sighting feature model shared by the store,
// the layer view and the edit coordinator.
package feature

import (
	"maps"
	"time"

	"github.com/paulmach/orb"
)

// Attribute names used by the managed sightings layer.
const (
	FieldCategory = "critter_type"
	FieldTime     = "time"
	FieldComments = "comments"
)

// Attributes maps field names to values. Timestamps are epoch milliseconds.
type Attributes map[string]any

// Feature is a point sighting. ID is assigned by the store on create and is
// zero for drafts.
type Feature struct {
	ID         int64      `json:"objectId" required:"false" doc:"Object ID assigned by the store; zero for adds" example:"42"`
	Geometry   orb.Point  `json:"geometry" doc:"Point location as [lon, lat]"`
	Attributes Attributes `json:"attributes" required:"false" doc:"Attribute values keyed by field name"`
}

// Clone returns a copy that shares no attribute map with f.
func (f Feature) Clone() Feature {
	f.Attributes = f.Attributes.Clone()
	return f
}

// Merge assigns every value onto the feature's attributes.
func (f *Feature) Merge(values map[string]any) {
	if f.Attributes == nil {
		f.Attributes = Attributes{}
	}
	for k, v := range values {
		f.Attributes[k] = v
	}
}

// Clone copies the attribute map. A nil map clones to an empty one.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	maps.Copy(out, a)
	return out
}

// String returns a string attribute, or "" when absent or not a string.
func (a Attributes) String(name string) string {
	if s, ok := a[name].(string); ok {
		return s
	}
	return ""
}

// Time decodes a timestamp attribute. Epoch milliseconds (any numeric type)
// and RFC 3339 strings are accepted.
func (a Attributes) Time(name string) (time.Time, bool) {
	switch v := a[name].(type) {
	case int64:
		return time.UnixMilli(v), true
	case int:
		return time.UnixMilli(int64(v)), true
	case float64:
		return time.UnixMilli(int64(v)), true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// Template is a creation template: a named set of default attributes.
type Template struct {
	Name        string     `json:"name" yaml:"name" doc:"Template name" example:"Fox"`
	Description string     `json:"description,omitempty" yaml:"description" doc:"Template description"`
	Attributes  Attributes `json:"attributes" yaml:"attributes" doc:"Default attribute values"`
}

// Edits is one apply-edits batch carrying zero or more of each kind.
type Edits struct {
	Adds    []Feature `json:"adds,omitempty" doc:"Features to create"`
	Updates []Feature `json:"updates,omitempty" doc:"Features to update"`
	Deletes []int64   `json:"deletes,omitempty" doc:"Object IDs to delete"`
}

// Empty reports whether the batch carries no edits.
func (e Edits) Empty() bool {
	return len(e.Adds) == 0 && len(e.Updates) == 0 && len(e.Deletes) == 0
}

// EditResult is the outcome of one item in a batch.
type EditResult struct {
	ObjectID int64       `json:"objectId" doc:"Object ID the edit applied to"`
	Success  bool        `json:"success" doc:"Whether the edit succeeded"`
	Error    *ApplyError `json:"error,omitempty" doc:"Failure details"`
}

// EditsResult reports per-kind results. A non-empty list means that kind
// occurred.
type EditsResult struct {
	AddResults    []EditResult `json:"addResults" doc:"Create results"`
	UpdateResults []EditResult `json:"updateResults" doc:"Update results"`
	DeleteResults []EditResult `json:"deleteResults" doc:"Delete results"`
}

// Succeeded counts the items of results that were applied.
func Succeeded(results []EditResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

// FirstFailure returns the first unsuccessful item, if any.
func (r EditsResult) FirstFailure() (*ApplyError, bool) {
	for _, list := range [][]EditResult{r.AddResults, r.UpdateResults, r.DeleteResults} {
		for _, res := range list {
			if !res.Success {
				if res.Error != nil {
					return res.Error, true
				}
				return &ApplyError{Code: CodeUnknown, Name: "edit-failed", Message: "edit was not applied"}, true
			}
		}
	}
	return nil, false
}

// Query selects features by object id and/or filter. Zero Limit means no
// limit.
type Query struct {
	ObjectIDs []int64
	Where     Predicate
	Offset    int
	Limit     int
}

// Predicate is the narrow view of a filter the stores need.
type Predicate interface {
	Match(f Feature) bool
	SQL() (clause string, args []any)
}

// Page applies Offset/Limit to an already ordered slice.
func (q Query) Page(features []Feature) []Feature {
	if q.Offset > 0 {
		if q.Offset >= len(features) {
			return []Feature{}
		}
		features = features[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(features) {
		features = features[:q.Limit]
	}
	return features
}

// CategoryStats summarises the sightings of one category.
type CategoryStats struct {
	Category string    `json:"category" doc:"Category value" example:"fox"`
	Count    int       `json:"count" doc:"Number of sightings"`
	First    time.Time `json:"first,omitzero" doc:"Earliest sighting time"`
	Last     time.Time `json:"last,omitzero" doc:"Latest sighting time"`
}
