package feature

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ValidPoint reports whether p is a finite lon/lat pair.
func ValidPoint(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// ToGeoJSON converts a feature to a GeoJSON point feature.
func ToGeoJSON(f Feature) *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	for k, v := range f.Attributes {
		gf.Properties[k] = v
	}
	return gf
}

// FromGeoJSON converts a GeoJSON feature. Only point geometries are
// accepted; a numeric id is kept as the object id.
func FromGeoJSON(gf *geojson.Feature) (Feature, error) {
	p, ok := gf.Geometry.(orb.Point)
	if !ok {
		return Feature{}, fmt.Errorf("unsupported geometry %T", gf.Geometry)
	}
	f := Feature{Geometry: p, Attributes: Attributes(gf.Properties.Clone())}
	switch id := gf.ID.(type) {
	case float64:
		f.ID = int64(id)
	case int64:
		f.ID = id
	case int:
		f.ID = int64(id)
	}
	return f, nil
}

// Collection builds a FeatureCollection from features.
func Collection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(ToGeoJSON(f))
	}
	return fc
}

// FromCollection decodes a GeoJSON FeatureCollection into features,
// stopping at the first unsupported geometry.
func FromCollection(data []byte) ([]Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}
	out := make([]Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		f, err := FromGeoJSON(gf)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}
