// Package filter holds the single active layer filter: either an upper
// bound on a time field or an equality test on a category field.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joeblew999/plat-critters/internal/feature"
)

// Kind identifies which filter mechanism is active.
type Kind int

const (
	KindNone Kind = iota
	KindTime
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindCategory:
		return "category"
	}
	return "none"
}

// Filter is a value; the zero value matches everything.
type Filter struct {
	Kind  Kind
	Field string
	Until time.Time
	Value string
}

// None returns the empty filter.
func None() Filter { return Filter{} }

// Until keeps features whose time field is at or before t.
func Until(field string, t time.Time) Filter {
	return Filter{Kind: KindTime, Field: field, Until: t}
}

// Category keeps features whose field equals value.
func Category(field, value string) Filter {
	return Filter{Kind: KindCategory, Field: field, Value: value}
}

// Expression renders the definition expression handed to the map view,
// e.g. "time <= 1577836800000" or "critter_type = 'fox'".
func (f Filter) Expression() string {
	switch f.Kind {
	case KindTime:
		return fmt.Sprintf("%s <= %d", f.Field, f.Until.UnixMilli())
	case KindCategory:
		return fmt.Sprintf("%s = '%s'", f.Field, strings.ReplaceAll(f.Value, "'", "''"))
	}
	return ""
}

// Match evaluates the filter against a feature. Features without a
// decodable time never match a time filter.
func (f Filter) Match(ft feature.Feature) bool {
	switch f.Kind {
	case KindTime:
		t, ok := ft.Attributes.Time(f.Field)
		return ok && !t.After(f.Until)
	case KindCategory:
		return ft.Attributes.String(f.Field) == f.Value
	}
	return true
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL returns a parameterised WHERE clause for the sightings table. The
// time field maps to the time_ms column, other fields are read from the
// attributes JSON.
func (f Filter) SQL() (string, []any) {
	switch f.Kind {
	case KindTime:
		return "time_ms <= ?", []any{f.Until.UnixMilli()}
	case KindCategory:
		return "json_extract_string(attributes, ?) = ?", []any{"$." + f.Field, f.Value}
	}
	return "", nil
}

// Validate rejects field names that cannot be used as identifiers.
func (f Filter) Validate() error {
	if f.Kind == KindNone {
		return nil
	}
	if !identRE.MatchString(f.Field) {
		return fmt.Errorf("invalid filter field %q", f.Field)
	}
	return nil
}
