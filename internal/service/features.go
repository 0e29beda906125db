// Package service contains the feature service business logic sitting
// between the HTTP handlers and the store.
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/config"
	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/observability"
)

// Store is the storage back end of the feature service.
type Store interface {
	ApplyEdits(ctx context.Context, edits feature.Edits) (feature.EditsResult, error)
	Query(ctx context.Context, q feature.Query) ([]feature.Feature, error)
	Stats(ctx context.Context, field, timeField string) ([]feature.CategoryStats, error)
	Close() error
}

// FeatureService validates edits, applies them to the store and announces
// the changes on the event bus.
type FeatureService struct {
	store  Store
	bus    *EventBus
	cfg    config.Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewFeatureService creates a feature service.
func NewFeatureService(store Store, bus *EventBus, cfg config.Config, logger zerolog.Logger) *FeatureService {
	return &FeatureService{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With().Str("component", "features").Logger(),
		now:    time.Now,
	}
}

// Config returns the editor configuration the service validates against.
func (s *FeatureService) Config() config.Config { return s.cfg }

// Templates returns the configured creation templates.
func (s *FeatureService) Templates() []feature.Template {
	return slices.Clone(s.cfg.Templates)
}

// ApplyEdits validates and applies a batch. A rejected batch returns an
// *feature.ApplyError without touching the store.
func (s *FeatureService) ApplyEdits(ctx context.Context, edits feature.Edits) (feature.EditsResult, error) {
	adds := make([]feature.Feature, len(edits.Adds))
	for i, f := range edits.Adds {
		f = f.Clone()
		if _, ok := f.Attributes.Time(s.cfg.Layer.TimeField); !ok {
			f.Attributes[s.cfg.Layer.TimeField] = s.now().UnixMilli()
		}
		if err := s.validate(f); err != nil {
			return feature.EditsResult{}, err
		}
		adds[i] = f
	}
	for _, f := range edits.Updates {
		if err := s.validate(f); err != nil {
			return feature.EditsResult{}, err
		}
	}
	edits.Adds = adds

	res, err := s.store.ApplyEdits(ctx, edits)
	if err != nil {
		s.logger.Error().Err(err).Msg("apply edits failed")
		return feature.EditsResult{}, err
	}

	s.announce("add", ActionCreated, res.AddResults)
	s.announce("update", ActionUpdated, res.UpdateResults)
	s.announce("delete", ActionDeleted, res.DeleteResults)
	return res, nil
}

func (s *FeatureService) announce(kind string, action Action, results []feature.EditResult) {
	for _, r := range results {
		observability.RecordEdit(kind, r.Success)
		if !r.Success {
			s.logger.Warn().Str("kind", kind).Int64("objectId", r.ObjectID).
				Interface("error", r.Error).Msg("edit rejected")
			continue
		}
		s.logger.Debug().Str("kind", kind).Int64("objectId", r.ObjectID).Msg("edit applied")
		if s.bus != nil {
			s.bus.Publish(Event{Resource: ResourceFeatures, Action: action, ID: r.ObjectID})
		}
	}
}

// validate checks the category against the configured templates and that
// the time attribute, when present, decodes.
func (s *FeatureService) validate(f feature.Feature) error {
	field := s.cfg.Layer.CategoryField
	if v, ok := f.Attributes[field]; ok {
		str, isStr := v.(string)
		if !isStr {
			return feature.InvalidAttribute(field, fmt.Sprintf("expected string, got %T", v))
		}
		if cats := s.cfg.Categories(); len(cats) > 0 && !slices.Contains(cats, str) {
			return feature.InvalidAttribute(field, fmt.Sprintf("unknown category %q", str))
		}
	}
	if _, ok := f.Attributes[s.cfg.Layer.TimeField]; ok {
		if _, ok := f.Attributes.Time(s.cfg.Layer.TimeField); !ok {
			return feature.InvalidAttribute(s.cfg.Layer.TimeField, "not a timestamp")
		}
	}
	return nil
}

// Query passes a query through to the store.
func (s *FeatureService) Query(ctx context.Context, q feature.Query) ([]feature.Feature, error) {
	return s.store.Query(ctx, q)
}

// Get returns one feature by object id.
func (s *FeatureService) Get(ctx context.Context, id int64) (feature.Feature, bool, error) {
	fs, err := s.store.Query(ctx, feature.Query{ObjectIDs: []int64{id}})
	if err != nil {
		return feature.Feature{}, false, err
	}
	if len(fs) == 0 {
		return feature.Feature{}, false, nil
	}
	return fs[0], true, nil
}

// Stats summarises the sightings per category.
func (s *FeatureService) Stats(ctx context.Context) ([]feature.CategoryStats, error) {
	return s.store.Stats(ctx, s.cfg.Layer.CategoryField, s.cfg.Layer.TimeField)
}

// Import adds features as new sightings, ignoring their ids.
func (s *FeatureService) Import(ctx context.Context, features []feature.Feature) (feature.EditsResult, error) {
	adds := make([]feature.Feature, len(features))
	for i, f := range features {
		f.ID = 0
		adds[i] = f
	}
	return s.ApplyEdits(ctx, feature.Edits{Adds: adds})
}

// Close closes the store.
func (s *FeatureService) Close() error {
	return s.store.Close()
}
