package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/service"
)

// StatsHandler serves per-category sighting summaries.
type StatsHandler struct {
	features *service.FeatureService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(features *service.FeatureService) *StatsHandler {
	return &StatsHandler{features: features}
}

// RegisterRoutes registers the stats route with Huma.
func (h *StatsHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/stats", h.Stats, huma.OperationTags("features"))
}

// StatsOutput is the response for the category summary.
type StatsOutput struct {
	Body struct {
		Total      int                     `json:"total" doc:"Number of sightings"`
		Categories []feature.CategoryStats `json:"categories" doc:"Per-category summary"`
	}
}

// Stats returns the sighting count and time range per category.
func (h *StatsHandler) Stats(ctx context.Context, input *struct{}) (*StatsOutput, error) {
	if h.features == nil {
		return nil, huma.Error503ServiceUnavailable("Feature store not available")
	}
	stats, err := h.features.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to summarise sightings", err)
	}

	out := &StatsOutput{}
	out.Body.Categories = stats
	for _, st := range stats {
		out.Body.Total += st.Count
	}
	return out, nil
}
