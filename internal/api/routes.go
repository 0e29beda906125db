// Package api defines the Huma REST routes of the feature service.
package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-critters/internal/config"
	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/filter"
	"github.com/joeblew999/plat-critters/internal/humastar"
	"github.com/joeblew999/plat-critters/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Features *service.FeatureService
}

// featureActions are the hypermedia actions of one feature.
var featureActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/features/applyEdits", Method: "POST", Title: "Update sighting"},
	{Rel: "delete", Pattern: "/api/v1/features/applyEdits", Method: "POST", Title: "Delete sighting"},
	{Rel: "alternate", Pattern: "/api/v1/features.geojson?objectIds=%d", Method: "GET", Title: "GeoJSON"},
}

type IDInput struct {
	ID int64 `path:"id" doc:"Object ID" example:"42"`
}

// FeatureBody is one feature with its actions.
type FeatureBody struct {
	feature.Feature
}

// Actions implements humastar.Actor.
func (b FeatureBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, featureActions)
}

type FeatureOutput struct {
	Body FeatureBody
}

type FeaturesInput struct {
	ObjectIDs string `query:"objectIds" doc:"Comma separated object IDs" example:"1,2,42"`
	Category  string `query:"category" doc:"Only this category" example:"fox"`
	Until     int64  `query:"until" doc:"Only sightings at or before this time (epoch ms)"`
	Offset    int    `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
	Limit     int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Page size (0 = all)"`
}

type FeaturesOutput struct {
	Body humastar.PageBody[feature.Feature]
}

type ApplyEditsInput struct {
	Body feature.Edits
}

type ApplyEditsOutput struct {
	Body feature.EditsResult
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type LayerBody struct {
	config.LayerConfig
	Fields     []config.FieldConfig `json:"fields" doc:"Attribute form fields"`
	Categories []string             `json:"categories" doc:"Category values offered by templates"`
	TimeInfo   config.SliderConfig  `json:"timeInfo" doc:"Time extent and slider settings"`
	View       config.ViewConfig    `json:"view" doc:"Initial map view"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds the REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterFeatures registers the feature service routes.
func (h *APIHandler) RegisterFeatures(api huma.API) {
	huma.Get(api, "/api/v1/features", h.ListFeatures, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/features/{id}", h.GetFeature, huma.OperationTags("features"))
	huma.Register(api, huma.Operation{
		OperationID: "apply-edits",
		Method:      "POST",
		Path:        "/api/v1/features/applyEdits",
		Summary:     "Apply a batch of adds, updates and deletes",
		Tags:        []string{"features"},
	}, h.ApplyEdits)
	huma.Register(api, huma.Operation{
		OperationID: "export-geojson",
		Method:      "GET",
		Path:        "/api/v1/features.geojson",
		Summary:     "Export features as a GeoJSON FeatureCollection",
		Tags:        []string{"features"},
	}, h.ExportGeoJSON)
}

// RegisterLayer registers the layer description and templates.
func (h *APIHandler) RegisterLayer(api huma.API) {
	huma.Get(api, "/api/v1/layer", h.GetLayer, huma.OperationTags("layer"))
	huma.Get(api, "/api/v1/templates", h.GetTemplates, huma.OperationTags("layer"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) ListFeatures(ctx context.Context, input *FeaturesInput) (*FeaturesOutput, error) {
	q, err := input.query(h.svc.Features.Config().Layer)
	if err != nil {
		return nil, err
	}
	all, err := h.svc.Features.Query(ctx, q)
	if err != nil {
		return nil, huma.Error500InternalServerError("query failed", err)
	}
	return &FeaturesOutput{Body: humastar.NewPage(all, input.Offset, input.Limit)}, nil
}

func (in *FeaturesInput) query(layer config.LayerConfig) (feature.Query, error) {
	var q feature.Query
	ids, err := parseIDs(in.ObjectIDs)
	if err != nil {
		return q, huma.Error400BadRequest("invalid objectIds", err)
	}
	q.ObjectIDs = ids
	switch {
	case in.Category != "" && in.Until != 0:
		return q, huma.Error400BadRequest("only one of category and until may be given")
	case in.Category != "":
		q.Where = filter.Category(layer.CategoryField, in.Category)
	case in.Until != 0:
		q.Where = filter.Until(layer.TimeField, time.UnixMilli(in.Until))
	}
	return q, nil
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *APIHandler) GetFeature(ctx context.Context, input *IDInput) (*FeatureOutput, error) {
	f, ok, err := h.svc.Features.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("query failed", err)
	}
	if !ok {
		return nil, huma.Error404NotFound("feature not found")
	}
	return &FeatureOutput{Body: FeatureBody{f}}, nil
}

func (h *APIHandler) ApplyEdits(ctx context.Context, input *ApplyEditsInput) (*ApplyEditsOutput, error) {
	if input.Body.Empty() {
		return nil, huma.Error400BadRequest("edits batch is empty")
	}
	res, err := h.svc.Features.ApplyEdits(ctx, input.Body)
	if err != nil {
		return nil, applyError(err)
	}
	return &ApplyEditsOutput{Body: res}, nil
}

// applyError maps a rejected batch to a 422 whose detail carries the
// failure name and code.
func applyError(err error) error {
	var ae *feature.ApplyError
	if errors.As(err, &ae) {
		return huma.Error422UnprocessableEntity(ae.Message, &huma.ErrorDetail{
			Message:  ae.Message,
			Location: ae.Name,
			Value:    ae.Code,
		})
	}
	return huma.Error500InternalServerError("apply edits failed", err)
}

func (h *APIHandler) ExportGeoJSON(ctx context.Context, input *FeaturesInput) (*GeoJSONOutput, error) {
	q, err := input.query(h.svc.Features.Config().Layer)
	if err != nil {
		return nil, err
	}
	all, err := h.svc.Features.Query(ctx, q)
	if err != nil {
		return nil, huma.Error500InternalServerError("query failed", err)
	}
	data, err := feature.Collection(all).MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode geojson", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *struct{}) (*struct{ Body LayerBody }, error) {
	cfg := h.svc.Features.Config()
	return &struct{ Body LayerBody }{Body: LayerBody{
		LayerConfig: cfg.Layer,
		Fields:      cfg.Form,
		Categories:  cfg.Categories(),
		TimeInfo:    cfg.Slider,
		View:        cfg.View,
	}}, nil
}

func (h *APIHandler) GetTemplates(ctx context.Context, input *struct{}) (*struct{ Body []feature.Template }, error) {
	return &struct{ Body []feature.Template }{Body: h.svc.Features.Templates()}, nil
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services, info *InfoHandler) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	info.RegisterRoutes(api)
	NewStatsHandler(svc.Features).RegisterRoutes(api)
}
