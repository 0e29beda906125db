package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	store   string
	layerID string
}

func NewInfoHandler(dataDir, store, layerID string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: store, layerID: layerID}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Store    string   `json:"store" doc:"Feature store back end" enum:"memory,duckdb"`
	Layer    string   `json:"layer" doc:"Managed layer ID"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-critters",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		Store:    h.store,
		Layer:    h.layerID,
		Features: []string{"apply-edits", "query", "geojson", "editor", "time-slider"},
	}}, nil
}
