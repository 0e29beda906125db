// Package featureclient is a Go client for the critters feature service.
// Client satisfies the edit coordinator's FeatureStore, so an editor can
// run against a remote server.
package featureclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/filter"
	"github.com/joeblew999/plat-critters/internal/humastar"
)

// Client talks to one server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for baseURL, e.g. http://localhost:8087.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ApplyEdits posts one batch. A rejected batch comes back as the server's
// *feature.ApplyError; anything else that goes wrong is a transport
// ApplyError.
func (c *Client) ApplyEdits(ctx context.Context, edits feature.Edits) (feature.EditsResult, error) {
	var res feature.EditsResult
	body, err := json.Marshal(edits)
	if err != nil {
		return res, transport(err)
	}
	err = c.do(ctx, http.MethodPost, "/api/v1/features/applyEdits", bytes.NewReader(body), &res)
	return res, err
}

// Query fetches the features matching q. Only filters built by the filter
// package can be sent.
func (c *Client) Query(ctx context.Context, q feature.Query) ([]feature.Feature, error) {
	params := url.Values{}
	if len(q.ObjectIDs) > 0 {
		ids := make([]string, len(q.ObjectIDs))
		for i, id := range q.ObjectIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		params.Set("objectIds", strings.Join(ids, ","))
	}
	if q.Where != nil {
		f, ok := q.Where.(filter.Filter)
		if !ok {
			return nil, fmt.Errorf("featureclient: unsupported predicate %T", q.Where)
		}
		switch f.Kind {
		case filter.KindCategory:
			params.Set("category", f.Value)
		case filter.KindTime:
			params.Set("until", strconv.FormatInt(f.Until.UnixMilli(), 10))
		}
	}
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("limit", strconv.Itoa(q.Limit))

	var page humastar.PageBody[feature.Feature]
	if err := c.do(ctx, http.MethodGet, "/api/v1/features?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Health reports the server status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var body struct {
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "/health", nil, &body)
	return body.Status, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return transport(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transport(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// decodeError rebuilds the server's ApplyError from a 422 problem body.
func decodeError(resp *http.Response) error {
	var model huma.ErrorModel
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &model); err != nil {
		return transport(fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
	}
	if resp.StatusCode == http.StatusUnprocessableEntity && len(model.Errors) > 0 {
		d := model.Errors[0]
		code := feature.CodeUnknown
		if n, ok := d.Value.(float64); ok {
			code = int(n)
		}
		return &feature.ApplyError{Code: code, Name: d.Location, Message: d.Message}
	}
	return transport(fmt.Errorf("status %d: %s", resp.StatusCode, model.Detail))
}

func transport(err error) *feature.ApplyError {
	return &feature.ApplyError{Code: feature.CodeTransport, Name: "transport", Message: err.Error()}
}
