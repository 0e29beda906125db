// Package editor coordinates one edit session: feature selection from map
// clicks, template-driven creation, the attribute form and apply-edits
// round trips against the feature store.
//
// Every round trip is issued as a Request with a sequence id. Only the
// completion of the most recently issued request is applied; older ones
// are discarded with ErrSuperseded.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/observability"
	"github.com/joeblew999/plat-critters/internal/view"
)

var (
	// ErrNoSelection is returned by form submit and delete without a
	// selected feature. No operation is issued.
	ErrNoSelection = errors.New("no feature selected")
	// ErrNoMapPoint is returned when a placement click carries no map
	// coordinate.
	ErrNoMapPoint = errors.New("click has no map point")
	// ErrSuperseded is returned to the caller whose round trip completed
	// after a newer request was issued.
	ErrSuperseded = errors.New("request superseded by a newer one")
	// ErrEmptyEdits is returned by ApplyEdits for a batch with no edits.
	ErrEmptyEdits = errors.New("edits batch is empty")
)

// FeatureStore is the remote feature store the coordinator edits.
type FeatureStore interface {
	ApplyEdits(ctx context.Context, edits feature.Edits) (feature.EditsResult, error)
	Query(ctx context.Context, q feature.Query) ([]feature.Feature, error)
}

// View is the map view surface: hit-testing and highlighting.
type View interface {
	LayerID() string
	HitTest(p orb.Point) (view.Hit, bool)
	Highlight(id int64) *view.Highlight
}

// ClickEvent is a pointer click on the map. MapPoint is nil when the
// click could not be projected onto the map.
type ClickEvent struct {
	MapPoint *orb.Point
}

// Request is one round trip to the store.
type Request struct {
	ID    uint64
	Op    OpKind
	Edits feature.Edits
	Query feature.Query
}

// Completion is the outcome of a Request.
type Completion struct {
	RequestID uint64
	Op        OpKind
	Result    feature.EditsResult
	Features  []feature.Feature
	Err       error
}

type session struct {
	mode      Mode
	op        OpKind
	selected  *feature.Feature
	template  *feature.Template
	highlight *view.Highlight
	inflight  uint64
	panel     Panel
	cursor    Cursor
	err       error
}

// Coordinator owns one edit session. It is safe for concurrent use; the
// session lock is never held across a store call.
type Coordinator struct {
	store    FeatureStore
	view     View
	logger   zerolog.Logger
	observer func(Snapshot)

	mu  sync.Mutex
	seq uint64
	s   session
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithObserver registers fn to receive a snapshot after every state change.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// New creates an idle coordinator.
func New(store FeatureStore, v View, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		view:   v,
		logger: zerolog.Nop(),
		s:      session{mode: ModeIdle, panel: PanelCreate, cursor: CursorAuto},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the session.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Mode:     c.s.mode,
		Op:       c.s.op,
		Panel:    c.s.panel,
		Cursor:   c.s.cursor,
		InFlight: c.s.inflight,
		Err:      c.s.err,
	}
	if c.s.selected != nil {
		f := c.s.selected.Clone()
		snap.Selected = &f
	}
	if c.s.template != nil {
		t := *c.s.template
		t.Attributes = t.Attributes.Clone()
		snap.Template = &t
	}
	return snap
}

// unlock releases the session lock and notifies the observer.
func (c *Coordinator) unlock() {
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(snap)
	}
}

// TemplateSelected cancels any selection and enters placing mode with the
// template's default attributes.
func (c *Coordinator) TemplateSelected(t feature.Template) {
	c.mu.Lock()
	c.clearLocked()
	t.Attributes = t.Attributes.Clone()
	c.s.template = &t
	c.s.mode = ModePlacing
	c.s.cursor = CursorCrosshair
	c.logger.Debug().Str("template", t.Name).Msg("placing")
	c.unlock()
}

// Deselect clears the selection and any placement.
func (c *Coordinator) Deselect() {
	c.mu.Lock()
	c.clearLocked()
	c.unlock()
}

// MapClick handles a click on the map. In placing mode it creates a
// feature from the pending template at the clicked point; otherwise it
// selects the topmost feature of the managed layer, or clears the
// selection when nothing is hit.
func (c *Coordinator) MapClick(ctx context.Context, ev ClickEvent) error {
	c.mu.Lock()
	if c.s.mode == ModePlacing {
		if ev.MapPoint == nil {
			c.logger.Warn().Msg("placement click without map point ignored")
			c.mu.Unlock()
			return ErrNoMapPoint
		}
		draft := feature.Feature{
			Geometry:   *ev.MapPoint,
			Attributes: c.s.template.Attributes.Clone(),
		}
		c.s.template = nil
		c.s.cursor = CursorAuto
		req := c.issueLocked(OpCreate, feature.Edits{Adds: []feature.Feature{draft}}, feature.Query{})
		c.unlock()
		return c.roundTrip(ctx, req)
	}

	c.s.highlight.Remove()
	c.s.highlight = nil

	var (
		hit view.Hit
		ok  bool
	)
	if ev.MapPoint != nil {
		hit, ok = c.view.HitTest(*ev.MapPoint)
	}
	if !ok || hit.LayerID != c.view.LayerID() {
		c.clearLocked()
		c.unlock()
		return nil
	}

	c.s.selected = nil
	c.s.panel = PanelEditor
	req := c.issueLocked(OpQuery, feature.Edits{}, feature.Query{ObjectIDs: []int64{hit.ObjectID}})
	c.unlock()
	return c.roundTrip(ctx, req)
}

// SubmitForm merges values into the selected feature and updates it.
func (c *Coordinator) SubmitForm(ctx context.Context, values map[string]any) error {
	c.mu.Lock()
	if c.s.selected == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	upd := c.s.selected.Clone()
	upd.Merge(values)
	req := c.issueLocked(OpUpdate, feature.Edits{Updates: []feature.Feature{upd}}, feature.Query{})
	c.unlock()
	return c.roundTrip(ctx, req)
}

// RequestDelete deletes the selected feature.
func (c *Coordinator) RequestDelete(ctx context.Context) error {
	c.mu.Lock()
	if c.s.selected == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	req := c.issueLocked(OpDelete, feature.Edits{Deletes: []int64{c.s.selected.ID}}, feature.Query{})
	c.unlock()
	return c.roundTrip(ctx, req)
}

// ApplyEdits sends a batch to the store and applies the resulting
// transition: adds and updates select the first resulting feature, a
// delete-only batch clears the selection. Any failure leaves the session
// idle with the error recorded.
func (c *Coordinator) ApplyEdits(ctx context.Context, edits feature.Edits) error {
	op := opOf(edits)
	if op == OpNone {
		return ErrEmptyEdits
	}
	c.mu.Lock()
	req := c.issueLocked(op, edits, feature.Query{})
	c.unlock()
	return c.roundTrip(ctx, req)
}

func opOf(edits feature.Edits) OpKind {
	switch {
	case len(edits.Adds) > 0:
		return OpCreate
	case len(edits.Updates) > 0:
		return OpUpdate
	case len(edits.Deletes) > 0:
		return OpDelete
	}
	return OpNone
}

// issueLocked makes req the one in-flight request of the session.
func (c *Coordinator) issueLocked(op OpKind, edits feature.Edits, q feature.Query) Request {
	c.seq++
	c.s.inflight = c.seq
	c.s.mode = ModePending
	c.s.op = op
	c.s.err = nil
	return Request{ID: c.seq, Op: op, Edits: edits, Query: q}
}

// clearLocked is the single "no selection" outcome.
func (c *Coordinator) clearLocked() {
	c.s.highlight.Remove()
	c.s.highlight = nil
	c.s.selected = nil
	c.s.template = nil
	c.s.inflight = 0
	c.s.mode = ModeIdle
	c.s.op = OpNone
	c.s.panel = PanelCreate
	c.s.cursor = CursorAuto
}

func (c *Coordinator) roundTrip(ctx context.Context, req Request) error {
	comp := Completion{RequestID: req.ID, Op: req.Op}
	if req.Op == OpQuery {
		comp.Features, comp.Err = c.store.Query(ctx, req.Query)
	} else {
		comp.Result, comp.Err = c.store.ApplyEdits(ctx, req.Edits)
	}
	return c.complete(ctx, comp)
}

func (c *Coordinator) complete(ctx context.Context, comp Completion) error {
	c.mu.Lock()
	if comp.RequestID != c.s.inflight {
		c.mu.Unlock()
		observability.RecordStaleCompletion()
		c.logger.Debug().Uint64("request", comp.RequestID).Str("op", comp.Op.String()).
			Msg("stale completion discarded")
		return ErrSuperseded
	}

	if comp.Err == nil && comp.Op != OpQuery {
		if ae, failed := comp.Result.FirstFailure(); failed {
			comp.Err = ae
		}
	}
	if comp.Err != nil {
		return c.failLocked(comp)
	}

	switch comp.Op {
	case OpQuery:
		if len(comp.Features) == 0 {
			c.clearLocked()
			c.unlock()
			return nil
		}
		f := comp.Features[0].Clone()
		c.s.highlight.Remove()
		c.s.highlight = c.view.Highlight(f.ID)
		c.s.selected = &f
		c.s.inflight = 0
		c.s.mode = ModeSelected
		c.s.op = OpNone
		c.s.panel = PanelEditor
		c.unlock()
		return nil

	case OpCreate, OpUpdate:
		results := comp.Result.AddResults
		if len(results) == 0 {
			results = comp.Result.UpdateResults
		}
		if len(results) == 0 {
			c.clearLocked()
			c.unlock()
			return nil
		}
		c.s.panel = PanelEditor
		next := c.issueLocked(OpQuery, feature.Edits{}, feature.Query{ObjectIDs: []int64{results[0].ObjectID}})
		c.unlock()
		return c.roundTrip(ctx, next)

	default:
		c.clearLocked()
		c.unlock()
		return nil
	}
}

func (c *Coordinator) failLocked(comp Completion) error {
	err := fmt.Errorf("%s failed: %w", comp.Op, comp.Err)
	ev := c.logger.Error().Str("op", comp.Op.String()).Uint64("request", comp.RequestID)
	var ae *feature.ApplyError
	if errors.As(comp.Err, &ae) {
		ev = ev.Int("code", ae.Code).Str("name", ae.Name).Str("message", ae.Message)
	} else {
		ev = ev.Err(comp.Err)
	}
	ev.Msg("apply edits failed")

	c.clearLocked()
	c.s.err = err
	c.unlock()
	return err
}
