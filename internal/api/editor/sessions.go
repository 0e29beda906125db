// Package editor contains the Datastar SSE handlers of the editor UI. Each
// browser tab owns a session: an edit coordinator over its own layer view
// and time slider.
package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/config"
	edit "github.com/joeblew999/plat-critters/internal/editor"
	"github.com/joeblew999/plat-critters/internal/filter"
	"github.com/joeblew999/plat-critters/internal/observability"
	"github.com/joeblew999/plat-critters/internal/service"
	"github.com/joeblew999/plat-critters/internal/view"
)

// DefaultSessionTTL is how long an untouched session lives.
const DefaultSessionTTL = 30 * time.Minute

// Session is one hosted view with its edit session.
type Session struct {
	ID     string
	Editor *edit.Coordinator
	View   *view.LayerView
	Slider *filter.TimeSlider

	changes chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
	stopPlay context.CancelFunc
	playGen  uint64
	streams  int
}

// Changes is signalled (coalesced) whenever the session should re-render.
func (s *Session) Changes() <-chan struct{} { return s.changes }

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// attach marks an open events stream; a watched session never expires.
func (s *Session) attach() {
	s.mu.Lock()
	s.streams++
	s.mu.Unlock()
}

func (s *Session) detach() {
	s.mu.Lock()
	s.streams--
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// StartPlay runs fn under a context that StopPlay cancels. It reports
// false when already playing.
func (s *Session) StartPlay(ctx context.Context, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.stopPlay != nil {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stopPlay = cancel
	s.playGen++
	gen := s.playGen
	s.mu.Unlock()

	go func() {
		defer s.notify()
		defer s.endPlay(gen)
		fn(ctx)
	}()
	return true
}

// endPlay clears the animation started as gen unless a newer one replaced it.
func (s *Session) endPlay(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playGen == gen && s.stopPlay != nil {
		s.stopPlay()
		s.stopPlay = nil
	}
}

// StopPlay cancels a running animation. It reports whether one was running.
func (s *Session) StopPlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopPlay == nil {
		return false
	}
	s.stopPlay()
	s.stopPlay = nil
	return true
}

// Playing reports whether the slider animation runs.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopPlay != nil
}

// Sessions is the registry of live edit sessions.
type Sessions struct {
	features *service.FeatureService
	cfg      config.Config
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	byID map[string]*Session
}

// NewSessions creates an empty registry.
func NewSessions(features *service.FeatureService, ttl time.Duration, logger zerolog.Logger) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		features: features,
		cfg:      features.Config(),
		ttl:      ttl,
		logger:   logger.With().Str("component", "sessions").Logger(),
		now:      time.Now,
		byID:     map[string]*Session{},
	}
}

// Create starts a session and renders its view once.
func (r *Sessions) Create(ctx context.Context) (*Session, error) {
	slider, err := filter.NewSlider(r.cfg.SliderSettings())
	if err != nil {
		return nil, fmt.Errorf("session slider: %w", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		View:     view.New(r.cfg.Layer.ID, r.features, r.cfg.View.Tolerance),
		Slider:   slider,
		changes:  make(chan struct{}, 1),
		lastSeen: r.now(),
	}
	effect := slider.Effect()
	s.View.SetEffect(&effect)
	if err := s.View.Refresh(ctx); err != nil {
		return nil, err
	}
	s.Editor = edit.New(r.features, s.View,
		edit.WithLogger(r.logger.With().Str("session", s.ID).Logger()),
		edit.WithObserver(func(edit.Snapshot) { s.notify() }),
	)

	r.mu.Lock()
	r.byID[s.ID] = s
	n := len(r.byID)
	r.mu.Unlock()

	observability.SetSessions(n)
	r.logger.Info().Str("session", s.ID).Msg("session created")
	return s, nil
}

// Get returns a live session and marks it used.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	s.lastSeen = r.now()
	s.mu.Unlock()
	return s, true
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Sweep drops sessions idle for longer than the TTL.
func (r *Sessions) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.byID {
		s.mu.Lock()
		idle := s.streams == 0 && s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(r.byID, id)
			expired = append(expired, s)
		}
	}
	n := len(r.byID)
	r.mu.Unlock()

	for _, s := range expired {
		s.StopPlay()
		s.Editor.Deselect()
		r.logger.Info().Str("session", s.ID).Msg("session expired")
	}
	if len(expired) > 0 {
		observability.SetSessions(n)
	}
	return len(expired)
}

// Refresh re-renders every session's view.
func (r *Sessions) Refresh(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		if err := s.View.Refresh(ctx); err != nil {
			r.logger.Warn().Err(err).Str("session", s.ID).Msg("view refresh failed")
			continue
		}
		s.notify()
	}
}

// Run refreshes views on feature changes and sweeps idle sessions until
// ctx is done.
func (r *Sessions) Run(ctx context.Context, bus *service.EventBus) {
	events := bus.Subscribe(service.ResourceFeatures)
	defer bus.Unsubscribe(events)

	sweep := time.NewTicker(r.ttl / 2)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			r.Refresh(ctx)
		case <-sweep.C:
			r.Sweep()
		}
	}
}
