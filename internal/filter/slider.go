package filter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ExcludedEffect is the style applied to features outside the slider window.
const ExcludedEffect = "grayscale(20%) opacity(12%)"

// Extent is a closed time interval.
type Extent struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the extent.
func (e Extent) Contains(t time.Time) bool {
	return !t.Before(e.Start) && !t.After(e.End)
}

// Effect describes how the view renders features relative to the window.
type Effect struct {
	Included Extent
	Excluded string
}

// SliderConfig configures a TimeSlider.
type SliderConfig struct {
	Full     Extent
	Stop     time.Duration
	Window   time.Duration
	PlayRate time.Duration
}

var ErrBadExtent = errors.New("slider: end before start")

// TimeSlider moves a time window across a full extent in fixed stops.
type TimeSlider struct {
	mu     sync.Mutex
	cfg    SliderConfig
	values Extent
}

// NewSlider builds a slider with its thumbs at [start, start+Window],
// clamped to the full extent.
func NewSlider(cfg SliderConfig) (*TimeSlider, error) {
	if cfg.Full.End.Before(cfg.Full.Start) {
		return nil, ErrBadExtent
	}
	if cfg.Stop <= 0 {
		cfg.Stop = time.Hour
	}
	if cfg.PlayRate <= 0 {
		cfg.PlayRate = 50 * time.Millisecond
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	s := &TimeSlider{cfg: cfg}
	s.values = s.clamp(Extent{Start: cfg.Full.Start, End: cfg.Full.Start.Add(cfg.Window)})
	return s, nil
}

func (s *TimeSlider) clamp(e Extent) Extent {
	if e.Start.Before(s.cfg.Full.Start) {
		e.Start = s.cfg.Full.Start
	}
	if e.End.After(s.cfg.Full.End) {
		e.End = s.cfg.Full.End
	}
	if e.End.Before(e.Start) {
		e.End = e.Start
	}
	return e
}

// Full returns the slider's full extent.
func (s *TimeSlider) Full() Extent { return s.cfg.Full }

// Values returns the current thumb positions.
func (s *TimeSlider) Values() Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// SetValues moves the thumbs, clamped to the full extent.
func (s *TimeSlider) SetValues(e Extent) (Extent, error) {
	if e.End.Before(e.Start) {
		return Extent{}, ErrBadExtent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = s.clamp(e)
	return s.values, nil
}

// SetEnd drags the end thumb only.
func (s *TimeSlider) SetEnd(t time.Time) Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = s.clamp(Extent{Start: s.values.Start, End: t})
	return s.values
}

// Step advances the window by one stop. It returns false once the end
// thumb is already at the end of the full extent.
func (s *TimeSlider) Step() (Extent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.values.End.Before(s.cfg.Full.End) {
		return s.values, false
	}
	s.values = s.clamp(Extent{
		Start: s.values.Start.Add(s.cfg.Stop),
		End:   s.values.End.Add(s.cfg.Stop),
	})
	return s.values, true
}

// Filter returns the time filter for the current end thumb.
func (s *TimeSlider) Filter(field string) Filter {
	return Until(field, s.Values().End)
}

// Effect returns the render effect for the current window.
func (s *TimeSlider) Effect() Effect {
	return Effect{Included: s.Values(), Excluded: ExcludedEffect}
}

// Play steps the slider every PlayRate until the full extent is exhausted
// or ctx is done, calling fn after each step.
func (s *TimeSlider) Play(ctx context.Context, fn func(Extent)) error {
	ticker := time.NewTicker(s.cfg.PlayRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e, moved := s.Step()
			if !moved {
				return nil
			}
			if fn != nil {
				fn(e)
			}
		}
	}
}
