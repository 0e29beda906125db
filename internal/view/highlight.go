package view

import (
	"slices"
	"sync"
)

// Highlight is a handle on one highlighted feature.
type Highlight struct {
	view *LayerView
	id   int64
	once sync.Once
}

// ObjectID returns the highlighted feature's id.
func (h *Highlight) ObjectID() int64 { return h.id }

// Remove drops the highlight. Calling it more than once is a no-op.
func (h *Highlight) Remove() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		v := h.view
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.highlights[h.id] <= 1 {
			delete(v.highlights, h.id)
			return
		}
		v.highlights[h.id]--
	})
}

// Highlight marks a feature as highlighted until the handle is removed.
func (v *LayerView) Highlight(id int64) *Highlight {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlights[id]++
	return &Highlight{view: v, id: id}
}

// Highlighted returns the ids with at least one live highlight.
func (v *LayerView) Highlighted() []int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]int64, 0, len(v.highlights))
	for id := range v.highlights {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
