// Package router maps a file location to the collection root that owns it.
package router

import (
	"sync"

	"github.com/pkms-dev/pkms/internal/location"
)

// Router is a longest-prefix matcher over candidate locations.
// It is safe for concurrent use.
type Router struct {
	mu         sync.RWMutex
	candidates []location.FileLocation
}

// New creates a Router over candidates, in registration order.
func New(candidates ...location.FileLocation) *Router {
	r := &Router{}
	r.Reset(candidates...)
	return r
}

// Reset replaces the candidate list.
func (r *Router) Reset(candidates ...location.FileLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append([]location.FileLocation(nil), candidates...)
}

// Add registers another candidate and returns its index.
func (r *Router) Add(candidate location.FileLocation) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, candidate)
	return len(r.candidates) - 1
}

// Len returns the number of candidates.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.candidates)
}

// MatchIndex returns the index of the candidate with the same scheme and
// authority as target whose segments are the strictly longest prefix of
// target's segments. Among equal-length prefixes the first registered
// candidate wins.
func (r *Router) MatchIndex(target location.FileLocation) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.match(target)
}

func (r *Router) match(target location.FileLocation) (int, bool) {
	segs := target.Segments()
	best, bestLen := -1, -1
	for i, c := range r.candidates {
		if !c.SameOrigin(target) {
			continue
		}
		cs := c.Segments()
		if !segs.HasPrefix(cs) {
			continue
		}
		if n := cs.Len(); n > bestLen {
			best, bestLen = i, n
		}
	}
	return best, best >= 0
}

// FindMatch is MatchIndex returning the candidate itself.
func (r *Router) FindMatch(target location.FileLocation) (int, location.FileLocation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.match(target)
	if !ok {
		return -1, location.FileLocation{}, false
	}
	return i, r.candidates[i], true
}
