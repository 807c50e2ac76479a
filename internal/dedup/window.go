package dedup

import (
	"sync"
	"time"
)

// DefaultSpan is how far back stored articles count as already seen.
const DefaultSpan = 24 * time.Hour

// Window is the set of URLs treated as present during one pipeline run.
// It lives for a single run and is never persisted.
type Window struct {
	URLs map[string]bool
	mu   sync.Mutex
}

func NewWindow() *Window {
	return &Window{
		URLs: make(map[string]bool),
	}
}

// Since is the inclusive lower bound of the seeding period.
func Since(now time.Time, span time.Duration) time.Time {
	return now.Add(-span)
}

func (w *Window) Seed(urls []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, u := range urls {
		w.URLs[u] = true
	}
}

func (w *Window) Contains(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.URLs[url]
}

// Add reports whether url was new. Adding an existing URL is a no-op.
func (w *Window) Add(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.URLs[url] {
		return false
	}
	w.URLs[url] = true
	return true
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.URLs)
}
