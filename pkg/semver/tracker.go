package semver

import (
	"fmt"
	"sync"
)

// Unsupported records one package whose versions could not be ordered.
type Unsupported struct {
	// Name is the package name.
	Name string
	// Reason explains why the package was skipped.
	Reason string
}

// UnsupportedTracker collects packages whose versions cannot be ordered, so
// they can be reported instead of silently mis-compared. Safe for concurrent
// use.
type UnsupportedTracker struct {
	mu      sync.Mutex
	entries []Unsupported
}

// NewUnsupportedTracker creates a new [UnsupportedTracker].
func NewUnsupportedTracker() *UnsupportedTracker {
	return &UnsupportedTracker{}
}

// Add records a package with the reason it cannot be updated automatically.
func (t *UnsupportedTracker) Add(name, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, Unsupported{Name: name, Reason: reason})
}

// Entries returns a snapshot of the recorded packages.
func (t *UnsupportedTracker) Entries() []Unsupported {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Unsupported, len(t.entries))
	copy(out, t.entries)

	return out
}

// Messages returns one human-readable line per recorded package.
func (t *UnsupportedTracker) Messages() []string {
	entries := t.Entries()

	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Name, e.Reason))
	}

	return msgs
}

// Len returns the number of recorded packages.
func (t *UnsupportedTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
