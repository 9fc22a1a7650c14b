package variant

import (
	"context"
	"sort"
	"sync"
)

// Entry is one stored variant.
type Entry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Index records which variants exist for a source object.
type Index interface {
	Add(ctx context.Context, sourceKey string, e Entry) error
	// Smallest returns the narrowest entry at least minWidth wide and
	// minHeight tall.
	Smallest(ctx context.Context, sourceKey string, minWidth, minHeight int) (Entry, bool, error)
	List(ctx context.Context, sourceKey string) ([]Entry, error)
	Delete(ctx context.Context, sourceKey string) error
}

type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]Entry)}
}

func (m *MemoryIndex) Add(_ context.Context, sourceKey string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries[sourceKey]
	for i := range entries {
		if entries[i].Width == e.Width {
			entries[i] = e
			return nil
		}
	}
	entries = append(entries, e)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Width < entries[j].Width })
	m.entries[sourceKey] = entries
	return nil
}

func (m *MemoryIndex) Smallest(_ context.Context, sourceKey string, minWidth, minHeight int) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := firstFitting(m.entries[sourceKey], minWidth, minHeight)
	return e, ok, nil
}

// firstFitting scans entries ordered by width.
func firstFitting(entries []Entry, minWidth, minHeight int) (Entry, bool) {
	for _, e := range entries {
		if e.Width >= minWidth && e.Height >= minHeight {
			return e, true
		}
	}
	return Entry{}, false
}

func (m *MemoryIndex) List(_ context.Context, sourceKey string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Entry(nil), m.entries[sourceKey]...), nil
}

func (m *MemoryIndex) Delete(_ context.Context, sourceKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, sourceKey)
	return nil
}
