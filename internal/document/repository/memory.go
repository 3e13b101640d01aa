package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
)

// ErrDuplicateID is returned by Insert when the id is already taken.
var ErrDuplicateID = errors.New("document id already exists")

// MemoryRepo is an in-memory repository used for development and unit
// tests. Stored documents are cloned on the way in and out.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Insert(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[d.ID]; ok {
		return ErrDuplicateID
	}
	m.store[d.ID] = d.Clone()
	return nil
}

func (m *MemoryRepo) Update(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[d.ID]
	if !ok {
		return ErrNotFound
	}
	next := d.Clone()
	next.Log = cur.Log
	m.store[d.ID] = next
	return nil
}

func (m *MemoryRepo) InsertLogEntry(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[e.DocumentID]
	if !ok {
		return ErrNotFound
	}
	if cur.Log.Contains(e.ID) {
		return nil
	}
	cur.Log = cur.Log.Append(e)
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MemoryRepo) ReferenceNumbers(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, d := range m.store {
		if strings.HasPrefix(d.ReferenceNumber, prefix) {
			out = append(out, d.ReferenceNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}
