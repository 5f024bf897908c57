package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
)

// MemoryRepo is an in-memory Document Store used for local runs and tests.
// Values are cloned on the way in and out so callers never alias stored state.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]document.Document), now: time.Now}
}

func (m *MemoryRepo) Load(_ context.Context, id string) (document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return document.Document{}, document.ErrNotFound
}

func (m *MemoryRepo) Insert(_ context.Context, doc document.Document) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = document.NewID()
	}
	if _, exists := m.store[doc.ID]; exists {
		return document.Document{}, ErrConcurrentUpdate
	}
	now := m.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Revision = 1
	m.store[doc.ID] = doc.Clone()
	return doc, nil
}

func (m *MemoryRepo) Save(_ context.Context, doc document.Document) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[doc.ID]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	if cur.Revision != doc.Revision {
		return document.Document{}, ErrConcurrentUpdate
	}
	doc.Revision++
	doc.UpdatedAt = m.now()
	// access count is maintained out of band by IncrementAccess
	doc.AccessCount = cur.AccessCount
	m.store[doc.ID] = doc.Clone()
	return doc, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return document.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MemoryRepo) IncrementAccess(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return document.ErrNotFound
	}
	d.AccessCount++
	m.store[id] = d
	return nil
}

func (m *MemoryRepo) ListAccessibleTo(_ context.Context, identity string, page, pageSize int) ([]document.Document, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	all := m.accessible(identity, func(document.Document) bool { return true })
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []document.Document{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// FullTextSearch matches documents containing any query term in title or content.
func (m *MemoryRepo) FullTextSearch(_ context.Context, query, identity string, limit int) ([]document.Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []document.Document{}, nil
	}
	out := m.accessible(identity, func(d document.Document) bool {
		hay := strings.ToLower(d.Title + "\n" + d.Content)
		for _, t := range terms {
			if strings.Contains(hay, t) {
				return true
			}
		}
		return false
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// accessible returns matching readable documents, newest modification first.
func (m *MemoryRepo) accessible(identity string, match func(document.Document) bool) []document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]document.Document, 0, len(m.store))
	for _, d := range m.store {
		if document.HasReadAccess(d, identity) && match(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out
}
