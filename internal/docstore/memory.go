package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryEngine is the in-memory store engine. It backs installs where the
// sqlite engine is unavailable and doubles as the test engine.
type MemoryEngine struct {
	mu   sync.Mutex
	docs map[string]Document
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{docs: make(map[string]Document)}
}

func (m *MemoryEngine) Name() string { return "memory" }

func (m *MemoryEngine) Get(_ context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *MemoryEngine) Put(_ context.Context, doc Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(doc)
}

func (m *MemoryEngine) putLocked(doc Document) (string, error) {
	existing, ok := m.docs[doc.ID]
	if ok && existing.Rev != doc.Rev {
		return "", ErrConflict
	}
	if !ok && doc.Rev != "" {
		return "", ErrConflict
	}

	rev := nextRev(doc.Rev)
	body, err := withRev(doc.Body, doc.ID, rev)
	if err != nil {
		return "", err
	}
	m.docs[doc.ID] = Document{ID: doc.ID, Rev: rev, Body: body}
	return rev, nil
}

func (m *MemoryEngine) Remove(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Rev != doc.Rev {
		return ErrConflict
	}
	delete(m.docs, doc.ID)
	return nil
}

func (m *MemoryEngine) BulkWrite(_ context.Context, docs []Document) []WriteResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]WriteResult, 0, len(docs))
	for _, doc := range docs {
		rev, err := m.putLocked(doc)
		results = append(results, WriteResult{ID: doc.ID, Rev: rev, Err: err})
	}
	return results
}

func (m *MemoryEngine) RangeScan(_ context.Context, startKey, endKey string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Document
	for id, doc := range m.docs {
		if id >= startKey && id <= endKey {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryEngine) AllDocs(_ context.Context) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryEngine) Destroy(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]Document)
	return nil
}

func (m *MemoryEngine) Close() error { return nil }
