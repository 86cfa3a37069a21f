package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jharlow/foreman/pkg/models"
)

// Memory is an in-memory IssueTracker used by tests and dry runs. It also
// exposes the authoring operations a real tracker would: creating items,
// recording results, and adding annotations.
type Memory struct {
	mu          sync.RWMutex
	items       map[string]*models.WorkItem
	results     map[string]ResultRef
	documents   map[string][]byte
	annotations []Annotation
	statusLog   map[string][]string

	// Unavailable simulates a tracker outage: every call fails with
	// ErrUnavailable while set.
	Unavailable bool
}

// Compile-time verification that Memory implements the tracker interfaces.
var (
	_ IssueTracker     = (*Memory)(nil)
	_ ItemReader       = (*Memory)(nil)
	_ ResultWriter     = (*Memory)(nil)
	_ CheckpointStore  = (*Memory)(nil)
	_ AnnotationSource = (*Memory)(nil)
)

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{
		items:     make(map[string]*models.WorkItem),
		results:   make(map[string]ResultRef),
		documents: make(map[string][]byte),
		statusLog: make(map[string][]string),
	}
}

// PutItem stores (or replaces) a work item.
func (m *Memory) PutItem(item *models.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.items[item.ID] = &copied
}

// SetResult records the observed result for a task.
func (m *Memory) SetResult(ctx context.Context, id string, ref ResultRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrUnavailable
	}
	m.results[id] = ref
	return nil
}

// AddAnnotation appends an operator annotation.
func (m *Memory) AddAnnotation(ts time.Time, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotations = append(m.annotations, Annotation{Timestamp: ts, Text: text})
}

// StatusLog returns the status notes posted against an item.
func (m *Memory) StatusLog(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.statusLog[id]...)
}

// FetchItem returns a copy of the stored item.
func (m *Memory) FetchItem(ctx context.Context, id string) (*models.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return nil, ErrUnavailable
	}
	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *item
	return &copied, nil
}

// FetchChildren returns the declared child ids of an item.
func (m *Memory) FetchChildren(ctx context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return nil, ErrUnavailable
	}
	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), item.Children...), nil
}

// FetchResultRef returns the observed result for a task.
func (m *Memory) FetchResultRef(ctx context.Context, id string) (ResultRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return ResultRef{}, ErrUnavailable
	}
	ref, ok := m.results[id]
	if !ok {
		return ResultRef{State: ResultNone}, nil
	}
	return ref, nil
}

// UpsertCheckpoint overwrites the document at the marker.
func (m *Memory) UpsertCheckpoint(ctx context.Context, marker string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrUnavailable
	}
	m.documents[marker] = append([]byte(nil), doc...)
	return nil
}

// FetchCheckpoint returns the document at the marker.
func (m *Memory) FetchCheckpoint(ctx context.Context, marker string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return nil, ErrUnavailable
	}
	doc, ok := m.documents[marker]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// FetchAnnotationsSince returns annotations newer than since, oldest first.
func (m *Memory) FetchAnnotationsSince(ctx context.Context, since time.Time) ([]Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return nil, ErrUnavailable
	}
	var out []Annotation
	for _, a := range m.annotations {
		if a.Timestamp.After(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// PostStatus records a status note against an item.
func (m *Memory) PostStatus(ctx context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrUnavailable
	}
	m.statusLog[id] = append(m.statusLog[id], text)
	return nil
}
