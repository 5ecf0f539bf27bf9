package docstore

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Memory is a mutex-guarded in-process Store used by tests and the dev setup.
// Faults can be injected per operation to exercise error paths.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	uniqueKeys  map[string]map[string]bool
	writes      int

	// When set, the corresponding operation fails with the given error.
	GetErr   error
	QueryErr error
	WriteErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]map[string]any),
		uniqueKeys:  make(map[string]map[string]bool),
	}
}

// WriteCount reports how many documents have been written since creation.
func (m *Memory) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return Doc{}, m.GetErr
	}
	data, ok := m.collections[collection][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return Doc{ID: id, Data: copyDoc(data)}, nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters map[string]any, limit int) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var docs []Doc
	for id, data := range m.collections[collection] {
		if !matches(data, filters) {
			continue
		}
		docs = append(docs, Doc{ID: id, Data: copyDoc(data)})
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, nil
}

func (m *Memory) Put(ctx context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.set(collection, id, data)
	return nil
}

func (m *Memory) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	id := uuid.NewString()
	m.set(collection, id, data)
	return id, nil
}

func (m *Memory) AddUnique(ctx context.Context, collection, uniqueKey string, data map[string]any) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return "", false, m.WriteErr
	}
	keys := m.uniqueKeys[collection]
	if keys == nil {
		keys = make(map[string]bool)
		m.uniqueKeys[collection] = keys
	}
	if keys[uniqueKey] {
		return "", false, nil
	}
	keys[uniqueKey] = true
	id := uuid.NewString()
	m.set(collection, id, data)
	return id, true, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) BatchSet(ctx context.Context, docs []BatchDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	for _, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		m.set(d.Collection, id, d.Data)
	}
	return nil
}

// set assumes the caller holds the mutex.
func (m *Memory) set(collection, id string, data map[string]any) {
	col := m.collections[collection]
	if col == nil {
		col = make(map[string]map[string]any)
		m.collections[collection] = col
	}
	col[id] = copyDoc(data)
	m.writes++
}

func matches(data, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := data[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func copyDoc(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
