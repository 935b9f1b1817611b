package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/formsync/internal/models"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu      sync.Mutex
	docs    map[string]map[string]models.Document
	errors  map[string]error
	upserts int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	m := &MockStore{
		docs:   make(map[string]map[string]models.Document),
		errors: make(map[string]error),
	}
	for _, c := range Collections {
		m.docs[c] = make(map[string]models.Document)
	}
	return m
}

// FailCollection makes every upsert into collection fail with err; nil clears it.
func (m *MockStore) FailCollection(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, collection)
		return
	}
	m.errors[collection] = err
}

// Upserts returns the number of upsert calls that succeeded.
func (m *MockStore) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// All returns a copy of every document in collection.
func (m *MockStore) All(collection string) []models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Document, 0, len(m.docs[collection]))
	for _, d := range m.docs[collection] {
		out = append(out, merge(d, nil, nil))
	}
	return out
}

func (m *MockStore) Upsert(ctx context.Context, collection string, filter Filter, doc models.Document) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.errors[collection]; ok {
		return &models.StorageError{Op: "upsert " + collection, Err: err}
	}

	key := filter.key()
	m.docs[collection][key] = merge(m.docs[collection][key], filter, doc)
	m.upserts++
	return nil
}

func (m *MockStore) Get(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][filter.key()]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", collection, filter.key(), models.ErrNotFound)
	}
	return merge(doc, nil, nil), nil
}

func (m *MockStore) Count(ctx context.Context, collection string) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection]), nil
}

func (m *MockStore) Close() error {
	return nil
}
