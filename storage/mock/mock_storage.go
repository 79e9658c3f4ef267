// Package mock provides a mock storage.TokenRepository for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth-tokens/storage"
)

// MockTokenRepository is a mock implementation of TokenRepository. The
// default funcs keep records in maps without any expiry; replace a func
// field to inject failures.
type MockTokenRepository struct {
	mu      sync.Mutex
	records map[storage.Kind]map[string]storage.Record
	index   map[storage.Kind]map[string]string

	PutFunc     func(ctx context.Context, r storage.Record) error
	GetFunc     func(ctx context.Context, kind storage.Kind, id string) (storage.Record, error)
	LookupFunc  func(ctx context.Context, kind storage.Kind, secretHash string) (string, error)
	ConsumeFunc func(ctx context.Context, kind storage.Kind, id string) (storage.Record, error)
	DeleteFunc  func(ctx context.Context, kind storage.Kind, id string) error
	GetAllFunc  func(ctx context.Context, kind storage.Kind) ([]storage.Record, error)

	callsMu    sync.Mutex
	CallCounts map[string]int
}

var _ storage.TokenRepository = (*MockTokenRepository)(nil)

// NewMockTokenRepository creates a new mock repository with working defaults
func NewMockTokenRepository() *MockTokenRepository {
	m := &MockTokenRepository{
		records:    make(map[storage.Kind]map[string]storage.Record),
		index:      make(map[storage.Kind]map[string]string),
		CallCounts: make(map[string]int),
	}
	for _, k := range storage.Kinds {
		m.records[k] = make(map[string]storage.Record)
		m.index[k] = make(map[string]string)
	}

	m.PutFunc = func(_ context.Context, r storage.Record) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.records[r.Kind()][r.RecordID()] = storage.CloneRecord(r)
		m.index[r.Kind()][r.SecretHash()] = r.RecordID()
		return nil
	}

	m.GetFunc = func(_ context.Context, kind storage.Kind, id string) (storage.Record, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		r, ok := m.records[kind][id]
		if !ok {
			return nil, storage.ErrNotFound
		}
		return storage.CloneRecord(r), nil
	}

	m.LookupFunc = func(_ context.Context, kind storage.Kind, secretHash string) (string, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		id, ok := m.index[kind][secretHash]
		if !ok {
			return "", storage.ErrNotFound
		}
		return id, nil
	}

	m.ConsumeFunc = func(_ context.Context, kind storage.Kind, id string) (storage.Record, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		r, ok := m.records[kind][id]
		if !ok {
			return nil, storage.ErrNotFound
		}
		delete(m.records[kind], id)
		delete(m.index[kind], r.SecretHash())
		return r, nil
	}

	m.DeleteFunc = func(_ context.Context, kind storage.Kind, id string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if r, ok := m.records[kind][id]; ok {
			delete(m.records[kind], id)
			delete(m.index[kind], r.SecretHash())
		}
		return nil
	}

	m.GetAllFunc = func(_ context.Context, kind storage.Kind) ([]storage.Record, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		out := make([]storage.Record, 0, len(m.records[kind]))
		for _, r := range m.records[kind] {
			out = append(out, storage.CloneRecord(r))
		}
		return out, nil
	}

	return m
}

func (m *MockTokenRepository) count(method string) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.CallCounts[method]++
}

// Calls returns how often method was called
func (m *MockTokenRepository) Calls(method string) int {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return m.CallCounts[method]
}

// Records returns every stored record of every kind, for inspection in tests
func (m *MockTokenRepository) Records() []storage.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Record
	for _, k := range storage.Kinds {
		for _, r := range m.records[k] {
			out = append(out, storage.CloneRecord(r))
		}
	}
	return out
}

// Put implements TokenRepository
func (m *MockTokenRepository) Put(ctx context.Context, r storage.Record) error {
	m.count("Put")
	return m.PutFunc(ctx, r)
}

// Get implements TokenRepository
func (m *MockTokenRepository) Get(ctx context.Context, kind storage.Kind, id string) (storage.Record, error) {
	m.count("Get")
	return m.GetFunc(ctx, kind, id)
}

// Lookup implements TokenRepository
func (m *MockTokenRepository) Lookup(ctx context.Context, kind storage.Kind, secretHash string) (string, error) {
	m.count("Lookup")
	return m.LookupFunc(ctx, kind, secretHash)
}

// Consume implements TokenRepository
func (m *MockTokenRepository) Consume(ctx context.Context, kind storage.Kind, id string) (storage.Record, error) {
	m.count("Consume")
	return m.ConsumeFunc(ctx, kind, id)
}

// Delete implements TokenRepository
func (m *MockTokenRepository) Delete(ctx context.Context, kind storage.Kind, id string) error {
	m.count("Delete")
	return m.DeleteFunc(ctx, kind, id)
}

// GetAll implements TokenRepository
func (m *MockTokenRepository) GetAll(ctx context.Context, kind storage.Kind) ([]storage.Record, error) {
	m.count("GetAll")
	return m.GetAllFunc(ctx, kind)
}
