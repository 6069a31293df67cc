package lease

import (
	"context"
	"sort"
	"sync"

	"github.com/leasehub/backend/internal/storage/models"
)

// Store persists lease agreements.
//
// Put inserts a lease whose Version is zero and otherwise replaces the stored
// lease only if its version still matches, returning ErrStaleVersion when it
// does not. On success Version is incremented on the caller's copy.
type Store interface {
	Get(ctx context.Context, id string) (*models.LeaseAgreement, error)
	Put(ctx context.Context, l *models.LeaseAgreement) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, match func(*models.LeaseAgreement) bool) ([]models.LeaseAgreement, error)
}

// MemoryStore is an in-memory Store used in tests and demo mode.
type MemoryStore struct {
	mu     sync.RWMutex
	leases map[string]*models.LeaseAgreement
}

// NewMemoryStore creates an empty in-memory lease store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[string]*models.LeaseAgreement)}
}

// Get returns a copy of the lease, or nil if it does not exist.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.LeaseAgreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.leases[id]
	if !ok {
		return nil, nil
	}
	return l.Clone(), nil
}

// Put inserts or version-checks and replaces the lease.
func (m *MemoryStore) Put(ctx context.Context, l *models.LeaseAgreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.leases[l.ID]
	switch {
	case l.Version == 0 && exists:
		return ErrStaleVersion
	case l.Version != 0 && (!exists || current.Version != l.Version):
		return ErrStaleVersion
	}

	l.Version++
	m.leases[l.ID] = l.Clone()
	return nil
}

// Delete removes the lease.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leases[id]; !ok {
		return ErrLeaseNotFound
	}
	delete(m.leases, id)
	return nil
}

// List returns copies of all leases accepted by match, newest first.
func (m *MemoryStore) List(ctx context.Context, match func(*models.LeaseAgreement) bool) ([]models.LeaseAgreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LeaseAgreement
	for _, l := range m.leases {
		if match == nil || match(l) {
			out = append(out, *l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
