package payment

import (
	"context"
	"sync"

	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage/models"
)

// Store persists settled payments.
type Store interface {
	// GetByLease returns the payment that settled a lease, or nil.
	GetByLease(ctx context.Context, leaseID string) (*models.Payment, error)

	// Settle writes the activated lease (version-checked) and the payment
	// record as one unit. Nothing is written if either part fails.
	Settle(ctx context.Context, l *models.LeaseAgreement, p *models.Payment) error
}

// MemoryStore is an in-memory Store that settles against a lease.MemoryStore.
type MemoryStore struct {
	mu       sync.Mutex
	leases   *lease.MemoryStore
	payments map[string]models.Payment
}

// NewMemoryStore creates an in-memory payment store.
func NewMemoryStore(leases *lease.MemoryStore) *MemoryStore {
	return &MemoryStore{
		leases:   leases,
		payments: make(map[string]models.Payment),
	}
}

// GetByLease returns the lease's payment, or nil.
func (m *MemoryStore) GetByLease(ctx context.Context, leaseID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[leaseID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Settle stores the lease and the payment.
func (m *MemoryStore) Settle(ctx context.Context, l *models.LeaseAgreement, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[l.ID]; ok {
		return lease.ErrStaleVersion
	}
	if err := m.leases.Put(ctx, l); err != nil {
		return err
	}
	m.payments[l.ID] = *p
	return nil
}
