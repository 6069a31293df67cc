package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage/models"
)

// PaymentRepository stores settled payments. It implements payment.Store.
type PaymentRepository struct {
	BaseRepository
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{BaseRepository: NewBaseRepository(db)}
}

// GetByLease returns the payment that settled the lease, or nil.
func (r *PaymentRepository) GetByLease(ctx context.Context, leaseID string) (*models.Payment, error) {
	p := &models.Payment{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT id, lease_id, payer_id, amount, method, paid_at
		FROM payments WHERE lease_id = ?
	`, leaseID).Scan(&p.ID, &p.LeaseID, &p.PayerID, &p.Amount, &p.Method, &p.PaidAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return p, nil
}

// Settle writes the activated lease and the payment in one transaction.
// The lease update is version-checked and lease_id is unique on payments,
// so a concurrent settlement of the same lease fails as a whole.
func (r *PaymentRepository) Settle(ctx context.Context, l *models.LeaseAgreement, p *models.Payment) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}

	err := r.Transaction(ctx, func(tx *sql.Tx) error {
		if err := putLease(ctx, tx, l); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, lease_id, payer_id, amount, method, paid_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, p.LeaseID, p.PayerID, p.Amount, p.Method, p.PaidAt)
		if isUniqueViolation(err) {
			return lease.ErrStaleVersion
		}
		if err != nil {
			return fmt.Errorf("inserting payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Version++
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
