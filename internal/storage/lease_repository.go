package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage/models"
)

const leaseColumns = `
	id, property_id, tenant_id, landlord_id, application_id,
	start_date, end_date, monthly_rent, security_deposit, documents,
	status, rejection_reason, termination_reason, terminated_at,
	payment_status, payment_amount, paid_at,
	response_deadline, acceptance_deadline, sent_to_tenant_at, tenant_responded_at,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// LeaseRepository stores lease agreements in SQLite. It implements lease.Store.
type LeaseRepository struct {
	BaseRepository
}

var _ lease.Store = (*LeaseRepository)(nil)

// NewLeaseRepository creates a new lease repository.
func NewLeaseRepository(db *DB) *LeaseRepository {
	return &LeaseRepository{BaseRepository: NewBaseRepository(db)}
}

// Get retrieves a lease by ID. Returns nil if it does not exist.
func (r *LeaseRepository) Get(ctx context.Context, id string) (*models.LeaseAgreement, error) {
	row := r.DB().QueryRowContext(ctx, "SELECT "+leaseColumns+" FROM leases WHERE id = ?", id)
	l, err := scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying lease: %w", err)
	}
	return l, nil
}

// Put inserts a new lease or performs a version-checked update.
func (r *LeaseRepository) Put(ctx context.Context, l *models.LeaseAgreement) error {
	if err := putLease(ctx, r.DB(), l); err != nil {
		return err
	}
	l.Version++
	return nil
}

// Delete removes a lease.
func (r *LeaseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM leases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting lease: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return lease.ErrLeaseNotFound
	}
	return nil
}

// List returns leases accepted by match, newest first. A nil match returns all.
func (r *LeaseRepository) List(ctx context.Context, match func(*models.LeaseAgreement) bool) ([]models.LeaseAgreement, error) {
	rows, err := r.DB().QueryContext(ctx, "SELECT "+leaseColumns+" FROM leases ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("querying leases: %w", err)
	}
	defer rows.Close()

	var leases []models.LeaseAgreement
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lease: %w", err)
		}
		if match == nil || match(l) {
			leases = append(leases, *l)
		}
	}
	return leases, rows.Err()
}

// putLease writes l without touching l.Version, so a caller inside a
// transaction only bumps it after commit.
func putLease(ctx context.Context, q Queryable, l *models.LeaseAgreement) error {
	docs, err := json.Marshal(documentsOrEmpty(l.Documents))
	if err != nil {
		return fmt.Errorf("encoding documents: %w", err)
	}

	if l.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO leases (`+leaseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`,
			l.ID, l.PropertyID, l.TenantID, l.LandlordID, l.ApplicationID,
			l.StartDate, l.EndDate, l.MonthlyRent, l.SecurityDeposit, string(docs),
			l.Status, l.RejectionReason, l.TerminationReason, l.TerminatedAt,
			l.PaymentStatus, l.PaymentAmount, l.PaidAt,
			l.ResponseDeadline, l.AcceptanceDeadline, l.SentToTenantAt, l.TenantRespondedAt,
			l.CreatedAt, l.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting lease: %w", err)
		}
		return nil
	}

	result, err := q.ExecContext(ctx, `
		UPDATE leases SET
			start_date = ?, end_date = ?, monthly_rent = ?, security_deposit = ?, documents = ?,
			status = ?, rejection_reason = ?, termination_reason = ?, terminated_at = ?,
			payment_status = ?, payment_amount = ?, paid_at = ?,
			response_deadline = ?, acceptance_deadline = ?, sent_to_tenant_at = ?, tenant_responded_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		l.StartDate, l.EndDate, l.MonthlyRent, l.SecurityDeposit, string(docs),
		l.Status, l.RejectionReason, l.TerminationReason, l.TerminatedAt,
		l.PaymentStatus, l.PaymentAmount, l.PaidAt,
		l.ResponseDeadline, l.AcceptanceDeadline, l.SentToTenantAt, l.TenantRespondedAt,
		l.UpdatedAt, l.ID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("updating lease: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return lease.ErrStaleVersion
	}
	return nil
}

func scanLease(row rowScanner) (*models.LeaseAgreement, error) {
	l := &models.LeaseAgreement{}
	var docs string

	err := row.Scan(
		&l.ID, &l.PropertyID, &l.TenantID, &l.LandlordID, &l.ApplicationID,
		&l.StartDate, &l.EndDate, &l.MonthlyRent, &l.SecurityDeposit, &docs,
		&l.Status, &l.RejectionReason, &l.TerminationReason, &l.TerminatedAt,
		&l.PaymentStatus, &l.PaymentAmount, &l.PaidAt,
		&l.ResponseDeadline, &l.AcceptanceDeadline, &l.SentToTenantAt, &l.TenantRespondedAt,
		&l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(docs), &l.Documents); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	return l, nil
}

func documentsOrEmpty(docs []models.LeaseDocument) []models.LeaseDocument {
	if docs == nil {
		return []models.LeaseDocument{}
	}
	return docs
}
