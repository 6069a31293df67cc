package payment

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/leasehub/backend/internal/lease"
)

// ExpiryScheduler periodically expires leases whose response or payment
// window has elapsed. Expired leases are broadcast through the lease
// service's event sink.
type ExpiryScheduler struct {
	cron   *cron.Cron
	leases *lease.Service
	spec   string
}

// NewExpiryScheduler creates a scheduler that sweeps every minute.
func NewExpiryScheduler(leases *lease.Service) *ExpiryScheduler {
	return &ExpiryScheduler{
		cron:   cron.New(cron.WithSeconds()),
		leases: leases,
		spec:   "@every 1m",
	}
}

// Start begins the expiry sweep.
func (s *ExpiryScheduler) Start() error {
	log.Println("Starting lease expiry scheduler...")

	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	log.Println("Lease expiry scheduler started")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *ExpiryScheduler) Stop() {
	log.Println("Stopping lease expiry scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Lease expiry scheduler stopped")
}

// Sweep expires overdue leases once and returns how many changed.
func (s *ExpiryScheduler) Sweep(ctx context.Context) int {
	expired, err := s.leases.ExpireOverdue(ctx)
	if err != nil {
		log.Printf("Failed to expire overdue leases: %v", err)
		return 0
	}

	for _, l := range expired {
		log.Printf("Expired lease %s (property %s, tenant %s)", l.ID, l.PropertyID, l.TenantID)
	}
	return len(expired)
}
