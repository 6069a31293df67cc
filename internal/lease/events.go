package lease

import (
	"context"
	"time"

	"github.com/leasehub/backend/internal/storage/models"
)

// Event describes a persisted lease change.
type Event struct {
	Lease          models.LeaseAgreement
	PreviousStatus string
	ActorID        string // empty for system transitions such as expiry
	At             time.Time
}

// EventSink receives lease changes after they are persisted.
type EventSink interface {
	LeaseChanged(ctx context.Context, ev Event)
}

type nopSink struct{}

func (nopSink) LeaseChanged(context.Context, Event) {}
