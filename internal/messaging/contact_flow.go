package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/storage/models"
)

// ContactState is a step of the "contact landlord" flow.
type ContactState string

// Contact flow states
const (
	ContactChecking ContactState = "checking"
	ContactExisting ContactState = "existing"
	ContactCompose  ContactState = "compose"
	ContactSending  ContactState = "sending"
	ContactSent     ContactState = "sent"
	ContactError    ContactState = "error"
)

// ErrFlowTransition is returned for a step the current state does not allow.
var ErrFlowTransition = apperror.Conflict("invalid contact flow transition")

// ContactFlow is the state of a tenant contacting a landlord about a
// property. Transitions return a new value and never mutate the receiver.
type ContactFlow struct {
	State          ContactState `json:"state"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Draft          string       `json:"draft,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// NewContactFlow starts in the checking state.
func NewContactFlow() ContactFlow {
	return ContactFlow{State: ContactChecking}
}

// Checked moves out of checking: to existing when a conversation was
// found, otherwise to compose.
func (f ContactFlow) Checked(existing *models.Conversation) (ContactFlow, error) {
	if f.State != ContactChecking {
		return f, f.invalid("checked")
	}
	if existing != nil {
		return ContactFlow{State: ContactExisting, ConversationID: existing.ID}, nil
	}
	return ContactFlow{State: ContactCompose}, nil
}

// Submit moves a non-empty draft from compose to sending. An empty draft
// keeps the flow in compose.
func (f ContactFlow) Submit(draft string) (ContactFlow, error) {
	if f.State != ContactCompose {
		return f, f.invalid("submit")
	}
	if strings.TrimSpace(draft) == "" {
		return f, ErrEmptyMessage
	}
	return ContactFlow{State: ContactSending, Draft: draft}, nil
}

// Sent completes the flow with the conversation the message went to.
func (f ContactFlow) Sent(conv *models.Conversation) (ContactFlow, error) {
	if f.State != ContactSending {
		return f, f.invalid("sent")
	}
	return ContactFlow{State: ContactSent, ConversationID: conv.ID}, nil
}

// Failed records an error from checking or sending. The draft is kept so
// Retry can restore it.
func (f ContactFlow) Failed(err error) (ContactFlow, error) {
	if f.State != ContactChecking && f.State != ContactSending {
		return f, f.invalid("failed")
	}
	return ContactFlow{State: ContactError, Draft: f.Draft, Error: apperror.Message(err)}, nil
}

// Retry returns from error to compose with the previous draft.
func (f ContactFlow) Retry() (ContactFlow, error) {
	if f.State != ContactError {
		return f, f.invalid("retry")
	}
	return ContactFlow{State: ContactCompose, Draft: f.Draft}, nil
}

// Done reports whether the flow reached a resting state.
func (f ContactFlow) Done() bool {
	return f.State == ContactExisting || f.State == ContactSent
}

func (f ContactFlow) invalid(step string) error {
	return fmt.Errorf("%w: %s from %s", ErrFlowTransition, step, f.State)
}

// Contact runs the contact flow for a tenant: it looks up an existing
// conversation and otherwise starts one with the given message. The
// returned flow is in existing, sent, compose (empty message) or error.
func (s *Service) Contact(ctx context.Context, actor auth.Actor, req StartRequest) ContactFlow {
	flow := NewContactFlow()

	existing, err := s.Find(ctx, actor, req.PropertyID)
	if err != nil {
		flow, _ = flow.Failed(err)
		return flow
	}
	if flow, err = flow.Checked(existing); err != nil || flow.State == ContactExisting {
		return flow
	}

	next, err := flow.Submit(req.Message)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			flow.Error = apperror.Message(err)
		}
		return flow
	}
	flow = next

	conv, _, err := s.Start(ctx, actor, req)
	if err != nil {
		flow, _ = flow.Failed(err)
		return flow
	}
	flow, _ = flow.Sent(conv)
	return flow
}
