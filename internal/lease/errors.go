package lease

import "github.com/leasehub/backend/internal/apperror"

// Lease errors. Each wraps an apperror category.
var (
	ErrLeaseNotFound     = apperror.NotFound("lease not found")
	ErrInvalidDates      = apperror.Validation("end date must be after start date")
	ErrInvalidAmount     = apperror.Validation("monthly rent and security deposit must be positive")
	ErrMissingField      = apperror.Validation("property, tenant and application are required")
	ErrMissingReason     = apperror.Validation("a reason is required")
	ErrInvalidDocument   = apperror.Validation("document needs a name, a storage url and kind pdf or image")
	ErrDocumentNotFound  = apperror.NotFound("document not found")
	ErrExpired           = apperror.Conflict("lease offer has expired")
	ErrAlreadyResponded  = apperror.Conflict("tenant has already responded to this lease")
	ErrInvalidTransition = apperror.Conflict("action is not valid in the lease's current status")
	ErrStaleVersion      = apperror.Conflict("lease was modified concurrently")
	ErrNotLandlord       = apperror.Forbidden("only the lease's landlord may do this")
	ErrNotTenant         = apperror.Forbidden("only the lease's tenant may do this")
)
