package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Common errors
var (
	ErrInvalidInput  = errors.New("tenancy: invalid input")
	ErrInvalidStatus = errors.New("tenancy: invalid status transition")

	// Context errors
	ErrNoContext    = tenant.ErrNoContext
	ErrAccessDenied = tenant.ErrAccessDenied

	// Tenant errors
	ErrTenantNotFound     = tenant.ErrNotFound
	ErrTenantExists       = tenant.ErrAlreadyExists
	ErrMembershipNotFound = tenant.ErrMembershipNotFound
	ErrMembershipExists   = tenant.ErrMembershipExists

	// Plan errors
	ErrPlanNotFound = plan.ErrNotFound
	ErrInvalidPlan  = plan.ErrInvalidPlan

	// Usage errors
	ErrUsageNotFound = usage.ErrNotFound
	ErrInvalidMetric = usage.ErrInvalidMetric
	ErrInvalidDelta  = usage.ErrInvalidDelta
	ErrNoSources     = usage.ErrNoSources

	// Alert errors
	ErrAlertNotFound   = alert.ErrNotFound
	ErrDuplicateActive = alert.ErrDuplicateActive

	// Gate errors
	ErrFeatureDisabled  = gate.ErrFeatureDisabled
	ErrLimitExceeded    = gate.ErrLimitExceeded
	ErrPermissionDenied = gate.ErrPermissionDenied

	// Store errors
	ErrStoreNotReady     = errors.New("tenancy: store not ready")
	ErrStoreClosed       = errors.New("tenancy: store is closed")
	ErrTransactionFailed = errors.New("tenancy: transaction failed")
	ErrMigrationFailed   = errors.New("tenancy: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tenancy: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes validation failures match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tenancy: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tenancy: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error reports a missing record, including
// an unresolvable tenant context.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoContext) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrUsageNotFound) ||
		errors.Is(err, ErrAlertNotFound)
}

// IsAccessDenied returns true for blocked tenants, inactive memberships and
// gate denials. These map to 403.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalid returns true if the caller supplied bad input.
func IsInvalid(err error) bool {
	var verr ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrInvalidMetric) ||
		errors.Is(err, ErrInvalidDelta)
}

// IsConflict returns true if a uniqueness rule rejected the write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTenantExists) ||
		errors.Is(err, ErrMembershipExists) ||
		errors.Is(err, ErrDuplicateActive)
}

// IsInfrastructure returns true for errors that are none of the domain
// categories above: unreachable stores, timeouts and the like. These map
// to 5xx and must never be treated as a denial with an upgrade hint.
func IsInfrastructure(err error) bool {
	return err != nil &&
		!IsNotFound(err) &&
		!IsAccessDenied(err) &&
		!IsInvalid(err) &&
		!IsConflict(err)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, context.DeadlineExceeded)
}
