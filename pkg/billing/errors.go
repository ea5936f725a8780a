package billing

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every failure surfaced by the store or the lifecycle
// service matches exactly one category with errors.Is.
var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrInvalidState    = errors.New("invalid invoice state")
	ErrValidation      = errors.New("validation failed")
	ErrStoreFailure    = errors.New("store failure")

	// ErrReconciliationNotOK refines ErrInvalidState for a finalize attempt
	// whose reconciliation verdict was not OK.
	ErrReconciliationNotOK = errors.New("reconciliation verdict not OK")

	// ErrStatusConflict is returned by InvoiceStore.UpdateStatus when the row
	// was not in the expected status at write time.
	ErrStatusConflict = errors.New("invoice status changed concurrently")
)

// Rejection reasons carried by TransitionError
const (
	ReasonMissingActor      = "MISSING_ACTOR"
	ReasonNotFound          = "NOT_FOUND"
	ReasonWrongSourceState  = "WRONG_SOURCE_STATE"
	ReasonConcurrentChange  = "CONCURRENT_STATE_CHANGE"
	ReasonReconciliationNot = "RECONCILIATION_NOT_OK"
	ReasonStoreFailure      = "STORE_FAILURE"
)

// TransitionError is returned by every rejected lifecycle operation
type TransitionError struct {
	InvoiceID int64
	Op        string
	From      InvoiceStatus
	Reason    string
	Details   []string
	Err       error
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s invoice %d: %s", e.Op, e.InvoiceID, strings.ToLower(e.Reason))
	if e.From != "" {
		fmt.Fprintf(&b, " (status %s)", e.From)
	}
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Err != nil && e.Reason == ReasonStoreFailure {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the category sentinel plus the underlying cause
func (e *TransitionError) Unwrap() []error {
	errs := []error{categoryFor(e.Reason)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func categoryFor(reason string) error {
	switch reason {
	case ReasonMissingActor:
		return ErrValidation
	case ReasonNotFound:
		return ErrInvoiceNotFound
	case ReasonWrongSourceState, ReasonConcurrentChange:
		return ErrInvalidState
	case ReasonReconciliationNot:
		return errors.Join(ErrInvalidState, ErrReconciliationNotOK)
	default:
		return ErrStoreFailure
	}
}

// IsNotFound returns true if err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound)
}

// IsInvalidState returns true if err is a rejected transition precondition
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsValidation returns true if err is a malformed-input error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
