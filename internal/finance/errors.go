// Package finance defines the error model shared by the ledger and
// settlement engine. Expected business-rule failures are returned as
// *Error values carrying a machine-readable kind and code so callers can
// render them without a generic error boundary; infrastructure failures
// propagate as plain errors and abort the enclosing transaction.
package finance

import (
	"errors"
	"fmt"
)

// Kind classifies an expected engine failure.
type Kind string

const (
	// KindValidation covers input that violates an invariant before any write.
	KindValidation Kind = "VALIDATION"
	// KindStateConflict covers entities not in the required lifecycle state.
	KindStateConflict Kind = "STATE_CONFLICT"
	// KindConcurrency covers optimistic-lock failures; the UI should prompt
	// refresh-and-retry rather than treat these as permanent rejections.
	KindConcurrency Kind = "CONCURRENCY_CONFLICT"
	// KindNotFound covers missing ids, including ids outside tenant scope.
	KindNotFound Kind = "NOT_FOUND"
	// KindBusinessRule covers domain guards such as insufficient balance.
	KindBusinessRule Kind = "BUSINESS_RULE"
)

// Stable failure codes surfaced to callers.
const (
	CodeUnbalanced                 = "UNBALANCED"
	CodeInvalidTransition          = "INVALID_TRANSITION"
	CodePeriodNotFound             = "PERIOD_NOT_FOUND"
	CodePeriodClosed               = "PERIOD_CLOSED"
	CodeAlreadyClosed              = "ALREADY_CLOSED"
	CodeHasDraftEntries            = "HAS_DRAFT_ENTRIES"
	CodeEntryNotFound              = "ENTRY_NOT_FOUND"
	CodeNotPosted                  = "NOT_POSTED"
	CodeTemplateMissing            = "TEMPLATE_MISSING"
	CodeAlreadyGenerated           = "ALREADY_GENERATED"
	CodeSourceNotFound             = "SOURCE_NOT_FOUND"
	CodeReceiptNotFound            = "RECEIPT_NOT_FOUND"
	CodeReceiptNotUsable           = "RECEIPT_NOT_USABLE"
	CodeStatementsNotFound         = "STATEMENTS_NOT_FOUND"
	CodeStatementsAlreadySettled   = "STATEMENTS_ALREADY_SETTLED"
	CodeNoAvailableBalance         = "NO_AVAILABLE_BALANCE"
	CodeAllocationExceedsAvailable = "ALLOCATION_EXCEEDS_AVAILABLE"
	CodeConcurrentModification     = "CONCURRENT_MODIFICATION"
	CodeBillNotFound               = "BILL_NOT_FOUND"
	CodeNotAuditable               = "NOT_AUDITABLE"
	CodeAccountNotFound            = "ACCOUNT_NOT_FOUND"
	CodeInsufficientBalance        = "INSUFFICIENT_BALANCE"
)

// Error is a structured engine failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("finance: %s: %s", e.Code, e.Message)
}

// Errf builds a structured failure with a formatted message.
func Errf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind, reporting false for plain errors.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// HasCode reports whether err carries the given failure code.
func HasCode(err error, code string) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}
