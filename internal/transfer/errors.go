package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount rejects transfers of zero or negative amounts before
	// any state is touched.
	ErrInvalidAmount = errors.New("transfer: amount must be positive")

	// ErrCredentialMismatch means the keystore has no credential for the
	// sender, or its derived address does not equal the resolved sender
	// address.
	ErrCredentialMismatch = errors.New("transfer: credential missing or does not match sender address")

	// ErrTimeout means the settlement network did not confirm within the
	// caller's bound. The hold has been released.
	ErrTimeout = errors.New("transfer: settlement confirmation timed out")
)

// ResolutionError reports an identifier that could not be resolved to a
// canonical address.
type ResolutionError struct {
	Identifier string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("transfer: cannot resolve %q to an address", e.Identifier)
}

// SubmissionError wraps a settlement-network failure after funds were held.
// The hold has been released by the time the caller sees it.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("transfer: settlement submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
