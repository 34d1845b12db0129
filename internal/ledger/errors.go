package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientFunds means available < requested amount. The ledger
	// state is unchanged.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// InconsistencyError is fatal for its (account, currency) pair: a
// hold/settle invariant was violated and the ledger halts further mutation
// on that pair until a manual reconciliation clears it.
type InconsistencyError struct {
	Account  string
	Currency string
	Detail   string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger: inconsistency on %s/%s: %s", e.Account, e.Currency, e.Detail)
}
