package ledger

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind discriminates ledger entry types.
type Kind string

const (
	KindCredit  Kind = "credit"
	KindDebit   Kind = "debit"
	KindHold    Kind = "hold"
	KindRelease Kind = "release"
	KindSettle  Kind = "settle"
)

// Entry is an immutable record of a single ledger mutation. Entries are
// never updated or deleted; balances are derivable by replaying them but are
// maintained incrementally.
type Entry struct {
	ID            string    `json:"id"`
	Account       string    `json:"account"`
	Currency      string    `json:"currency"`
	Delta         int64     `json:"delta"` // minor units; sign follows available-balance impact
	Kind          Kind      `json:"kind"`
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// newEntry stamps a ULID so entries sort by creation time.
func newEntry(account, currency string, delta int64, kind Kind, reason, correlationID string) Entry {
	return Entry{
		ID:            ulid.Make().String(),
		Account:       account,
		Currency:      currency,
		Delta:         delta,
		Kind:          kind,
		Reason:        reason,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}
