package transfer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/store"
)

// JournalStore is the slice of the persistent store the journal writes
// through to. Records must survive a process restart; the in-memory map is
// only a cache over it.
type JournalStore interface {
	PutJournalRecord(ctx context.Context, rec store.JournalRecord) error
	DeleteJournalRecord(ctx context.Context, requestID string) error
	ListJournalRecords(ctx context.Context) ([]store.JournalRecord, error)
}

// Journal makes the settle+credit pair recoverable. Records are written
// durably before the first local mutation of a confirmed transfer and
// removed after the last; Reconcile loads survivors from the store and
// drives them to completion.
type Journal struct {
	store  JournalStore
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*store.JournalRecord
}

// NewJournal creates a journal over the given store.
func NewJournal(js JournalStore, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:   js,
		logger:  logger,
		pending: make(map[string]*store.JournalRecord),
	}
}

// persist upserts rec in the store. A failed write is surfaced loudly but
// does not stop the transfer; the in-memory record still covers an
// in-process failure.
func (j *Journal) persist(ctx context.Context, rec store.JournalRecord) {
	if err := j.store.PutJournalRecord(ctx, rec); err != nil {
		j.logger.Error("journal write failed; crash recovery window open",
			"request", rec.RequestID, "err", err)
	}
}

func (j *Journal) begin(ctx context.Context, rec store.JournalRecord) {
	j.mu.Lock()
	j.pending[rec.RequestID] = &rec
	j.mu.Unlock()
	j.persist(ctx, rec)
}

func (j *Journal) markSettled(ctx context.Context, requestID string) {
	j.mark(ctx, requestID, func(rec *store.JournalRecord) { rec.Settled = true })
}

func (j *Journal) markCredited(ctx context.Context, requestID string) {
	j.mark(ctx, requestID, func(rec *store.JournalRecord) { rec.Credited = true })
}

func (j *Journal) mark(ctx context.Context, requestID string, update func(*store.JournalRecord)) {
	j.mu.Lock()
	rec, ok := j.pending[requestID]
	if ok {
		update(rec)
	}
	var snapshot store.JournalRecord
	if ok {
		snapshot = *rec
	}
	j.mu.Unlock()
	if ok {
		j.persist(ctx, snapshot)
	}
}

func (j *Journal) complete(ctx context.Context, requestID string) {
	j.mu.Lock()
	delete(j.pending, requestID)
	j.mu.Unlock()
	if err := j.store.DeleteJournalRecord(ctx, requestID); err != nil {
		j.logger.Error("journal delete failed; record will be re-reconciled",
			"request", requestID, "err", err)
	}
}

// Pending returns a snapshot of unfinished records known in-process.
func (j *Journal) Pending() []store.JournalRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]store.JournalRecord, 0, len(j.pending))
	for _, rec := range j.pending {
		out = append(out, *rec)
	}
	return out
}

// restore merges durable records into the in-memory map. Records already
// tracked in-process win; they are at least as fresh.
func (j *Journal) restore(ctx context.Context) error {
	records, err := j.store.ListJournalRecords(ctx)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, rec := range records {
		if _, ok := j.pending[rec.RequestID]; !ok {
			rec := rec
			j.pending[rec.RequestID] = &rec
		}
	}
	return nil
}

// Reconcile completes every half-settled transfer: a record whose network
// leg confirmed but whose local settle or credit did not land, including
// records left by a previous process. It is safe to run concurrently with
// live traffic; completed records are removed.
func (j *Journal) Reconcile(ctx context.Context, l *ledger.Ledger, logger *slog.Logger) int {
	if logger == nil {
		logger = j.logger
	}
	if err := j.restore(ctx); err != nil {
		logger.Error("reconcile: loading journal from store failed", "err", err)
	}

	recovered := 0
	for _, rec := range j.Pending() {
		if !rec.Settled {
			if err := l.Settle(ctx, rec.FromAddress, rec.Currency, rec.HeldTotal, rec.RequestID); err != nil {
				logger.Error("reconcile: settle failed", "request", rec.RequestID, "err", err)
				continue
			}
			j.markSettled(ctx, rec.RequestID)
		}
		if !rec.Credited {
			if _, err := l.Credit(ctx, rec.ToAddress, rec.Currency, rec.Amount, "transfer received (reconciled)", rec.RequestID); err != nil {
				logger.Error("reconcile: credit failed", "request", rec.RequestID, "err", err)
				continue
			}
			j.markCredited(ctx, rec.RequestID)
		}
		j.complete(ctx, rec.RequestID)
		recovered++
		logger.Info("reconciled half-settled transfer", "request", rec.RequestID)
	}
	return recovered
}
