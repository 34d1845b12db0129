package transfer

import (
	"context"
	"testing"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/store"
)

func newJournalLedger(t *testing.T, mem *store.Memory) *ledger.Ledger {
	t.Helper()
	return ledger.New(mem, audit.New(nil, nil), nil)
}

func TestReconcileCompletesUnsettledRecord(t *testing.T) {
	mem := store.NewMemory()
	l := newJournalLedger(t, mem)
	ctx := context.Background()
	if _, err := l.Credit(ctx, aliceAddr, "WND", 1000, "seed", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.Hold(ctx, aliceAddr, "WND", 550, "xfer-1"); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	// Simulate a crash after network confirmation, before settle.
	j := NewJournal(mem, nil)
	j.begin(ctx, store.JournalRecord{
		RequestID:   "xfer-1",
		FromAddress: aliceAddr,
		ToAddress:   bobAddr,
		Currency:    "WND",
		Amount:      500,
		HeldTotal:   550,
	})

	if n := j.Reconcile(ctx, l, nil); n != 1 {
		t.Fatalf("Reconcile = %d, want 1", n)
	}

	balance, held, _ := l.State(ctx, aliceAddr, "WND")
	if balance != 450 || held != 0 {
		t.Fatalf("sender state = %d/%d, want 450/0", balance, held)
	}
	if avail, _ := l.Available(ctx, bobAddr, "WND"); avail != 500 {
		t.Fatalf("receiver available = %d, want 500", avail)
	}
	if len(j.Pending()) != 0 {
		t.Fatal("record still pending after reconcile")
	}
	records, _ := mem.ListJournalRecords(ctx)
	if len(records) != 0 {
		t.Fatal("completed record still in the store")
	}
}

func TestReconcileCompletesSettledUncreditedRecord(t *testing.T) {
	mem := store.NewMemory()
	l := newJournalLedger(t, mem)
	ctx := context.Background()
	if _, err := l.Credit(ctx, aliceAddr, "WND", 1000, "seed", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.Hold(ctx, aliceAddr, "WND", 500, "xfer-2"); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if err := l.Settle(ctx, aliceAddr, "WND", 500, "xfer-2"); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// Crash landed between settle and credit.
	j := NewJournal(mem, nil)
	j.begin(ctx, store.JournalRecord{
		RequestID:   "xfer-2",
		FromAddress: aliceAddr,
		ToAddress:   bobAddr,
		Currency:    "WND",
		Amount:      500,
		HeldTotal:   500,
		Settled:     true,
	})

	if n := j.Reconcile(ctx, l, nil); n != 1 {
		t.Fatalf("Reconcile = %d, want 1", n)
	}
	if avail, _ := l.Available(ctx, bobAddr, "WND"); avail != 500 {
		t.Fatalf("receiver available = %d, want 500", avail)
	}
	// The sender must not be settled twice.
	if avail, _ := l.Available(ctx, aliceAddr, "WND"); avail != 500 {
		t.Fatalf("sender available = %d, want 500", avail)
	}
}

func TestReconcileRecoversRecordsFromStoreAfterRestart(t *testing.T) {
	mem := store.NewMemory()
	l := newJournalLedger(t, mem)
	ctx := context.Background()
	if _, err := l.Credit(ctx, aliceAddr, "WND", 1000, "seed", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.Hold(ctx, aliceAddr, "WND", 500, "xfer-4"); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	// First process journals the confirmed transfer, then dies.
	dead := NewJournal(mem, nil)
	dead.begin(ctx, store.JournalRecord{
		RequestID:   "xfer-4",
		FromAddress: aliceAddr,
		ToAddress:   bobAddr,
		Currency:    "WND",
		Amount:      500,
		HeldTotal:   500,
	})

	// A fresh journal over the same store must find and finish the record.
	reborn := NewJournal(mem, nil)
	if len(reborn.Pending()) != 0 {
		t.Fatal("fresh journal claims pending records before restore")
	}
	if n := reborn.Reconcile(ctx, l, nil); n != 1 {
		t.Fatalf("Reconcile = %d, want 1", n)
	}
	if avail, _ := l.Available(ctx, bobAddr, "WND"); avail != 500 {
		t.Fatalf("receiver available = %d, want 500", avail)
	}
	records, _ := mem.ListJournalRecords(ctx)
	if len(records) != 0 {
		t.Fatal("completed record still in the store")
	}
}

func TestReconcileKeepsFailedRecordPending(t *testing.T) {
	mem := store.NewMemory()
	l := newJournalLedger(t, mem)
	ctx := context.Background()
	// No hold exists for this record; settle will halt the pair and fail.
	if _, err := l.Credit(ctx, aliceAddr, "WND", 1000, "seed", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	j := NewJournal(mem, nil)
	j.begin(ctx, store.JournalRecord{
		RequestID:   "xfer-3",
		FromAddress: aliceAddr,
		ToAddress:   bobAddr,
		Currency:    "WND",
		Amount:      500,
		HeldTotal:   500,
	})

	if n := j.Reconcile(ctx, l, nil); n != 0 {
		t.Fatalf("Reconcile = %d, want 0", n)
	}
	if len(j.Pending()) != 1 {
		t.Fatal("unrecoverable record dropped from journal")
	}
	records, _ := mem.ListJournalRecords(ctx)
	if len(records) != 1 {
		t.Fatal("unrecoverable record dropped from the store")
	}
}

func TestReconcileEmptyJournal(t *testing.T) {
	mem := store.NewMemory()
	j := NewJournal(mem, nil)
	if n := j.Reconcile(context.Background(), newJournalLedger(t, mem), nil); n != 0 {
		t.Fatalf("Reconcile = %d, want 0", n)
	}
}
