package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/store"
)

const (
	testAccount = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	testPeer    = "5EepNwM98pD9HQsms1RRcJkU3icrKP9M9cjYv1Vc9XSaMkwD"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Memory, *audit.Log) {
	t.Helper()
	mem := store.NewMemory()
	log := audit.New(nil, nil)
	return New(mem, log, nil), mem, log
}

func mustCredit(t *testing.T, l *Ledger, account string, amount int64) {
	t.Helper()
	if _, err := l.Credit(context.Background(), account, "WND", amount, "seed", ""); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
}

func TestCreditAndDebit(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()

	avail, err := l.Credit(ctx, testAccount, "WND", 1000, "grant", "")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if avail != 1000 {
		t.Fatalf("available after credit = %d, want 1000", avail)
	}

	avail, err = l.Debit(ctx, testAccount, "WND", 300, "organ call", "call-1")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if avail != 700 {
		t.Fatalf("available after debit = %d, want 700", avail)
	}

	// Both mutations reached the store before acknowledgement.
	bal, err := mem.GetBalance(ctx, testAccount, "WND")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Balance != 700 || bal.Held != 0 {
		t.Fatalf("stored state = %+v, want balance 700 held 0", bal)
	}
	if txs := mem.Transactions(); len(txs) != 2 {
		t.Fatalf("got %d ledger entries, want 2", len(txs))
	}
}

func TestDebitInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	l, mem, log := newTestLedger(t)
	ctx := context.Background()
	mustCredit(t, l, testAccount, 100)

	_, err := l.Debit(ctx, testAccount, "WND", 200, "organ call", "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	avail, _ := l.Available(ctx, testAccount, "WND")
	if avail != 100 {
		t.Fatalf("available = %d, want untouched 100", avail)
	}
	// Only the seed credit was written.
	if txs := mem.Transactions(); len(txs) != 1 {
		t.Fatalf("got %d ledger entries, want 1", len(txs))
	}
	events := log.Query(audit.Filter{Category: audit.CategoryBilling})
	if len(events) != 1 {
		t.Fatalf("got %d billing events, want 1", len(events))
	}
}

func TestInvalidAmounts(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		if _, err := l.Credit(ctx, testAccount, "WND", amount, "x", ""); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Credit(%d) = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := l.Debit(ctx, testAccount, "WND", amount, "x", ""); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Debit(%d) = %v, want ErrInvalidAmount", amount, err)
		}
		if err := l.Hold(ctx, testAccount, "WND", amount, ""); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Hold(%d) = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestHoldSettleRelease(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	mustCredit(t, l, testAccount, 1000)

	if err := l.Hold(ctx, testAccount, "WND", 400, "xfer-1"); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	balance, held, _ := l.State(ctx, testAccount, "WND")
	if balance != 1000 || held != 400 {
		t.Fatalf("after hold: balance %d held %d, want 1000/400", balance, held)
	}
	if avail, _ := l.Available(ctx, testAccount, "WND"); avail != 600 {
		t.Fatalf("available = %d, want 600", avail)
	}

	// A hold over available must fail even though balance covers it.
	if err := l.Hold(ctx, testAccount, "WND", 700, "xfer-2"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("over-available hold = %v, want ErrInsufficientFunds", err)
	}

	if err := l.Settle(ctx, testAccount, "WND", 400, "xfer-1"); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	balance, held, _ = l.State(ctx, testAccount, "WND")
	if balance != 600 || held != 0 {
		t.Fatalf("after settle: balance %d held %d, want 600/0", balance, held)
	}

	// Hold then release is a net no-op.
	if err := l.Hold(ctx, testAccount, "WND", 200, "xfer-3"); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if err := l.Release(ctx, testAccount, "WND", 200, "xfer-3"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	balance, held, _ = l.State(ctx, testAccount, "WND")
	if balance != 600 || held != 0 {
		t.Fatalf("after release: balance %d held %d, want 600/0", balance, held)
	}
}

func TestSettleWithoutHoldHaltsPair(t *testing.T) {
	l, _, log := newTestLedger(t)
	ctx := context.Background()
	mustCredit(t, l, testAccount, 1000)

	err := l.Settle(ctx, testAccount, "WND", 100, "phantom")
	var inc *InconsistencyError
	if !errors.As(err, &inc) {
		t.Fatalf("got %v, want InconsistencyError", err)
	}

	// Every further mutation on the pair is refused.
	if _, err := l.Credit(ctx, testAccount, "WND", 1, "x", ""); !errors.As(err, &inc) {
		t.Fatalf("credit on halted pair = %v, want InconsistencyError", err)
	}
	// Other pairs are unaffected.
	if _, err := l.Credit(ctx, testPeer, "WND", 1, "x", ""); err != nil {
		t.Fatalf("credit on healthy pair: %v", err)
	}

	// ClearHalt re-enables the pair.
	l.ClearHalt(testAccount, "WND")
	if _, err := l.Credit(ctx, testAccount, "WND", 1, "x", ""); err != nil {
		t.Fatalf("credit after ClearHalt: %v", err)
	}

	found := false
	for _, e := range log.Query(audit.Filter{Category: audit.CategoryBilling}) {
		if e.Message == "ledger inconsistency: pair halted" {
			found = true
		}
	}
	if !found {
		t.Fatal("halt not audited")
	}
}

func TestReleaseOverHeldHaltsPair(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	mustCredit(t, l, testAccount, 1000)
	if err := l.Hold(ctx, testAccount, "WND", 100, "xfer"); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	err := l.Release(ctx, testAccount, "WND", 200, "xfer")
	var inc *InconsistencyError
	if !errors.As(err, &inc) {
		t.Fatalf("got %v, want InconsistencyError", err)
	}
}

func TestSyncExternal(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	mustCredit(t, l, testAccount, 1000)

	delta, err := l.SyncExternal(ctx, testAccount, "WND", 1500)
	if err != nil {
		t.Fatalf("SyncExternal: %v", err)
	}
	if delta != 500 {
		t.Fatalf("delta = %d, want 500", delta)
	}
	if avail, _ := l.Available(ctx, testAccount, "WND"); avail != 1500 {
		t.Fatalf("available = %d, want 1500", avail)
	}

	// Equal balances are a no-op.
	delta, err = l.SyncExternal(ctx, testAccount, "WND", 1500)
	if err != nil || delta != 0 {
		t.Fatalf("no-op sync = (%d, %v), want (0, nil)", delta, err)
	}

	// Sync below held halts the pair.
	if err := l.Hold(ctx, testAccount, "WND", 400, "xfer"); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	_, err = l.SyncExternal(ctx, testAccount, "WND", 300)
	var inc *InconsistencyError
	if !errors.As(err, &inc) {
		t.Fatalf("sync below held = %v, want InconsistencyError", err)
	}
}

// failingStore wraps Memory and fails writes on demand.
type failingStore struct {
	*store.Memory
	failPut bool
}

func (s *failingStore) PutBalance(ctx context.Context, account, currency string, state store.BalanceState) error {
	if s.failPut {
		return errors.New("store unavailable")
	}
	return s.Memory.PutBalance(ctx, account, currency, state)
}

func TestStoreWriteFailureLeavesMemoryUnchanged(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	l := New(fs, audit.New(nil, nil), nil)
	ctx := context.Background()

	if _, err := l.Credit(ctx, testAccount, "WND", 1000, "seed", ""); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	fs.failPut = true
	if _, err := l.Debit(ctx, testAccount, "WND", 100, "organ call", ""); err == nil {
		t.Fatal("debit succeeded with failing store")
	}
	fs.failPut = false

	if avail, _ := l.Available(ctx, testAccount, "WND"); avail != 1000 {
		t.Fatalf("available = %d after failed write, want 1000", avail)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	mustCredit(t, l, testAccount, 100)

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, testAccount, "WND", 1, "organ call", ""); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	n := 0
	for range succeeded {
		n++
	}
	if n != 100 {
		t.Fatalf("%d debits succeeded, want exactly 100", n)
	}
	if avail, _ := l.Available(ctx, testAccount, "WND"); avail != 0 {
		t.Fatalf("available = %d, want 0", avail)
	}
}

func TestCurrencyCaseIsNormalized(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Credit(ctx, testAccount, "wnd", 1000, "seed", ""); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	// Mixed-case codes must hit the same pair, lock, and store row.
	if avail, _ := l.Available(ctx, testAccount, "WND"); avail != 1000 {
		t.Fatalf("available via WND = %d, want 1000", avail)
	}
	if _, err := l.Debit(ctx, testAccount, "Wnd", 400, "organ call", ""); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if avail, _ := l.Available(ctx, testAccount, "wnd"); avail != 600 {
		t.Fatalf("available via wnd = %d, want 600", avail)
	}
	// One store row, uppercase, and entries carry the normalized code.
	if _, err := mem.GetBalance(ctx, testAccount, "WND"); err != nil {
		t.Fatalf("GetBalance WND: %v", err)
	}
	for _, tx := range mem.Transactions() {
		if tx.Currency != "WND" {
			t.Fatalf("entry currency = %q, want WND", tx.Currency)
		}
	}
}

func TestPairsAreIndependent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	mustCredit(t, l, testAccount, 500)
	if _, err := l.Credit(ctx, testAccount, "BTC", 3, "seed", ""); err != nil {
		t.Fatalf("Credit BTC: %v", err)
	}

	if _, err := l.Debit(ctx, testAccount, "WND", 500, "drain", ""); err != nil {
		t.Fatalf("Debit WND: %v", err)
	}
	if avail, _ := l.Available(ctx, testAccount, "BTC"); avail != 3 {
		t.Fatalf("BTC available = %d, want 3", avail)
	}
}
