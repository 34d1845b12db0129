package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the durable Store backed by a pgx connection pool.
//
// Expected schema:
//
//	CREATE TABLE account_balances (
//	    account    TEXT NOT NULL,
//	    currency   TEXT NOT NULL,
//	    balance    BIGINT NOT NULL,
//	    held       BIGINT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (account, currency)
//	);
//
//	CREATE TABLE ledger_entries (
//	    id             TEXT PRIMARY KEY,
//	    account        TEXT NOT NULL,
//	    currency       TEXT NOT NULL,
//	    delta          BIGINT NOT NULL,
//	    kind           TEXT NOT NULL,
//	    reason         TEXT NOT NULL,
//	    correlation_id TEXT NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE account_aliases (
//	    identifier TEXT PRIMARY KEY,
//	    address    TEXT NOT NULL UNIQUE
//	);
//
//	CREATE TABLE transfer_journal (
//	    request_id   TEXT PRIMARY KEY,
//	    from_address TEXT NOT NULL,
//	    to_address   TEXT NOT NULL,
//	    currency     TEXT NOT NULL,
//	    amount       BIGINT NOT NULL,
//	    held_total   BIGINT NOT NULL,
//	    settled      BOOLEAN NOT NULL,
//	    credited     BOOLEAN NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Postgres struct {
	db    *pgxpool.Pool
	retry retryPolicy
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db, retry: defaultRetry}
}

// ConnectPostgres opens a pool from a DSN and pings it.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.db.Close()
}

func (p *Postgres) GetBalance(ctx context.Context, account, currency string) (BalanceState, error) {
	query := `
		SELECT balance, held
		FROM account_balances
		WHERE account = $1 AND currency = $2
	`
	var st BalanceState
	err := p.retry.withRetry(ctx, func() error {
		err := p.db.QueryRow(ctx, query, account, currency).Scan(&st.Balance, &st.Held)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return BalanceState{}, ErrNotFound
	}
	if err != nil {
		return BalanceState{}, fmt.Errorf("get balance %s/%s: %w", account, currency, err)
	}
	return st, nil
}

func (p *Postgres) PutBalance(ctx context.Context, account, currency string, state BalanceState) error {
	query := `
		INSERT INTO account_balances (account, currency, balance, held, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account, currency)
		DO UPDATE SET balance = $3, held = $4, updated_at = NOW()
	`
	err := p.retry.withRetry(ctx, func() error {
		_, err := p.db.Exec(ctx, query, account, currency, state.Balance, state.Held)
		return err
	})
	if err != nil {
		return fmt.Errorf("put balance %s/%s: %w", account, currency, err)
	}
	return nil
}

func (p *Postgres) AppendTransaction(ctx context.Context, tx Transaction) error {
	query := `
		INSERT INTO ledger_entries (
			id, account, currency, delta, kind, reason, correlation_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	err := p.retry.withRetry(ctx, func() error {
		_, err := p.db.Exec(ctx, query,
			tx.ID, tx.Account, tx.Currency, tx.Delta,
			tx.Kind, tx.Reason, tx.CorrelationID, tx.Timestamp)
		return err
	})
	if err != nil {
		return fmt.Errorf("append ledger entry %s: %w", tx.ID, err)
	}
	return nil
}

func (p *Postgres) LookupAddress(ctx context.Context, identifier string) (string, error) {
	query := `SELECT address FROM account_aliases WHERE identifier = $1`
	var addr string
	err := p.retry.withRetry(ctx, func() error {
		err := p.db.QueryRow(ctx, query, identifier).Scan(&addr)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup address for %q: %w", identifier, err)
	}
	return addr, nil
}

func (p *Postgres) LookupIdentifier(ctx context.Context, address string) (string, error) {
	query := `SELECT identifier FROM account_aliases WHERE address = $1`
	var id string
	err := p.retry.withRetry(ctx, func() error {
		err := p.db.QueryRow(ctx, query, address).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup identifier for %q: %w", address, err)
	}
	return id, nil
}

func (p *Postgres) PutJournalRecord(ctx context.Context, rec JournalRecord) error {
	query := `
		INSERT INTO transfer_journal (
			request_id, from_address, to_address, currency,
			amount, held_total, settled, credited, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (request_id)
		DO UPDATE SET settled = $7, credited = $8, updated_at = NOW()
	`
	err := p.retry.withRetry(ctx, func() error {
		_, err := p.db.Exec(ctx, query,
			rec.RequestID, rec.FromAddress, rec.ToAddress, rec.Currency,
			rec.Amount, rec.HeldTotal, rec.Settled, rec.Credited)
		return err
	})
	if err != nil {
		return fmt.Errorf("put journal record %s: %w", rec.RequestID, err)
	}
	return nil
}

func (p *Postgres) DeleteJournalRecord(ctx context.Context, requestID string) error {
	err := p.retry.withRetry(ctx, func() error {
		_, err := p.db.Exec(ctx, `DELETE FROM transfer_journal WHERE request_id = $1`, requestID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete journal record %s: %w", requestID, err)
	}
	return nil
}

func (p *Postgres) ListJournalRecords(ctx context.Context) ([]JournalRecord, error) {
	query := `
		SELECT request_id, from_address, to_address, currency,
		       amount, held_total, settled, credited
		FROM transfer_journal
	`
	var out []JournalRecord
	err := p.retry.withRetry(ctx, func() error {
		rows, err := p.db.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var rec JournalRecord
			if err := rows.Scan(&rec.RequestID, &rec.FromAddress, &rec.ToAddress,
				&rec.Currency, &rec.Amount, &rec.HeldTotal, &rec.Settled, &rec.Credited); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list journal records: %w", err)
	}
	return out, nil
}
