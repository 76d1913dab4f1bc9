package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sweepvault/spinwheel-server/catalog"
)

// PGStore is the Postgres balance store.
//
// Schema:
//
//	CREATE TABLE wallet_balances (
//	  account_id    text PRIMARY KEY,
//	  gold_balance  double precision NOT NULL DEFAULT 0,
//	  sweep_balance double precision NOT NULL DEFAULT 0,
//	  updated_at    timestamptz NOT NULL DEFAULT now()
//	);
//	CREATE TABLE wallet_transactions (
//	  tx_id         text PRIMARY KEY,
//	  account_id    text NOT NULL,
//	  currency_type text NOT NULL,
//	  amount        double precision NOT NULL,
//	  ref           text NOT NULL DEFAULT '',
//	  created_at    timestamptz NOT NULL
//	);
//	CREATE UNIQUE INDEX wallet_transactions_ref_idx ON wallet_transactions (ref) WHERE ref <> '';
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

// Credit increments the matching balance column and logs the transaction
// in one database transaction. The column switch mirrors wallet.Apply:
// unknown currencies fail before any write.
func (s *PGStore) Credit(ctx context.Context, accountID string, c Credit) (float64, error) {
	var column string
	switch c.Currency {
	case catalog.CurrencyGold:
		column = "gold_balance"
	case catalog.CurrencySweep:
		column = "sweep_balance"
	default:
		return 0, fmt.Errorf("unknown currency type %q", c.Currency)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("credit: begin: %w", err)
	}
	defer tx.Rollback()

	// The transaction log goes in first; its unique ref index makes a
	// replayed credit (claim retry, repair sweep) a no-op increment.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (tx_id, account_id, currency_type, amount, ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ref) WHERE ref <> '' DO NOTHING
	`, uuid.New().String(), accountID, c.Currency, c.Amount, c.Ref, time.Now())
	if err != nil {
		return 0, fmt.Errorf("credit transaction log: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("credit transaction log: rows affected: %w", err)
	}
	if inserted == 0 && c.Ref != "" {
		var current float64
		query := fmt.Sprintf(`SELECT COALESCE(%s, 0) FROM wallet_balances WHERE account_id = $1`, column)
		if err := tx.GetContext(ctx, &current, query, accountID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("credit: current balance: %w", err)
		}
		return current, tx.Commit()
	}

	query := fmt.Sprintf(`
		INSERT INTO wallet_balances (account_id, %[1]s, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_id) DO UPDATE
		SET %[1]s = wallet_balances.%[1]s + EXCLUDED.%[1]s,
		    updated_at = now()
		RETURNING %[1]s
	`, column)
	var newBalance float64
	if err := tx.GetContext(ctx, &newBalance, query, accountID, c.Amount); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("credit: commit: %w", err)
	}
	return newBalance, nil
}

func (s *PGStore) Balances(ctx context.Context, accountID string) (*Balances, error) {
	b := &Balances{AccountID: accountID}
	err := s.db.GetContext(ctx, b, `
		SELECT account_id, gold_balance, sweep_balance
		FROM wallet_balances WHERE account_id = $1
	`, accountID)
	if err != nil {
		// No row yet means zero balances, not an error.
		if errors.Is(err, sql.ErrNoRows) {
			return &Balances{AccountID: accountID}, nil
		}
		return nil, fmt.Errorf("balances: %w", err)
	}
	return b, nil
}
