package eligibility

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PGStore is the Postgres eligibility tracker. One row per account; every
// mutation runs under SELECT ... FOR UPDATE so consume/refund/grant are
// serialized per account while other accounts proceed untouched.
//
// Schema:
//
//	CREATE TABLE wheel_eligibility (
//	  account_id                   text PRIMARY KEY,
//	  first_time_grant_used        bool NOT NULL DEFAULT false,
//	  first_time_spins_remaining   int NOT NULL DEFAULT 0,
//	  random_spins_remaining       int NOT NULL DEFAULT 0,
//	  threshold_grants             jsonb NOT NULL DEFAULT '[]',
//	  total_spins_available        int NOT NULL DEFAULT 0,
//	  last_random_grant_checked_at timestamptz,
//	  last_random_grant_at         timestamptz
//	);
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

type stateRow struct {
	AccountID                string       `db:"account_id"`
	FirstTimeGrantUsed       bool         `db:"first_time_grant_used"`
	FirstTimeSpinsRemaining  int          `db:"first_time_spins_remaining"`
	RandomSpinsRemaining     int          `db:"random_spins_remaining"`
	ThresholdGrants          []byte       `db:"threshold_grants"`
	TotalSpinsAvailable      int          `db:"total_spins_available"`
	LastRandomGrantCheckedAt sql.NullTime `db:"last_random_grant_checked_at"`
	LastRandomGrantAt        sql.NullTime `db:"last_random_grant_at"`
}

func (r *stateRow) toState() (*State, error) {
	st := &State{
		AccountID:               r.AccountID,
		FirstTimeGrantUsed:      r.FirstTimeGrantUsed,
		FirstTimeSpinsRemaining: r.FirstTimeSpinsRemaining,
		RandomSpinsRemaining:    r.RandomSpinsRemaining,
		TotalSpinsAvailable:     r.TotalSpinsAvailable,
	}
	if r.LastRandomGrantCheckedAt.Valid {
		st.LastRandomGrantCheckedAt = r.LastRandomGrantCheckedAt.Time
	}
	if r.LastRandomGrantAt.Valid {
		st.LastRandomGrantAt = r.LastRandomGrantAt.Time
	}
	if len(r.ThresholdGrants) > 0 {
		if err := json.Unmarshal(r.ThresholdGrants, &st.ThresholdGrants); err != nil {
			return nil, fmt.Errorf("decode threshold grants: %w", err)
		}
	}
	return st, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// withState runs fn against the locked state row, creating the row for
// new accounts, and writes the mutated state back before committing.
func (s *PGStore) withState(ctx context.Context, accountID string, fn func(st *State) error) (*State, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("eligibility: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wheel_eligibility (account_id) VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("eligibility: ensure row: %w", err)
	}

	var row stateRow
	err = tx.GetContext(ctx, &row, `
		SELECT account_id, first_time_grant_used, first_time_spins_remaining,
		       random_spins_remaining, threshold_grants, total_spins_available,
		       last_random_grant_checked_at, last_random_grant_at
		FROM wheel_eligibility WHERE account_id = $1 FOR UPDATE
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("eligibility: lock row: %w", err)
	}
	st, err := row.toState()
	if err != nil {
		return nil, err
	}

	if err := fn(st); err != nil {
		return nil, err
	}

	grants, err := json.Marshal(st.ThresholdGrants)
	if err != nil {
		return nil, fmt.Errorf("eligibility: encode grants: %w", err)
	}
	if st.ThresholdGrants == nil {
		grants = []byte("[]")
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE wheel_eligibility
		SET first_time_grant_used = $2,
		    first_time_spins_remaining = $3,
		    random_spins_remaining = $4,
		    threshold_grants = $5,
		    total_spins_available = $6,
		    last_random_grant_checked_at = $7,
		    last_random_grant_at = $8
		WHERE account_id = $1
	`, accountID, st.FirstTimeGrantUsed, st.FirstTimeSpinsRemaining,
		st.RandomSpinsRemaining, grants, st.TotalSpinsAvailable,
		nullTime(st.LastRandomGrantCheckedAt), nullTime(st.LastRandomGrantAt))
	if err != nil {
		return nil, fmt.Errorf("eligibility: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("eligibility: commit: %w", err)
	}
	return st, nil
}

// errNoChange aborts the transaction without surfacing an error.
var errNoChange = errors.New("no change")

func (s *PGStore) CheckAndConsumeOneSpin(ctx context.Context, accountID string) (*Consumption, error) {
	var out Consumption
	_, err := s.withState(ctx, accountID, func(st *State) error {
		src, ok := st.consumeOne()
		if !ok {
			out = Consumption{Allowed: false, Reason: "no spins remaining", Remaining: 0}
			return errNoChange
		}
		out = Consumption{Allowed: true, Source: src, Remaining: st.TotalSpinsAvailable}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}
	return &out, nil
}

func (s *PGStore) RefundOneSpin(ctx context.Context, accountID string, src Source) error {
	_, err := s.withState(ctx, accountID, func(st *State) error {
		st.refundOne(src)
		return nil
	})
	return err
}

func (s *PGStore) GrantFirstTime(ctx context.Context, accountID string, count int) error {
	_, err := s.withState(ctx, accountID, func(st *State) error {
		if st.FirstTimeGrantUsed || count <= 0 {
			return errNoChange
		}
		st.FirstTimeGrantUsed = true
		st.FirstTimeSpinsRemaining += count
		st.recount()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

func (s *PGStore) GrantThreshold(ctx context.Context, accountID, thresholdID string, spendThreshold float64, count int) error {
	_, err := s.withState(ctx, accountID, func(st *State) error {
		for _, g := range st.ThresholdGrants {
			if g.ThresholdID == thresholdID {
				return errNoChange
			}
		}
		if count <= 0 {
			return errNoChange
		}
		st.ThresholdGrants = append(st.ThresholdGrants, ThresholdGrant{
			ThresholdID:    thresholdID,
			SpendThreshold: spendThreshold,
			SpinsAwarded:   count,
			ReachedAt:      time.Now(),
		})
		st.recount()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

func (s *PGStore) GrantRandomIfEligible(ctx context.Context, accountID string, probability float64, cooldownHours int) (bool, error) {
	granted := false
	_, err := s.withState(ctx, accountID, func(st *State) error {
		now := time.Now()
		cooldown := time.Duration(cooldownHours) * time.Hour
		if !st.LastRandomGrantAt.IsZero() && now.Sub(st.LastRandomGrantAt) < cooldown {
			return errNoChange
		}
		st.LastRandomGrantCheckedAt = now
		if !chance(probability) {
			return nil
		}
		st.RandomSpinsRemaining++
		st.LastRandomGrantAt = now
		st.recount()
		granted = true
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *PGStore) Get(ctx context.Context, accountID string) (*State, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, `
		SELECT account_id, first_time_grant_used, first_time_spins_remaining,
		       random_spins_remaining, threshold_grants, total_spins_available,
		       last_random_grant_checked_at, last_random_grant_at
		FROM wheel_eligibility WHERE account_id = $1
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return &State{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eligibility: get: %w", err)
	}
	return row.toState()
}
