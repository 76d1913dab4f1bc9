package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PGStore is the Postgres draw ledger.
//
// Schema:
//
//	CREATE TABLE wheel_draws (
//	  draw_id       text PRIMARY KEY,
//	  account_id    text NOT NULL,
//	  wheel_id      text NOT NULL,
//	  reward_id     int NOT NULL,
//	  amount        double precision NOT NULL,
//	  currency_type text NOT NULL,
//	  rarity        text NOT NULL,
//	  description   text NOT NULL DEFAULT '',
//	  drawn_at      timestamptz NOT NULL,
//	  claimed_at    timestamptz,
//	  credited_at   timestamptz,
//	  client_ip     text NOT NULL DEFAULT '',
//	  user_agent    text NOT NULL DEFAULT ''
//	);
//	CREATE INDEX wheel_draws_account_idx ON wheel_draws (account_id, drawn_at DESC);
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, rec *DrawRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wheel_draws (draw_id, account_id, wheel_id, reward_id, amount, currency_type, rarity, description, drawn_at, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.DrawID, rec.AccountID, rec.WheelID, rec.RewardID, rec.Amount,
		rec.CurrencyType, rec.Rarity, rec.Description, rec.DrawnAt, rec.ClientIP, rec.UserAgent)
	if err != nil {
		return fmt.Errorf("insert draw: %w", err)
	}
	return nil
}

// Claim performs the conditional transition as one UPDATE: set claimed_at
// only where it is still NULL. Losing a race shows up as zero rows
// affected, never as a double credit.
func (s *PGStore) Claim(ctx context.Context, accountID, drawID string, now time.Time) (*DrawRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wheel_draws SET claimed_at = $1
		WHERE draw_id = $2 AND account_id = $3 AND claimed_at IS NULL
	`, now, drawID, accountID)
	if err != nil {
		return nil, fmt.Errorf("claim draw: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim draw: rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing/foreign draw from one already claimed.
		var claimed sql.NullTime
		err := s.db.GetContext(ctx, &claimed,
			`SELECT claimed_at FROM wheel_draws WHERE draw_id = $1 AND account_id = $2`, drawID, accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("claim draw: lookup: %w", err)
		}
		return nil, ErrAlreadyClaimed
	}
	var rec DrawRecord
	if err := s.db.GetContext(ctx, &rec,
		`SELECT * FROM wheel_draws WHERE draw_id = $1`, drawID); err != nil {
		return nil, fmt.Errorf("claim draw: reload: %w", err)
	}
	return &rec, nil
}

func (s *PGStore) MarkCredited(ctx context.Context, drawID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wheel_draws SET credited_at = $1
		WHERE draw_id = $2 AND claimed_at IS NOT NULL AND credited_at IS NULL
	`, now, drawID)
	if err != nil {
		return fmt.Errorf("mark credited: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already credited or never claimed; both are fine to ignore here,
		// the repair sweep re-checks before crediting.
		return nil
	}
	return nil
}

func (s *PGStore) UncreditedClaims(ctx context.Context, limit int) ([]*DrawRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []*DrawRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM wheel_draws
		WHERE claimed_at IS NOT NULL AND credited_at IS NULL
		ORDER BY claimed_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("uncredited claims: %w", err)
	}
	return recs, nil
}

func (s *PGStore) History(ctx context.Context, accountID string, limit, offset int) ([]*DrawRecord, int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM wheel_draws WHERE account_id = $1`, accountID); err != nil {
		return nil, 0, fmt.Errorf("history count: %w", err)
	}
	var recs []*DrawRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM wheel_draws
		WHERE account_id = $1
		ORDER BY drawn_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("history: %w", err)
	}
	if recs == nil {
		recs = []*DrawRecord{}
	}
	return recs, total, nil
}

func (s *PGStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByRarity:       make(map[string]int64),
		ByCurrencyType: make(map[string]float64),
	}
	if err := s.db.GetContext(ctx, &st.TotalDraws,
		`SELECT COUNT(*) FROM wheel_draws`); err != nil {
		return nil, fmt.Errorf("stats total: %w", err)
	}
	type rarityRow struct {
		Rarity string `db:"rarity"`
		N      int64  `db:"n"`
	}
	var rarities []rarityRow
	if err := s.db.SelectContext(ctx, &rarities,
		`SELECT rarity, COUNT(*) AS n FROM wheel_draws GROUP BY rarity`); err != nil {
		return nil, fmt.Errorf("stats by rarity: %w", err)
	}
	for _, r := range rarities {
		st.ByRarity[r.Rarity] = r.N
	}
	type currencyRow struct {
		Currency string  `db:"currency_type"`
		Total    float64 `db:"total"`
	}
	var currencies []currencyRow
	if err := s.db.SelectContext(ctx, &currencies, `
		SELECT currency_type, COALESCE(SUM(amount), 0) AS total
		FROM wheel_draws WHERE claimed_at IS NOT NULL
		GROUP BY currency_type
	`); err != nil {
		return nil, fmt.Errorf("stats by currency: %w", err)
	}
	for _, c := range currencies {
		st.ByCurrencyType[c.Currency] = c.Total
	}
	return st, nil
}

func (s *PGStore) Recent(ctx context.Context, n int) ([]*DrawRecord, error) {
	if n <= 0 {
		n = 10
	}
	var recs []*DrawRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT * FROM wheel_draws ORDER BY drawn_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("recent draws: %w", err)
	}
	return recs, nil
}
