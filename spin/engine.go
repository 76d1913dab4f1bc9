package spin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweepvault/spinwheel-server/catalog"
	"github.com/sweepvault/spinwheel-server/ledger"
	"github.com/sweepvault/spinwheel-server/wallet"
)

var (
	// ErrWheelNotFound: no catalog registered under that wheel id.
	ErrWheelNotFound = errors.New("wheel not found")
	// ErrEmptyCatalog: the wheel has no active reward with positive weight.
	ErrEmptyCatalog = errors.New("wheel has no active rewards")
)

// Metadata is request-origin audit info recorded on a draw. Never used
// for business logic.
type Metadata struct {
	IP        string
	UserAgent string
}

// Notifier receives best-effort claim events (feeds the platform's socket
// channel). Failures must not affect claim outcomes.
type Notifier interface {
	RewardClaimed(ctx context.Context, rec *ledger.DrawRecord, newBalance float64) error
}

// Engine performs weighted draws against a wheel catalog and converts
// drawn rewards into balance credits exactly once. It does not touch
// eligibility: callers consume a spin before drawing.
type Engine struct {
	catalogs *catalog.Store
	ledger   ledger.Store
	wallet   wallet.Store
	notifier Notifier // optional
}

func NewEngine(catalogs *catalog.Store, led ledger.Store, wal wallet.Store, notifier Notifier) *Engine {
	return &Engine{
		catalogs: catalogs,
		ledger:   led,
		wallet:   wal,
		notifier: notifier,
	}
}

// DrawResult is the public projection of a draw. Weights and other
// definitions never leave the engine.
type DrawResult struct {
	DrawID       string               `json:"drawId"`
	RewardID     int                  `json:"rewardId"`
	Amount       float64              `json:"amount"`
	CurrencyType catalog.CurrencyType `json:"currencyType"`
	Rarity       catalog.Rarity       `json:"rarity"`
	Description  string               `json:"description"`
	Timestamp    time.Time            `json:"timestamp"`
}

// PerformDraw runs one weighted draw and records it unclaimed. A persist
// failure grants nothing and is retryable by the caller; the engine never
// fabricates a result it could not record.
func (e *Engine) PerformDraw(ctx context.Context, wheelID, accountID string, meta Metadata) (*DrawResult, error) {
	cat := e.catalogs.Get(wheelID)
	if cat == nil {
		return nil, ErrWheelNotFound
	}
	def, ok := cat.PickReward()
	if !ok {
		return nil, ErrEmptyCatalog
	}
	drawID, err := ledger.NewDrawID()
	if err != nil {
		return nil, fmt.Errorf("generate draw id: %w", err)
	}
	rec := &ledger.DrawRecord{
		DrawID:       drawID,
		AccountID:    accountID,
		WheelID:      wheelID,
		RewardID:     def.ID,
		Amount:       def.Amount,
		CurrencyType: def.CurrencyType,
		Rarity:       def.Rarity,
		Description:  def.Description,
		DrawnAt:      time.Now(),
		ClientIP:     meta.IP,
		UserAgent:    meta.UserAgent,
	}
	if err := e.ledger.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist draw: %w", err)
	}
	return &DrawResult{
		DrawID:       rec.DrawID,
		RewardID:     rec.RewardID,
		Amount:       rec.Amount,
		CurrencyType: rec.CurrencyType,
		Rarity:       rec.Rarity,
		Description:  rec.Description,
		Timestamp:    rec.DrawnAt,
	}, nil
}

// ClaimResult reports the credited ledger's new balance.
type ClaimResult struct {
	DrawID       string               `json:"drawId"`
	CurrencyType catalog.CurrencyType `json:"currencyType"`
	Amount       float64              `json:"amount"`
	NewBalance   float64              `json:"newBalance"`
}

// Claim converts one unclaimed draw into a balance credit exactly once.
// The claimed_at transition happens first as an atomic conditional
// update; the credit follows. A crash or credit failure in between leaves
// a claimed-but-uncredited record that RepairUncredited finishes, so the
// reward can be delayed but never duplicated or lost.
func (e *Engine) Claim(ctx context.Context, accountID, drawID string) (*ClaimResult, error) {
	rec, err := e.ledger.Claim(ctx, accountID, drawID, time.Now())
	if err != nil {
		return nil, err
	}
	newBalance, err := e.credit(ctx, rec)
	if err != nil {
		log.Printf("spin: claim %s: credit failed, repair sweep will finish it: %v", drawID, err)
		return nil, fmt.Errorf("credit draw %s: %w", drawID, err)
	}
	if e.notifier != nil {
		if err := e.notifier.RewardClaimed(ctx, rec, newBalance); err != nil {
			log.Printf("spin: claim %s: notify platform: %v", drawID, err)
		}
	}
	return &ClaimResult{
		DrawID:       rec.DrawID,
		CurrencyType: rec.CurrencyType,
		Amount:       rec.Amount,
		NewBalance:   newBalance,
	}, nil
}

// credit applies the balance increment for a claimed record and stamps
// credited_at.
func (e *Engine) credit(ctx context.Context, rec *ledger.DrawRecord) (float64, error) {
	newBalance, err := e.wallet.Credit(ctx, rec.AccountID, wallet.Credit{
		Currency: rec.CurrencyType,
		Amount:   rec.Amount,
		Ref:      rec.DrawID,
	})
	if err != nil {
		return 0, err
	}
	if err := e.ledger.MarkCredited(ctx, rec.DrawID, time.Now()); err != nil {
		// The credit landed. The sweep will revisit this record, but the
		// wallet dedupes by draw id so the replay increments nothing.
		log.Printf("spin: mark credited %s: %v", rec.DrawID, err)
	}
	return newBalance, nil
}

// RepairUncredited finishes claims whose credit never landed. Returns the
// number of records repaired.
func (e *Engine) RepairUncredited(ctx context.Context, limit int) (int, error) {
	recs, err := e.ledger.UncreditedClaims(ctx, limit)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, rec := range recs {
		if _, err := e.credit(ctx, rec); err != nil {
			log.Printf("spin: repair %s: %v", rec.DrawID, err)
			continue
		}
		repaired++
	}
	return repaired, nil
}

const maxHistoryLimit = 50

// History returns an account's draws, newest first. Limit is clamped to 50.
func (e *Engine) History(ctx context.Context, accountID string, limit, offset int) ([]*ledger.DrawRecord, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return e.ledger.History(ctx, accountID, limit, offset)
}

// AdminStats is the audit aggregation plus the most recent draws.
type AdminStats struct {
	TotalDraws     int64                `json:"totalDraws"`
	ByRarity       map[string]int64     `json:"byRarity"`
	ByCurrencyType map[string]float64   `json:"byCurrencyType"`
	Recent         []*ledger.DrawRecord `json:"recent"`
}

func (e *Engine) Stats(ctx context.Context, recentN int) (*AdminStats, error) {
	st, err := e.ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := e.ledger.Recent(ctx, recentN)
	if err != nil {
		return nil, err
	}
	return &AdminStats{
		TotalDraws:     st.TotalDraws,
		ByRarity:       st.ByRarity,
		ByCurrencyType: st.ByCurrencyType,
		Recent:         recent,
	}, nil
}

// Catalog returns the public reward list for a wheel.
func (e *Engine) Catalog(wheelID string) ([]catalog.PublicReward, error) {
	cat := e.catalogs.Get(wheelID)
	if cat == nil {
		return nil, ErrWheelNotFound
	}
	return cat.ListPublic(), nil
}

// Validate runs catalog validation for a wheel.
func (e *Engine) Validate(wheelID string) (catalog.Validation, error) {
	cat := e.catalogs.Get(wheelID)
	if cat == nil {
		return catalog.Validation{}, ErrWheelNotFound
	}
	return cat.Validate(), nil
}
