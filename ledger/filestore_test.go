package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sweepvault/spinwheel-server/catalog"
)

func newRecord(drawID, accountID string, drawnAt time.Time) *DrawRecord {
	return &DrawRecord{
		DrawID:       drawID,
		AccountID:    accountID,
		WheelID:      "daily_wheel",
		RewardID:     1,
		Amount:       100,
		CurrencyType: catalog.CurrencyGold,
		Rarity:       catalog.RarityCommon,
		Description:  "100 Gold Coins",
		DrawnAt:      drawnAt,
	}
}

func TestNewDrawID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewDrawID()
		if err != nil {
			t.Fatalf("NewDrawID: %v", err)
		}
		if len(id) != 32 {
			t.Fatalf("draw id %q has length %d, want 32", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate draw id %q", id)
		}
		seen[id] = true
	}
}

func TestFileStore_ClaimFlow(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	rec := newRecord("d1", "acct1", time.Now())
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	claimed, err := s.Claim(ctx, "acct1", "d1", time.Now())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.ClaimedAt == nil {
		t.Fatal("claimed record missing ClaimedAt")
	}

	if _, err := s.Claim(ctx, "acct1", "d1", time.Now()); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim returned %v, want ErrAlreadyClaimed", err)
	}
}

func TestFileStore_ClaimWrongAccountLooksMissing(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.Insert(ctx, newRecord("d1", "acct1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx, "acct2", "d1", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign claim returned %v, want ErrNotFound", err)
	}
	if _, err := s.Claim(ctx, "acct1", "nope", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing claim returned %v, want ErrNotFound", err)
	}
}

func TestFileStore_ConcurrentClaimsOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.Insert(ctx, newRecord("d1", "acct1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	var winners, losers int64
	var mu sync.Mutex
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Claim(ctx, "acct1", "d1", time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrAlreadyClaimed):
				losers++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("%d winners, want exactly 1", winners)
	}
	if losers != attempts-1 {
		t.Errorf("%d losers, want %d", losers, attempts-1)
	}
}

func TestFileStore_InsertRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.Insert(ctx, newRecord("d1", "acct1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, newRecord("d1", "acct1", time.Now())); err == nil {
		t.Fatal("duplicate insert should fail")
	}
}

func TestFileStore_HistoryPagination(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := newRecord(fmt.Sprintf("d%d", i), "acct1", base.Add(time.Duration(i)*time.Minute))
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := s.Insert(ctx, newRecord("other", "acct2", base)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	page, total, err := s.History(ctx, "acct1", 2, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 5 {
		t.Errorf("total %d want 5", total)
	}
	if len(page) != 2 || page[0].DrawID != "d4" || page[1].DrawID != "d3" {
		t.Errorf("first page wrong: %v, %v", page[0].DrawID, page[1].DrawID)
	}

	page, _, err = s.History(ctx, "acct1", 2, 4)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page) != 1 || page[0].DrawID != "d0" {
		t.Errorf("last page wrong: %+v", page)
	}

	page, total, err = s.History(ctx, "acct1", 2, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page) != 0 || total != 5 {
		t.Errorf("past-the-end page: len=%d total=%d", len(page), total)
	}
}

func TestFileStore_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)
	if err := s.Insert(ctx, newRecord("d1", "acct1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx, "acct1", "d1", time.Now()); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	s2 := NewFileStore(dir)
	if _, err := s2.Claim(ctx, "acct1", "d1", time.Now()); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("claim state lost on reload: %v", err)
	}
}

func TestFileStore_UncreditedClaims(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	now := time.Now()
	for _, id := range []string{"d1", "d2", "d3"} {
		if err := s.Insert(ctx, newRecord(id, "acct1", now)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	// d1 claimed and credited, d2 claimed only, d3 unclaimed.
	if _, err := s.Claim(ctx, "acct1", "d1", now); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.MarkCredited(ctx, "d1", now); err != nil {
		t.Fatalf("MarkCredited: %v", err)
	}
	if _, err := s.Claim(ctx, "acct1", "d2", now); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	recs, err := s.UncreditedClaims(ctx, 10)
	if err != nil {
		t.Fatalf("UncreditedClaims: %v", err)
	}
	if len(recs) != 1 || recs[0].DrawID != "d2" {
		t.Errorf("UncreditedClaims = %+v, want only d2", recs)
	}
}

func TestFileStore_MarkCreditedRequiresClaim(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	now := time.Now()
	if err := s.Insert(ctx, newRecord("d1", "acct1", now)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.MarkCredited(ctx, "d1", now); err == nil {
		t.Fatal("crediting an unclaimed draw should fail")
	}
	if err := s.MarkCredited(ctx, "nope", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing draw returned %v, want ErrNotFound", err)
	}
}

func TestFileStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	now := time.Now()

	gold := newRecord("d1", "acct1", now)
	if err := s.Insert(ctx, gold); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	sweep := newRecord("d2", "acct1", now)
	sweep.CurrencyType = catalog.CurrencySweep
	sweep.Rarity = catalog.RarityTopReward
	sweep.Amount = 5
	if err := s.Insert(ctx, sweep); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx, "acct1", "d2", now); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalDraws != 2 {
		t.Errorf("TotalDraws = %d want 2", st.TotalDraws)
	}
	if st.ByRarity["COMMON"] != 1 || st.ByRarity["TOP_REWARD"] != 1 {
		t.Errorf("ByRarity = %v", st.ByRarity)
	}
	// Only claimed amounts count as disbursed.
	if st.ByCurrencyType["GOLD"] != 0 || st.ByCurrencyType["SWEEP"] != 5 {
		t.Errorf("ByCurrencyType = %v", st.ByCurrencyType)
	}
}
