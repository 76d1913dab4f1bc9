package eligibility

import (
	"context"
	"testing"
	"time"
)

func TestConsume_DeniedWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	cons, err := s.CheckAndConsumeOneSpin(ctx, "acct1")
	if err != nil {
		t.Fatalf("CheckAndConsumeOneSpin: %v", err)
	}
	if cons.Allowed {
		t.Fatal("new account should have no spins")
	}
	if cons.Remaining != 0 {
		t.Errorf("Remaining = %d want 0", cons.Remaining)
	}
}

func TestConsume_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	if err := s.GrantFirstTime(ctx, "acct1", 1); err != nil {
		t.Fatalf("GrantFirstTime: %v", err)
	}
	if err := s.GrantThreshold(ctx, "acct1", "spend_50", 50, 1); err != nil {
		t.Fatalf("GrantThreshold: %v", err)
	}
	s.mu.Lock()
	s.states["acct1"].RandomSpinsRemaining = 1
	s.states["acct1"].recount()
	s.mu.Unlock()

	want := []Source{SourceFirstTime, SourceThreshold, SourceRandom}
	for i, w := range want {
		cons, err := s.CheckAndConsumeOneSpin(ctx, "acct1")
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !cons.Allowed {
			t.Fatalf("consume %d denied", i)
		}
		if cons.Source != w {
			t.Errorf("consume %d funded by %q, want %q", i, cons.Source, w)
		}
		if cons.Remaining != len(want)-i-1 {
			t.Errorf("consume %d remaining %d, want %d", i, cons.Remaining, len(want)-i-1)
		}
	}
	cons, err := s.CheckAndConsumeOneSpin(ctx, "acct1")
	if err != nil {
		t.Fatalf("final consume: %v", err)
	}
	if cons.Allowed {
		t.Error("exhausted account should be denied")
	}
}

func TestConsume_OldestThresholdGrantFirst(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.GrantThreshold(ctx, "acct1", "spend_50", 50, 1); err != nil {
		t.Fatalf("GrantThreshold: %v", err)
	}
	if err := s.GrantThreshold(ctx, "acct1", "spend_100", 100, 1); err != nil {
		t.Fatalf("GrantThreshold: %v", err)
	}
	// Force distinct ReachedAt ordering with the second grant older.
	s.mu.Lock()
	s.states["acct1"].ThresholdGrants[0].ReachedAt = time.Now()
	s.states["acct1"].ThresholdGrants[1].ReachedAt = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	if _, err := s.CheckAndConsumeOneSpin(ctx, "acct1"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	st, _ := s.Get(ctx, "acct1")
	if st.ThresholdGrants[1].SpinsConsumed != 1 {
		t.Errorf("oldest grant not consumed first: %+v", st.ThresholdGrants)
	}
	if st.ThresholdGrants[0].SpinsConsumed != 0 {
		t.Errorf("newer grant consumed out of order: %+v", st.ThresholdGrants)
	}
}

func TestRefundOneSpin(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.GrantFirstTime(ctx, "acct1", 1); err != nil {
		t.Fatalf("GrantFirstTime: %v", err)
	}

	cons, err := s.CheckAndConsumeOneSpin(ctx, "acct1")
	if err != nil || !cons.Allowed {
		t.Fatalf("consume: %v %+v", err, cons)
	}
	if err := s.RefundOneSpin(ctx, "acct1", cons.Source); err != nil {
		t.Fatalf("RefundOneSpin: %v", err)
	}

	st, _ := s.Get(ctx, "acct1")
	if st.TotalSpinsAvailable != 1 || st.FirstTimeSpinsRemaining != 1 {
		t.Errorf("refund did not restore the spin: %+v", st)
	}
}

func TestGrantFirstTime_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.GrantFirstTime(ctx, "acct1", 2); err != nil {
		t.Fatalf("GrantFirstTime: %v", err)
	}
	if err := s.GrantFirstTime(ctx, "acct1", 2); err != nil {
		t.Fatalf("GrantFirstTime: %v", err)
	}
	st, _ := s.Get(ctx, "acct1")
	if st.TotalSpinsAvailable != 2 {
		t.Errorf("second first-time grant should be a no-op: %+v", st)
	}
}

func TestGrantThreshold_AppendOncePerThreshold(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.GrantThreshold(ctx, "acct1", "spend_50", 50, 3); err != nil {
		t.Fatalf("GrantThreshold: %v", err)
	}
	if err := s.GrantThreshold(ctx, "acct1", "spend_50", 50, 3); err != nil {
		t.Fatalf("GrantThreshold: %v", err)
	}
	st, _ := s.Get(ctx, "acct1")
	if len(st.ThresholdGrants) != 1 || st.TotalSpinsAvailable != 3 {
		t.Errorf("duplicate threshold grant applied: %+v", st)
	}
}

func TestGrantRandom_Probability(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	granted, err := s.GrantRandomIfEligible(ctx, "acct1", 1.0, 0)
	if err != nil {
		t.Fatalf("GrantRandomIfEligible: %v", err)
	}
	if !granted {
		t.Error("probability 1 should always grant")
	}

	granted, err = s.GrantRandomIfEligible(ctx, "acct2", 0, 0)
	if err != nil {
		t.Fatalf("GrantRandomIfEligible: %v", err)
	}
	if granted {
		t.Error("probability 0 should never grant")
	}
	st, _ := s.Get(ctx, "acct2")
	if st.LastRandomGrantCheckedAt.IsZero() {
		t.Error("failed roll should still stamp LastRandomGrantCheckedAt")
	}
}

func TestGrantRandom_Cooldown(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	granted, err := s.GrantRandomIfEligible(ctx, "acct1", 1.0, 24)
	if err != nil || !granted {
		t.Fatalf("first grant: %v granted=%v", err, granted)
	}
	granted, err = s.GrantRandomIfEligible(ctx, "acct1", 1.0, 24)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if granted {
		t.Error("grant inside cooldown window should be refused")
	}

	st, _ := s.Get(ctx, "acct1")
	if st.RandomSpinsRemaining != 1 {
		t.Errorf("RandomSpinsRemaining = %d want 1", st.RandomSpinsRemaining)
	}
}

func TestTotalSpinsInvariant(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	if err := s.GrantFirstTime(ctx, "acct1", 2); err != nil {
		t.Fatalf("GrantFirstTime: %v", err)
	}
	if err := s.GrantThreshold(ctx, "acct1", "spend_50", 50, 3); err != nil {
		t.Fatalf("GrantThreshold: %v", err)
	}

	st, _ := s.Get(ctx, "acct1")
	if st.TotalSpinsAvailable != 5 {
		t.Fatalf("TotalSpinsAvailable = %d want 5", st.TotalSpinsAvailable)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.CheckAndConsumeOneSpin(ctx, "acct1"); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	st, _ = s.Get(ctx, "acct1")
	sum := st.FirstTimeSpinsRemaining + st.RandomSpinsRemaining
	for _, g := range st.ThresholdGrants {
		sum += g.SpinsAwarded - g.SpinsConsumed
	}
	if st.TotalSpinsAvailable != sum || st.TotalSpinsAvailable != 2 {
		t.Errorf("invariant broken: total=%d sum=%d", st.TotalSpinsAvailable, sum)
	}
}

func TestStatePersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)
	if err := s.GrantFirstTime(ctx, "acct1", 2); err != nil {
		t.Fatalf("GrantFirstTime: %v", err)
	}
	if _, err := s.CheckAndConsumeOneSpin(ctx, "acct1"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	s2 := NewFileStore(dir)
	st, _ := s2.Get(ctx, "acct1")
	if st.TotalSpinsAvailable != 1 || !st.FirstTimeGrantUsed {
		t.Errorf("reloaded state wrong: %+v", st)
	}
}
