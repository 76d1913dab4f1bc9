package eligibility

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists per-account eligibility state to eligibility.json.
// The mutex makes check-and-consume one indivisible step.
type FileStore struct {
	mu      sync.Mutex
	states  map[string]*State
	dataDir string
}

func NewFileStore(dataDir string) *FileStore {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &FileStore{
		states:  make(map[string]*State),
		dataDir: dataDir,
	}
	s.load()
	return s
}

func (s *FileStore) path() string {
	return filepath.Join(s.dataDir, "eligibility.json")
}

func (s *FileStore) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path())
	if err != nil {
		return
	}
	var list []*State
	if err := json.Unmarshal(data, &list); err != nil {
		return
	}
	for _, st := range list {
		if st != nil && st.AccountID != "" {
			s.states[st.AccountID] = st
		}
	}
}

// saveLocked writes all states to disk. Caller must hold s.mu.
func (s *FileStore) saveLocked() error {
	list := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		list = append(list, st)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path(), data, 0644)
}

// stateLocked returns the account's state, creating it if new. Caller
// must hold s.mu.
func (s *FileStore) stateLocked(accountID string) *State {
	st, ok := s.states[accountID]
	if !ok {
		st = &State{AccountID: accountID}
		s.states[accountID] = st
	}
	return st
}

func (s *FileStore) CheckAndConsumeOneSpin(ctx context.Context, accountID string) (*Consumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(accountID)
	src, ok := st.consumeOne()
	if !ok {
		return &Consumption{Allowed: false, Reason: "no spins remaining", Remaining: 0}, nil
	}
	if err := s.saveLocked(); err != nil {
		st.refundOne(src)
		return nil, err
	}
	return &Consumption{Allowed: true, Source: src, Remaining: st.TotalSpinsAvailable}, nil
}

func (s *FileStore) RefundOneSpin(ctx context.Context, accountID string, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(accountID)
	st.refundOne(src)
	return s.saveLocked()
}

func (s *FileStore) GrantFirstTime(ctx context.Context, accountID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(accountID)
	if st.FirstTimeGrantUsed || count <= 0 {
		return nil
	}
	st.FirstTimeGrantUsed = true
	st.FirstTimeSpinsRemaining += count
	st.recount()
	return s.saveLocked()
}

func (s *FileStore) GrantThreshold(ctx context.Context, accountID, thresholdID string, spendThreshold float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(accountID)
	for _, g := range st.ThresholdGrants {
		if g.ThresholdID == thresholdID {
			// Each threshold is crossed once; the grant is append-only.
			return nil
		}
	}
	if count <= 0 {
		return nil
	}
	st.ThresholdGrants = append(st.ThresholdGrants, ThresholdGrant{
		ThresholdID:    thresholdID,
		SpendThreshold: spendThreshold,
		SpinsAwarded:   count,
		ReachedAt:      time.Now(),
	})
	st.recount()
	return s.saveLocked()
}

func (s *FileStore) GrantRandomIfEligible(ctx context.Context, accountID string, probability float64, cooldownHours int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(accountID)
	now := time.Now()
	cooldown := time.Duration(cooldownHours) * time.Hour
	if !st.LastRandomGrantAt.IsZero() && now.Sub(st.LastRandomGrantAt) < cooldown {
		return false, nil
	}
	st.LastRandomGrantCheckedAt = now
	if !chance(probability) {
		return false, s.saveLocked()
	}
	st.RandomSpinsRemaining++
	st.LastRandomGrantAt = now
	st.recount()
	return true, s.saveLocked()
}

func (s *FileStore) Get(ctx context.Context, accountID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(accountID)
	cp := *st
	cp.ThresholdGrants = append([]ThresholdGrant(nil), st.ThresholdGrants...)
	return &cp, nil
}
