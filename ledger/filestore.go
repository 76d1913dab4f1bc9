package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps the draw ledger in draws.json under the data dir. The
// mutex makes the claim check-and-set a single indivisible step.
type FileStore struct {
	mu      sync.Mutex
	draws   map[string]*DrawRecord
	order   []string // draw ids, oldest first
	dataDir string
}

func NewFileStore(dataDir string) *FileStore {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &FileStore{
		draws:   make(map[string]*DrawRecord),
		dataDir: dataDir,
	}
	s.load()
	return s
}

func (s *FileStore) path() string {
	return filepath.Join(s.dataDir, "draws.json")
}

func (s *FileStore) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path())
	if err != nil {
		return
	}
	var list []*DrawRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return
	}
	for _, r := range list {
		if r != nil && r.DrawID != "" {
			s.draws[r.DrawID] = r
			s.order = append(s.order, r.DrawID)
		}
	}
}

// saveLocked writes the ledger to disk in insertion order. Caller must
// hold s.mu.
func (s *FileStore) saveLocked() error {
	list := make([]*DrawRecord, 0, len(s.order))
	for _, id := range s.order {
		if r, ok := s.draws[id]; ok {
			list = append(list, r)
		}
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

func (s *FileStore) Insert(ctx context.Context, rec *DrawRecord) error {
	if rec == nil || rec.DrawID == "" {
		return fmt.Errorf("insert: missing draw id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.draws[rec.DrawID]; ok {
		return fmt.Errorf("insert: duplicate draw id %s", rec.DrawID)
	}
	cp := *rec
	s.draws[cp.DrawID] = &cp
	s.order = append(s.order, cp.DrawID)
	return s.saveLocked()
}

// Claim sets ClaimedAt if and only if it is currently nil and the record
// belongs to accountID. An id that exists under another account reports
// ErrNotFound, not ErrAlreadyClaimed, so a leaked id reveals nothing.
func (s *FileStore) Claim(ctx context.Context, accountID, drawID string, now time.Time) (*DrawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.draws[drawID]
	if !ok || r.AccountID != accountID {
		return nil, ErrNotFound
	}
	if r.ClaimedAt != nil {
		return nil, ErrAlreadyClaimed
	}
	t := now
	r.ClaimedAt = &t
	if err := s.saveLocked(); err != nil {
		r.ClaimedAt = nil
		return nil, err
	}
	cp := *r
	return &cp, nil
}

func (s *FileStore) MarkCredited(ctx context.Context, drawID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.draws[drawID]
	if !ok {
		return ErrNotFound
	}
	if r.ClaimedAt == nil {
		return fmt.Errorf("mark credited: draw %s is not claimed", drawID)
	}
	if r.CreditedAt != nil {
		return nil
	}
	t := now
	r.CreditedAt = &t
	return s.saveLocked()
}

func (s *FileStore) UncreditedClaims(ctx context.Context, limit int) ([]*DrawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DrawRecord
	for _, id := range s.order {
		r := s.draws[id]
		if r.ClaimedAt != nil && r.CreditedAt == nil {
			cp := *r
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// History returns the account's draws newest first, plus the total count
// for pagination.
func (s *FileStore) History(ctx context.Context, accountID string, limit, offset int) ([]*DrawRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*DrawRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.draws[s.order[i]]
		if r.AccountID == accountID {
			all = append(all, r)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []*DrawRecord{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*DrawRecord, 0, len(all))
	for _, r := range all {
		cp := *r
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *FileStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Stats{
		ByRarity:       make(map[string]int64),
		ByCurrencyType: make(map[string]float64),
	}
	for _, r := range s.draws {
		st.TotalDraws++
		st.ByRarity[string(r.Rarity)]++
		if r.ClaimedAt != nil {
			st.ByCurrencyType[string(r.CurrencyType)] += r.Amount
		}
	}
	return st, nil
}

func (s *FileStore) Recent(ctx context.Context, n int) ([]*DrawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		n = 10
	}
	out := make([]*DrawRecord, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		cp := *s.draws[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}
