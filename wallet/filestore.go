package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweepvault/spinwheel-server/catalog"
)

// FileStore keeps balances in balances.json and appends every credit to
// transactions.json in the data dir.
type FileStore struct {
	mu       sync.Mutex
	balances map[string]*Balances
	refs     map[string]bool // refs already credited, for idempotent replay
	dataDir  string
}

func NewFileStore(dataDir string) *FileStore {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &FileStore{
		balances: make(map[string]*Balances),
		refs:     make(map[string]bool),
		dataDir:  dataDir,
	}
	s.load()
	return s
}

func (s *FileStore) balancesPath() string {
	return filepath.Join(s.dataDir, "balances.json")
}

func (s *FileStore) transactionsPath() string {
	return filepath.Join(s.dataDir, "transactions.json")
}

func (s *FileStore) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.balancesPath())
	if err != nil {
		return
	}
	var list []*Balances
	if err := json.Unmarshal(data, &list); err != nil {
		return
	}
	for _, b := range list {
		if b != nil && b.AccountID != "" {
			s.balances[b.AccountID] = b
		}
	}
	if data, err := os.ReadFile(s.transactionsPath()); err == nil {
		var txs []*Transaction
		if json.Unmarshal(data, &txs) == nil {
			for _, t := range txs {
				if t != nil && t.Ref != "" {
					s.refs[t.Ref] = true
				}
			}
		}
	}
}

// saveLocked writes balances to disk. Caller must hold s.mu.
func (s *FileStore) saveLocked() error {
	list := make([]*Balances, 0, len(s.balances))
	for _, b := range s.balances {
		list = append(list, b)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.balancesPath(), data, 0644)
}

// appendTransactionLocked appends one credit to the transaction log.
// Caller must hold s.mu.
func (s *FileStore) appendTransactionLocked(t *Transaction) error {
	var list []*Transaction
	if data, err := os.ReadFile(s.transactionsPath()); err == nil {
		_ = json.Unmarshal(data, &list)
	}
	if list == nil {
		list = []*Transaction{}
	}
	list = append(list, t)
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.transactionsPath(), data, 0644)
}

func (s *FileStore) Credit(ctx context.Context, accountID string, c Credit) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[accountID]
	if !ok {
		b = &Balances{AccountID: accountID}
		s.balances[accountID] = b
	}
	if c.Ref != "" && s.refs[c.Ref] {
		// Already credited under this ref; report the current balance.
		switch c.Currency {
		case catalog.CurrencyGold:
			return b.Gold, nil
		case catalog.CurrencySweep:
			return b.Sweep, nil
		default:
			return 0, fmt.Errorf("unknown currency type %q", c.Currency)
		}
	}
	newBalance, err := Apply(b, c)
	if err != nil {
		return 0, err
	}
	if err := s.saveLocked(); err != nil {
		// Undo the in-memory increment so a retry is safe.
		_, _ = Apply(b, Credit{Currency: c.Currency, Amount: -c.Amount})
		return 0, err
	}
	if c.Ref != "" {
		s.refs[c.Ref] = true
	}
	_ = s.appendTransactionLocked(&Transaction{
		TxID:         uuid.New().String(),
		AccountID:    accountID,
		CurrencyType: c.Currency,
		Amount:       c.Amount,
		Ref:          c.Ref,
		CreatedAt:    time.Now(),
	})
	return newBalance, nil
}

func (s *FileStore) Balances(ctx context.Context, accountID string) (*Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[accountID]
	if !ok {
		return &Balances{AccountID: accountID}, nil
	}
	cp := *b
	return &cp, nil
}
