package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store persists catalogs by wheel id. Catalogs load at process start and
// are replaced wholesale on admin updates; draws only ever read.
type Store struct {
	mu       sync.RWMutex
	catalogs map[string]*Catalog
	dataDir  string
}

func NewStore(dataDir string) *Store {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &Store{
		catalogs: make(map[string]*Catalog),
		dataDir:  dataDir,
	}
	s.load()
	return s
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, "wheels.json")
}

type storedEntry struct {
	WheelID string   `json:"wheel_id"`
	Catalog *Catalog `json:"catalog"`
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path())
	if err != nil {
		return
	}
	var list []storedEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return
	}
	for _, e := range list {
		if e.WheelID != "" && e.Catalog != nil {
			s.catalogs[e.WheelID] = e.Catalog
		}
	}
}

// saveLocked writes the store to disk. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	list := make([]storedEntry, 0, len(s.catalogs))
	for id, c := range s.catalogs {
		list = append(list, storedEntry{WheelID: id, Catalog: c})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].WheelID < list[j].WheelID })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path(), data, 0644)
}

// Register stores a catalog by its wheel id. Overwrites if exists.
func (s *Store) Register(c *Catalog) error {
	if c == nil || c.WheelID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[c.WheelID] = c
	return s.saveLocked()
}

// Get returns the catalog for the given wheel id, or nil.
func (s *Store) Get(wheelID string) *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.catalogs[wheelID]
	if !ok {
		return nil
	}
	return c
}

// List returns registered wheel ids in sorted order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.catalogs))
	for id := range s.catalogs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
