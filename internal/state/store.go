package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store tracks trade ids that have already been alerted on, so a trade is
// alerted at most once across restarts.
type Store interface {
	IsProcessed(tradeID string) bool
	Remember(tradeID string) error
	Close() error
}

// MemoryStore is an ordered set with bounded size. Once an insert pushes
// the set past maxSize, the oldest entries are evicted until exactly trimTo
// remain.
type MemoryStore struct {
	mu      sync.Mutex
	set     map[string]struct{}
	order   []string
	maxSize int
	trimTo  int
}

// NewMemoryStore creates a memory store with the given trim bounds.
func NewMemoryStore(maxSize, trimTo int) *MemoryStore {
	if trimTo < 1 {
		trimTo = 1
	}
	if maxSize < trimTo {
		maxSize = trimTo
	}
	return &MemoryStore{
		set:     make(map[string]struct{}),
		maxSize: maxSize,
		trimTo:  trimTo,
	}
}

// IsProcessed reports whether the trade id has been remembered.
func (s *MemoryStore) IsProcessed(tradeID string) bool {
	if tradeID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[tradeID]
	return ok
}

// Remember inserts the trade id. Empty ids and ids already present are no-ops.
func (s *MemoryStore) Remember(tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remember(tradeID)
	return nil
}

// remember performs the insert and trim; caller holds the lock.
// Returns true if the set changed.
func (s *MemoryStore) remember(tradeID string) bool {
	if tradeID == "" {
		return false
	}
	if _, ok := s.set[tradeID]; ok {
		return false
	}
	s.set[tradeID] = struct{}{}
	s.order = append(s.order, tradeID)

	if len(s.order) <= s.maxSize {
		return true
	}
	for len(s.order) > s.trimTo {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	return true
}

func (s *MemoryStore) Close() error {
	return nil
}

// FileStore persists a MemoryStore to a JSON file. The full ordered id list
// is rewritten atomically (tmp + rename) on every mutating insert.
type FileStore struct {
	*MemoryStore
	path string
}

type stateDocument struct {
	ProcessedTradeIDs []string `json:"processed_trade_ids"`
}

// NewFileStore loads existing state from path. A missing, corrupt, or
// unreadable file loads as empty state rather than failing.
func NewFileStore(path string, maxSize, trimTo int) *FileStore {
	s := &FileStore{
		MemoryStore: NewMemoryStore(maxSize, trimTo),
		path:        path,
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return
	}
	for _, id := range doc.ProcessedTradeIDs {
		if id == "" {
			continue
		}
		if _, ok := s.set[id]; ok {
			continue
		}
		s.set[id] = struct{}{}
		s.order = append(s.order, id)
	}
}

// Remember inserts the trade id and persists the store when it changed.
func (s *FileStore) Remember(tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remember(tradeID) {
		return nil
	}
	return s.save()
}

// save writes the full state atomically; caller holds the lock.
func (s *FileStore) save() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	data, err := json.Marshal(stateDocument{ProcessedTradeIDs: s.order})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}
