// Package statestore persists the run state and the conversation index
// between sync runs. Both documents are schema-versioned and validated on
// load; anything missing, corrupt or of another version is replaced by an
// empty default so a damaged store never blocks a run.
package statestore

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// RunState is the small record of the last successful run.
type RunState struct {
	LastCursor *string
	LastRunAt  *string
}

// IndexEntry maps a conversation id to where it was last rendered. Fields are
// declared in JSON key order so the encoded index is sorted throughout.
type IndexEntry struct {
	DetailPath         *string `json:"event_path"`
	LastContentHash    *string `json:"last_content_hash"`
	LastSeenFinishedAt *string `json:"last_seen_finished_at"`
	ID                 string  `json:"omi_id"`
	PartitionKey       string  `json:"raw_date"`
	Heading            string  `json:"raw_heading"`
}

type Store struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	state   RunState
	entries map[string]IndexEntry
}

func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if backend == nil {
		backend = NewInMemoryBackend()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		entries: map[string]IndexEntry{},
	}
}

// Load reads both documents from the backend, replacing the in-memory copy.
// It never fails: unreadable documents are logged and treated as empty.
func (s *Store) Load() (RunState, map[string]IndexEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = RunState{}
	s.entries = map[string]IndexEntry{}

	snapshot, err := s.backend.Load()
	if err != nil {
		s.logger.Warn("state backend load failed, starting from empty state", "error", err)
		return s.state, maps.Clone(s.entries)
	}
	if snapshot == nil {
		return s.state, maps.Clone(s.entries)
	}
	if len(snapshot.State) > 0 {
		if state, err := decodeState(snapshot.State); err != nil {
			s.logger.Warn("ignoring unreadable run state", "error", err)
		} else {
			s.state = state
		}
	}
	if len(snapshot.Index) > 0 {
		if entries, err := decodeIndex(snapshot.Index); err != nil {
			s.logger.Warn("ignoring unreadable index", "error", err)
		} else {
			s.entries = entries
		}
	}
	return s.state, maps.Clone(s.entries)
}

func (s *Store) Get(id string) (IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	return entry, ok
}

// Put inserts or replaces the entry keyed by entry.ID.
func (s *Store) Put(entry IndexEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: index entry without id", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

// EntriesForPartition returns the entries whose partition key is date,
// ordered by id.
func (s *Store) EntriesForPartition(date string) []IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []IndexEntry
	for _, id := range slices.Sorted(maps.Keys(s.entries)) {
		if entry := s.entries[id]; entry.PartitionKey == date {
			out = append(out, entry)
		}
	}
	return out
}

// AllEntries returns every entry ordered by id.
func (s *Store) AllEntries() []IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IndexEntry, 0, len(s.entries))
	for _, id := range slices.Sorted(maps.Keys(s.entries)) {
		out = append(out, s.entries[id])
	}
	return out
}

func (s *Store) SetLastRun(at string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastRunAt = &at
}

func (s *Store) SetCursor(cursor *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastCursor = cursor
}

// Save writes both documents through the backend.
func (s *Store) Save() error {
	s.mu.Lock()
	state, err := encodeState(s.state)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode run state: %w", err)
	}
	index, err := encodeIndex(s.entries)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := s.backend.Save(&Snapshot{State: state, Index: index}); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close releases the backend when it holds resources.
func (s *Store) Close() error {
	if closer, ok := s.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
