// Package tracker owns the per-entry tracking cache: the played version, the
// recheck cadence and the last known remote update time of every entry.
package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/resolver"
)

// Error variables for store errors
var (
	// ErrPersistence wraps every failure to write the cache file
	ErrPersistence = errors.New("tracking cache persistence failure")
	// ErrCacheCorrupted is logged when the cache file cannot be parsed
	ErrCacheCorrupted = errors.New("tracking cache file is corrupted")
)

// DefaultFileName is the cache file name inside the data directory
const DefaultFileName = "data.json"

// TrackedState is the cached tracking state of one entry
type TrackedState struct {
	// PlayedVersion is the version the user acknowledged; "" or "0" means unset
	PlayedVersion string `json:"PlayedVersion"`
	// UpdateMonths overrides the recheck interval; 0 means the default
	UpdateMonths float64 `json:"UpdateMonths"`
	// LastUpdatedSeconds is the cached remote update time; 0 means unknown
	LastUpdatedSeconds int64 `json:"LastUpdatedSeconds"`
}

// HasPlayedVersion reports whether a played version is set
func (s TrackedState) HasPlayedVersion() bool {
	return s.PlayedVersion != "" && s.PlayedVersion != "0"
}

// Option configures a Store
type Option func(*Store)

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = fn
	}
}

// WithFileName overrides the cache file name
func WithFileName(name string) Option {
	return func(s *Store) {
		s.fileName = name
	}
}

// WithLogger sets the store logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithDefaultMonths sets the interval used for entries without an override
func WithDefaultMonths(months float64) Option {
	return func(s *Store) {
		if months > 0 {
			s.defaultMonths = months
		}
	}
}

// Store is the process-wide tracking cache. Every mutation is flushed to
// disk as a whole-file replace before the call returns.
type Store struct {
	path          string
	fileName      string
	defaultMonths float64
	nowFunc       func() time.Time
	log           *logger.Logger

	// mu guards entries and gen
	mu      sync.RWMutex
	entries map[string]TrackedState
	gen     uint64

	// flushMu serializes writers; flushed is the newest generation on disk
	flushMu sync.Mutex
	flushed uint64
}

// Open loads the cache from dir. A missing file starts an empty cache; a
// corrupt one is logged and replaced on the next flush.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		fileName:      DefaultFileName,
		defaultMonths: DefaultUpdateMonths,
		nowFunc:       time.Now,
		log:           logger.Named("tracker"),
		entries:       make(map[string]TrackedState),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrPersistence, err)
	}
	s.path = filepath.Join(dir, s.fileName)

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Starting with an empty tracking cache: %v", err)
		}
		s.entries = make(map[string]TrackedState)
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var entries map[string]TrackedState
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if entries != nil {
		s.entries = entries
	}
	return nil
}

// Path returns the cache file path
func (s *Store) Path() string {
	return s.path
}

// Get returns the state of id
func (s *Store) Get(id string) (TrackedState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.entries[id]
	return state, ok
}

// Snapshot returns a copy of the whole cache
func (s *Store) Snapshot() map[string]TrackedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() map[string]TrackedState {
	out := make(map[string]TrackedState, len(s.entries))
	for id, state := range s.entries {
		out[id] = state
	}
	return out
}

// Len returns the number of tracked entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsStale reports whether id needs a fresh remote check. Unknown entries are stale.
func (s *Store) IsStale(id string) bool {
	state, _ := s.Get(id)
	return state.Stale(s.nowFunc(), s.defaultMonths)
}

// DefaultMonths returns the interval applied to entries without an override
func (s *Store) DefaultMonths() float64 {
	return s.defaultMonths
}

// MergeResolved records a resolved update time for id, creating the entry
// if needed. Facts without an update time are ignored.
func (s *Store) MergeResolved(id string, facts resolver.ProductFacts) error {
	return s.MergeMany(map[string]resolver.ProductFacts{id: facts})
}

// MergeMany records several resolved update times with a single flush
func (s *Store) MergeMany(facts map[string]resolver.ProductFacts) error {
	return s.commit(func(entries map[string]TrackedState) bool {
		changed := false
		for id, f := range facts {
			if f.LastUpdated == 0 {
				continue
			}
			state, ok := entries[id]
			if ok && state.LastUpdatedSeconds == int64(f.LastUpdated) {
				continue
			}
			state.LastUpdatedSeconds = int64(f.LastUpdated)
			entries[id] = state
			changed = true
		}
		return changed
	})
}

// SetPlayedVersion replaces the whole state of id
func (s *Store) SetPlayedVersion(id, version string, months float64, lastUpdated int64) error {
	return s.commit(func(entries map[string]TrackedState) bool {
		entries[id] = TrackedState{
			PlayedVersion:      version,
			UpdateMonths:       months,
			LastUpdatedSeconds: lastUpdated,
		}
		return true
	})
}

// Reconcile drops every entry whose id is not in current and returns how
// many were removed. Nothing is written when nothing was removed.
func (s *Store) Reconcile(current map[string]struct{}) (int, error) {
	removed := 0
	err := s.commit(func(entries map[string]TrackedState) bool {
		for id := range entries {
			if _, ok := current[id]; !ok {
				delete(entries, id)
				removed++
			}
		}
		return removed > 0
	})
	if removed > 0 {
		s.log.Debug("pruned %d tracking entries", removed)
	}
	return removed, err
}

// Clear removes id from the cache
func (s *Store) Clear(id string) error {
	return s.commit(func(entries map[string]TrackedState) bool {
		if _, ok := entries[id]; !ok {
			return false
		}
		delete(entries, id)
		return true
	})
}

// commit applies fn under the lock and flushes the result when fn reports a change
func (s *Store) commit(fn func(map[string]TrackedState) bool) error {
	s.mu.Lock()
	if !fn(s.entries) {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	snapshot := s.copyLocked()
	s.mu.Unlock()

	return s.flush(gen, snapshot)
}

// flush writes snapshot unless a newer generation is already on disk
func (s *Store) flush(gen uint64, snapshot map[string]TrackedState) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if gen <= s.flushed {
		return nil
	}
	if err := s.write(snapshot); err != nil {
		s.log.Error("Failed to save tracking cache: %v", err)
		return err
	}
	s.flushed = gen
	return nil
}

// write replaces the cache file through a temp file in the same directory
func (s *Store) write(entries map[string]TrackedState) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal cache: %v", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+s.fileName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrPersistence, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to write cache file: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to write cache file: %v", ErrPersistence, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to rename cache file: %v", ErrPersistence, err)
	}
	return nil
}
