// Package selection picks library entries to play next: a random entry that
// has not been updated recently, or the entry whose last update is oldest.
package selection

import (
	"context"
	"math/rand/v2"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/library"
	"github.com/obentoo/buildwatch/internal/remote"
	"github.com/obentoo/buildwatch/internal/resolver"
	"github.com/obentoo/buildwatch/internal/tracker"
)

// Resolver resolves update times in batches
type Resolver interface {
	ResolveMany(ctx context.Context, ids []remote.AppID) (*resolver.Batch, error)
}

// Tracker is the part of tracker.Store selection reads and merges into
type Tracker interface {
	Get(id string) (tracker.TrackedState, bool)
	IsStale(id string) bool
	MergeResolved(id string, facts resolver.ProductFacts) error
	MergeMany(facts map[string]resolver.ProductFacts) error
}

// Option configures a Selector
type Option func(*Selector)

// WithRand sets the random source used by PickRandomEligible
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rand = r
	}
}

// WithProgress registers a function called for every candidate considered
func WithProgress(fn func(library.Entry)) Option {
	return func(s *Selector) {
		s.progress = fn
	}
}

// WithIneligible replaces the predicate that takes entries out of the random rotation
func WithIneligible(fn func(library.Entry) bool) Option {
	return func(s *Selector) {
		s.ineligible = fn
	}
}

// WithExcludeTags makes entries carrying any of tags ineligible
func WithExcludeTags(tags []string) Option {
	return func(s *Selector) {
		excluded := append([]string(nil), tags...)
		s.ineligible = func(e library.Entry) bool {
			return e.HasAnyTag(excluded)
		}
	}
}

// WithLogger sets the selector logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Selector) {
		s.log = l
	}
}

// Selector implements both selection algorithms
type Selector struct {
	resolver   Resolver
	tracker    Tracker
	rand       *rand.Rand
	progress   func(library.Entry)
	ineligible func(library.Entry) bool
	log        *logger.Logger
}

// New creates a selector
func New(res Resolver, tr Tracker, opts ...Option) *Selector {
	s := &Selector{
		resolver:   res,
		tracker:    tr,
		rand:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		progress:   func(library.Entry) {},
		ineligible: func(library.Entry) bool { return false },
		log:        logger.Named("selection"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PickRandomEligible draws candidates uniformly at random until it finds one
// that is eligible and due for a check. Ineligible and recently updated
// entries are dropped from the pool. It returns nil once the pool is empty.
// The candidates slice is never modified.
func (s *Selector) PickRandomEligible(ctx context.Context, candidates []library.Entry) (*library.Entry, error) {
	pool := make([]library.Entry, len(candidates))
	copy(pool, candidates)

	for len(pool) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		i := s.rand.IntN(len(pool))
		entry := pool[i]
		s.progress(entry)

		if s.ineligible(entry) {
			s.log.Debug("%s is excluded from rotation", entry.Name)
			pool = removeAt(pool, i)
			continue
		}

		due, err := s.isDue(ctx, entry)
		if err != nil {
			return nil, err
		}
		if due {
			return &entry, nil
		}
		s.log.Debug("%s was updated recently", entry.Name)
		pool = removeAt(pool, i)
	}
	return nil, nil
}

// isDue reports whether entry has gone a full interval without an update.
// A fresh cached time settles it; otherwise the entry is resolved on its own.
// Entries whose update time cannot be learned are due.
func (s *Selector) isDue(ctx context.Context, entry library.Entry) (bool, error) {
	cached, hasCached := s.tracker.Get(entry.ID)
	hasCached = hasCached && cached.LastUpdatedSeconds > 0
	if hasCached && !s.tracker.IsStale(entry.ID) {
		return false, nil
	}

	appID, err := entry.AppID()
	if err != nil {
		s.log.Warn("%v", err)
		return true, nil
	}

	batch, err := s.resolver.ResolveMany(ctx, []remote.AppID{appID})
	if err != nil {
		return false, err
	}

	facts, ok := batch.Facts[appID]
	if !ok || facts.LastUpdated == 0 {
		return true, nil
	}
	if err := s.tracker.MergeResolved(entry.ID, facts); err != nil {
		s.log.Warn("%v", err)
	}
	return s.tracker.IsStale(entry.ID), nil
}

// PickOldest returns the candidate with the oldest update time. Cached times
// are used where known and every other candidate is resolved in one batch.
// Ties go to the earlier candidate. Candidates without a known time are
// ignored; nil is returned when none has one.
func (s *Selector) PickOldest(ctx context.Context, candidates []library.Entry) (*library.Entry, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	times := make([]int64, len(candidates))
	owners := make(map[remote.AppID][]int)
	var ids []remote.AppID

	for i, entry := range candidates {
		s.progress(entry)
		if state, ok := s.tracker.Get(entry.ID); ok && state.LastUpdatedSeconds > 0 {
			times[i] = state.LastUpdatedSeconds
			continue
		}
		appID, err := entry.AppID()
		if err != nil {
			s.log.Debug("%v", err)
			continue
		}
		if _, seen := owners[appID]; !seen {
			ids = append(ids, appID)
		}
		owners[appID] = append(owners[appID], i)
	}

	if len(ids) > 0 {
		batch, err := s.resolver.ResolveMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]resolver.ProductFacts)
		for appID, facts := range batch.Facts {
			for _, i := range owners[appID] {
				times[i] = int64(facts.LastUpdated)
				merged[candidates[i].ID] = facts
			}
		}
		if err := s.tracker.MergeMany(merged); err != nil {
			s.log.Warn("%v", err)
		}
	}

	best := -1
	for i, ts := range times {
		if ts > 0 && (best < 0 || ts < times[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}
	oldest := candidates[best]
	return &oldest, nil
}

// removeAt drops pool[i] by moving the last element into its place
func removeAt(pool []library.Entry, i int) []library.Entry {
	last := len(pool) - 1
	pool[i] = pool[last]
	return pool[:last]
}
