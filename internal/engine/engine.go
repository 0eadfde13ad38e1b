// Package engine composes the session, resolver, cadence tracker, selector
// and stats aggregator into the operations the command line exposes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/library"
	"github.com/obentoo/buildwatch/internal/remote"
	"github.com/obentoo/buildwatch/internal/resolver"
	"github.com/obentoo/buildwatch/internal/stats"
	"github.com/obentoo/buildwatch/internal/tracker"
)

// DefaultUpdateTag is added to entries whose played version is behind
const DefaultUpdateTag = "Update available"

// SessionUsable reports whether remote calls can be issued
type SessionUsable interface {
	IsUsable() bool
}

// Resolver resolves product facts
type Resolver interface {
	ResolveOne(ctx context.Context, id remote.AppID) (resolver.ProductFacts, error)
	ResolveMany(ctx context.Context, ids []remote.AppID) (*resolver.Batch, error)
}

// CadenceTracker owns the per-entry tracking cache
type CadenceTracker interface {
	Get(id string) (tracker.TrackedState, bool)
	IsStale(id string) bool
	SetPlayedVersion(id, version string, months float64, lastUpdated int64) error
	Clear(id string) error
	Reconcile(current map[string]struct{}) (int, error)
}

// Selector implements the two selection algorithms
type Selector interface {
	PickRandomEligible(ctx context.Context, candidates []library.Entry) (*library.Entry, error)
	PickOldest(ctx context.Context, candidates []library.Entry) (*library.Entry, error)
}

// StatsAggregator computes playtime statistics
type StatsAggregator interface {
	Compute(ctx context.Context, id remote.AppID) (stats.Result, error)
}

// VersionResult describes what SetVersion did to an entry
type VersionResult struct {
	Entry *library.Entry
	// BuildID is the public branch build id just resolved
	BuildID string
	// PreviousVersion is the entry version before the call
	PreviousVersion string
	PlayedVersion   string
	// UpdateAvailable is set when the played version is behind BuildID
	UpdateAvailable bool
	// Tagged is set when the update tag was added by this call
	Tagged bool
	// Changed is set when the entry was modified and needs saving
	Changed bool
}

// Status is the tracking view of one entry
type Status struct {
	Entry         *library.Entry
	State         tracker.TrackedState
	Tracked       bool
	Stale         bool
	PlayedVersion string
	LatestVersion string
}

// Label renders the played and latest versions as " (played / latest)",
// using "0" for an unset value
func (s Status) Label() string {
	played := s.PlayedVersion
	if !s.Tracked {
		played = "0"
	}
	latest := s.LatestVersion
	if strings.TrimSpace(latest) == "" {
		latest = "0"
	}
	return fmt.Sprintf(" (%s / %s)", played, latest)
}

// UpdateAvailable reports whether both versions are set and differ
func (s Status) UpdateAvailable() bool {
	return isSet(s.PlayedVersion) && isSet(s.LatestVersion) && s.PlayedVersion != s.LatestVersion
}

// Option configures an Engine
type Option func(*Engine)

// WithUpdateTag sets the tag added by SetVersion when an update is available
func WithUpdateTag(tag string) Option {
	return func(e *Engine) {
		e.updateTag = tag
	}
}

// WithLogger sets the engine logger
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// Engine is the host-facing surface over the tracking components
type Engine struct {
	session   SessionUsable
	resolver  Resolver
	tracker   CadenceTracker
	selector  Selector
	stats     StatsAggregator
	updateTag string
	log       *logger.Logger
}

// New creates an engine
func New(session SessionUsable, res Resolver, tr CadenceTracker, sel Selector, agg StatsAggregator, opts ...Option) *Engine {
	e := &Engine{
		session:   session,
		resolver:  res,
		tracker:   tr,
		selector:  sel,
		stats:     agg,
		updateTag: DefaultUpdateTag,
		log:       logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) requireSession() error {
	if e.session == nil || !e.session.IsUsable() {
		return remote.ErrSessionUnavailable
	}
	return nil
}

// PickRandom returns a random entry that is eligible and due for a check,
// or nil when there is none
func (e *Engine) PickRandom(ctx context.Context, entries []library.Entry) (*library.Entry, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	return e.selector.PickRandomEligible(ctx, entries)
}

// PickOldest returns the entry with the oldest known update, or nil
func (e *Engine) PickOldest(ctx context.Context, entries []library.Entry) (*library.Entry, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	return e.selector.PickOldest(ctx, entries)
}

// isSet treats blank and "0" as no version
func isSet(version string) bool {
	v := strings.TrimSpace(version)
	return v != "" && v != "0"
}

// SetVersion resolves the public build id of entry and stores it as the
// entry version. When both the entry version and the played version are set
// and the played version differs from the new build id, the result reports
// an available update and, if tagUpdates is set, the entry gets the update
// tag. The entry is modified in place; the caller saves the library.
func (e *Engine) SetVersion(ctx context.Context, entry *library.Entry, tagUpdates bool) (*VersionResult, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}

	appID, err := entry.AppID()
	if err != nil {
		return nil, err
	}

	facts, err := e.resolver.ResolveOne(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to update version for %s: %w", entry.Name, err)
	}

	state, _ := e.tracker.Get(entry.ID)
	res := &VersionResult{
		Entry:           entry,
		BuildID:         facts.BuildID,
		PreviousVersion: entry.Version,
		PlayedVersion:   state.PlayedVersion,
	}

	if isSet(entry.Version) && isSet(state.PlayedVersion) && state.PlayedVersion != facts.BuildID {
		res.UpdateAvailable = true
		if tagUpdates && e.updateTag != "" && entry.AddTag(e.updateTag) {
			res.Tagged = true
			res.Changed = true
		}
	}

	if entry.Version != facts.BuildID {
		entry.Version = facts.BuildID
		res.Changed = true
	}

	e.log.Debug("%s: build %s (was %q, played %q)", entry.Name, facts.BuildID, res.PreviousVersion, res.PlayedVersion)
	return res, nil
}

// SetVersions calls SetVersion for every entry with tagging enabled. Entries
// that fail are skipped; their errors are joined into the returned error.
func (e *Engine) SetVersions(ctx context.Context, entries []*library.Entry) ([]*VersionResult, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}

	var results []*VersionResult
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := e.SetVersion(ctx, entry, true)
		if err != nil {
			e.log.Warn("%v", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// EditTracking replaces the tracked state of an entry
func (e *Engine) EditTracking(id, played string, months float64, lastUpdated int64) error {
	if months < 0 {
		return fmt.Errorf("update interval must not be negative: %v", months)
	}
	return e.tracker.SetPlayedVersion(id, played, months, lastUpdated)
}

// ClearTracking blanks the entry version and forgets its tracked state
func (e *Engine) ClearTracking(entry *library.Entry) error {
	entry.Version = ""
	return e.tracker.Clear(entry.ID)
}

// Reconcile prunes tracked state for entries no longer in the library
func (e *Engine) Reconcile(entries []library.Entry) (int, error) {
	current := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		current[entry.ID] = struct{}{}
	}
	removed, err := e.tracker.Reconcile(current)
	if removed > 0 {
		e.log.Info("pruned tracking state of %d removed entries", removed)
	}
	return removed, err
}

// Status reports the tracking view of entry
func (e *Engine) Status(entry *library.Entry) Status {
	state, ok := e.tracker.Get(entry.ID)
	return Status{
		Entry:         entry,
		State:         state,
		Tracked:       ok,
		Stale:         e.tracker.IsStale(entry.ID),
		PlayedVersion: state.PlayedVersion,
		LatestVersion: entry.Version,
	}
}

// PlaytimeStats computes review playtime statistics for entry. A failed
// page still yields the statistics of the pages read before it.
func (e *Engine) PlaytimeStats(ctx context.Context, entry *library.Entry) (stats.Result, error) {
	appID, err := entry.AppID()
	if err != nil {
		return stats.Result{}, err
	}
	return e.stats.Compute(ctx, appID)
}
