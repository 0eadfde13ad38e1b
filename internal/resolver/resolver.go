// Package resolver turns remote identifiers into product facts by issuing
// batched product info requests and reading the returned metadata trees.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/library"
	"github.com/obentoo/buildwatch/internal/remote"
)

// Error variables for metadata shape errors. Every shape error wraps ErrMetadataShape.
var (
	ErrMetadataShape    = errors.New("unexpected product metadata shape")
	ErrDepotsNotFound   = fmt.Errorf("%w: depots not found", ErrMetadataShape)
	ErrBranchesNotFound = fmt.Errorf("%w: branches not found", ErrMetadataShape)
	ErrNoPublicBranch   = fmt.Errorf("%w: public branch not found", ErrMetadataShape)
	ErrNoBuildID        = fmt.Errorf("%w: build id not found", ErrMetadataShape)
	// ErrNotInResponse is recorded for ids the service did not answer for
	ErrNotInResponse = errors.New("app missing from product info response")
	// ErrIdentifierUnresolvable is returned for the zero identifier
	ErrIdentifierUnresolvable = library.ErrIdentifierUnresolvable
)

// ProductFacts are the facts extracted from one metadata tree
type ProductFacts struct {
	AppID remote.AppID
	// BuildID is the public branch build id, filled by ResolveOne only
	BuildID string
	// LastUpdated is the newest timeupdated across all branches, 0 when unknown
	LastUpdated uint32
}

// Batch is the outcome of one batched request
type Batch struct {
	Facts    map[remote.AppID]ProductFacts
	Failures map[remote.AppID]error
}

func newBatch() *Batch {
	return &Batch{
		Facts:    make(map[remote.AppID]ProductFacts),
		Failures: make(map[remote.AppID]error),
	}
}

// Session is the part of remote.Session the resolver needs
type Session interface {
	ProductInfo(ctx context.Context, ids []remote.AppID) (map[remote.AppID]*remote.KeyValue, error)
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver logger
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

// Resolver issues product info requests against a session
type Resolver struct {
	session Session
	log     *logger.Logger
}

// New creates a resolver over session
func New(session Session, opts ...Option) *Resolver {
	r := &Resolver{
		session: session,
		log:     logger.Named("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveMany resolves the last update timestamp of every id in a single
// request. Per-id problems are recorded in Failures and never abort the
// batch; a session error returns an empty batch together with the error.
func (r *Resolver) ResolveMany(ctx context.Context, ids []remote.AppID) (*Batch, error) {
	batch := newBatch()
	wanted := dedupe(ids)
	if len(wanted) == 0 {
		return batch, nil
	}

	trees, err := r.session.ProductInfo(ctx, wanted)
	if err != nil {
		return newBatch(), err
	}

	for _, id := range wanted {
		tree, ok := trees[id]
		if !ok {
			batch.Failures[id] = ErrNotInResponse
			r.log.Warn("app %s: %v", id, ErrNotInResponse)
			continue
		}

		branches, err := branchesOf(tree)
		if err != nil {
			batch.Failures[id] = err
			r.log.Warn("app %s: %v", id, err)
			continue
		}

		updated, ok := latestUpdate(branches)
		if !ok {
			r.log.Warn("app %s: no branch exposes an update time", id)
			continue
		}
		batch.Facts[id] = ProductFacts{AppID: id, LastUpdated: updated}
	}

	r.log.Debug("resolved %d of %d app(s)", len(batch.Facts), len(wanted))
	return batch, nil
}

// ResolveOne resolves a single id, including the public branch build id
func (r *Resolver) ResolveOne(ctx context.Context, id remote.AppID) (ProductFacts, error) {
	if id == 0 {
		return ProductFacts{}, ErrIdentifierUnresolvable
	}

	trees, err := r.session.ProductInfo(ctx, []remote.AppID{id})
	if err != nil {
		return ProductFacts{}, err
	}

	tree, ok := trees[id]
	if !ok {
		return ProductFacts{}, fmt.Errorf("app %s: %w", id, ErrNotInResponse)
	}

	branches, err := branchesOf(tree)
	if err != nil {
		return ProductFacts{}, fmt.Errorf("app %s: %w", id, err)
	}

	buildID, err := publicBuildID(branches)
	if err != nil {
		return ProductFacts{}, fmt.Errorf("app %s: %w", id, err)
	}

	facts := ProductFacts{AppID: id, BuildID: buildID}
	if updated, ok := latestUpdate(branches); ok {
		facts.LastUpdated = updated
	}
	return facts, nil
}

func branchesOf(tree *remote.KeyValue) (*remote.KeyValue, error) {
	depots := tree.Child("depots")
	if depots == nil {
		return nil, ErrDepotsNotFound
	}
	branches := depots.Child("branches")
	if branches == nil {
		return nil, ErrBranchesNotFound
	}
	return branches, nil
}

func publicBuildID(branches *remote.KeyValue) (string, error) {
	public := branches.Child("public")
	if public == nil {
		return "", ErrNoPublicBranch
	}
	buildID := public.Child("buildid")
	if buildID == nil {
		return "", ErrNoBuildID
	}
	return buildID.Value, nil
}

// latestUpdate returns the numeric maximum of every branch's timeupdated
func latestUpdate(branches *remote.KeyValue) (uint32, bool) {
	var latest uint32
	found := false
	for _, branch := range branches.Children {
		node := branch.Child("timeupdated")
		if node == nil {
			continue
		}
		n, err := strconv.ParseUint(node.Value, 10, 32)
		if err != nil {
			continue
		}
		if !found || uint32(n) > latest {
			latest = uint32(n)
			found = true
		}
	}
	return latest, found
}

func dedupe(ids []remote.AppID) []remote.AppID {
	seen := make(map[remote.AppID]bool, len(ids))
	out := make([]remote.AppID, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
