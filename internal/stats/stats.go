// Package stats computes playtime statistics from the public review listing.
package stats

import (
	"context"
	"math"
	"slices"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/library"
	"github.com/obentoo/buildwatch/internal/remote"
)

// PageSource returns review pages; ReviewClient is the production source
type PageSource interface {
	Page(ctx context.Context, id remote.AppID, cursor string) (*ReviewPage, error)
}

// Result holds playtime statistics in minutes
type Result struct {
	Average int64
	Median  int64
	Samples int
	Pages   int
}

// Hours returns the average and median in hours rounded to two decimals
func (r Result) Hours() (average, median float64) {
	return minutesToHours(r.Average), minutesToHours(r.Median)
}

func minutesToHours(minutes int64) float64 {
	return math.Round(float64(minutes)/60*100) / 100
}

// Aggregator walks every review page of a title
type Aggregator struct {
	source PageSource
	log    *logger.Logger
}

// NewAggregator creates an aggregator reading from source
func NewAggregator(source PageSource) *Aggregator {
	return &Aggregator{source: source, log: logger.Named("stats")}
}

// Compute fetches pages sequentially until a page has no reviews, the
// cursor stops advancing or a request fails. On failure the statistics of
// the samples gathered so far are returned together with the error.
func (a *Aggregator) Compute(ctx context.Context, id remote.AppID) (Result, error) {
	if id == 0 {
		return Result{}, library.ErrIdentifierUnresolvable
	}

	var samples []int64
	pages := 0
	cursor := ""
	seen := map[string]bool{}

	for {
		page, err := a.source.Page(ctx, id, cursor)
		if err != nil {
			res := Summarize(samples)
			res.Pages = pages
			return res, err
		}
		pages++

		if len(page.Reviews) == 0 {
			break
		}
		for _, review := range page.Reviews {
			samples = append(samples, review.Author.PlaytimeForever)
		}

		seen[cursor] = true
		if page.Cursor == "" || seen[page.Cursor] {
			a.log.Debug("cursor for %s stopped advancing after %d page(s)", id, pages)
			break
		}
		cursor = page.Cursor
	}

	res := Summarize(samples)
	res.Pages = pages
	a.log.Debug("%s: %d sample(s) over %d page(s)", id, res.Samples, pages)
	return res, nil
}

// Summarize computes the floored mean and the median of samples
func Summarize(samples []int64) Result {
	if len(samples) == 0 {
		return Result{}
	}
	var sum int64
	for _, s := range samples {
		sum += s
	}
	return Result{
		Average: sum / int64(len(samples)),
		Median:  Median(samples),
		Samples: len(samples),
	}
}

// Median sorts a copy of data and takes middle = n/2. When middle is odd the
// element at middle is returned; when it is even the mean of the elements at
// middle-1 and middle is. A single sample is returned as is.
func Median(data []int64) int64 {
	n := len(data)
	switch n {
	case 0:
		return 0
	case 1:
		return data[0]
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	middle := n / 2
	if middle%2 != 0 {
		return sorted[middle]
	}
	return (sorted[middle-1] + sorted[middle]) / 2
}
