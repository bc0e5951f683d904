// Package search provides search orchestration across platform adapters.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
)

// HealthChecker reports whether a platform is temporarily disabled after
// repeated failures.
type HealthChecker interface {
	IsDisabled(platform books.Platform) (bool, *time.Time)
	RecordSuccess(platform books.Platform)
	RecordFailure(platform books.Platform, err error)
}

// Options tunes orchestration behavior.
type Options struct {
	// Timeout bounds each adapter search. Zero means no per-adapter
	// timeout beyond the caller's context.
	Timeout time.Duration
	// MaxResults caps the merged result set. Zero means unlimited.
	MaxResults int
	// Dedupe drops later results that are exact duplicates of earlier
	// ones (same platform, title, authors, file type and size).
	Dedupe bool
}

// Service fans a query out to adapters and merges the results.
type Service struct {
	opts   Options
	health HealthChecker
	logger zerolog.Logger
}

// NewService creates a search orchestrator.
func NewService(opts Options, logger zerolog.Logger) *Service {
	return &Service{
		opts:   opts,
		logger: logger.With().Str("component", "search").Logger(),
	}
}

// SetHealthChecker wires in failure tracking. Optional; without it every
// adapter is always queried.
func (s *Service) SetHealthChecker(health HealthChecker) {
	s.health = health
}

// searchTaskResult is the outcome of one adapter's search.
type searchTaskResult struct {
	Platform books.Platform
	Results  []books.SearchResult
	Err      error
}

// Search queries every adapter in parallel and returns the merged,
// sorted results. A failing adapter contributes an error, not an abort;
// only when every adapter fails does Search return an error.
func (s *Service) Search(ctx context.Context, adapters map[books.Platform]books.Source, query string, limit int) ([]books.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, books.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.opts.MaxResults
	}

	targets := s.filterDisabled(adapters)
	if len(targets) == 0 {
		return nil, books.ErrNoPlatforms
	}

	start := time.Now()
	s.logger.Info().
		Int("platformCount", len(targets)).
		Str("query", query).
		Msg("Starting search across platforms")

	results, failures := s.dispatch(ctx, targets, query, limit)

	// A cancelled call returns nothing, even when some adapters finished
	// before the cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := s.merge(results, limit)

	s.logger.Info().
		Int("totalResults", len(merged)).
		Int("platformsUsed", len(targets)).
		Int("errors", len(failures)).
		Dur("elapsed", time.Since(start)).
		Msg("Search completed")

	if len(merged) == 0 && len(failures) == len(targets) && len(failures) > 0 {
		return nil, &books.AggregateSearchError{Failures: failures}
	}
	return merged, nil
}

// filterDisabled drops platforms the health tracker has benched.
func (s *Service) filterDisabled(adapters map[books.Platform]books.Source) map[books.Platform]books.Source {
	if s.health == nil {
		return adapters
	}

	filtered := make(map[books.Platform]books.Source, len(adapters))
	for platform, source := range adapters {
		if disabled, till := s.health.IsDisabled(platform); disabled {
			event := s.logger.Debug().Str("platform", string(platform))
			if till != nil {
				event = event.Time("disabledTill", *till)
			}
			event.Msg("Skipping disabled platform")
			continue
		}
		filtered[platform] = source
	}
	return filtered
}

// dispatch runs the per-adapter searches in parallel and collects the
// outcomes.
func (s *Service) dispatch(ctx context.Context, adapters map[books.Platform]books.Source, query string, limit int) ([]books.SearchResult, map[books.Platform]error) {
	var wg sync.WaitGroup
	resultsChan := make(chan searchTaskResult, len(adapters))

	searchCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	for platform, source := range adapters {
		wg.Add(1)
		go func(platform books.Platform, source books.Source) {
			defer wg.Done()
			resultsChan <- s.searchOne(searchCtx, platform, source, query, limit)
		}(platform, source)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var collected []books.SearchResult
	failures := make(map[books.Platform]error)
	for task := range resultsChan {
		if task.Err != nil {
			failures[task.Platform] = task.Err
			continue
		}
		collected = append(collected, task.Results...)
	}
	return collected, failures
}

// searchOne runs a single adapter search and records its health outcome.
func (s *Service) searchOne(ctx context.Context, platform books.Platform, source books.Source, query string, limit int) searchTaskResult {
	start := time.Now()
	results, err := source.Search(ctx, query, limit)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("platform", string(platform)).
			Dur("elapsed", elapsed).
			Msg("Platform search failed")
		if s.health != nil {
			s.health.RecordFailure(platform, err)
		}
		return searchTaskResult{Platform: platform, Err: err}
	}

	// An adapter must only speak for itself.
	kept := results[:0]
	for _, r := range results {
		if r.Platform == platform {
			kept = append(kept, r)
		}
	}

	s.logger.Debug().
		Str("platform", string(platform)).
		Int("results", len(kept)).
		Dur("elapsed", elapsed).
		Msg("Platform search succeeded")
	if s.health != nil {
		s.health.RecordSuccess(platform)
	}
	return searchTaskResult{Platform: platform, Results: kept}
}

// merge sorts by relevance and truncates. Scored results come first in
// descending order; unscored results keep their arrival order after all
// scored ones. The sort is stable so equal scores never reorder.
func (s *Service) merge(results []books.SearchResult, limit int) []books.SearchResult {
	if s.opts.Dedupe {
		results = dedupe(results)
	}

	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		switch {
		case si != nil && sj != nil:
			return *si > *sj
		case si != nil:
			return true
		default:
			return false
		}
	})

	max := limit
	if s.opts.MaxResults > 0 && (max <= 0 || s.opts.MaxResults < max) {
		max = s.opts.MaxResults
	}
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	if results == nil {
		results = []books.SearchResult{}
	}
	return results
}

// dedupe removes exact duplicates, keeping the first occurrence. Only
// full-field equality counts; near-duplicates across platforms are
// intentionally kept.
func dedupe(results []books.SearchResult) []books.SearchResult {
	type key struct {
		platform books.Platform
		title    string
		authors  string
		fileType string
		fileSize string
	}
	seen := make(map[key]struct{}, len(results))
	kept := results[:0]
	for _, r := range results {
		k := key{r.Platform, r.Book.Title, r.Book.Authors, r.Book.FileType, r.Book.FileSize}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, r)
	}
	return kept
}
