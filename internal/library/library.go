// Package library is the facade over the platform adapters. It owns the
// registry, the search and download orchestrators, health tracking and
// the history store, and is the only entry point callers need.
package library

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/download"
	"github.com/shelfstream/shelfstream/internal/history"
	"github.com/shelfstream/shelfstream/internal/registry"
	"github.com/shelfstream/shelfstream/internal/search"
	"github.com/shelfstream/shelfstream/internal/status"
)

const probeInterval = 5 * time.Minute

// Library bundles the services behind one facade.
type Library struct {
	cfg      *config.Config
	registry *registry.Registry
	searcher *search.Service
	download *download.Service
	status   *status.Service
	history  *history.Store
	logger   zerolog.Logger
}

// Options tunes facade construction.
type Options struct {
	// DisableHistory skips opening the history database.
	DisableHistory bool
	// DisableProbing skips the background health probe.
	DisableProbing bool
}

// New builds the full service stack from configuration. Construction is
// fail-fast: any enabled but misconfigured platform aborts here.
func New(cfg *config.Config, logger zerolog.Logger, opts Options) (*Library, error) {
	reg, err := registry.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	statusService := status.NewService(logger)

	searcher := search.NewService(search.Options{
		Timeout:    time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		MaxResults: cfg.Search.MaxResults,
		Dedupe:     true,
	}, logger)
	searcher.SetHealthChecker(statusService)

	downloader := download.NewService(reg, download.Options{
		SavePath: cfg.Download.SavePath,
		Timeout:  time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		Retry: download.RetryConfig{
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			MaxAttempts:  cfg.Download.MaxRetries,
			Multiplier:   2.0,
		},
		HasCredentials: cfg.HasCredentials,
	}, logger)

	lib := &Library{
		cfg:      cfg,
		registry: reg,
		searcher: searcher,
		download: downloader,
		status:   statusService,
		logger:   logger.With().Str("component", "library").Logger(),
	}

	if !opts.DisableHistory && cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			reg.Close()
			return nil, err
		}
		lib.history = store
	}

	if !opts.DisableProbing {
		if err := statusService.StartProbing(reg.Sources(), probeInterval); err != nil {
			lib.Close()
			return nil, err
		}
	}

	return lib, nil
}

// Search queries platforms in parallel and returns merged results. An
// empty platforms slice means all enabled platforms.
func (l *Library) Search(ctx context.Context, query string, limit int, platforms ...books.Platform) ([]books.SearchResult, error) {
	adapters, err := l.selectAdapters(platforms)
	if err != nil {
		return nil, err
	}

	results, searchErr := l.searcher.Search(ctx, adapters, query, limit)

	if l.history != nil {
		queried := make([]books.Platform, 0, len(adapters))
		for platform := range adapters {
			queried = append(queried, platform)
		}
		if _, err := l.history.RecordSearch(ctx, query, queried, len(results), searchErr); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to record search history")
		}
	}

	return results, searchErr
}

// Download fetches one book per the request's sink selection and records
// the outcome.
func (l *Library) Download(ctx context.Context, req download.Request) (*books.DownloadResult, error) {
	result, err := l.download.Download(ctx, req)

	if l.history != nil {
		if _, histErr := l.history.RecordDownload(ctx, req.Info, "", result); histErr != nil {
			l.logger.Warn().Err(histErr).Msg("Failed to record download history")
		}
	}

	return result, err
}

// Resolve finalizes a download descriptor without fetching the file.
func (l *Library) Resolve(ctx context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	source, err := l.registry.Get(info.Platform)
	if err != nil {
		return info, err
	}
	return source.Resolve(ctx, info)
}

// GetBookInfo fetches detailed metadata for one book.
func (l *Library) GetBookInfo(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	source, err := l.registry.Get(info.Platform)
	if err != nil {
		return nil, err
	}
	return source.GetBookInfo(ctx, info)
}

// TestPlatform verifies connectivity and credentials for one platform.
func (l *Library) TestPlatform(ctx context.Context, platform books.Platform) error {
	source, err := l.registry.Get(platform)
	if err != nil {
		return err
	}

	if err := source.Test(ctx); err != nil {
		l.status.RecordFailure(platform, err)
		return err
	}
	l.status.RecordSuccess(platform)
	return nil
}

// EnabledPlatforms returns the enabled platforms in stable order.
func (l *Library) EnabledPlatforms() []books.Platform {
	return l.registry.Enabled()
}

// Capabilities returns the capability flags for one platform.
func (l *Library) Capabilities(platform books.Platform) (books.Capabilities, error) {
	source, err := l.registry.Get(platform)
	if err != nil {
		return books.Capabilities{}, err
	}
	return source.Capabilities(), nil
}

// PlatformStatus returns the health record for one platform.
func (l *Library) PlatformStatus(platform books.Platform) status.PlatformStatus {
	return l.status.GetStatus(platform)
}

// History returns the history store, or nil when history is disabled.
func (l *Library) History() *history.Store {
	return l.history
}

// Close releases every owned resource.
func (l *Library) Close() error {
	var firstErr error

	if err := l.status.Close(); err != nil {
		firstErr = err
	}
	if err := l.registry.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if l.history != nil {
		if err := l.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// selectAdapters narrows the registry to the requested platforms, or all
// of them when none are named.
func (l *Library) selectAdapters(platforms []books.Platform) (map[books.Platform]books.Source, error) {
	all := l.registry.Sources()
	if len(platforms) == 0 {
		return all, nil
	}

	selected := make(map[books.Platform]books.Source, len(platforms))
	for _, platform := range platforms {
		source, ok := all[platform]
		if !ok {
			return nil, fmt.Errorf("%w: %s", books.ErrPlatformUnknown, platform)
		}
		selected[platform] = source
	}
	return selected, nil
}
