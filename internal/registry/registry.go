// Package registry builds and owns the set of enabled platform adapters.
// Construction is fail-fast: a platform that is enabled but misconfigured
// aborts startup instead of surfacing as a runtime error later.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/sources"
	"github.com/shelfstream/shelfstream/internal/sources/annas"
	"github.com/shelfstream/shelfstream/internal/sources/archiveorg"
	"github.com/shelfstream/shelfstream/internal/sources/calibreweb"
	"github.com/shelfstream/shelfstream/internal/sources/liber3"
	"github.com/shelfstream/shelfstream/internal/sources/zlibrary"
)

// Registry maps platforms to their adapters. It is immutable after New;
// all methods are safe for concurrent use.
type Registry struct {
	sources map[books.Platform]books.Source
	logger  zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New constructs adapters for every enabled platform in cfg.
func New(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	reg := &Registry{
		sources: make(map[books.Platform]books.Source),
		logger:  logger.With().Str("component", "registry").Logger(),
	}

	clientCfg := sources.ClientConfig{
		Timeout: time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		Proxy:   cfg.Proxy,
	}

	type builder struct {
		platform books.Platform
		enabled  bool
		build    func() (books.Source, error)
	}

	builders := []builder{
		{books.PlatformCalibreWeb, cfg.Platforms.CalibreWeb.Enabled, func() (books.Source, error) {
			return calibreweb.New(calibreweb.Config{
				URL:      cfg.Platforms.CalibreWeb.URL,
				Username: cfg.Platforms.CalibreWeb.Username,
				Password: cfg.Platforms.CalibreWeb.Password,
				Client:   clientCfg,
			}, logger)
		}},
		{books.PlatformZLibrary, cfg.Platforms.ZLibrary.Enabled, func() (books.Source, error) {
			return zlibrary.New(zlibrary.Config{
				Email:    cfg.Platforms.ZLibrary.Email,
				Password: cfg.Platforms.ZLibrary.Password,
				BaseURL:  cfg.Platforms.ZLibrary.BaseURL,
				Client:   clientCfg,
			}, logger)
		}},
		{books.PlatformArchiveOrg, cfg.Platforms.ArchiveOrg.Enabled, func() (books.Source, error) {
			return archiveorg.New(archiveorg.Config{
				BaseURL: cfg.Platforms.ArchiveOrg.BaseURL,
				Client:  clientCfg,
			}, logger)
		}},
		{books.PlatformLiber3, cfg.Platforms.Liber3.Enabled, func() (books.Source, error) {
			return liber3.New(liber3.Config{
				BaseURL:    cfg.Platforms.Liber3.BaseURL,
				GatewayURL: cfg.Platforms.Liber3.GatewayURL,
				Client:     clientCfg,
			}, logger)
		}},
		{books.PlatformAnnasArchive, cfg.Platforms.AnnasArchive.Enabled, func() (books.Source, error) {
			return annas.New(annas.Config{
				BaseURL: cfg.Platforms.AnnasArchive.BaseURL,
				Client:  clientCfg,
			}, logger)
		}},
	}

	for _, b := range builders {
		if !b.enabled {
			continue
		}
		source, err := b.build()
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("build %s adapter: %w", b.platform, err)
		}
		reg.sources[b.platform] = source
		reg.logger.Debug().Str("platform", string(b.platform)).Msg("adapter registered")
	}

	if len(reg.sources) == 0 {
		return nil, books.ErrNoPlatforms
	}
	return reg, nil
}

// Get returns the adapter for platform, or ErrPlatformUnknown when the
// platform is not enabled or not recognized.
func (r *Registry) Get(platform books.Platform) (books.Source, error) {
	source, ok := r.sources[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", books.ErrPlatformUnknown, platform)
	}
	return source, nil
}

// Enabled returns the enabled platforms in stable order.
func (r *Registry) Enabled() []books.Platform {
	platforms := make([]books.Platform, 0, len(r.sources))
	for platform := range r.sources {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// Sources returns all enabled adapters keyed by platform.
func (r *Registry) Sources() map[books.Platform]books.Source {
	return r.sources
}

// Len reports the number of enabled platforms.
func (r *Registry) Len() int {
	return len(r.sources)
}

// Close releases every adapter. Safe to call more than once.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		for platform, source := range r.sources {
			if err := source.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", platform, err))
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
