// Package download routes download requests to the owning platform
// adapter and manages where the bytes go: a file under the save path, an
// in-memory buffer, or nowhere for dry runs.
package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/pathutil"
)

// SourceResolver maps a platform to its adapter.
type SourceResolver interface {
	Get(platform books.Platform) (books.Source, error)
}

// Options tunes download behavior.
type Options struct {
	// SavePath is the default directory for saved files.
	SavePath string
	// Timeout bounds each download attempt. Zero means no timeout
	// beyond the caller's context.
	Timeout time.Duration
	// Retry controls backoff on network failures.
	Retry RetryConfig
	// HasCredentials reports whether credentials are configured for a
	// platform. Nil means credentials are assumed present.
	HasCredentials func(platform books.Platform) bool
}

// Request describes one download. With SavePath, ReturnContent, and
// Discard all unset the file is written to the service's configured
// default save directory.
type Request struct {
	Info books.DownloadInfo
	// SavePath overrides the default save directory. Ignored when
	// ReturnContent or Discard is set.
	SavePath string
	// ReturnContent buffers the file in memory instead of saving it.
	ReturnContent bool
	// Discard fetches and drops the bytes, verifying downloadability.
	Discard bool
}

// Service is the download orchestrator.
type Service struct {
	resolver SourceResolver
	opts     Options
	logger   zerolog.Logger
}

// NewService creates a download orchestrator.
func NewService(resolver SourceResolver, opts Options, logger zerolog.Logger) *Service {
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	return &Service{
		resolver: resolver,
		opts:     opts,
		logger:   logger.With().Str("component", "download").Logger(),
	}
}

// Download fetches one book. The returned result always carries an
// outcome; the error return mirrors result.Error for callers that prefer
// error handling to result inspection.
func (s *Service) Download(ctx context.Context, req Request) (*books.DownloadResult, error) {
	result, err := s.download(ctx, req)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("platform", string(req.Info.Platform)).
			Str("bookId", req.Info.BookID).
			Msg("Download failed")
		return &books.DownloadResult{Success: false, Error: err.Error()}, err
	}
	return result, nil
}

func (s *Service) download(ctx context.Context, req Request) (*books.DownloadResult, error) {
	info := req.Info
	if info.Platform == "" {
		return nil, fmt.Errorf("%w: descriptor has no platform", books.ErrBadDescriptor)
	}

	source, err := s.resolver.Get(info.Platform)
	if err != nil {
		return nil, err
	}

	caps := source.Capabilities()
	if !caps.DownloadSupported {
		return nil, books.WrapSourceError(info.Platform, "download", books.ErrDownloadNotSupported)
	}
	// The auth check runs before any network I/O so missing credentials
	// never burn a request against the platform.
	if caps.RequiresAuth && s.opts.HasCredentials != nil && !s.opts.HasCredentials(info.Platform) {
		return nil, books.WrapSourceError(info.Platform, "download", books.ErrAuthRequired)
	}

	dlCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	s.logger.Info().
		Str("platform", string(info.Platform)).
		Str("bookId", info.BookID).
		Msg("Starting download")

	switch {
	case req.Discard:
		return s.downloadDiscard(dlCtx, source, info)
	case req.ReturnContent:
		return s.downloadToMemory(dlCtx, source, info)
	default:
		return s.downloadToFile(dlCtx, source, info, req.SavePath)
	}
}

// attempt resolves and streams in one unit so a retried attempt never
// reuses a stale resolved URL.
func (s *Service) attempt(ctx context.Context, source books.Source, info books.DownloadInfo, sink io.Writer) (books.DownloadInfo, int64, error) {
	resolved := info
	if source.Capabilities().NeedsResolution || resolved.DownloadURL == "" {
		var err error
		resolved, err = source.Resolve(ctx, resolved)
		if err != nil {
			return info, 0, err
		}
	}
	written, err := source.Download(ctx, resolved, sink)
	return resolved, written, err
}

func (s *Service) downloadDiscard(ctx context.Context, source books.Source, info books.DownloadInfo) (*books.DownloadResult, error) {
	var size int64
	var resolved books.DownloadInfo

	err := withRetry(ctx, "download", s.opts.Retry, func() error {
		var err error
		resolved, size, err = s.attempt(ctx, source, info, io.Discard)
		return err
	}, s.logger)
	if err != nil {
		return nil, err
	}

	return &books.DownloadResult{
		Success:  true,
		FileName: resolved.FileName,
		Size:     size,
	}, nil
}

func (s *Service) downloadToMemory(ctx context.Context, source books.Source, info books.DownloadInfo) (*books.DownloadResult, error) {
	var buf bytes.Buffer
	var resolved books.DownloadInfo

	err := withRetry(ctx, "download", s.opts.Retry, func() error {
		buf.Reset()
		var err error
		resolved, _, err = s.attempt(ctx, source, info, &buf)
		return err
	}, s.logger)
	if err != nil {
		return nil, err
	}

	return &books.DownloadResult{
		Success:  true,
		FileName: s.fileName(resolved),
		Size:     int64(buf.Len()),
		Content:  buf.Bytes(),
	}, nil
}

func (s *Service) downloadToFile(ctx context.Context, source books.Source, info books.DownloadInfo, savePath string) (*books.DownloadResult, error) {
	dir := savePath
	if dir == "" {
		dir = s.opts.SavePath
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save directory: %w", err)
	}

	var finalPath string
	var size int64

	err := withRetry(ctx, "download", s.opts.Retry, func() error {
		// Each attempt writes to a fresh partial file and renames on
		// success, so a failed attempt never leaves a torso behind.
		resolved := info
		if source.Capabilities().NeedsResolution || resolved.DownloadURL == "" {
			var err error
			resolved, err = source.Resolve(ctx, resolved)
			if err != nil {
				return err
			}
		}

		target := uniquePath(dir, s.fileName(resolved))
		partial := target + ".partial"

		file, err := os.Create(partial)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}

		written, err := source.Download(ctx, resolved, file)
		closeErr := file.Close()
		if err != nil {
			os.Remove(partial)
			return err
		}
		if closeErr != nil {
			os.Remove(partial)
			return fmt.Errorf("close file: %w", closeErr)
		}
		if err := os.Rename(partial, target); err != nil {
			os.Remove(partial)
			return fmt.Errorf("finalize file: %w", err)
		}

		finalPath = target
		size = written
		return nil
	}, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("platform", string(info.Platform)).
		Str("path", finalPath).
		Int64("size", size).
		Msg("Download completed")

	return &books.DownloadResult{
		Success:  true,
		FilePath: finalPath,
		FileName: filepath.Base(finalPath),
		Size:     size,
	}, nil
}

// fileName picks a safe name for the download, falling back to the book
// id when the descriptor carries none.
func (s *Service) fileName(info books.DownloadInfo) string {
	name := info.FileName
	if name == "" && info.BookID != "" {
		name = info.BookID
	}
	return pathutil.SanitizeFilename(name)
}

// uniquePath returns dir/name, suffixing " (n)" before the extension
// when the name is already taken.
func uniquePath(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
