// Package testutil provides shared helpers for adapter and orchestrator
// tests.
package testutil

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
)

// TestLogger returns a logger that writes through t.Log.
func TestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// FakeSource is a scriptable platform adapter for orchestrator tests.
// Every hook is optional; unset hooks succeed with zero values. Call
// counters are atomic so concurrent searches can assert on them.
type FakeSource struct {
	PlatformName books.Platform
	Caps         books.Capabilities

	SearchFunc   func(ctx context.Context, query string, limit int) ([]books.SearchResult, error)
	ResolveFunc  func(ctx context.Context, info books.DownloadInfo) (books.DownloadInfo, error)
	DownloadFunc func(ctx context.Context, info books.DownloadInfo, sink io.Writer) (int64, error)
	InfoFunc     func(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error)
	TestFunc     func(ctx context.Context) error

	SearchCalls   atomic.Int64
	ResolveCalls  atomic.Int64
	DownloadCalls atomic.Int64
	Closed        atomic.Bool
}

// NewFakeSource creates a fake adapter that supports downloads and needs
// no auth or resolution.
func NewFakeSource(platform books.Platform) *FakeSource {
	return &FakeSource{
		PlatformName: platform,
		Caps:         books.Capabilities{DownloadSupported: true},
	}
}

func (f *FakeSource) Platform() books.Platform          { return f.PlatformName }
func (f *FakeSource) Capabilities() books.Capabilities { return f.Caps }

func (f *FakeSource) Search(ctx context.Context, query string, limit int) ([]books.SearchResult, error) {
	f.SearchCalls.Add(1)
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, query, limit)
	}
	return nil, nil
}

func (f *FakeSource) Resolve(ctx context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	f.ResolveCalls.Add(1)
	if f.ResolveFunc != nil {
		return f.ResolveFunc(ctx, info)
	}
	return info, nil
}

func (f *FakeSource) Download(ctx context.Context, info books.DownloadInfo, sink io.Writer) (int64, error) {
	f.DownloadCalls.Add(1)
	if f.DownloadFunc != nil {
		return f.DownloadFunc(ctx, info, sink)
	}
	return 0, nil
}

func (f *FakeSource) GetBookInfo(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	if f.InfoFunc != nil {
		return f.InfoFunc(ctx, info)
	}
	return &books.BookInfo{}, nil
}

func (f *FakeSource) Test(ctx context.Context) error {
	if f.TestFunc != nil {
		return f.TestFunc(ctx)
	}
	return nil
}

func (f *FakeSource) Close() error {
	f.Closed.Store(true)
	return nil
}

// Result builds a minimal search result for a platform.
func Result(platform books.Platform, title string, score *float64) books.SearchResult {
	return books.SearchResult{
		Platform: platform,
		Book:     books.BookInfo{Title: title},
		Download: books.DownloadInfo{Platform: platform, BookID: title},
		Score:    score,
	}
}

// ScoreOf returns a pointer to v, for literal scores in tests.
func ScoreOf(v float64) *float64 {
	return &v
}
