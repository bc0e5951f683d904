package books

import (
	"context"
	"io"
)

// Source is the capability contract every platform adapter satisfies. The
// orchestration layer depends only on this interface; new platforms are
// added by implementing it, not by touching the orchestrators.
type Source interface {
	// Platform returns the identifier this adapter serves.
	Platform() Platform

	// Capabilities returns the adapter's static capability flags.
	Capabilities() Capabilities

	// Search queries the backend and returns normalized results in the
	// backend's emission order. Cancellation via ctx must abort the
	// underlying request.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Resolve turns a descriptor into a directly fetchable one. Adapters
	// whose Capabilities report NeedsResolution must fill DownloadURL and
	// FileName; all others return the input unchanged.
	Resolve(ctx context.Context, info DownloadInfo) (DownloadInfo, error)

	// Download streams the item's bytes into sink and returns the byte
	// count written, including bytes transferred before a mid-stream
	// failure. Link-only sources return ErrDownloadNotSupported.
	Download(ctx context.Context, info DownloadInfo, sink io.Writer) (int64, error)

	// GetBookInfo fetches full metadata for a previously returned
	// descriptor (lazy enrichment).
	GetBookInfo(ctx context.Context, info DownloadInfo) (*BookInfo, error)

	// Test verifies the backend is reachable.
	Test(ctx context.Context) error

	// Close releases the adapter's network resources.
	Close() error
}
