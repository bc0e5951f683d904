package library_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/download"
	"github.com/shelfstream/shelfstream/internal/library"
	"github.com/shelfstream/shelfstream/internal/testutil"
)

// fakeArchiveOrg serves the minimal archive.org surface the adapter
// touches: advanced search, per-item metadata and file downloads.
func fakeArchiveOrg(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"docs":[
			{"identifier":"walden","title":"Walden","downloads":5000}
		]}}`)
	})
	mux.HandleFunc("/metadata/walden", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"metadata":{"identifier":"walden","creator":"Henry David Thoreau","publicdate":"2008-04-01T00:00:00Z"},
			"files":[{"name":"walden.epub"}]}`)
	})
	mux.HandleFunc("/download/walden/walden.epub", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("walden epub bytes"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newLibrary(t *testing.T, serverURL string) *library.Library {
	t.Helper()

	cfg := config.Default()
	cfg.Platforms.ArchiveOrg.BaseURL = serverURL
	cfg.Platforms.Liber3.Enabled = false
	cfg.Download.SavePath = t.TempDir()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")

	lib, err := library.New(cfg, testutil.TestLogger(t), library.Options{DisableProbing: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestSearchRecordsHistory(t *testing.T) {
	server := fakeArchiveOrg(t, true)
	lib := newLibrary(t, server.URL)

	results, err := lib.Search(context.Background(), "walden", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Book.Title != "Walden" {
		t.Fatalf("unexpected results %+v", results)
	}

	events, err := lib.History().RecentSearches(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentSearches: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 history event, got %d", len(events))
	}
	if events[0].Query != "walden" || events[0].ResultCount != 1 {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestSearchUnknownPlatform(t *testing.T) {
	server := fakeArchiveOrg(t, true)
	lib := newLibrary(t, server.URL)

	_, err := lib.Search(context.Background(), "walden", 10, books.PlatformZLibrary)
	if !errors.Is(err, books.ErrPlatformUnknown) {
		t.Errorf("got %v, want ErrPlatformUnknown for a disabled platform", err)
	}
}

func TestDownloadEndToEnd(t *testing.T) {
	server := fakeArchiveOrg(t, true)
	lib := newLibrary(t, server.URL)

	results, err := lib.Search(context.Background(), "walden", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	result, err := lib.Download(context.Background(), download.Request{Info: results[0].Download})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !result.Success {
		t.Fatalf("download reported failure: %s", result.Error)
	}

	data, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "walden epub bytes" {
		t.Errorf("unexpected file content %q", data)
	}

	events, err := lib.History().RecentDownloads(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentDownloads: %v", err)
	}
	if len(events) != 1 || !events[0].Success {
		t.Fatalf("download not recorded: %+v", events)
	}
}

func TestEnabledPlatforms(t *testing.T) {
	server := fakeArchiveOrg(t, true)
	lib := newLibrary(t, server.URL)

	enabled := lib.EnabledPlatforms()
	if len(enabled) != 1 || enabled[0] != books.PlatformArchiveOrg {
		t.Errorf("unexpected enabled platforms %v", enabled)
	}

	caps, err := lib.Capabilities(books.PlatformArchiveOrg)
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if !caps.DownloadSupported {
		t.Error("archive_org supports downloads")
	}
}

func TestTestPlatformTracksHealth(t *testing.T) {
	server := fakeArchiveOrg(t, false)
	lib := newLibrary(t, server.URL)

	if err := lib.TestPlatform(context.Background(), books.PlatformArchiveOrg); err == nil {
		t.Fatal("expected the probe to fail against an unhealthy backend")
	}

	st := lib.PlatformStatus(books.PlatformArchiveOrg)
	if st.EscalationLevel != 1 {
		t.Errorf("failure not recorded: %+v", st)
	}
}
