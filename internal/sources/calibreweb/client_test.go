package calibreweb

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/testutil"
)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Calibre-Web</title>
  <entry>
    <title>The Go Programming Language</title>
    <author><name>Alan Donovan</name></author>
    <author><name>Brian Kernighan</name></author>
    <publisher><name>Addison-Wesley</name></publisher>
    <published>2015-10-26T00:00:00+00:00</published>
    <language>en</language>
    <summary>The authoritative resource.</summary>
    <link rel="http://opds-spec.org/acquisition" href="/opds/download/42/epub/" type="application/epub+zip" length="2097152"/>
    <link rel="http://opds-spec.org/image" href="/opds/cover/42" type="image/jpeg"/>
  </entry>
  <entry>
    <title>Catalog Only Entry</title>
    <author><name>Nobody</name></author>
    <link rel="subsection" href="/opds/author/7" type="application/atom+xml"/>
  </entry>
</feed>`

func fakeCalibre(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/opds/search/", func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "reader" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, searchFeed)
	})
	mux.HandleFunc("/opds/download/42/epub/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Disposition", `attachment; filename="go-book.epub"`)
			return
		}
		w.Write([]byte("epub bytes"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := New(Config{URL: serverURL, Username: "reader", Password: "s3cret"}, testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew_ValidatesURL(t *testing.T) {
	_, err := New(Config{}, testutil.TestLogger(t))
	assert.ErrorIs(t, err, books.ErrNotConfigured)

	_, err = New(Config{URL: "not a url"}, testutil.TestLogger(t))
	assert.ErrorIs(t, err, books.ErrInvalidConfig)
}

func TestClient_Search(t *testing.T) {
	server := fakeCalibre(t)
	client := newClient(t, server.URL)

	results, err := client.Search(context.Background(), "go programming", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "catalog entries without acquisition links are skipped")

	r := results[0]
	assert.Equal(t, "The Go Programming Language", r.Book.Title)
	assert.Equal(t, "Alan Donovan, Brian Kernighan", r.Book.Authors)
	assert.Equal(t, "2015", r.Book.Year)
	assert.Equal(t, "Addison-Wesley", r.Book.Publisher)
	assert.Equal(t, "epub", r.Book.FileType, "file type is the format extension, not the MIME type")
	assert.Equal(t, "2097152", r.Book.FileSize)
	assert.Equal(t, server.URL+"/opds/cover/42", r.Book.CoverURL)
	assert.Equal(t, server.URL+"/opds/download/42/epub/", r.Download.DownloadURL)
	assert.Equal(t, "book_42.epub", r.Download.FileName)
}

func TestClient_Search_AuthRejected(t *testing.T) {
	server := fakeCalibre(t)
	client, err := New(Config{URL: server.URL, Username: "reader", Password: "wrong"}, testutil.TestLogger(t))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Search(context.Background(), "anything", 10)
	assert.True(t, books.IsAuthError(err), "got %v", err)
}

func TestClient_Download(t *testing.T) {
	server := fakeCalibre(t)
	client := newClient(t, server.URL)

	var buf bytes.Buffer
	written, err := client.Download(context.Background(), books.DownloadInfo{
		Platform:    books.PlatformCalibreWeb,
		DownloadURL: server.URL + "/opds/download/42/epub/",
	}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("epub bytes")), written)
	assert.Equal(t, "epub bytes", buf.String())
}

func TestClient_Download_RejectsForeignURL(t *testing.T) {
	server := fakeCalibre(t)
	client := newClient(t, server.URL)

	_, err := client.Download(context.Background(), books.DownloadInfo{
		Platform:    books.PlatformCalibreWeb,
		DownloadURL: server.URL + "/some/other/path",
	}, &bytes.Buffer{})
	assert.ErrorIs(t, err, books.ErrBadDescriptor)
}

func TestClient_SuggestedFilename(t *testing.T) {
	server := fakeCalibre(t)
	client := newClient(t, server.URL)

	name := client.SuggestedFilename(context.Background(), books.DownloadInfo{
		DownloadURL: server.URL + "/opds/download/42/epub/",
		FileName:    "fallback.epub",
	})
	assert.Equal(t, "go-book.epub", name)
}

func TestFilenameFromDownloadURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://host/opds/download/42/epub/", "book_42.epub"},
		{"http://host/opds/download/7/PDF", "book_7.pdf"},
		{"http://host/opds/cover/42", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filenameFromDownloadURL(tt.url), tt.url)
	}
}
