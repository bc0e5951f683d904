// Package calibreweb implements the adapter for self-hosted Calibre-Web
// servers, speaking OPDS for search and acquisition.
package calibreweb

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/sources"
)

// Config configures the Calibre-Web adapter. URL is required.
type Config struct {
	URL      string
	Username string
	Password string
	Client   sources.ClientConfig
}

// Client is the Calibre-Web adapter.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Calibre-Web adapter. The endpoint is validated here so a
// bad configuration fails at construction, not on first search.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: calibre_web requires a server URL", books.ErrNotConfigured)
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: calibre_web URL %q is not valid", books.ErrInvalidConfig, cfg.URL)
	}

	httpClient, err := sources.NewHTTPClient(cfg.Client)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "calibre_web").Logger(),
	}, nil
}

func (c *Client) Platform() books.Platform {
	return books.PlatformCalibreWeb
}

func (c *Client) Capabilities() books.Capabilities {
	return books.Capabilities{
		RequiresAuth:      false,
		DownloadSupported: true,
		NeedsResolution:   false,
	}
}

// opdsFeed models the subset of an OPDS Atom feed the adapter reads.
type opdsFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []opdsEntry `xml:"entry"`
}

type opdsEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Language  string `xml:"language"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Publisher struct {
		Name string `xml:"name"`
	} `xml:"publisher"`
	Links []opdsLink `xml:"link"`
}

type opdsLink struct {
	Rel    string `xml:"rel,attr"`
	Href   string `xml:"href,attr"`
	Length string `xml:"length,attr"`
}

const (
	relAcquisition = "http://opds-spec.org/acquisition"
	relImage       = "http://opds-spec.org/image"
)

var (
	downloadPathRe = regexp.MustCompile(`^/opds/download/(\d+)/([\w]+)/?$`)
	coverPathRe    = regexp.MustCompile(`^/opds/cover/\d+$`)
)

// Search runs an OPDS search and normalizes the Atom entries.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]books.SearchResult, error) {
	endpoint := c.baseURL + "/opds/search/" + url.PathEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformCalibreWeb, "search", err)
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformCalibreWeb, "search",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformCalibreWeb, resp); err != nil {
		return nil, books.WrapSourceError(books.PlatformCalibreWeb, "search", err)
	}

	var feed opdsFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, books.WrapSourceError(books.PlatformCalibreWeb, "search",
			fmt.Errorf("parse OPDS feed: %w", err))
	}

	results := make([]books.SearchResult, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		result, ok := c.entryToResult(entry)
		if !ok {
			continue
		}
		results = append(results, result)
		if len(results) >= limit {
			break
		}
	}

	c.logger.Debug().Int("results", len(results)).Str("query", query).Msg("search completed")
	return results, nil
}

func (c *Client) entryToResult(entry opdsEntry) (books.SearchResult, bool) {
	var downloadURL, fileType, fileSize string
	var coverURL string

	for _, link := range entry.Links {
		switch link.Rel {
		case relAcquisition:
			if matches := downloadPathRe.FindStringSubmatch(link.Href); matches != nil {
				downloadURL = c.baseURL + link.Href
				fileType = strings.ToLower(matches[2])
				fileSize = link.Length
			}
		case relImage:
			if coverPathRe.MatchString(link.Href) {
				coverURL = c.baseURL + link.Href
			}
		}
	}

	if downloadURL == "" {
		return books.SearchResult{}, false
	}

	authorNames := make([]string, 0, len(entry.Authors))
	for _, author := range entry.Authors {
		if author.Name != "" {
			authorNames = append(authorNames, author.Name)
		}
	}

	year := ""
	if entry.Published != "" {
		if published, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			year = fmt.Sprintf("%d", published.Year())
		}
	}

	return books.SearchResult{
		Platform: books.PlatformCalibreWeb,
		Book: books.BookInfo{
			Title:       entry.Title,
			Authors:     strings.Join(authorNames, ", "),
			Year:        year,
			Publisher:   entry.Publisher.Name,
			Language:    entry.Language,
			Description: entry.Summary,
			CoverURL:    coverURL,
			FileType:    fileType,
			FileSize:    fileSize,
		},
		Download: books.DownloadInfo{
			Platform:    books.PlatformCalibreWeb,
			DownloadURL: downloadURL,
			FileName:    filenameFromDownloadURL(downloadURL),
		},
	}, true
}

// Resolve is a no-op: OPDS acquisition links are direct.
func (c *Client) Resolve(_ context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	return info, nil
}

// Download streams an acquisition link into sink.
func (c *Client) Download(ctx context.Context, info books.DownloadInfo, sink io.Writer) (int64, error) {
	if info.DownloadURL == "" {
		return 0, books.WrapSourceError(books.PlatformCalibreWeb, "download",
			fmt.Errorf("%w: missing download URL", books.ErrBadDescriptor))
	}
	if !strings.Contains(info.DownloadURL, "/opds/download/") {
		return 0, books.WrapSourceError(books.PlatformCalibreWeb, "download",
			fmt.Errorf("%w: not an OPDS acquisition URL", books.ErrBadDescriptor))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformCalibreWeb, "download", err)
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformCalibreWeb, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformCalibreWeb, resp); err != nil {
		return 0, books.WrapSourceError(books.PlatformCalibreWeb, "download", err)
	}

	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		return written, books.WrapSourceError(books.PlatformCalibreWeb, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	return written, nil
}

// SuggestedFilename asks the server what a download would be named, via
// the Content-Disposition header of a ranged probe.
func (c *Client) SuggestedFilename(ctx context.Context, info books.DownloadInfo) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, info.DownloadURL, nil)
	if err != nil {
		return info.FileName
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return info.FileName
	}
	defer resp.Body.Close()

	if name := sources.FilenameFromHeader(resp.Header.Get("Content-Disposition")); name != "" {
		return name
	}
	return info.FileName
}

// GetBookInfo has no dedicated endpoint on Calibre-Web; the search entry
// already carries everything the feed exposes.
func (c *Client) GetBookInfo(_ context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	return nil, books.WrapSourceError(books.PlatformCalibreWeb, "info",
		fmt.Errorf("%w: calibre_web has no metadata endpoint beyond the search feed", books.ErrDownloadFailed))
}

// Test verifies the configured server answers.
func (c *Client) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return books.WrapSourceError(books.PlatformCalibreWeb, "test",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return books.WrapSourceError(books.PlatformCalibreWeb, "test",
			fmt.Errorf("%w: status %d", books.ErrNetwork, resp.StatusCode))
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", sources.UserAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// filenameFromDownloadURL derives a fallback name from the OPDS download
// path, e.g. /opds/download/42/epub/ -> book_42.epub.
func filenameFromDownloadURL(downloadURL string) string {
	parsed, err := url.Parse(downloadURL)
	if err != nil {
		return ""
	}
	matches := downloadPathRe.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return ""
	}
	return fmt.Sprintf("book_%s.%s", matches[1], strings.ToLower(matches[2]))
}
