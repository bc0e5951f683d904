// Package annas implements the Anna's Archive adapter. The archive is an
// index that points at external mirrors rather than hosting files, so the
// adapter is link-only: it searches and resolves mirror URLs but does not
// download. Results are scraped from the public HTML pages.
package annas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/sources"
)

// Config configures the Anna's Archive adapter.
type Config struct {
	BaseURL string
	Client  sources.ClientConfig
}

const defaultBaseURL = "https://annas-archive.org"

// Client is the Anna's Archive adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates an Anna's Archive adapter.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient, err := sources.NewHTTPClient(cfg.Client)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "annas_archive").Logger(),
	}, nil
}

func (c *Client) Platform() books.Platform {
	return books.PlatformAnnasArchive
}

func (c *Client) Capabilities() books.Capabilities {
	return books.Capabilities{
		RequiresAuth:      false,
		DownloadSupported: false,
		NeedsResolution:   true,
	}
}

var (
	md5PathRe = regexp.MustCompile(`^/md5/([0-9a-f]{32})$`)
	// "English [en], .epub, 1.2MB, ..." line under each result title.
	metaLineRe = regexp.MustCompile(`^(.*?\[\w+\])?,?\s*\.?(\w+),\s*([\d.]+\s?[KMG]?B)`)
)

// Search scrapes the search results page. Each hit is addressed by its
// MD5, which is the archive's stable book identifier.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]books.SearchResult, error) {
	endpoint := c.baseURL + "/search?q=" + url.QueryEscape(query)

	doc, err := c.fetchDocument(ctx, endpoint)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformAnnasArchive, "search", err)
	}

	var results []books.SearchResult
	doc.Find("a[href^='/md5/']").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		result, ok := c.linkToResult(link)
		if !ok {
			return true
		}
		results = append(results, result)
		return len(results) < limit
	})

	c.logger.Debug().Int("results", len(results)).Str("query", query).Msg("search completed")
	return results, nil
}

func (c *Client) linkToResult(link *goquery.Selection) (books.SearchResult, bool) {
	href := link.AttrOr("href", "")
	matches := md5PathRe.FindStringSubmatch(href)
	if matches == nil {
		return books.SearchResult{}, false
	}
	md5 := matches[1]

	title := strings.TrimSpace(link.Find("h3").Text())
	if title == "" {
		return books.SearchResult{}, false
	}
	authors := strings.TrimSpace(link.Find("div.italic").First().Text())
	publisher := strings.TrimSpace(link.Find("div.truncate").First().Text())

	book := books.BookInfo{
		Title:     title,
		Authors:   authors,
		Publisher: publisher,
	}
	if meta := strings.TrimSpace(link.Find("div.text-gray-500").First().Text()); meta != "" {
		parseMetaLine(meta, &book)
	}
	if cover, exists := link.Find("img").Attr("src"); exists {
		book.CoverURL = cover
	}

	return books.SearchResult{
		Platform: books.PlatformAnnasArchive,
		Book:     book,
		Download: books.DownloadInfo{
			Platform: books.PlatformAnnasArchive,
			HashID:   md5,
		},
	}, true
}

// parseMetaLine fills language, file type and size from the grey metadata
// line, e.g. "English [en], .epub, 1.2MB, Fiction".
func parseMetaLine(meta string, book *books.BookInfo) {
	if matches := metaLineRe.FindStringSubmatch(meta); matches != nil {
		book.Language = strings.TrimSpace(matches[1])
		book.FileType = strings.ToLower(matches[2])
		book.FileSize = matches[3]
		return
	}
	// Fall back to comma-split scanning when the line has extra fields.
	for _, part := range strings.Split(meta, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "."):
			book.FileType = strings.ToLower(strings.TrimPrefix(part, "."))
		case strings.HasSuffix(part, "B") && len(part) < 12:
			book.FileSize = part
		case strings.Contains(part, "["):
			book.Language = part
		}
	}
}

// Resolve scrapes the detail page for external mirror links and records
// them in Extra, keyed mirror_1..mirror_n. The caller presents these to
// the user; the adapter never follows them.
func (c *Client) Resolve(ctx context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	if info.HashID == "" {
		return info, books.WrapSourceError(books.PlatformAnnasArchive, "resolve",
			fmt.Errorf("%w: need an md5 identifier", books.ErrBadDescriptor))
	}

	doc, err := c.fetchDocument(ctx, c.baseURL+"/md5/"+info.HashID)
	if err != nil {
		return info, books.WrapSourceError(books.PlatformAnnasArchive, "resolve", err)
	}

	if info.Extra == nil {
		info.Extra = make(map[string]string)
	}
	count := 0
	doc.Find("a.js-download-link").Each(func(_ int, link *goquery.Selection) {
		href := link.AttrOr("href", "")
		if href == "" || strings.HasPrefix(href, "/") {
			return
		}
		count++
		info.Extra["mirror_"+strconv.Itoa(count)] = href
	})
	info.Extra["mirror_count"] = strconv.Itoa(count)
	info.DownloadURL = c.baseURL + "/md5/" + info.HashID

	return info, nil
}

// Download always fails: the archive only links out to mirrors.
func (c *Client) Download(_ context.Context, _ books.DownloadInfo, _ io.Writer) (int64, error) {
	return 0, books.WrapSourceError(books.PlatformAnnasArchive, "download",
		fmt.Errorf("%w: annas_archive provides mirror links only", books.ErrDownloadNotSupported))
}

// GetBookInfo scrapes the detail page for the full record.
func (c *Client) GetBookInfo(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	if info.HashID == "" {
		return nil, books.WrapSourceError(books.PlatformAnnasArchive, "info",
			fmt.Errorf("%w: need an md5 identifier", books.ErrBadDescriptor))
	}

	doc, err := c.fetchDocument(ctx, c.baseURL+"/md5/"+info.HashID)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformAnnasArchive, "info", err)
	}

	book := &books.BookInfo{
		Title:       strings.TrimSpace(doc.Find("div.text-3xl").First().Text()),
		Authors:     strings.TrimSpace(doc.Find("div.italic").First().Text()),
		Publisher:   strings.TrimSpace(doc.Find("div.text-md").First().Text()),
		Description: strings.TrimSpace(doc.Find("div.js-md5-top-box-description").Text()),
	}
	if meta := strings.TrimSpace(doc.Find("div.text-sm.text-gray-500").First().Text()); meta != "" {
		parseMetaLine(meta, book)
	}
	if cover, exists := doc.Find("img[aria-hidden=true]").First().Attr("src"); exists {
		book.CoverURL = cover
	}

	if book.Title == "" {
		return nil, books.WrapSourceError(books.PlatformAnnasArchive, "info",
			fmt.Errorf("%w: detail page had no recognizable content", books.ErrDownloadFailed))
	}
	return book, nil
}

// Test verifies the archive answers.
func (c *Client) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return books.WrapSourceError(books.PlatformAnnasArchive, "test",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return books.WrapSourceError(books.PlatformAnnasArchive, "test",
			fmt.Errorf("%w: status %d", books.ErrNetwork, resp.StatusCode))
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) fetchDocument(ctx context.Context, endpoint string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", books.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformAnnasArchive, resp); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(resp.Body)
}
