// Package zlibrary implements the Z-Library adapter. Z-Library has no
// public API; search and book pages are scraped, and downloads require a
// logged-in session identified by the remix_userid/remix_userkey cookies.
package zlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/sources"
)

// Config configures the Z-Library adapter. Email and Password are
// required; BaseURL defaults to the current public mirror.
type Config struct {
	Email    string
	Password string
	BaseURL  string
	Client   sources.ClientConfig
}

const defaultBaseURL = "https://z-library.sk"

// Client is the Z-Library adapter.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
}

// New creates a Z-Library adapter. Missing credentials fail construction;
// the login itself happens lazily on first authenticated request.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: zlibrary requires email and password", books.ErrNotConfigured)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient, err := sources.NewHTTPClient(cfg.Client)
	if err != nil {
		return nil, err
	}
	// The session lives in remix_* cookies set by the login endpoint.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.Jar = jar

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      cfg.Email,
		password:   cfg.Password,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "zlibrary").Logger(),
	}, nil
}

func (c *Client) Platform() books.Platform {
	return books.PlatformZLibrary
}

func (c *Client) Capabilities() books.Capabilities {
	return books.Capabilities{
		RequiresAuth:      true,
		DownloadSupported: true,
		NeedsResolution:   false,
	}
}

type loginResponse struct {
	Response struct {
		UserID  json.Number `json:"user_id"`
		UserKey string      `json:"user_key"`
	} `json:"response"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// login authenticates once per client lifetime. Subsequent calls return
// immediately while the session cookies remain in the jar.
func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}

	form := url.Values{
		"email":    {c.email},
		"password": {c.password},
	}
	endpoint := c.baseURL + "/rpc.php?action=login"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", books.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return books.ErrAuthRejected
	}
	if err := sources.CheckStatus(books.PlatformZLibrary, resp); err != nil {
		return err
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}
	if len(loginResp.Errors) > 0 {
		return fmt.Errorf("%w: %s", books.ErrAuthRejected, loginResp.Errors[0].Message)
	}
	if loginResp.Response.UserKey == "" {
		return fmt.Errorf("%w: login returned no session key", books.ErrAuthRejected)
	}

	// Some mirrors only echo the credentials back instead of setting
	// cookies, so set them explicitly for the whole site.
	base, err := url.Parse(c.baseURL)
	if err == nil {
		c.httpClient.Jar.SetCookies(base, []*http.Cookie{
			{Name: "remix_userid", Value: loginResp.Response.UserID.String(), Path: "/"},
			{Name: "remix_userkey", Value: loginResp.Response.UserKey, Path: "/"},
		})
	}

	c.loggedIn = true
	c.logger.Debug().Msg("session established")
	return nil
}

// Search scrapes the search page. Searching works without a session, but
// the page shows download quotas only when logged in, so log in first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]books.SearchResult, error) {
	if err := c.login(ctx); err != nil {
		return nil, books.WrapSourceError(books.PlatformZLibrary, "search", err)
	}

	endpoint := c.baseURL + "/s/" + url.PathEscape(query)

	doc, err := c.fetchDocument(ctx, endpoint)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformZLibrary, "search", err)
	}

	var results []books.SearchResult
	doc.Find("z-bookcard").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		result, ok := c.cardToResult(card)
		if !ok {
			return true
		}
		results = append(results, result)
		return len(results) < limit
	})

	c.logger.Debug().Int("results", len(results)).Str("query", query).Msg("search completed")
	return results, nil
}

// cardToResult reads one <z-bookcard> custom element from the results
// page. Attributes carry the structured fields; title and author come
// from slotted child nodes.
func (c *Client) cardToResult(card *goquery.Selection) (books.SearchResult, bool) {
	bookID := card.AttrOr("id", "")
	href := card.AttrOr("href", "")
	if bookID == "" || href == "" {
		return books.SearchResult{}, false
	}

	// href is /book/<id>/<hash>/<slug>; the hash is the second segment.
	hashID := ""
	if parts := strings.Split(strings.Trim(href, "/"), "/"); len(parts) >= 3 && parts[0] == "book" {
		hashID = parts[2]
	}
	if hashID == "" {
		return books.SearchResult{}, false
	}

	title := strings.TrimSpace(card.Find("div[slot=title]").Text())
	authors := strings.TrimSpace(card.Find("div[slot=author]").Text())
	if title == "" {
		return books.SearchResult{}, false
	}

	coverURL := ""
	if img, exists := card.Find("img").Attr("data-src"); exists {
		coverURL = img
	}

	return books.SearchResult{
		Platform: books.PlatformZLibrary,
		Book: books.BookInfo{
			Title:    title,
			Authors:  authors,
			Year:     card.AttrOr("year", ""),
			Language: card.AttrOr("language", ""),
			FileType: strings.ToLower(card.AttrOr("extension", "")),
			FileSize: card.AttrOr("filesize", ""),
			CoverURL: coverURL,
		},
		Download: books.DownloadInfo{
			Platform:     books.PlatformZLibrary,
			BookID:       bookID,
			HashID:       hashID,
			DownloadURL:  fmt.Sprintf("%s/dl/%s/%s", c.baseURL, bookID, hashID),
			RequiresAuth: true,
		},
	}, true
}

// Resolve is a no-op: the id/hash pair already yields a direct /dl/ URL.
func (c *Client) Resolve(_ context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	if info.DownloadURL == "" {
		if info.BookID == "" || info.HashID == "" {
			return info, books.WrapSourceError(books.PlatformZLibrary, "resolve",
				fmt.Errorf("%w: need book id and hash", books.ErrBadDescriptor))
		}
		info.DownloadURL = fmt.Sprintf("%s/dl/%s/%s", c.baseURL, info.BookID, info.HashID)
	}
	return info, nil
}

// Download streams the book through the authenticated session. Daily
// quota exhaustion surfaces as an HTML page instead of a file, which is
// reported as a download failure rather than silently saved.
func (c *Client) Download(ctx context.Context, info books.DownloadInfo, sink io.Writer) (int64, error) {
	if err := c.login(ctx); err != nil {
		return 0, books.WrapSourceError(books.PlatformZLibrary, "download", err)
	}

	info, err := c.Resolve(ctx, info)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformZLibrary, "download", err)
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformZLibrary, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformZLibrary, resp); err != nil {
		return 0, books.WrapSourceError(books.PlatformZLibrary, "download", err)
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return 0, books.WrapSourceError(books.PlatformZLibrary, "download",
			fmt.Errorf("%w: server returned a page instead of a file (daily limit reached?)", books.ErrDownloadFailed))
	}

	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		return written, books.WrapSourceError(books.PlatformZLibrary, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	return written, nil
}

// SuggestedFilename reports the server-provided filename for a download.
func (c *Client) SuggestedFilename(resp *http.Response) string {
	return sources.FilenameFromHeader(resp.Header.Get("Content-Disposition"))
}

// GetBookInfo scrapes the book detail page for fields the result card
// does not carry, such as publisher, ISBN and the full description.
func (c *Client) GetBookInfo(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	if info.BookID == "" || info.HashID == "" {
		return nil, books.WrapSourceError(books.PlatformZLibrary, "info",
			fmt.Errorf("%w: need book id and hash", books.ErrBadDescriptor))
	}
	if err := c.login(ctx); err != nil {
		return nil, books.WrapSourceError(books.PlatformZLibrary, "info", err)
	}

	endpoint := fmt.Sprintf("%s/book/%s/%s", c.baseURL, info.BookID, info.HashID)
	doc, err := c.fetchDocument(ctx, endpoint)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformZLibrary, "info", err)
	}

	book := &books.BookInfo{
		Title:       strings.TrimSpace(doc.Find("h1[itemprop=name]").Text()),
		Authors:     strings.TrimSpace(doc.Find("a[itemprop=author]").First().Text()),
		Description: strings.TrimSpace(doc.Find("div#bookDescriptionBox").Text()),
	}
	doc.Find("div.bookDetailsBox div.property").Each(func(_ int, prop *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(prop.Find(".property_label").Text()))
		value := strings.TrimSpace(prop.Find(".property_value").Text())
		switch {
		case strings.HasPrefix(label, "year"):
			book.Year = value
		case strings.HasPrefix(label, "publisher"):
			book.Publisher = value
		case strings.HasPrefix(label, "language"):
			book.Language = value
		case strings.HasPrefix(label, "isbn"):
			if book.ISBN == "" {
				book.ISBN = value
			}
		case strings.HasPrefix(label, "file"):
			// "File: EPUB, 1.94 MB"
			if ext, size, found := strings.Cut(value, ","); found {
				book.FileType = strings.ToLower(strings.TrimSpace(ext))
				book.FileSize = strings.TrimSpace(size)
			}
		}
	})
	if cover, exists := doc.Find("div.details-book-cover img").Attr("src"); exists {
		book.CoverURL = cover
	}

	if book.Title == "" {
		return nil, books.WrapSourceError(books.PlatformZLibrary, "info",
			fmt.Errorf("%w: book page had no recognizable content", books.ErrDownloadFailed))
	}
	return book, nil
}

// Test verifies the credentials by performing a login.
func (c *Client) Test(ctx context.Context) error {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()

	if err := c.login(ctx); err != nil {
		return books.WrapSourceError(books.PlatformZLibrary, "test", err)
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

	if err := sources.CheckStatus(books.PlatformZLibrary, resp); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(resp.Body)
}
