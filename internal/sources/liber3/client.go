// Package liber3 implements the Liber3 platform adapter. Liber3 indexes
// books by ID and serves content through IPFS gateways, so every download
// is a two-step operation: resolve the ID to a CID, then fetch the bytes
// from the gateway.
package liber3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/sources"
)

// Config configures the Liber3 adapter.
type Config struct {
	BaseURL    string
	GatewayURL string
	Client     sources.ClientConfig
}

// Client is the Liber3 adapter.
type Client struct {
	baseURL    string
	gatewayURL string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Liber3 adapter.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	httpClient, err := sources.NewHTTPClient(cfg.Client)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://lgate.glitternode.ru"
	}
	gatewayURL := strings.TrimRight(cfg.GatewayURL, "/")
	if gatewayURL == "" {
		gatewayURL = "https://gateway-ipfs.st"
	}
	return &Client{
		baseURL:    baseURL,
		gatewayURL: gatewayURL,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "liber3").Logger(),
	}, nil
}

func (c *Client) Platform() books.Platform {
	return books.PlatformLiber3
}

func (c *Client) Capabilities() books.Capabilities {
	return books.Capabilities{
		RequiresAuth:      false,
		DownloadSupported: true,
		NeedsResolution:   true,
	}
}

type searchResponse struct {
	Data struct {
		Book []struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Author string `json:"author"`
		} `json:"book"`
	} `json:"data"`
}

type detailResponse struct {
	Data struct {
		Book map[string]struct {
			Book bookDetail `json:"book"`
		} `json:"book"`
	} `json:"data"`
}

type bookDetail struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Year      any    `json:"year"`
	Publisher string `json:"publisher"`
	Language  string `json:"language"`
	FileSize  any    `json:"filesize"`
	Extension string `json:"extension"`
	IpfsCID   string `json:"ipfs_cid"`
}

// Search posts the query and enriches the ID list with one batched detail
// lookup.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]books.SearchResult, error) {
	payload := map[string]string{
		"address": "",
		"word":    query,
	}

	var response searchResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/searchV2", payload, &response); err != nil {
		return nil, books.WrapSourceError(books.PlatformLiber3, "search", err)
	}

	found := response.Data.Book
	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > limit {
		found = found[:limit]
	}

	ids := make([]string, 0, len(found))
	for _, b := range found {
		if b.ID != "" {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	details, err := c.fetchDetails(ctx, ids)
	if err != nil {
		// Details are an enrichment; the ID list alone is still usable.
		c.logger.Warn().Err(err).Msg("detail lookup failed, returning sparse results")
		details = nil
	}

	results := make([]books.SearchResult, 0, len(found))
	for _, b := range found {
		detail := details[b.ID]

		results = append(results, books.SearchResult{
			Platform: books.PlatformLiber3,
			Book: books.BookInfo{
				Title:     b.Title,
				Authors:   b.Author,
				Year:      anyToString(detail.Year),
				Publisher: detail.Publisher,
				Language:  detail.Language,
				FileSize:  anyToString(detail.FileSize),
				FileType:  detail.Extension,
			},
			Download: books.DownloadInfo{
				Platform: books.PlatformLiber3,
				BookID:   b.ID,
				Extra: map[string]string{
					"ipfs_cid":  detail.IpfsCID,
					"extension": detail.Extension,
					"title":     strings.ReplaceAll(b.Title, " ", "_"),
				},
			},
		})
	}

	c.logger.Debug().Int("results", len(results)).Str("query", query).Msg("search completed")
	return results, nil
}

// Resolve turns a book ID into a concrete IPFS gateway URL. Extra fields
// cached at search time are used when present; otherwise the detail API is
// consulted again.
func (c *Client) Resolve(ctx context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	if info.DownloadURL != "" {
		return info, nil
	}
	if info.BookID == "" {
		return info, books.WrapSourceError(books.PlatformLiber3, "resolve",
			fmt.Errorf("%w: missing book ID", books.ErrBadDescriptor))
	}

	cid := info.Extra["ipfs_cid"]
	extension := info.Extra["extension"]
	title := info.Extra["title"]

	if cid == "" || extension == "" {
		details, err := c.fetchDetails(ctx, []string{info.BookID})
		if err != nil {
			return info, books.WrapSourceError(books.PlatformLiber3, "resolve", err)
		}
		detail, ok := details[info.BookID]
		if !ok {
			return info, books.WrapSourceError(books.PlatformLiber3, "resolve",
				fmt.Errorf("%w: book %s not found", books.ErrDownloadFailed, info.BookID))
		}
		cid = detail.IpfsCID
		extension = detail.Extension
		if title == "" {
			title = strings.ReplaceAll(detail.Title, " ", "_")
		}
	}

	if cid == "" || extension == "" {
		return info, books.WrapSourceError(books.PlatformLiber3, "resolve",
			fmt.Errorf("%w: no IPFS CID for book %s", books.ErrDownloadFailed, info.BookID))
	}
	if title == "" {
		title = "unknown_book"
	}

	fileName := title + "." + extension
	resolved := info
	resolved.FileName = fileName
	resolved.DownloadURL = fmt.Sprintf("%s/ipfs/%s?filename=%s", c.gatewayURL, cid, url.QueryEscape(fileName))
	return resolved, nil
}

// Download fetches the resolved gateway URL. Unresolved descriptors are
// resolved first so the adapter works standalone too.
func (c *Client) Download(ctx context.Context, info books.DownloadInfo, sink io.Writer) (int64, error) {
	if info.DownloadURL == "" {
		resolved, err := c.Resolve(ctx, info)
		if err != nil {
			return 0, err
		}
		info = resolved
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformLiber3, "download", err)
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformLiber3, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformLiber3, resp); err != nil {
		return 0, books.WrapSourceError(books.PlatformLiber3, "download", err)
	}

	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		return written, books.WrapSourceError(books.PlatformLiber3, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	return written, nil
}

// GetBookInfo fetches full metadata for a book ID.
func (c *Client) GetBookInfo(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	if info.BookID == "" {
		return nil, books.WrapSourceError(books.PlatformLiber3, "info",
			fmt.Errorf("%w: missing book ID", books.ErrBadDescriptor))
	}

	details, err := c.fetchDetails(ctx, []string{info.BookID})
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformLiber3, "info", err)
	}
	detail, ok := details[info.BookID]
	if !ok {
		return nil, books.WrapSourceError(books.PlatformLiber3, "info",
			fmt.Errorf("%w: book %s not found", books.ErrDownloadFailed, info.BookID))
	}

	return &books.BookInfo{
		Title:     detail.Title,
		Authors:   detail.Author,
		Year:      anyToString(detail.Year),
		Publisher: detail.Publisher,
		Language:  detail.Language,
		FileSize:  anyToString(detail.FileSize),
		FileType:  detail.Extension,
	}, nil
}

// Test verifies the API host answers.
func (c *Client) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return books.WrapSourceError(books.PlatformLiber3, "test",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return books.WrapSourceError(books.PlatformLiber3, "test",
			fmt.Errorf("%w: status %d", books.ErrNetwork, resp.StatusCode))
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) fetchDetails(ctx context.Context, ids []string) (map[string]bookDetail, error) {
	payload := map[string][]string{"book_ids": ids}

	var response detailResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/book", payload, &response); err != nil {
		return nil, err
	}

	details := make(map[string]bookDetail, len(response.Data.Book))
	for id, wrapper := range response.Data.Book {
		details[id] = wrapper.Book
	}
	return details, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", books.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformLiber3, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// anyToString renders API fields that arrive as either strings or numbers.
func anyToString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%g", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
