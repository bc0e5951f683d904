// Package archiveorg implements the archive.org platform adapter.
package archiveorg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/sources"
)

var supportedFormats = []string{".pdf", ".epub"}

// Config configures the archive.org adapter.
type Config struct {
	BaseURL string
	Client  sources.ClientConfig
}

// Client is the archive.org adapter. The backend is anonymous and serves
// direct download URLs, so no resolution step is needed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates an archive.org adapter.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	httpClient, err := sources.NewHTTPClient(cfg.Client)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://archive.org"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "archive_org").Logger(),
	}, nil
}

func (c *Client) Platform() books.Platform {
	return books.PlatformArchiveOrg
}

func (c *Client) Capabilities() books.Capabilities {
	return books.Capabilities{
		RequiresAuth:      false,
		DownloadSupported: true,
		NeedsResolution:   false,
	}
}

type searchResponse struct {
	Response struct {
		Docs []searchDoc `json:"docs"`
	} `json:"response"`
}

type searchDoc struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Downloads  int    `json:"downloads"`
}

// Search queries the advanced search API for texts matching the title,
// then fetches per-item metadata concurrently to find a downloadable file.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]books.SearchResult, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:%q mediatype:texts", query))
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "downloads")
	params.Add("sort[]", "downloads desc")
	// Fetch extra rows; items without a pdf/epub file are filtered out.
	params.Set("rows", strconv.Itoa(limit+10))
	params.Set("page", "1")
	params.Set("output", "json")

	endpoint := c.baseURL + "/advancedsearch.php?" + params.Encode()

	var response searchResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, books.WrapSourceError(books.PlatformArchiveOrg, "search", err)
	}

	docs := response.Response.Docs
	if len(docs) == 0 {
		return nil, nil
	}

	// Metadata fetches are independent; run them together and keep the
	// search-ranking order when assembling results.
	type metaResult struct {
		meta *itemMetadata
		err  error
	}
	metas := make([]metaResult, len(docs))

	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, identifier string) {
			defer wg.Done()
			meta, err := c.fetchMetadata(ctx, identifier)
			metas[i] = metaResult{meta: meta, err: err}
		}(i, doc.Identifier)
	}
	wg.Wait()

	results := make([]books.SearchResult, 0, limit)
	for i, doc := range docs {
		if metas[i].err != nil {
			c.logger.Debug().Err(metas[i].err).Str("identifier", doc.Identifier).Msg("skipping item without metadata")
			continue
		}
		meta := metas[i].meta
		if meta == nil || meta.DownloadURL == "" {
			continue
		}

		score := downloadScore(doc.Downloads)
		results = append(results, books.SearchResult{
			Platform: books.PlatformArchiveOrg,
			Score:    &score,
			Book: books.BookInfo{
				Title:       doc.Title,
				Authors:     meta.Authors,
				Year:        meta.Year,
				Publisher:   meta.Publisher,
				Language:    meta.Language,
				Description: meta.Description,
				CoverURL:    c.baseURL + "/services/img/" + doc.Identifier,
			},
			Download: books.DownloadInfo{
				Platform:    books.PlatformArchiveOrg,
				DownloadURL: meta.DownloadURL,
				BookID:      doc.Identifier,
				FileName:    meta.FileName,
			},
		})

		if len(results) >= limit {
			break
		}
	}

	c.logger.Debug().Int("results", len(results)).Str("query", query).Msg("search completed")
	return results, nil
}

type itemMetadata struct {
	Authors     string
	Year        string
	Publisher   string
	Language    string
	Description string
	DownloadURL string
	FileName    string
}

type metadataResponse struct {
	Metadata struct {
		Identifier string          `json:"identifier"`
		Creator    json.RawMessage `json:"creator"`
		Language   json.RawMessage `json:"language"`
		Publisher  json.RawMessage `json:"publisher"`
		PublicDate string          `json:"publicdate"`
		Desc       json.RawMessage `json:"description"`
	} `json:"metadata"`
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

func (c *Client) fetchMetadata(ctx context.Context, identifier string) (*itemMetadata, error) {
	var response metadataResponse
	if err := c.getJSON(ctx, c.baseURL+"/metadata/"+identifier, &response); err != nil {
		return nil, err
	}

	if response.Metadata.Identifier == "" {
		return nil, fmt.Errorf("%w: empty metadata for %s", books.ErrDownloadFailed, identifier)
	}

	meta := &itemMetadata{
		Authors:     flattenField(response.Metadata.Creator),
		Language:    flattenField(response.Metadata.Language),
		Publisher:   flattenField(response.Metadata.Publisher),
		Description: cleanDescription(flattenField(response.Metadata.Desc)),
	}

	if len(response.Metadata.PublicDate) >= 4 {
		meta.Year = response.Metadata.PublicDate[:4]
	}

	for _, file := range response.Files {
		lower := strings.ToLower(file.Name)
		for _, ext := range supportedFormats {
			if strings.HasSuffix(lower, ext) {
				meta.FileName = file.Name
				meta.DownloadURL = fmt.Sprintf("%s/download/%s/%s", c.baseURL, identifier, file.Name)
				break
			}
		}
		if meta.DownloadURL != "" {
			break
		}
	}

	if meta.DownloadURL == "" {
		return nil, fmt.Errorf("%w: no pdf/epub file in %s", books.ErrDownloadFailed, identifier)
	}
	return meta, nil
}

// Resolve is a no-op: search already produces direct download URLs.
func (c *Client) Resolve(_ context.Context, info books.DownloadInfo) (books.DownloadInfo, error) {
	return info, nil
}

// Download streams the file at the descriptor's direct URL into sink.
func (c *Client) Download(ctx context.Context, info books.DownloadInfo, sink io.Writer) (int64, error) {
	if info.DownloadURL == "" {
		return 0, books.WrapSourceError(books.PlatformArchiveOrg, "download",
			fmt.Errorf("%w: missing download URL", books.ErrBadDescriptor))
	}
	if !strings.Contains(info.DownloadURL, "archive.org/download/") &&
		!strings.HasPrefix(info.DownloadURL, c.baseURL+"/download/") {
		return 0, books.WrapSourceError(books.PlatformArchiveOrg, "download",
			fmt.Errorf("%w: not an archive.org download URL", books.ErrBadDescriptor))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformArchiveOrg, "download", err)
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, books.WrapSourceError(books.PlatformArchiveOrg, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformArchiveOrg, resp); err != nil {
		return 0, books.WrapSourceError(books.PlatformArchiveOrg, "download", err)
	}

	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		return written, books.WrapSourceError(books.PlatformArchiveOrg, "download",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	return written, nil
}

// GetBookInfo refetches item metadata for lazy enrichment.
func (c *Client) GetBookInfo(ctx context.Context, info books.DownloadInfo) (*books.BookInfo, error) {
	if info.BookID == "" {
		return nil, books.WrapSourceError(books.PlatformArchiveOrg, "info",
			fmt.Errorf("%w: missing identifier", books.ErrBadDescriptor))
	}
	meta, err := c.fetchMetadata(ctx, info.BookID)
	if err != nil {
		return nil, books.WrapSourceError(books.PlatformArchiveOrg, "info", err)
	}
	return &books.BookInfo{
		Title:       info.BookID,
		Authors:     meta.Authors,
		Year:        meta.Year,
		Publisher:   meta.Publisher,
		Language:    meta.Language,
		Description: meta.Description,
		CoverURL:    c.baseURL + "/services/img/" + info.BookID,
		FileType:    strings.TrimPrefix(strings.ToLower(pathExt(meta.FileName)), "."),
	}, nil
}

// Test verifies the backend answers.
func (c *Client) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return books.WrapSourceError(books.PlatformArchiveOrg, "test",
			fmt.Errorf("%w: %v", books.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return books.WrapSourceError(books.PlatformArchiveOrg, "test",
			fmt.Errorf("%w: status %d", books.ErrNetwork, resp.StatusCode))
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", sources.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", books.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := sources.CheckStatus(books.PlatformArchiveOrg, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// flattenField handles archive.org metadata values that may be a string
// or an array of strings.
func flattenField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return strings.Join(many, ", ")
	}
	return ""
}

// cleanDescription strips HTML markup and truncates long descriptions.
func cleanDescription(desc string) string {
	if desc == "" {
		return ""
	}
	if strings.Contains(desc, "<") && strings.Contains(desc, ">") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
		if err == nil {
			desc = strings.TrimSpace(doc.Text())
		}
	}
	if len(desc) > 300 {
		cut := 300
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut] + "..."
	}
	return desc
}

// downloadScore maps a lifetime download count to a bounded relevance
// score so heavily used items rank first without dwarfing other sources.
func downloadScore(downloads int) float64 {
	if downloads <= 0 {
		return 0
	}
	return math.Log10(float64(downloads) + 1)
}

func pathExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}
