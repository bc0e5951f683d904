// Package sources provides shared plumbing for platform adapters.
package sources

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/shelfstream/shelfstream/internal/books"
)

// UserAgent is sent on every outbound request. Several backends reject
// requests with an empty or Go-default agent.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"

// ClientConfig configures an adapter's HTTP client.
type ClientConfig struct {
	Timeout time.Duration
	Proxy   string
}

// NewHTTPClient builds an HTTP client with the adapter's timeout and
// optional outbound proxy. Each adapter owns its client exclusively.
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 30,
		IdleConnTimeout:     90 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid proxy URL: %v", books.ErrInvalidConfig, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

// FilenameFromHeader extracts a filename from a Content-Disposition header.
func FilenameFromHeader(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// CheckStatus converts a non-2xx response status into a classified error:
// 401/403 become auth failures, 429 and 5xx become retryable network
// failures, everything else is a plain download failure.
func CheckStatus(platform books.Platform, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned status %d", books.ErrAuthRejected, platform, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned status %d", books.ErrNetwork, platform, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s returned status %d", books.ErrDownloadFailed, platform, resp.StatusCode)
	}
}
