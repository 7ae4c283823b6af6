package dash

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"

	"github.com/dustin/go-humanize"
)

// Client issues range and full-resource requests against origin servers.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
}

// NewClient creates a new client. headerTimeout bounds the wait for response
// headers only; body reads are bounded by the request context. A zero
// headerTimeout disables the limit.
func NewClient(log logger.Logger, userAgent string, headerTimeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
		},
		logger:    log,
		userAgent: userAgent,
	}
}

// FetchRange requests the inclusive byte range r of rawURL.
func (c *Client) FetchRange(ctx context.Context, rawURL string, r ByteRange) ([]byte, error) {
	return c.fetch(ctx, rawURL, &r)
}

// FetchFull requests the whole resource at rawURL without a Range header.
func (c *Client) FetchFull(ctx context.Context, rawURL string) ([]byte, error) {
	return c.fetch(ctx, rawURL, nil)
}

func (c *Client) fetch(ctx context.Context, rawURL string, r *ByteRange) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	rangeDesc := "FULL"
	if r != nil {
		req.Header.Set("Range", r.Header())
		rangeDesc = r.String()
	}

	c.logger.Debugf("Requesting [%s] => %s", rangeDesc, truncateURL(rawURL))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.FetchFailures.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FetchFailures.WithLabelValues("status").Inc()
		return nil, &RangeFetchError{URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchFailures.WithLabelValues("body").Inc()
		return nil, fmt.Errorf("failed to read response body from %s: %w", rawURL, err)
	}

	metrics.FetchedBytes.Add(float64(len(data)))
	c.logger.Debugf("Received %s for [%s] (status %d)", humanize.Bytes(uint64(len(data))), rangeDesc, resp.StatusCode)
	return data, nil
}

func truncateURL(u string) string {
	if len(u) > 100 {
		return u[:100] + "..."
	}
	return u
}

// resolveURL resolves a path against a base URL, handling potential errors.
func resolveURL(base *url.URL, path string) (*url.URL, error) {
	resolvedPath, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path '%s': %w", path, err)
	}
	return base.ResolveReference(resolvedPath), nil
}

// ResolveRepresentationURL builds the absolute resource URL of a representation
// by resolving its BaseURL against the Period and MPD BaseURL elements.
func ResolveRepresentationURL(mpd *MPD, period *Period, rep *Representation) (string, error) {
	repBase := strings.TrimSpace(rep.BaseURL)
	if repBase == "" {
		return "", fmt.Errorf("representation %q has no BaseURL", rep.ID)
	}

	current := &url.URL{}
	for _, base := range []string{mpd.BaseURL, period.BaseURL} {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		next, err := resolveURL(current, base)
		if err != nil {
			return "", fmt.Errorf("failed to resolve BaseURL: %w", err)
		}
		current = next
	}

	final, err := resolveURL(current, repBase)
	if err != nil {
		return "", fmt.Errorf("failed to resolve representation BaseURL: %w", err)
	}
	if !final.IsAbs() {
		return "", fmt.Errorf("representation %q resolves to relative URL %q", rep.ID, final.String())
	}
	return final.String(), nil
}
