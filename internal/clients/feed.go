package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/ethanolivertroy/cve-watch/internal/cache"
	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// FeedWindow names the slice of the NVD data set to request
type FeedWindow struct {
	Year int // Zero selects the "recent" slice
}

// RecentWindow is the sliding window of recently published and modified entries
func RecentWindow() FeedWindow {
	return FeedWindow{}
}

// YearWindow is the full data set for one calendar year
func YearWindow(year int) FeedWindow {
	return FeedWindow{Year: year}
}

func (w FeedWindow) String() string {
	if w.Year == 0 {
		return "recent"
	}
	return strconv.Itoa(w.Year)
}

// FeedClient downloads NVD 2.0 JSON feeds
type FeedClient struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.Cache
}

// NewFeedClient creates a new feed client. A nil cache disables caching.
func NewFeedClient(config *models.Config, c *cache.Cache) *FeedClient {
	return &FeedClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    config.FeedBaseURL,
		cache:      c,
	}
}

// URL returns the download location of the given window
func (c *FeedClient) URL(w FeedWindow) string {
	return fmt.Sprintf("%s/nvdcve-2.0-%s.json.gz", c.baseURL, w)
}

// Fetch returns the decompressed feed document for the window
func (c *FeedClient) Fetch(ctx context.Context, w FeedWindow) ([]byte, error) {
	url := c.URL(w)

	// Check cache first
	if c.cache != nil {
		if cached, ok := c.cache.Get(url); ok {
			if data, err := gunzip(cached); err == nil {
				return data, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	compressed, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	data, err := gunzip(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", url, err)
	}

	// Cache the response
	if c.cache != nil {
		c.cache.Set(url, compressed)
	}

	return data, nil
}

func gunzip(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
