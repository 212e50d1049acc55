package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethanolivertroy/cve-watch/internal/cache"
	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// KEVClient handles requests to the CISA KEV catalog
type KEVClient struct {
	httpClient *http.Client
	url        string
	cache      *cache.Cache
}

// NewKEVClient creates a new KEV client. A nil cache disables caching.
func NewKEVClient(config *models.Config, c *cache.Cache) *KEVClient {
	return &KEVClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		url:        config.KEV.URL,
		cache:      c,
	}
}

type kevResponse struct {
	CatalogVersion  string     `json:"catalogVersion"`
	Count           int        `json:"count"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

type kevEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	VulnerabilityName          string `json:"vulnerabilityName"`
	DateAdded                  string `json:"dateAdded"`
	RequiredAction             string `json:"requiredAction"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// FetchCatalog returns the KEV catalog keyed by CVE ID
func (c *KEVClient) FetchCatalog(ctx context.Context) (map[string]models.KEVEntry, error) {
	var data []byte

	// Check cache first
	if c.cache != nil {
		if cached, ok := c.cache.Get(c.url); ok {
			data = cached
		}
	}

	// Fetch from remote if not cached
	if data == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch KEV data: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		catalog, err := parseKEVData(data)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(c.url, data)
		}
		return catalog, nil
	}

	return parseKEVData(data)
}

func parseKEVData(data []byte) (map[string]models.KEVEntry, error) {
	var resp kevResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse KEV data: %w", err)
	}

	catalog := make(map[string]models.KEVEntry, len(resp.Vulnerabilities))
	for _, v := range resp.Vulnerabilities {
		entry := models.KEVEntry{
			VendorProject:     v.VendorProject,
			Product:           v.Product,
			VulnerabilityName: v.VulnerabilityName,
			RequiredAction:    v.RequiredAction,
			RansomwareUse:     v.KnownRansomwareCampaignUse == "Known",
		}
		entry.DateAdded, _ = time.Parse(time.DateOnly, v.DateAdded)
		entry.DueDate, _ = time.Parse(time.DateOnly, v.DueDate)
		catalog[v.CVEID] = entry
	}

	return catalog, nil
}
