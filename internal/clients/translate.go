package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// TranslateClient translates free text through the Youdao demo endpoint
type TranslateClient struct {
	httpClient *http.Client
	endpoint   string
	target     string
	enabled    bool
}

// NewTranslateClient creates a translator from configuration
func NewTranslateClient(config *models.Config) *TranslateClient {
	return &TranslateClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		endpoint:   config.Translate.URL,
		target:     config.Translate.Target,
		enabled:    config.Translate.Enabled && config.Translate.URL != "",
	}
}

type translateResponse struct {
	ErrorCode   string   `json:"errorCode"`
	Translation []string `json:"translation"`
}

// Translate returns the translated text. On any failure the original text is
// returned together with the error so callers can fall back without checks.
func (c *TranslateClient) Translate(ctx context.Context, text string) (string, error) {
	if !c.enabled || strings.TrimSpace(text) == "" {
		return text, nil
	}

	form := url.Values{}
	form.Set("q", text)
	form.Set("from", "auto")
	form.Set("to", c.target)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return text, fmt.Errorf("failed to build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return text, fmt.Errorf("failed to translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return text, fmt.Errorf("translate API returned status %d", resp.StatusCode)
	}

	var tr translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return text, fmt.Errorf("failed to decode translation: %w", err)
	}
	if len(tr.Translation) == 0 {
		return text, fmt.Errorf("translate API returned no translation (error code %q)", tr.ErrorCode)
	}

	return strings.Join(tr.Translation, "\n"), nil
}
