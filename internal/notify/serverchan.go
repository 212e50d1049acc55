package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

var sctpKeyPattern = regexp.MustCompile(`^sctp(\d+)t`)

// ServerChanNotifier pushes alerts through ServerChan using a send key
type ServerChanNotifier struct {
	SendKey  string
	Endpoint string // Overrides the URL derived from the key
	Client   *http.Client
}

// NewServerChanNotifier creates a new ServerChanNotifier.
func NewServerChanNotifier(sendKey string) *ServerChanNotifier {
	return &ServerChanNotifier{SendKey: sendKey}
}

func (s *ServerChanNotifier) Name() string {
	return "serverchan"
}

// URL returns the send endpoint for the configured key. ServerChan³ keys
// embed the account number and use a per-account host.
func (s *ServerChanNotifier) URL() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	if m := sctpKeyPattern.FindStringSubmatch(s.SendKey); m != nil {
		return fmt.Sprintf("https://%s.push.ft07.com/send/%s.send", m[1], s.SendKey)
	}
	return fmt.Sprintf("https://sctapi.ftqq.com/%s.send", s.SendKey)
}

type serverChanResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notify sends the alert as a markdown message
func (s *ServerChanNotifier) Notify(ctx context.Context, alert models.Alert) error {
	if s.SendKey == "" {
		return fmt.Errorf("serverchan send key is not configured")
	}

	form := url.Values{}
	form.Set("title", alert.Title)
	form.Set("desp", alert.Body)
	if len(alert.Tags) > 0 {
		form.Set("tags", strings.Join(alert.Tags, "|"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClientOrDefault(s.Client).Do(req)
	if err != nil {
		return fmt.Errorf("failed to send serverchan notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serverchan notification failed with status: %s", resp.Status)
	}

	var scResp serverChanResponse
	if err := json.NewDecoder(resp.Body).Decode(&scResp); err != nil {
		return fmt.Errorf("failed to decode serverchan response: %w", err)
	}
	if scResp.Code != 0 {
		return fmt.Errorf("serverchan rejected notification: code %d: %s", scResp.Code, scResp.Message)
	}

	return nil
}
