// Package notify delivers rendered alerts to push channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// Notifier delivers one alert to a channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert models.Alert) error
}

// Multi fans an alert out to every configured channel
type Multi struct {
	Notifiers []Notifier
}

// FromConfig builds a Multi with one notifier per configured credential
func FromConfig(config *models.Config) *Multi {
	client := &http.Client{Timeout: config.Timeout}
	m := &Multi{}

	if config.Notify.ServerChanKey != "" {
		n := NewServerChanNotifier(config.Notify.ServerChanKey)
		n.Client = client
		m.Notifiers = append(m.Notifiers, n)
	}
	if config.Notify.SlackWebhook != "" {
		n := NewSlackNotifier(config.Notify.SlackWebhook)
		n.Client = client
		m.Notifiers = append(m.Notifiers, n)
	}
	if config.Notify.DiscordWebhook != "" {
		n := NewDiscordNotifier(config.Notify.DiscordWebhook)
		n.Client = client
		m.Notifiers = append(m.Notifiers, n)
	}

	return m
}

// Name lists the channels in delivery order
func (m *Multi) Name() string {
	name := "multi("
	for i, n := range m.Notifiers {
		if i > 0 {
			name += ","
		}
		name += n.Name()
	}
	return name + ")"
}

// Notify delivers to every channel even when an earlier one fails.
// The returned error joins the failures of all channels.
func (m *Multi) Notify(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, n := range m.Notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: 10 * time.Second}
	}
	return c
}
