// Package notify delivers operator notifications through Pushover.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.pushover.net"

// PushoverConfig carries the Pushover application and user credentials.
// Leaving either empty disables delivery.
type PushoverConfig struct {
	Token   string
	UserKey string
	BaseURL string
}

// Pushover sends fire-and-forget notifications. Delivery failures are logged
// and never surfaced to the caller.
type Pushover struct {
	cfg        PushoverConfig
	httpClient *http.Client
}

// NewPushover builds a notifier from config, filling in defaults.
func NewPushover(cfg PushoverConfig) *Pushover {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Pushover{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Notify posts one message. Without credentials it is a silent no-op.
func (p *Pushover) Notify(ctx context.Context, title, message string) {
	if p.cfg.Token == "" || p.cfg.UserKey == "" {
		slog.Debug("Pushover credentials not configured, skipping notification", "title", title)
		return
	}

	form := url.Values{
		"token":    {p.cfg.Token},
		"user":     {p.cfg.UserKey},
		"title":    {title},
		"message":  {message},
		"priority": {"1"},
		"sound":    {"magic"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/1/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		slog.Error("Failed to build Pushover request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send Pushover notification", "error", err, "title", title)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Pushover rejected notification", "status", resp.StatusCode, "title", title)
		return
	}
	slog.Debug("Sent Pushover notification", "title", title)
}
