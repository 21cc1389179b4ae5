// Package chat delivers notifications to a team channel via an incoming
// webhook. The payload format works with Mattermost and Slack-compatible
// webhooks.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tuapuikia/dispatch/internal/notifications"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Dispatch"
)

// Config holds chat sender configuration.
// There is no Enabled flag: the sender is only wired up when a webhook URL
// is configured.
type Config struct {
	WebhookURL string
	Username   string        // display name for posted messages
	IconURL    string        // icon URL (optional)
	Timeout    time.Duration // request timeout
	RateLimit  float64       // messages per second, 0 disables limiting
}

// Sender posts notifications to an incoming webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new chat sender.
func NewSender(config Config) (*Sender, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("chat sender: webhook URL is required")
	}
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	slog.Info("chat sender configured",
		"webhook", maskWebhookURL(config.WebhookURL),
		"username", config.Username,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Channel returns the delivery channel.
func (s *Sender) Channel() notifications.Channel {
	return notifications.ChannelChat
}

// Send posts a message to the webhook. The subject becomes a markdown
// heading above the body.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload := webhookPayload{
		Username: s.config.Username,
	}

	if s.config.IconURL != "" {
		payload.IconURL = s.config.IconURL
	}

	if msg.Subject != "" {
		payload.Text = fmt.Sprintf("### %s\n\n%s", msg.Subject, msg.Body)
	} else {
		payload.Text = msg.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &notifications.RetryableError{
			Channel: notifications.ChannelChat,
			Message: fmt.Sprintf("send request: %v", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

func (s *Sender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		slog.Debug("chat message sent", "webhook", maskWebhookURL(s.config.WebhookURL))
		return nil

	case http.StatusBadRequest:
		return &notifications.PermanentError{
			Channel: notifications.ChannelChat,
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case http.StatusUnauthorized, http.StatusForbidden:
		return &notifications.PermanentError{
			Channel: notifications.ChannelChat,
			Code:    resp.StatusCode,
			Message: "invalid or expired webhook",
		}

	case http.StatusNotFound:
		return &notifications.PermanentError{
			Channel: notifications.ChannelChat,
			Code:    resp.StatusCode,
			Message: "webhook not found",
		}

	case http.StatusTooManyRequests:
		return &notifications.RetryableError{
			Channel: notifications.ChannelChat,
			Code:    resp.StatusCode,
			Message: "rate limited",
		}

	default:
		if resp.StatusCode >= 500 {
			return &notifications.RetryableError{
				Channel: notifications.ChannelChat,
				Code:    resp.StatusCode,
				Message: fmt.Sprintf("server error: %s", string(body)),
			}
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
