package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alerthub/internal/config"
	"alerthub/internal/domain"
)

const (
	ntfyPriorityDefault = 3
	ntfyPriorityMax     = 5
)

// ntfyAction is one tap action attached to a notification.
type ntfyAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url"`
}

type ntfyPayload struct {
	Topic    string       `json:"topic"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Priority int          `json:"priority"`
	Actions  []ntfyAction `json:"actions,omitempty"`
}

// NtfySender delivers messages through one ntfy server.
// Params: server URL, access token, external base URL for alert links.
// Returns: ntfy channel sender.
type NtfySender struct {
	server  string
	token   string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewNtfySender creates the ntfy sender.
// Params: ntfy config, external base URL, logger.
// Returns: initialized sender.
func NewNtfySender(cfg config.NtfyConfig, baseURL string, log *slog.Logger) *NtfySender {
	return &NtfySender{
		server:  strings.TrimRight(cfg.Server, "/"),
		token:   cfg.AccessToken,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Channel returns the sender channel.
func (s *NtfySender) Channel() domain.NotifyChannel {
	return domain.ChannelNtfy
}

// SendRaw publishes one plain message to a topic at default priority.
// Params: topic and message text.
// Returns: transport or API error.
func (s *NtfySender) SendRaw(ctx context.Context, target, text string) error {
	return s.publish(ctx, ntfyPayload{
		Topic:    target,
		Title:    "AlertHub",
		Message:  text,
		Priority: ntfyPriorityDefault,
	})
}

// SendAlert renders the template and publishes it with an "Open Alert"
// action. Firing critical alerts go out at maximum priority.
// Params: topic, template body, alert record.
// Returns: rendering or transport error.
func (s *NtfySender) SendAlert(ctx context.Context, target, templateText string, record map[string]any) error {
	text, err := Render("ntfy", templateText, record)
	if err != nil {
		return err
	}

	payload := ntfyPayload{
		Topic:    target,
		Title:    recordString(record, "alertname"),
		Message:  text,
		Priority: ntfyPriorityDefault,
	}
	if recordString(record, "status") == domain.StatusFiring &&
		recordString(record, "severity") == "critical" {
		payload.Priority = ntfyPriorityMax
	}
	if id := recordString(record, "alert_id"); id != "" && s.baseURL != "" {
		payload.Actions = []ntfyAction{{
			Action: "view",
			Label:  "Open Alert",
			URL:    s.baseURL + "/home/alerts/" + id,
		}}
	}
	return s.publish(ctx, payload)
}

// publish posts one payload to the ntfy server and checks the message id
// in the response.
func (s *NtfySender) publish(ctx context.Context, payload ntfyPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode ntfy payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		request.Header.Set("Authorization", "Bearer "+s.token)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("ntfy send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		raw, _ := io.ReadAll(response.Body)
		return fmt.Errorf("ntfy status=%d body=%s", response.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode ntfy response: %w", err)
	}
	if decoded.ID == "" {
		return errors.New("ntfy response missing message id")
	}
	return nil
}

// recordString reads one string field from an alert record.
func recordString(record map[string]any, key string) string {
	if value, ok := record[key].(string); ok {
		return value
	}
	return ""
}
