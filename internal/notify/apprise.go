package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alerthub/internal/config"
	"alerthub/internal/domain"
)

// AppriseSender delivers messages through an Apprise API server, which
// fans out to whatever services the target URI names.
// Params: Apprise API server URL from config.
// Returns: Apprise channel sender.
type AppriseSender struct {
	server string
	client *http.Client
	log    *slog.Logger
}

// NewAppriseSender creates the Apprise sender.
// Params: Apprise config and logger.
// Returns: initialized sender.
func NewAppriseSender(cfg config.AppriseConfig, log *slog.Logger) *AppriseSender {
	return &AppriseSender{
		server: strings.TrimRight(cfg.Server, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Channel returns the sender channel.
func (s *AppriseSender) Channel() domain.NotifyChannel {
	return domain.ChannelApprise
}

// SendRaw posts one plain message to a service URI.
// Params: Apprise service URI and message text.
// Returns: transport or API error.
func (s *AppriseSender) SendRaw(ctx context.Context, target, text string) error {
	return s.post(ctx, target, "AlertHub", text)
}

// SendAlert renders the template against the alert record and posts it
// with the alert name as the title.
// Params: service URI, template body, alert record.
// Returns: rendering or transport error.
func (s *AppriseSender) SendAlert(ctx context.Context, target, templateText string, record map[string]any) error {
	text, err := Render("apprise", templateText, record)
	if err != nil {
		return err
	}
	return s.post(ctx, target, recordString(record, "alertname"), text)
}

func (s *AppriseSender) post(ctx context.Context, uri, title, text string) error {
	payload := struct {
		URLs  string `json:"urls"`
		Title string `json:"title"`
		Body  string `json:"body"`
	}{URLs: uri, Title: title, Body: text}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode apprise payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server+"/notify", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build apprise request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("apprise send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		raw, _ := io.ReadAll(response.Body)
		return fmt.Errorf("apprise status=%d body=%s", response.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
