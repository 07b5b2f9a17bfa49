package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert status values as stored and published.
const (
	// StatusFiring indicates an active alert.
	StatusFiring = "firing"
	// StatusResolved indicates the alert condition has cleared.
	StatusResolved = "resolved"
	// StatusAcked indicates an operator acknowledged the alert.
	StatusAcked = "acked"
	// StatusMuted indicates an operator silenced the alert.
	StatusMuted = "muted"
	// StatusUnmuted indicates an operator removed a mute.
	StatusUnmuted = "unmuted"
)

// IsOperatorStatus reports whether value is a valid manual override status.
// Params: candidate status string.
// Returns: true for acked/muted/unmuted/resolved/firing.
func IsOperatorStatus(value string) bool {
	switch value {
	case StatusAcked, StatusMuted, StatusUnmuted, StatusResolved, StatusFiring:
		return true
	}
	return false
}

// Alert is one persisted alert row keyed by fingerprint.
// Params: identity, classification labels, lifecycle timestamps, flap counter.
// Returns: storage row and notification rendering source.
type Alert struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"_id"`
	Fingerprint  string            `gorm:"column:alert_id;uniqueIndex" json:"alert_id"`
	AlertName    string            `gorm:"column:alertname" json:"alertname"`
	Severity     string            `json:"severity"`
	Instance     string            `json:"instance"`
	Job          string            `json:"job"`
	Status       string            `json:"status"`
	Annotations  map[string]string `gorm:"serializer:json" json:"annotations"`
	Labels       map[string]string `gorm:"serializer:json" json:"labels"`
	GeneratorURL string            `gorm:"column:generatorurl" json:"generatorURL"`
	UpdatedAt    int64             `gorm:"column:updatedat" json:"updatedAt"`
	EndsAt       int64             `gorm:"column:endsat" json:"endsAt"`
	StartsAt     int64             `gorm:"column:startsat" json:"startsAt"`
	AlertCount   int               `gorm:"column:alert_count" json:"alert_count"`
}

// TableName returns the alerts table name.
// Params: none.
// Returns: storage table name.
func (Alert) TableName() string {
	return "alerts"
}

// ContextMap converts the alert into the nested key/value record used by
// filter expressions, DSL contexts, and message templates.
// Params: none.
// Returns: fresh mutable map copy of the alert.
func (a Alert) ContextMap() map[string]any {
	return map[string]any{
		"alert_id":     a.Fingerprint,
		"alertname":    a.AlertName,
		"severity":     a.Severity,
		"instance":     a.Instance,
		"job":          a.Job,
		"status":       a.Status,
		"annotations":  stringMapToAny(a.Annotations),
		"labels":       stringMapToAny(a.Labels),
		"generatorURL": a.GeneratorURL,
		"updatedAt":    a.UpdatedAt,
		"endsAt":       a.EndsAt,
		"startsAt":     a.StartsAt,
		"alert_count":  a.AlertCount,
	}
}

// HistoryEvent is one append-only alert status record.
// Params: ingest/event timestamps, fingerprint, recorded status, comment.
// Returns: history row.
type HistoryEvent struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"_id"`
	Timestamp      int64  `json:"timestamp"`
	EventTimestamp int64  `gorm:"column:event_timestamp" json:"event_timestamp"`
	Fingerprint    string `gorm:"column:alert_id;index" json:"alert_id"`
	Status         string `json:"status"`
	Comment        string `json:"comment"`
}

// TableName returns the alert history table name.
// Params: none.
// Returns: storage table name.
func (HistoryEvent) TableName() string {
	return "alerts_history"
}

// AlertEvent is one raw incoming alert from the monitoring webhook.
// Params: fingerprint identity, firing/resolved status, label/annotation maps,
// RFC3339 start/end timestamps.
// Returns: lifecycle state machine input.
type AlertEvent struct {
	Fingerprint  string            `json:"fingerprint"`
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
}

// WebhookPayload is the monitoring webhook envelope.
// Params: alert event batch.
// Returns: decoded ingest payload.
type WebhookPayload struct {
	Alerts []AlertEvent `json:"alerts"`
}

// DecodeWebhookPayload decodes the webhook request body.
// Params: raw JSON bytes.
// Returns: parsed payload or decode error.
func DecodeWebhookPayload(body []byte) (WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookPayload{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	return payload, nil
}

// Label returns one event label, or fallback when absent.
// Params: label key and default value.
// Returns: label value or fallback.
func (e AlertEvent) Label(key, fallback string) string {
	if value, ok := e.Labels[key]; ok && value != "" {
		return value
	}
	return fallback
}

// ParseEventTime parses one webhook RFC3339 timestamp into epoch seconds.
// Params: raw timestamp text.
// Returns: epoch seconds (0 for empty/zero/negative inputs) or parse error.
func ParseEventTime(raw string) (int64, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, fmt.Errorf("parse event time %q: %w", raw, err)
	}
	seconds := parsed.Unix()
	if parsed.IsZero() || seconds < 0 {
		return 0, nil
	}
	return seconds, nil
}

func stringMapToAny(src map[string]string) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
