// Package broadcast mirrors ingested alerts onto a NATS subject so UI
// and sidecar consumers can follow the live stream. Publishing is best
// effort: a failed publish is logged and the alert flow continues.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"alerthub/internal/config"
	"alerthub/internal/domain"
)

// Broadcaster publishes alert copies to one core NATS subject.
// Params: connection and subject from the broadcast config section.
// Returns: best-effort publisher; nil-safe when broadcasting is off.
type Broadcaster struct {
	nc      *nats.Conn
	subject string
	loc     *time.Location
	log     *slog.Logger
}

// New connects to NATS for alert mirroring.
// Params: broadcast config, display timezone, logger.
// Returns: publisher, or nil when the mirror is disabled, or a
// connection error.
func New(cfg config.BroadcastConfig, loc *time.Location, log *slog.Logger) (*Broadcaster, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect broadcast nats: %w", err)
	}
	return &Broadcaster{nc: nc, subject: cfg.Subject, loc: loc, log: log}, nil
}

// Publish mirrors one alert with humanized timestamps.
// Params: persisted alert.
// Returns: nothing; failures are logged only.
func (b *Broadcaster) Publish(alert domain.Alert) {
	if b == nil {
		return
	}
	record := alert.ContextMap()
	record["startsAt"] = domain.FormatHumanTime(alert.StartsAt, b.loc)
	record["endsAt"] = domain.FormatHumanTime(alert.EndsAt, b.loc)
	record["updatedAt"] = domain.FormatHumanTime(alert.UpdatedAt, b.loc)

	body, err := json.Marshal(record)
	if err != nil {
		b.log.Error("marshal broadcast alert", "alert_id", alert.Fingerprint, "error", err)
		return
	}
	if err := b.nc.Publish(b.subject, body); err != nil {
		b.log.Error("broadcast publish failed", "alert_id", alert.Fingerprint, "error", err)
	}
}

// Close drains the NATS connection.
// Params: none.
// Returns: nothing.
func (b *Broadcaster) Close() {
	if b == nil || b.nc == nil {
		return
	}
	b.nc.Close()
}
