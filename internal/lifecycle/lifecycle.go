// Package lifecycle applies incoming alert events to stored alert state,
// deciding status, flap count, and history records.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"alerthub/internal/clock"
	"alerthub/internal/domain"
	"alerthub/internal/store"
)

// transition keys one stored-to-incoming status change.
type transition struct {
	stored   string
	incoming string
}

// historyInserts maps status changes that synthesize a history row to the
// recorded status and which event timestamp backdates it.
var historyInserts = map[transition]struct {
	status    string
	useEndsAt bool
}{
	{domain.StatusAcked, domain.StatusResolved}:  {domain.StatusResolved, true},
	{domain.StatusResolved, domain.StatusFiring}: {domain.StatusFiring, false},
	{domain.StatusFiring, domain.StatusResolved}: {domain.StatusResolved, true},
}

// Machine is the alert lifecycle state machine.
// Params: storage backend, clock source, logger.
// Returns: per-event upsert and operator override behavior.
type Machine struct {
	store store.Store
	clock clock.Clock
	log   *slog.Logger
}

// New builds a lifecycle machine.
// Params: storage backend, clock source, logger.
// Returns: ready machine.
func New(st store.Store, clk clock.Clock, log *slog.Logger) *Machine {
	return &Machine{store: st, clock: clk, log: log}
}

// Apply merges one incoming alert event into stored state.
// Params: context and raw webhook event.
// Returns: the merged alert record for downstream dispatch, or an error on
// storage failure; callers must not dispatch when an error is returned.
func (m *Machine) Apply(ctx context.Context, event domain.AlertEvent) (domain.Alert, error) {
	startsAt, err := domain.ParseEventTime(event.StartsAt)
	if err != nil {
		return domain.Alert{}, err
	}
	endsAt, err := domain.ParseEventTime(event.EndsAt)
	if err != nil {
		return domain.Alert{}, err
	}
	if endsAt < 0 {
		endsAt = 0
	}
	now := m.clock.Now().Unix()

	merged := domain.Alert{
		Fingerprint:  event.Fingerprint,
		AlertName:    event.Label("alertname", "-"),
		Severity:     event.Label("severity", "-"),
		Instance:     event.Label("instance", "-"),
		Job:          event.Label("job", "-"),
		Status:       event.Status,
		Annotations:  event.Annotations,
		Labels:       event.Labels,
		GeneratorURL: event.GeneratorURL,
		UpdatedAt:    now,
		EndsAt:       endsAt,
		StartsAt:     startsAt,
	}
	if merged.GeneratorURL == "" {
		merged.GeneratorURL = "-"
	}

	stored, err := m.store.GetAlert(ctx, event.Fingerprint)
	if errors.Is(err, store.ErrNotFound) {
		return m.applyNew(ctx, merged)
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("load alert state: %w", err)
	}
	return m.applyExisting(ctx, stored, merged)
}

// applyNew inserts a first-seen fingerprint with a flap count of 1 and one
// history event backdated to the alert's actual start (or end, when the
// first event is already resolved).
func (m *Machine) applyNew(ctx context.Context, merged domain.Alert) (domain.Alert, error) {
	merged.AlertCount = 1
	if err := m.store.InsertAlert(ctx, merged); err != nil {
		return domain.Alert{}, err
	}

	eventTime := merged.StartsAt
	if merged.Status == domain.StatusResolved {
		eventTime = merged.EndsAt
	}
	err := m.store.AppendHistory(ctx, domain.HistoryEvent{
		Timestamp:      merged.UpdatedAt,
		EventTimestamp: eventTime,
		Fingerprint:    merged.Fingerprint,
		Status:         merged.Status,
	})
	if err != nil {
		return domain.Alert{}, err
	}
	m.log.Debug("alert created", "fingerprint", merged.Fingerprint, "status", merged.Status)
	return merged, nil
}

// applyExisting merges an event into an already tracked fingerprint.
func (m *Machine) applyExisting(ctx context.Context, stored, merged domain.Alert) (domain.Alert, error) {
	merged.AlertCount = stored.AlertCount

	if merged.Status == stored.Status {
		// A repeated firing is a flap: bump the counter and refresh the
		// row. A repeated resolve writes nothing.
		if stored.Status != domain.StatusFiring {
			return merged, nil
		}
		merged.AlertCount++
		if err := m.store.UpdateAlert(ctx, merged); err != nil {
			return domain.Alert{}, err
		}
		m.log.Debug("alert re-fired", "fingerprint", merged.Fingerprint, "count", merged.AlertCount)
		return merged, nil
	}

	switch {
	case isPinned(stored.Status) && merged.Status == domain.StatusFiring:
		merged.AlertCount++
	case isPinned(stored.Status) && merged.Status == domain.StatusResolved:
		merged.AlertCount = 1
	case isAutomatic(stored.Status) && isAutomatic(merged.Status):
		merged.AlertCount = 1
	}

	insert, recorded := historyInserts[transition{stored.Status, merged.Status}]
	if recorded {
		eventTime := merged.StartsAt
		if insert.useEndsAt {
			eventTime = merged.EndsAt
		}
		err := m.store.AppendHistory(ctx, domain.HistoryEvent{
			Timestamp:      merged.UpdatedAt,
			EventTimestamp: eventTime,
			Fingerprint:    merged.Fingerprint,
			Status:         insert.status,
		})
		if err != nil {
			return domain.Alert{}, err
		}
		merged.Status = insert.status
	} else {
		// Transitions outside the table keep the operator-set status on
		// the row; only timestamps and the counter move.
		merged.Status = stored.Status
	}

	if err := m.store.UpdateAlert(ctx, merged); err != nil {
		return domain.Alert{}, err
	}
	m.log.Debug("alert updated",
		"fingerprint", merged.Fingerprint,
		"status", merged.Status,
		"count", merged.AlertCount)
	return merged, nil
}

// isPinned reports whether a stored status was set by an operator.
func isPinned(status string) bool {
	return status == domain.StatusMuted || status == domain.StatusAcked
}

// isAutomatic reports whether a status comes from the monitoring source.
func isAutomatic(status string) bool {
	return status == domain.StatusFiring || status == domain.StatusResolved
}

// SetStatus applies an operator status override, bypassing the transition
// table and never touching the flap counter.
// Params: fingerprint, new status, and an optional history record with its
// own recorded status and comment (historyStatus falls back to status).
// Returns: validation or storage error.
func (m *Machine) SetStatus(ctx context.Context, fingerprint, status string, record bool, historyStatus, comment string) error {
	if !domain.IsOperatorStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := m.store.SetAlertStatus(ctx, fingerprint, status); err != nil {
		return err
	}
	if !record {
		return nil
	}
	if historyStatus == "" {
		historyStatus = status
	}
	return m.store.AppendHistory(ctx, domain.HistoryEvent{
		Timestamp:   m.clock.Now().Unix(),
		Fingerprint: fingerprint,
		Status:      historyStatus,
		Comment:     comment,
	})
}

// Delete removes one alert and all of its history.
// Params: fingerprint.
// Returns: storage error.
func (m *Machine) Delete(ctx context.Context, fingerprint string) error {
	return m.store.DeleteAlert(ctx, fingerprint)
}
