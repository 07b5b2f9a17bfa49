package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"alerthub/internal/clock"
	"alerthub/internal/domain"
	"alerthub/internal/store"
)

func testMachine(t *testing.T) (*Machine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	clk := clock.Fixed{At: time.Unix(1700000000, 0)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, clk, log), st
}

func firingEvent(fingerprint string) domain.AlertEvent {
	return domain.AlertEvent{
		Fingerprint: fingerprint,
		Status:      domain.StatusFiring,
		Labels: map[string]string{
			"alertname": "HighLoad",
			"severity":  "critical",
			"instance":  "db-01",
			"job":       "db",
		},
		Annotations:  map[string]string{"summary": "load is high"},
		StartsAt:     "2023-11-14T10:00:00Z",
		EndsAt:       "0",
		GeneratorURL: "http://prom/graph",
	}
}

func resolvedEvent(fingerprint string) domain.AlertEvent {
	event := firingEvent(fingerprint)
	event.Status = domain.StatusResolved
	event.EndsAt = "2023-11-14T11:00:00Z"
	return event
}

func TestApplyNewFingerprint(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	merged, err := m.Apply(ctx, firingEvent("fp-1"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if merged.AlertCount != 1 {
		t.Fatalf("alert_count = %d, want 1", merged.AlertCount)
	}
	if merged.Status != domain.StatusFiring {
		t.Fatalf("status = %q, want firing", merged.Status)
	}

	stored, err := st.GetAlert(ctx, "fp-1")
	if err != nil {
		t.Fatalf("stored alert missing: %v", err)
	}
	if stored.AlertName != "HighLoad" || stored.Job != "db" {
		t.Fatalf("stored labels not applied: %+v", stored)
	}

	history, err := st.AlertHistory(ctx, "fp-1", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].EventTimestamp != stored.StartsAt {
		t.Fatalf("history backdated to %d, want %d", history[0].EventTimestamp, stored.StartsAt)
	}
}

func TestApplyNewResolvedBackdatesToEnd(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	merged, err := m.Apply(ctx, resolvedEvent("fp-res"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	history, err := st.AlertHistory(ctx, "fp-res", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].EventTimestamp != merged.EndsAt {
		t.Fatalf("history at %d, want endsAt %d", history[0].EventTimestamp, merged.EndsAt)
	}
	if history[0].Status != domain.StatusResolved {
		t.Fatalf("history status = %q, want resolved", history[0].Status)
	}
}

func TestApplyRepeatedFiringFlaps(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		merged, err := m.Apply(ctx, firingEvent("fp-flap"))
		if err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
		if merged.AlertCount != i {
			t.Fatalf("apply %d alert_count = %d, want %d", i, merged.AlertCount, i)
		}
	}
	history, err := st.AlertHistory(ctx, "fp-flap", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("re-fires appended history rows: %d, want 1", len(history))
	}
}

func TestApplyRepeatedResolvedWritesNothing(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, resolvedEvent("fp-rr")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	first, _ := st.GetAlert(ctx, "fp-rr")
	if _, err := m.Apply(ctx, resolvedEvent("fp-rr")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	second, _ := st.GetAlert(ctx, "fp-rr")
	if second.UpdatedAt != first.UpdatedAt || second.AlertCount != first.AlertCount {
		t.Fatalf("repeated resolve mutated the row: %+v vs %+v", first, second)
	}
}

func TestApplyFiringToResolved(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, firingEvent("fp-cycle")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	merged, err := m.Apply(ctx, resolvedEvent("fp-cycle"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if merged.Status != domain.StatusResolved {
		t.Fatalf("status = %q, want resolved", merged.Status)
	}
	if merged.AlertCount != 1 {
		t.Fatalf("alert_count = %d, want reset to 1", merged.AlertCount)
	}
	history, _ := st.AlertHistory(ctx, "fp-cycle", 10)
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if history[0].Status != domain.StatusResolved || history[0].EventTimestamp != merged.EndsAt {
		t.Fatalf("resolve not backdated to endsAt: %+v", history[0])
	}
}

func TestApplyAckedToResolved(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, firingEvent("fp-ack")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err := m.SetStatus(ctx, "fp-ack", domain.StatusAcked, false, "", ""); err != nil {
		t.Fatalf("set status failed: %v", err)
	}

	merged, err := m.Apply(ctx, resolvedEvent("fp-ack"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if merged.Status != domain.StatusResolved {
		t.Fatalf("status = %q, want resolved", merged.Status)
	}
	if merged.AlertCount != 1 {
		t.Fatalf("alert_count = %d, want reset", merged.AlertCount)
	}
	history, _ := st.AlertHistory(ctx, "fp-ack", 10)
	if history[0].Status != domain.StatusResolved {
		t.Fatalf("history status = %q, want resolved", history[0].Status)
	}
	if history[0].EventTimestamp != merged.EndsAt {
		t.Fatalf("history at %d, want endsAt %d", history[0].EventTimestamp, merged.EndsAt)
	}
}

func TestApplyMutedPinsStatus(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, firingEvent("fp-mute")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err := m.SetStatus(ctx, "fp-mute", domain.StatusMuted, false, "", ""); err != nil {
		t.Fatalf("set status failed: %v", err)
	}

	// muted -> firing is outside the history table: the row keeps its
	// muted status while the counter still increments.
	merged, err := m.Apply(ctx, firingEvent("fp-mute"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if merged.Status != domain.StatusMuted {
		t.Fatalf("status = %q, want pinned muted", merged.Status)
	}
	if merged.AlertCount != 2 {
		t.Fatalf("alert_count = %d, want 2", merged.AlertCount)
	}
	history, _ := st.AlertHistory(ctx, "fp-mute", 10)
	if len(history) != 1 {
		t.Fatalf("pinned transition wrote history: %d rows", len(history))
	}
}

func TestSetStatusWithHistory(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, firingEvent("fp-op")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	before, _ := st.GetAlert(ctx, "fp-op")
	if err := m.SetStatus(ctx, "fp-op", domain.StatusAcked, true, "", "taking a look"); err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	after, _ := st.GetAlert(ctx, "fp-op")
	if after.Status != domain.StatusAcked {
		t.Fatalf("status = %q, want acked", after.Status)
	}
	if after.AlertCount != before.AlertCount {
		t.Fatalf("override touched alert_count")
	}
	history, _ := st.AlertHistory(ctx, "fp-op", 10)
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if history[0].Comment != "taking a look" {
		t.Fatalf("comment = %q", history[0].Comment)
	}
	if history[0].EventTimestamp != 0 {
		t.Fatalf("manual history event_timestamp = %d, want 0", history[0].EventTimestamp)
	}

	if err := m.SetStatus(ctx, "fp-op", "bogus", false, "", ""); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestDeletePurgesHistory(t *testing.T) {
	t.Parallel()
	m, st := testMachine(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, firingEvent("fp-del")); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err := m.Delete(ctx, "fp-del"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := st.GetAlert(ctx, "fp-del"); err != store.ErrNotFound {
		t.Fatalf("alert survived delete: %v", err)
	}
	history, _ := st.AlertHistory(ctx, "fp-del", 10)
	if len(history) != 0 {
		t.Fatalf("history survived delete: %d rows", len(history))
	}
}
