package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"alerthub/internal/clock"
	"alerthub/internal/config"
	"alerthub/internal/domain"
	"alerthub/internal/dsl"
	"alerthub/internal/matcher"
	"alerthub/internal/notify"
	"alerthub/internal/store"
)

// countingSender counts SendAlert calls on one channel.
type countingSender struct {
	channel domain.NotifyChannel
	mu      sync.Mutex
	sent    []string
}

func (c *countingSender) Channel() domain.NotifyChannel { return c.channel }

func (c *countingSender) SendRaw(_ context.Context, target, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, target)
	return nil
}

func (c *countingSender) SendAlert(_ context.Context, target, _ string, record map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, fmt.Sprint(record["alert_id"]))
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func poolFixture(t *testing.T, pipelineYAML string) (*Pool, *countingSender) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	if err := st.CreateUser(ctx, domain.User{
		Name:      "alice",
		Ntfy:      "infra-alerts",
		Notifiers: []domain.NotifyChannel{domain.ChannelNtfy},
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := st.CreatePipeline(ctx, domain.Pipeline{Name: "page-oncall", YAMLContent: pipelineYAML}); err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	if err := st.CreateScheduleGroup(ctx, domain.ScheduleGroup{Name: "infra", PipelineID: 2}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := st.CreateSchedule(ctx, domain.Schedule{
		Name:     "primary",
		GroupID:  3,
		StartsAt: now.Add(-time.Hour).Unix(),
		EndsAt:   now.Add(time.Hour).Unix(),
		People:   []int64{1},
	}); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := matcher.New(st, clock.Fixed{At: now}, log, 15*time.Second, time.UTC)
	sender := &countingSender{channel: domain.ChannelNtfy}
	runner := dsl.NewRunner(st, m, notify.NewSetFromSenders(sender), log, time.UTC)
	pool := New(runner, m, log, config.PipelineConfig{
		Workers:            4,
		QueueSize:          64,
		StopTimeoutSeconds: 5,
	})
	return pool, sender
}

func TestPoolProcessesEveryTaskOnce(t *testing.T) {
	t.Parallel()
	pool, sender := poolFixture(t, "steps:\n  - call: \"{{ notify() }}\"\n")

	const n = 20
	for i := 0; i < n; i++ {
		alert := domain.Alert{
			Fingerprint: fmt.Sprintf("fp-%d", i),
			AlertName:   "HighCPU",
			Status:      "firing",
			StartsAt:    1700000000,
			EndsAt:      1700003600,
		}
		if !pool.Enqueue(alert) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := sender.count(); got != n {
		t.Fatalf("deliveries = %d, want %d", got, n)
	}
}

func TestPoolSkipsSchedulesWithoutPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	// Group without a bound pipeline.
	if err := st.CreateScheduleGroup(ctx, domain.ScheduleGroup{Name: "infra"}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := st.CreateSchedule(ctx, domain.Schedule{
		Name:     "primary",
		GroupID:  1,
		StartsAt: now.Add(-time.Hour).Unix(),
		EndsAt:   now.Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := matcher.New(st, clock.Fixed{At: now}, log, 15*time.Second, time.UTC)
	sender := &countingSender{channel: domain.ChannelNtfy}
	runner := dsl.NewRunner(st, m, notify.NewSetFromSenders(sender), log, time.UTC)
	pool := New(runner, m, log, config.PipelineConfig{Workers: 1, QueueSize: 8, StopTimeoutSeconds: 5})

	pool.Enqueue(domain.Alert{Fingerprint: "fp", Status: "firing"})
	if err := pool.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := sender.count(); got != 0 {
		t.Fatalf("deliveries = %d, want none without a pipeline", got)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()
	// No workers, so the queue can actually fill.
	st := store.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := matcher.New(st, clock.Fixed{At: time.Unix(1700000000, 0)}, log, 15*time.Second, time.UTC)
	runner := dsl.NewRunner(st, m, notify.NewSetFromSenders(), log, time.UTC)
	idle := New(runner, m, log, config.PipelineConfig{Workers: 0, QueueSize: 2, StopTimeoutSeconds: 1})

	if !idle.Enqueue(domain.Alert{Fingerprint: "a"}) {
		t.Fatal("first enqueue rejected")
	}
	if !idle.Enqueue(domain.Alert{Fingerprint: "b"}) {
		t.Fatal("second enqueue rejected")
	}
	if idle.Enqueue(domain.Alert{Fingerprint: "c"}) {
		t.Fatal("third enqueue accepted past queue capacity")
	}
	if err := idle.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
