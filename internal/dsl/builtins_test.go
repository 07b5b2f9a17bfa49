package dsl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"alerthub/internal/domain"
	"alerthub/internal/notify"
)

type sentAlert struct {
	target   string
	template string
	record   map[string]any
}

type sentRaw struct {
	target string
	text   string
}

// fakeSender records deliveries for one channel.
type fakeSender struct {
	channel domain.NotifyChannel
	fail    bool

	mu     sync.Mutex
	alerts []sentAlert
	raws   []sentRaw
}

func (f *fakeSender) Channel() domain.NotifyChannel { return f.channel }

func (f *fakeSender) SendRaw(_ context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raws = append(f.raws, sentRaw{target: target, text: text})
	if f.fail {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeSender) SendAlert(_ context.Context, target, templateText string, record map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, sentAlert{target: target, template: templateText, record: record})
	if f.fail {
		return errors.New("send failed")
	}
	return nil
}

func onCallPair() domain.OnCallSchedule {
	return domain.OnCallSchedule{
		ID:      1,
		Name:    "primary",
		GroupID: 7,
		People: []domain.Person{
			{
				Name:       "alice",
				TelegramID: "1234567",
				Notifiers:  []domain.NotifyChannel{domain.ChannelTelegram},
			},
			{
				Name:      "bob",
				Ntfy:      "infra-alerts",
				Notifiers: []domain.NotifyChannel{domain.ChannelNtfy},
			},
		},
	}
}

func TestNotifyFansOutPerPersonChannel(t *testing.T) {
	t.Parallel()
	telegram := &fakeSender{channel: domain.ChannelTelegram}
	ntfy := &fakeSender{channel: domain.ChannelNtfy}
	r, st := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(telegram, ntfy))

	ctx := context.Background()
	if err := st.CreateTemplate(ctx, domain.Template{Name: "tg", Template: "tg: {{.alertname}}"}); err != nil {
		t.Fatalf("create template: %v", err)
	}
	if err := st.CreateTemplate(ctx, domain.Template{Name: "ntfy", Template: "ntfy: {{.alertname}}"}); err != nil {
		t.Fatalf("create template: %v", err)
	}

	source := `
steps:
  - call: "{{ notify(1, 2) }}"
`
	if result := r.Run(ctx, source, testAlert(), onCallPair(), nil); result == nil {
		t.Fatal("run returned nil context")
	}

	if len(telegram.alerts) != 1 {
		t.Fatalf("telegram sends = %d, want 1", len(telegram.alerts))
	}
	if telegram.alerts[0].target != "1234567" {
		t.Fatalf("telegram target = %q", telegram.alerts[0].target)
	}
	if telegram.alerts[0].template != "tg: {{.alertname}}" {
		t.Fatalf("telegram template = %q", telegram.alerts[0].template)
	}
	if len(ntfy.alerts) != 1 {
		t.Fatalf("ntfy sends = %d, want 1", len(ntfy.alerts))
	}
	if ntfy.alerts[0].target != "infra-alerts" {
		t.Fatalf("ntfy target = %q", ntfy.alerts[0].target)
	}
}

func TestNotifyHumanizesTimestamps(t *testing.T) {
	t.Parallel()
	telegram := &fakeSender{channel: domain.ChannelTelegram}
	r, _ := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(telegram))

	schedule := onCallPair()
	schedule.People = schedule.People[:1]
	source := `
steps:
  - call: "{{ notify() }}"
`
	r.Run(context.Background(), source, testAlert(), schedule, nil)

	if len(telegram.alerts) != 1 {
		t.Fatalf("telegram sends = %d, want 1", len(telegram.alerts))
	}
	record := telegram.alerts[0].record
	starts, ok := record["startsAt"].(string)
	if !ok {
		t.Fatalf("startsAt = %v (%T), want humanized string", record["startsAt"], record["startsAt"])
	}
	if !strings.Contains(starts, "2023") || !strings.Contains(starts, "(+00:00)") {
		t.Fatalf("startsAt = %q, want month-name form with offset", starts)
	}
	if _, ok := record["endsAt"].(string); !ok {
		t.Fatalf("endsAt = %v, want humanized string", record["endsAt"])
	}
}

func TestNotifySkipsShortTargets(t *testing.T) {
	t.Parallel()
	telegram := &fakeSender{channel: domain.ChannelTelegram}
	ntfy := &fakeSender{channel: domain.ChannelNtfy}
	r, _ := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(telegram, ntfy))

	schedule := domain.OnCallSchedule{
		Name: "primary",
		People: []domain.Person{
			{Name: "alice", TelegramID: "123456", Notifiers: []domain.NotifyChannel{domain.ChannelTelegram}},
			{Name: "bob", Ntfy: "abc", Notifiers: []domain.NotifyChannel{domain.ChannelNtfy}},
		},
	}
	source := `
steps:
  - call: "{{ notify() }}"
`
	r.Run(context.Background(), source, testAlert(), schedule, nil)

	if len(telegram.alerts) != 0 {
		t.Fatalf("telegram sends = %d, want none for a 6-char chat id", len(telegram.alerts))
	}
	if len(ntfy.alerts) != 0 {
		t.Fatalf("ntfy sends = %d, want none for a 3-char topic", len(ntfy.alerts))
	}
}

func TestNotifyWithoutPeople(t *testing.T) {
	t.Parallel()
	telegram := &fakeSender{channel: domain.ChannelTelegram}
	r, _ := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(telegram))

	source := `
steps:
  - set:
      out: "{{ notify() }}"
`
	result := r.Run(context.Background(), source, testAlert(), domain.OnCallSchedule{Name: "empty"}, nil)
	if got := result.Vars["out"]; got != nil {
		t.Fatalf("notify result = %v, want nil with nobody on call", got)
	}
	if len(telegram.alerts) != 0 {
		t.Fatalf("telegram sends = %d, want none", len(telegram.alerts))
	}
}

func TestNotifyReportsFailures(t *testing.T) {
	t.Parallel()
	telegram := &fakeSender{channel: domain.ChannelTelegram, fail: true}
	r, _ := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(telegram))

	schedule := onCallPair()
	schedule.People = schedule.People[:1]
	source := `
steps:
  - set:
      out: "{{ notify() }}"
`
	result := r.Run(context.Background(), source, testAlert(), schedule, nil)
	outcomes, ok := result.Vars["out"].([]any)
	if !ok || len(outcomes) != 1 {
		t.Fatalf("out = %v, want one outcome", result.Vars["out"])
	}
	outcome, ok := outcomes[0].(map[string]any)
	if !ok {
		t.Fatalf("outcome = %v (%T)", outcomes[0], outcomes[0])
	}
	if outcome["ok"] != false {
		t.Fatalf("ok = %v, want false after delivery error", outcome["ok"])
	}
	if outcome["user"] != "alice" {
		t.Fatalf("user = %v, want alice", outcome["user"])
	}
	if outcome["channel"] != int(domain.ChannelTelegram) {
		t.Fatalf("channel = %v, want telegram", outcome["channel"])
	}
}

func TestSendMessageRaw(t *testing.T) {
	t.Parallel()
	ntfy := &fakeSender{channel: domain.ChannelNtfy}
	r, _ := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(ntfy))

	source := `
steps:
  - set:
      out: '{{ send_message(NotifyChannel.NTFY, "ops", "hello") }}'
`
	result := r.Run(context.Background(), source, testAlert(), domain.OnCallSchedule{}, nil)
	if len(ntfy.raws) != 1 {
		t.Fatalf("raw sends = %d, want 1", len(ntfy.raws))
	}
	if ntfy.raws[0].target != "ops" || ntfy.raws[0].text != "hello" {
		t.Fatalf("raw send = %+v", ntfy.raws[0])
	}
	outcomes, ok := result.Vars["out"].([]any)
	if !ok || len(outcomes) != 1 {
		t.Fatalf("out = %v, want one outcome", result.Vars["out"])
	}
}

func TestSendMessageTelegramRequiresNumericTarget(t *testing.T) {
	t.Parallel()
	telegram := &fakeSender{channel: domain.ChannelTelegram}
	r, _ := testRunner(t, time.Unix(1700000000, 0).UTC(), notify.NewSetFromSenders(telegram))

	source := `
steps:
  - set:
      out: '{{ send_message(NotifyChannel.TELEGRAM, "not-a-number", "hello") }}'
`
	result := r.Run(context.Background(), source, testAlert(), domain.OnCallSchedule{}, nil)
	if got := result.Vars["out"]; got != nil {
		t.Fatalf("out = %v, want nil for a non-numeric telegram target", got)
	}
	if len(telegram.raws) != 0 {
		t.Fatalf("raw sends = %d, want none", len(telegram.raws))
	}

	source = `
steps:
  - set:
      out: "{{ send_message(NotifyChannel.TELEGRAM, 1234567, 'hi') }}"
`
	r.Run(context.Background(), source, testAlert(), domain.OnCallSchedule{}, nil)
	if len(telegram.raws) != 1 || telegram.raws[0].target != "1234567" {
		t.Fatalf("raw sends = %+v, want one to 1234567", telegram.raws)
	}
}
