// Package matcher resolves active on-call schedules and maintenance
// windows for an instant, with a short-TTL cache in front of storage.
package matcher

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"alerthub/internal/clock"
	"alerthub/internal/domain"
	"alerthub/internal/filterexpr"
	"alerthub/internal/store"
)

// cacheEntry holds one cached result until its deadline.
type cacheEntry struct {
	value   any
	expires time.Time
}

// Matcher answers "who is on call now" and "is this alert suppressed".
// Params: storage backend, clock, logger, cache TTL, local timezone.
// Returns: cache-backed matching behavior for the dispatch pipeline.
type Matcher struct {
	store store.Store
	clock clock.Clock
	log   *slog.Logger
	ttl   time.Duration
	loc   *time.Location

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a matcher.
// Params: storage backend, clock, logger, cache TTL, display timezone.
// Returns: ready matcher.
func New(st store.Store, clk clock.Clock, log *slog.Logger, ttl time.Duration, loc *time.Location) *Matcher {
	return &Matcher{
		store: st,
		clock: clk,
		log:   log,
		ttl:   ttl,
		loc:   loc,
		cache: make(map[string]cacheEntry),
	}
}

// cached runs load at most once per TTL window for a given key. A hit
// returns the previous result verbatim even if the underlying data has
// changed; the staleness is bounded by the TTL.
func (m *Matcher) cached(key string, load func() (any, error)) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if entry, ok := m.cache[key]; ok && now.Before(entry.expires) {
		return entry.value, nil
	}
	value, err := load()
	if err != nil {
		return nil, err
	}
	m.cache[key] = cacheEntry{value: value, expires: now.Add(m.ttl)}
	return value, nil
}

// ActiveSchedules lists schedules whose window contains now, enriched
// with resolved people and the bound pipeline id.
// Params: context.
// Returns: matched schedules or storage error.
func (m *Matcher) ActiveSchedules(ctx context.Context) ([]domain.OnCallSchedule, error) {
	value, err := m.cached("schedules", func() (any, error) {
		return m.store.MatchingSchedules(ctx, m.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.OnCallSchedule), nil
}

// ActiveMaintenance lists maintenance windows whose range contains now.
// Params: context.
// Returns: matched windows or storage error.
func (m *Matcher) ActiveMaintenance(ctx context.Context) ([]domain.Maintenance, error) {
	value, err := m.cached("maintenance", func() (any, error) {
		return m.store.MatchingMaintenance(ctx, m.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.Maintenance), nil
}

type pipelineText struct {
	name string
	yaml string
}

// PipelineYAML loads one pipeline's name and script text, cache-backed.
// Params: context and pipeline id.
// Returns: name and YAML source; a failed lookup logs and yields an empty
// name with a bare document so the caller skips the schedule.
func (m *Matcher) PipelineYAML(ctx context.Context, id int64) (string, string) {
	value, err := m.cached(pipelineKey(id), func() (any, error) {
		pipeline, err := m.store.GetPipeline(ctx, id)
		if err != nil {
			return nil, err
		}
		return pipelineText{name: pipeline.Name, yaml: pipeline.YAMLContent}, nil
	})
	if err != nil {
		m.log.Error("pipeline lookup failed", "id", id, "error", err)
		return "", "---"
	}
	text := value.(pipelineText)
	return text.name, text.yaml
}

func pipelineKey(id int64) string {
	return "pipeline:" + strconv.FormatInt(id, 10)
}

// MuteTime reports whether a schedule's daily mute window covers now.
// Params: matched schedule.
// Returns: true when the local time of day falls inside the window; the
// window wraps midnight when mute_starts > mute_ends. Missing, short, or
// malformed time strings fail open.
func (m *Matcher) MuteTime(schedule domain.OnCallSchedule) bool {
	if len(schedule.MuteStarts) < 5 || len(schedule.MuteEnds) < 5 {
		return false
	}
	starts, err := time.Parse("15:04", schedule.MuteStarts)
	if err != nil {
		m.log.Warn("bad mute_starts", "schedule", schedule.Name, "value", schedule.MuteStarts)
		return false
	}
	ends, err := time.Parse("15:04", schedule.MuteEnds)
	if err != nil {
		m.log.Warn("bad mute_ends", "schedule", schedule.Name, "value", schedule.MuteEnds)
		return false
	}

	now := m.clock.Now().In(m.loc)
	minute := now.Hour()*60 + now.Minute()
	startMinute := starts.Hour()*60 + starts.Minute()
	endMinute := ends.Hour()*60 + ends.Minute()

	if startMinute > endMinute {
		// Window wraps midnight.
		return minute >= startMinute || minute <= endMinute
	}
	return minute >= startMinute && minute <= endMinute
}

// MaintenanceMatch reports whether any active maintenance window
// suppresses an alert for one on-call group.
// Params: alert record, schedule group id, active windows.
// Returns: the first applicable window's filter result (true when its
// filter is empty); false when no window applies. Filter evaluation
// errors skip the window.
func (m *Matcher) MaintenanceMatch(record map[string]any, groupID int64, windows []domain.Maintenance) bool {
	for _, window := range windows {
		if !window.AppliesToGroup(groupID) {
			continue
		}
		if window.Filter == "" {
			return true
		}
		matched, err := filterexpr.Eval(window.Filter, record)
		if err != nil {
			m.log.Warn("maintenance filter failed",
				"maintenance", window.Name,
				"filter", window.Filter,
				"error", err)
			continue
		}
		return matched
	}
	return false
}
