package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"alerthub/internal/domain"
)

// MemoryStore keeps all entities in process memory behind one mutex.
// Params: none.
// Returns: Store implementation for tests and single-node trials.
type MemoryStore struct {
	mu        sync.Mutex
	alerts    map[string]domain.Alert
	history   []domain.HistoryEvent
	users     map[int64]domain.User
	teams     map[int64]domain.Team
	schedules map[int64]domain.Schedule
	groups    map[int64]domain.ScheduleGroup
	windows   map[int64]domain.Maintenance
	pipelines map[int64]domain.Pipeline
	templates map[int64]domain.Template
	searches  map[int64]domain.SearchFilter
	nextID    int64
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:    make(map[string]domain.Alert),
		users:     make(map[int64]domain.User),
		teams:     make(map[int64]domain.Team),
		schedules: make(map[int64]domain.Schedule),
		groups:    make(map[int64]domain.ScheduleGroup),
		windows:   make(map[int64]domain.Maintenance),
		pipelines: make(map[int64]domain.Pipeline),
		templates: make(map[int64]domain.Template),
		searches:  make(map[int64]domain.SearchFilter),
		nextID:    1,
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// GetAlert loads one alert by fingerprint.
func (s *MemoryStore) GetAlert(_ context.Context, fingerprint string) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[fingerprint]
	if !ok {
		return domain.Alert{}, ErrNotFound
	}
	return alert, nil
}

// InsertAlert stores one new alert row.
func (s *MemoryStore) InsertAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == 0 {
		alert.ID = s.allocID()
	}
	s.alerts[alert.Fingerprint] = alert
	return nil
}

// UpdateAlert rewrites one alert row keyed by fingerprint.
func (s *MemoryStore) UpdateAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.alerts[alert.Fingerprint]
	if !ok {
		return ErrNotFound
	}
	stored.Status = alert.Status
	stored.UpdatedAt = alert.UpdatedAt
	stored.EndsAt = alert.EndsAt
	stored.StartsAt = alert.StartsAt
	stored.AlertCount = alert.AlertCount
	s.alerts[alert.Fingerprint] = stored
	return nil
}

// SetAlertStatus overrides one alert status without touching counters.
func (s *MemoryStore) SetAlertStatus(_ context.Context, fingerprint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[fingerprint]
	if !ok {
		return ErrNotFound
	}
	alert.Status = status
	s.alerts[fingerprint] = alert
	return nil
}

// DeleteAlert removes one alert and purges its history.
func (s *MemoryStore) DeleteAlert(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, fingerprint)
	kept := s.history[:0]
	for _, event := range s.history {
		if event.Fingerprint != fingerprint {
			kept = append(kept, event)
		}
	}
	s.history = kept
	return nil
}

// AppendHistory stores one append-only history event.
func (s *MemoryStore) AppendHistory(_ context.Context, event domain.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == 0 {
		event.ID = s.allocID()
	}
	s.history = append(s.history, event)
	return nil
}

// AlertHistory lists history events for one alert, most recent first.
func (s *MemoryStore) AlertHistory(_ context.Context, fingerprint string, limit int) ([]domain.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var events []domain.HistoryEvent
	for _, event := range s.history {
		if event.Fingerprint == fingerprint {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp > events[j].Timestamp
		}
		return events[i].ID > events[j].ID
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// AlertsRange lists alerts inside a time window with optional filters.
func (s *MemoryStore) AlertsRange(_ context.Context, query AlertRangeQuery) ([]domain.Alert, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := query.From, query.To
	if from == 0 || to == 0 {
		now := time.Now()
		to = now.Unix()
		from = now.AddDate(0, 0, -defaultRangeDays).Unix()
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultRangeLimit
	}

	var rows []domain.Alert
	if query.History {
		byFingerprint := s.alerts
		for _, event := range s.history {
			if event.EventTimestamp < from || event.EventTimestamp > to {
				continue
			}
			if query.Status != "" && event.Status != query.Status {
				continue
			}
			alert, ok := byFingerprint[event.Fingerprint]
			if !ok {
				continue
			}
			alert.Status = event.Status
			alert.StartsAt = event.EventTimestamp
			if query.Search != "" && !alertMatches(alert, query.Search) {
				continue
			}
			rows = append(rows, alert)
		}
	} else {
		for _, alert := range s.alerts {
			if alert.StartsAt < from || alert.StartsAt > to {
				continue
			}
			if query.Status != "" && alert.Status != query.Status {
				continue
			}
			if query.Search != "" && !alertMatches(alert, query.Search) {
				continue
			}
			rows = append(rows, alert)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StartsAt > rows[j].StartsAt
	})
	total := int64(len(rows))
	if query.Offset > 0 {
		if query.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[query.Offset:]
		}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, total, nil
}

func alertMatches(alert domain.Alert, term string) bool {
	term = strings.ToLower(term)
	for _, field := range []string{alert.AlertName, alert.Fingerprint, alert.Instance, alert.Job, alert.Status} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// StatusStats aggregates alert totals per status.
func (s *MemoryStore) StatusStats(_ context.Context) ([]domain.StatusStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, alert := range s.alerts {
		counts[alert.Status]++
	}
	stats := make([]domain.StatusStat, 0, len(counts))
	for status, total := range counts {
		stats = append(stats, domain.StatusStat{Status: status, Total: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}

// SeverityStats aggregates alert totals per severity.
func (s *MemoryStore) SeverityStats(_ context.Context) ([]domain.SeverityStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, alert := range s.alerts {
		counts[alert.Severity]++
	}
	stats := make([]domain.SeverityStat, 0, len(counts))
	for severity, total := range counts {
		stats = append(stats, domain.SeverityStat{Severity: severity, Total: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Severity < stats[j].Severity })
	return stats, nil
}

// NameStats aggregates alert totals per alertname and severity.
func (s *MemoryStore) NameStats(_ context.Context) ([]domain.NameStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		name     string
		severity string
	}
	counts := make(map[key]int64)
	for _, alert := range s.alerts {
		counts[key{alert.AlertName, alert.Severity}]++
	}
	stats := make([]domain.NameStat, 0, len(counts))
	for k, total := range counts {
		stats = append(stats, domain.NameStat{Name: k.name, Severity: k.severity, Total: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Total > stats[j].Total })
	return stats, nil
}

// GetUserByName loads one user by name or email.
func (s *MemoryStore) GetUserByName(_ context.Context, name string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Name == name || user.Email == name {
			return user, nil
		}
	}
	return domain.User{}, ErrNotFound
}

// ListUsers lists all users ordered by id.
func (s *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// CreateUser stores one new user.
func (s *MemoryStore) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == 0 {
		user.ID = s.allocID()
	}
	s.users[user.ID] = user
	return nil
}

// UpdateUser rewrites one user row keyed by name.
func (s *MemoryStore) UpdateUser(_ context.Context, user domain.User, updatePassword bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, stored := range s.users {
		if stored.Name != user.Name {
			continue
		}
		stored.Role = user.Role
		stored.Email = user.Email
		stored.Notifiers = user.Notifiers
		stored.TelegramID = user.TelegramID
		stored.Ntfy = user.Ntfy
		stored.Apprise = user.Apprise
		stored.Timezone = user.Timezone
		if updatePassword {
			stored.Password = user.Password
		}
		s.users[id] = stored
		return nil
	}
	return ErrNotFound
}

// DeleteUser removes one user by name.
func (s *MemoryStore) DeleteUser(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, user := range s.users {
		if user.Name == name {
			delete(s.users, id)
			return nil
		}
	}
	return nil
}

// RemoveUserRefs removes a user id from team members and schedule people.
func (s *MemoryStore) RemoveUserRefs(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, team := range s.teams {
		team.Members = removeID(team.Members, userID)
		s.teams[id] = team
	}
	for id, schedule := range s.schedules {
		schedule.People = removeID(schedule.People, userID)
		s.schedules[id] = schedule
	}
	return nil
}

// ListTeams lists all teams ordered by id.
func (s *MemoryStore) ListTeams(_ context.Context) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := make([]domain.Team, 0, len(s.teams))
	for _, team := range s.teams {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

// CreateTeam stores one new team.
func (s *MemoryStore) CreateTeam(_ context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if team.ID == 0 {
		team.ID = s.allocID()
	}
	s.teams[team.ID] = team
	return nil
}

// UpdateTeam rewrites one team and prunes schedule people that left it.
func (s *MemoryStore) UpdateTeam(_ context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[team.ID]; !ok {
		return ErrNotFound
	}
	s.teams[team.ID] = team
	allowed := make(map[int64]bool, len(team.Members))
	for _, id := range team.Members {
		allowed[id] = true
	}
	for _, group := range s.groups {
		if group.TeamID != team.ID {
			continue
		}
		for id, schedule := range s.schedules {
			if schedule.GroupID != group.ID {
				continue
			}
			kept := make([]int64, 0, len(schedule.People))
			for _, person := range schedule.People {
				if allowed[person] {
					kept = append(kept, person)
				}
			}
			schedule.People = kept
			s.schedules[id] = schedule
		}
	}
	return nil
}

// DeleteTeam removes one team and clears dependent group references.
func (s *MemoryStore) DeleteTeam(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, id)
	for groupID, group := range s.groups {
		if group.TeamID == id {
			group.TeamID = 0
			s.groups[groupID] = group
		}
	}
	return nil
}

// ListSchedules lists all schedules ordered by id.
func (s *MemoryStore) ListSchedules(_ context.Context) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedules := make([]domain.Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		schedules = append(schedules, schedule)
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })
	return schedules, nil
}

// CreateSchedule stores one new schedule.
func (s *MemoryStore) CreateSchedule(_ context.Context, schedule domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule.ID == 0 {
		schedule.ID = s.allocID()
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

// UpdateSchedule rewrites one schedule row.
func (s *MemoryStore) UpdateSchedule(_ context.Context, schedule domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return ErrNotFound
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

// DeleteSchedule removes one schedule.
func (s *MemoryStore) DeleteSchedule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	return nil
}

// MatchingSchedules lists schedules active at one instant, enriched with
// group metadata, resolved people, and the bound pipeline id.
func (s *MemoryStore) MatchingSchedules(_ context.Context, at time.Time) ([]domain.OnCallSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := at.Unix()
	var out []domain.OnCallSchedule
	ids := make([]int64, 0, len(s.schedules))
	for id := range s.schedules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		schedule := s.schedules[id]
		if schedule.StartsAt > stamp || schedule.EndsAt < stamp {
			continue
		}
		out = append(out, AssembleOnCall(schedule, s.groups, s.users))
	}
	return out, nil
}

// ListScheduleGroups lists all schedule groups ordered by id.
func (s *MemoryStore) ListScheduleGroups(_ context.Context) ([]domain.ScheduleGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make([]domain.ScheduleGroup, 0, len(s.groups))
	for _, group := range s.groups {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// CreateScheduleGroup stores one new schedule group.
func (s *MemoryStore) CreateScheduleGroup(_ context.Context, group domain.ScheduleGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group.ID == 0 {
		group.ID = s.allocID()
	}
	s.groups[group.ID] = group
	return nil
}

// UpdateScheduleGroup rewrites one schedule group row.
func (s *MemoryStore) UpdateScheduleGroup(_ context.Context, group domain.ScheduleGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; !ok {
		return ErrNotFound
	}
	s.groups[group.ID] = group
	return nil
}

// DeleteScheduleGroup removes one group and clears dependent references.
func (s *MemoryStore) DeleteScheduleGroup(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	for scheduleID, schedule := range s.schedules {
		if schedule.GroupID == id {
			schedule.GroupID = 0
			s.schedules[scheduleID] = schedule
		}
	}
	for windowID, window := range s.windows {
		window.OncallGroups = removeID(window.OncallGroups, id)
		s.windows[windowID] = window
	}
	return nil
}

// ListMaintenances lists all maintenance windows ordered by id.
func (s *MemoryStore) ListMaintenances(_ context.Context) ([]domain.Maintenance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	windows := make([]domain.Maintenance, 0, len(s.windows))
	for _, window := range s.windows {
		windows = append(windows, window)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].ID < windows[j].ID })
	return windows, nil
}

// CreateMaintenance stores one new maintenance window.
func (s *MemoryStore) CreateMaintenance(_ context.Context, window domain.Maintenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if window.ID == 0 {
		window.ID = s.allocID()
	}
	s.windows[window.ID] = window
	return nil
}

// UpdateMaintenance rewrites one maintenance window row.
func (s *MemoryStore) UpdateMaintenance(_ context.Context, window domain.Maintenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[window.ID]; !ok {
		return ErrNotFound
	}
	s.windows[window.ID] = window
	return nil
}

// DeleteMaintenance removes one maintenance window.
func (s *MemoryStore) DeleteMaintenance(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, id)
	return nil
}

// MatchingMaintenance lists maintenance windows active at one instant.
func (s *MemoryStore) MatchingMaintenance(_ context.Context, at time.Time) ([]domain.Maintenance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := at.Unix()
	var out []domain.Maintenance
	ids := make([]int64, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		window := s.windows[id]
		if window.StartsAt <= stamp && window.EndsAt >= stamp {
			out = append(out, window)
		}
	}
	return out, nil
}

// ListPipelines lists all pipelines ordered by id.
func (s *MemoryStore) ListPipelines(_ context.Context) ([]domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pipelines := make([]domain.Pipeline, 0, len(s.pipelines))
	for _, pipeline := range s.pipelines {
		pipelines = append(pipelines, pipeline)
	}
	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].ID < pipelines[j].ID })
	return pipelines, nil
}

// GetPipeline loads one pipeline by id.
func (s *MemoryStore) GetPipeline(_ context.Context, id int64) (domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pipeline, ok := s.pipelines[id]
	if !ok {
		return domain.Pipeline{}, ErrNotFound
	}
	return pipeline, nil
}

// CreatePipeline stores one new pipeline.
func (s *MemoryStore) CreatePipeline(_ context.Context, pipeline domain.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pipeline.ID == 0 {
		pipeline.ID = s.allocID()
	}
	s.pipelines[pipeline.ID] = pipeline
	return nil
}

// UpdatePipeline rewrites one pipeline row.
func (s *MemoryStore) UpdatePipeline(_ context.Context, pipeline domain.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[pipeline.ID]; !ok {
		return ErrNotFound
	}
	s.pipelines[pipeline.ID] = pipeline
	return nil
}

// DeletePipeline removes one pipeline and clears group references to it.
func (s *MemoryStore) DeletePipeline(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pipelines, id)
	for groupID, group := range s.groups {
		if group.PipelineID == id {
			group.PipelineID = 0
			s.groups[groupID] = group
		}
	}
	return nil
}

// ListTemplates lists all templates ordered by id.
func (s *MemoryStore) ListTemplates(_ context.Context) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	templates := make([]domain.Template, 0, len(s.templates))
	for _, template := range s.templates {
		templates = append(templates, template)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// GetTemplate loads one template by id.
func (s *MemoryStore) GetTemplate(_ context.Context, id int64) (domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[id]
	if !ok {
		return domain.Template{}, ErrNotFound
	}
	return template, nil
}

// CreateTemplate stores one new template.
func (s *MemoryStore) CreateTemplate(_ context.Context, template domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if template.ID == 0 {
		template.ID = s.allocID()
	}
	s.templates[template.ID] = template
	return nil
}

// UpdateTemplate rewrites one template row.
func (s *MemoryStore) UpdateTemplate(_ context.Context, template domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[template.ID]; !ok {
		return ErrNotFound
	}
	s.templates[template.ID] = template
	return nil
}

// DeleteTemplate removes one template.
func (s *MemoryStore) DeleteTemplate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

// ListSearches lists saved searches ordered by id.
func (s *MemoryStore) ListSearches(_ context.Context) ([]domain.SearchFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	searches := make([]domain.SearchFilter, 0, len(s.searches))
	for _, search := range s.searches {
		searches = append(searches, search)
	}
	sort.Slice(searches, func(i, j int) bool { return searches[i].ID < searches[j].ID })
	return searches, nil
}

// CreateSearch stores one saved search.
func (s *MemoryStore) CreateSearch(_ context.Context, search domain.SearchFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if search.ID == 0 {
		search.ID = s.allocID()
	}
	s.searches[search.ID] = search
	return nil
}

// UpdateSearch rewrites one saved search row.
func (s *MemoryStore) UpdateSearch(_ context.Context, search domain.SearchFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.searches[search.ID]; !ok {
		return ErrNotFound
	}
	s.searches[search.ID] = search
	return nil
}

// DeleteSearch removes one saved search.
func (s *MemoryStore) DeleteSearch(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.searches, id)
	return nil
}
