package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alerthub/internal/domain"
)

const (
	maxOpenConns       = 50
	maxIdleConns       = 5
	defaultRangeDays   = 30
	defaultRangeLimit  = 10000
	defaultListLimit   = 500
	defaultSearchLimit = 200
)

// PostgresStore persists AlertHub entities in Postgres through gorm.
// Params: opened gorm handle over a bounded connection pool.
// Returns: Store implementation.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to Postgres and migrates the schema.
// Params: connection DSN.
// Returns: ready store or connection/migration error.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)

	if err := db.AutoMigrate(
		&domain.Alert{},
		&domain.HistoryEvent{},
		&domain.User{},
		&domain.Team{},
		&domain.Schedule{},
		&domain.ScheduleGroup{},
		&domain.Maintenance{},
		&domain.Pipeline{},
		&domain.Template{},
		&domain.SearchFilter{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAlert loads one alert by fingerprint.
// Params: context and fingerprint.
// Returns: alert row, ErrNotFound, or query error.
func (s *PostgresStore) GetAlert(ctx context.Context, fingerprint string) (domain.Alert, error) {
	var alert domain.Alert
	err := s.db.WithContext(ctx).Where("alert_id = ?", fingerprint).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Alert{}, ErrNotFound
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// InsertAlert stores one new alert row.
func (s *PostgresStore) InsertAlert(ctx context.Context, alert domain.Alert) error {
	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// UpdateAlert rewrites one alert row keyed by fingerprint.
func (s *PostgresStore) UpdateAlert(ctx context.Context, alert domain.Alert) error {
	err := s.db.WithContext(ctx).Model(&domain.Alert{}).
		Where("alert_id = ?", alert.Fingerprint).
		Updates(map[string]any{
			"status":      alert.Status,
			"updatedat":   alert.UpdatedAt,
			"endsat":      alert.EndsAt,
			"startsat":    alert.StartsAt,
			"alert_count": alert.AlertCount,
		}).Error
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return nil
}

// SetAlertStatus overrides one alert status without touching counters.
func (s *PostgresStore) SetAlertStatus(ctx context.Context, fingerprint, status string) error {
	err := s.db.WithContext(ctx).Model(&domain.Alert{}).
		Where("alert_id = ?", fingerprint).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set alert status: %w", err)
	}
	return nil
}

// DeleteAlert removes one alert and purges its history.
func (s *PostgresStore) DeleteAlert(ctx context.Context, fingerprint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alert_id = ?", fingerprint).Delete(&domain.Alert{}).Error; err != nil {
			return fmt.Errorf("delete alert: %w", err)
		}
		if err := tx.Where("alert_id = ?", fingerprint).Delete(&domain.HistoryEvent{}).Error; err != nil {
			return fmt.Errorf("delete alert history: %w", err)
		}
		return nil
	})
}

// AppendHistory stores one append-only history event.
func (s *PostgresStore) AppendHistory(ctx context.Context, event domain.HistoryEvent) error {
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// AlertHistory lists history events for one alert, most recent first.
func (s *PostgresStore) AlertHistory(ctx context.Context, fingerprint string, limit int) ([]domain.HistoryEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []domain.HistoryEvent
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", fingerprint).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("alert history: %w", err)
	}
	return events, nil
}

// AlertsRange lists alerts inside a time window with optional filters.
// Params: query descriptor; a zero window defaults to the last 30 days.
// Returns: matching rows, total count before paging, or query error.
func (s *PostgresStore) AlertsRange(ctx context.Context, query AlertRangeQuery) ([]domain.Alert, int64, error) {
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

	if query.History {
		return s.historyRange(ctx, from, to, query, limit)
	}

	base := s.db.WithContext(ctx).Model(&domain.Alert{}).
		Where("startsat >= ? AND startsat <= ?", from, to)
	if query.Status != "" {
		base = base.Where("status = ?", query.Status)
	}
	if query.Search != "" {
		base = applySearch(base, query.Search)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("alerts range count: %w", err)
	}

	var alerts []domain.Alert
	err := base.Order("startsat DESC").Limit(limit).Offset(query.Offset).Find(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("alerts range: %w", err)
	}
	return alerts, total, nil
}

// historyRange lists alert rows joined against history events, with the
// history status and event timestamp substituted in.
func (s *PostgresStore) historyRange(ctx context.Context, from, to int64, query AlertRangeQuery, limit int) ([]domain.Alert, int64, error) {
	base := s.db.WithContext(ctx).Table("alerts_history AS ah").
		Joins("JOIN alerts AS a ON a.alert_id = ah.alert_id").
		Where("ah.event_timestamp >= ? AND ah.event_timestamp <= ?", from, to)
	if query.Status != "" {
		base = base.Where("ah.status = ?", query.Status)
	}
	if query.Search != "" {
		base = base.Where(
			"a.alertname ILIKE @q OR a.alert_id ILIKE @q OR a.instance ILIKE @q OR a.job ILIKE @q",
			map[string]any{"q": "%" + query.Search + "%"},
		)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("history range count: %w", err)
	}

	var alerts []domain.Alert
	err := base.
		Select("a.id, a.alert_id, a.alertname, a.severity, a.instance, a.job, " +
			"ah.status AS status, a.annotations, a.labels, a.generatorurl, " +
			"a.updatedat, a.endsat, ah.event_timestamp AS startsat, a.alert_count").
		Order("ah.event_timestamp DESC").
		Limit(limit).Offset(query.Offset).
		Scan(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("history range: %w", err)
	}
	return alerts, total, nil
}

// applySearch narrows an alert query with a case-insensitive text match.
func applySearch(tx *gorm.DB, term string) *gorm.DB {
	pattern := "%" + term + "%"
	return tx.Where(
		"alertname ILIKE ? OR alert_id ILIKE ? OR instance ILIKE ? OR job ILIKE ? OR status ILIKE ?",
		pattern, pattern, pattern, pattern, pattern,
	)
}

// StatusStats aggregates alert totals per status.
func (s *PostgresStore) StatusStats(ctx context.Context) ([]domain.StatusStat, error) {
	var stats []domain.StatusStat
	err := s.db.WithContext(ctx).Model(&domain.Alert{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("status stats: %w", err)
	}
	return stats, nil
}

// SeverityStats aggregates alert totals per severity.
func (s *PostgresStore) SeverityStats(ctx context.Context) ([]domain.SeverityStat, error) {
	var stats []domain.SeverityStat
	err := s.db.WithContext(ctx).Model(&domain.Alert{}).
		Select("severity, COUNT(*) AS total").
		Group("severity").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("severity stats: %w", err)
	}
	return stats, nil
}

// NameStats aggregates alert totals per alertname and severity.
func (s *PostgresStore) NameStats(ctx context.Context) ([]domain.NameStat, error) {
	var stats []domain.NameStat
	err := s.db.WithContext(ctx).Model(&domain.Alert{}).
		Select("alertname, severity, COUNT(*) AS total").
		Group("alertname, severity").
		Order("total DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("name stats: %w", err)
	}
	return stats, nil
}

// GetUserByName loads one user by name or email.
func (s *PostgresStore) GetUserByName(ctx context.Context, name string) (domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("name = ? OR email = ?", name, name).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListUsers lists all users ordered by id.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := s.db.WithContext(ctx).Order("id ASC").Limit(defaultListLimit).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CreateUser stores one new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user domain.User) error {
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateUser rewrites one user row keyed by name.
// Params: user fields and whether the password column is replaced.
// Returns: update error.
func (s *PostgresStore) UpdateUser(ctx context.Context, user domain.User, updatePassword bool) error {
	fields := []string{"role", "email", "notifiers", "telegram_id", "ntfy", "apprise", "timezone"}
	if updatePassword {
		fields = append(fields, "password")
	}
	err := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("name = ?", user.Name).
		Select(fields).
		Updates(&user).Error
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// DeleteUser removes one user by name.
func (s *PostgresStore) DeleteUser(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Where("name = ?", name).Delete(&domain.User{}).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// RemoveUserRefs removes a user id from team members and schedule people.
// Params: removed user id.
// Returns: cleanup error.
func (s *PostgresStore) RemoveUserRefs(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var teams []domain.Team
		if err := tx.Find(&teams).Error; err != nil {
			return fmt.Errorf("load teams: %w", err)
		}
		for _, team := range teams {
			pruned := removeID(team.Members, userID)
			if len(pruned) == len(team.Members) {
				continue
			}
			if err := tx.Model(&domain.Team{}).Where("id = ?", team.ID).
				Select("members").
				Updates(&domain.Team{Members: pruned}).Error; err != nil {
				return fmt.Errorf("prune team members: %w", err)
			}
		}

		var schedules []domain.Schedule
		if err := tx.Find(&schedules).Error; err != nil {
			return fmt.Errorf("load schedules: %w", err)
		}
		for _, schedule := range schedules {
			pruned := removeID(schedule.People, userID)
			if len(pruned) == len(schedule.People) {
				continue
			}
			if err := tx.Model(&domain.Schedule{}).Where("id = ?", schedule.ID).
				Select("people").
				Updates(&domain.Schedule{People: pruned}).Error; err != nil {
				return fmt.Errorf("prune schedule people: %w", err)
			}
		}
		return nil
	})
}

// ListTeams lists all teams ordered by id.
func (s *PostgresStore) ListTeams(ctx context.Context) ([]domain.Team, error) {
	var teams []domain.Team
	err := s.db.WithContext(ctx).Order("id ASC").Limit(defaultListLimit).Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// CreateTeam stores one new team.
func (s *PostgresStore) CreateTeam(ctx context.Context, team domain.Team) error {
	if err := s.db.WithContext(ctx).Create(&team).Error; err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// UpdateTeam rewrites one team and prunes schedule people that left it.
// Params: team row with the new member list.
// Returns: update error.
func (s *PostgresStore) UpdateTeam(ctx context.Context, team domain.Team) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&domain.Team{}).Where("id = ?", team.ID).
			Select("name", "members").
			Updates(&team).Error
		if err != nil {
			return fmt.Errorf("update team: %w", err)
		}

		// Schedules under groups bound to this team may only contain members.
		var groups []domain.ScheduleGroup
		if err := tx.Where("team_id = ?", team.ID).Find(&groups).Error; err != nil {
			return fmt.Errorf("load team groups: %w", err)
		}
		allowed := make(map[int64]bool, len(team.Members))
		for _, id := range team.Members {
			allowed[id] = true
		}
		for _, group := range groups {
			var schedules []domain.Schedule
			if err := tx.Where("group_id = ?", group.ID).Find(&schedules).Error; err != nil {
				return fmt.Errorf("load group schedules: %w", err)
			}
			for _, schedule := range schedules {
				kept := make([]int64, 0, len(schedule.People))
				for _, id := range schedule.People {
					if allowed[id] {
						kept = append(kept, id)
					}
				}
				if len(kept) == len(schedule.People) {
					continue
				}
				if err := tx.Model(&domain.Schedule{}).Where("id = ?", schedule.ID).
					Select("people").
					Updates(&domain.Schedule{People: kept}).Error; err != nil {
					return fmt.Errorf("prune schedule people: %w", err)
				}
			}
		}
		return nil
	})
}

// DeleteTeam removes one team and clears dependent group references.
func (s *PostgresStore) DeleteTeam(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&domain.Team{}).Error; err != nil {
			return fmt.Errorf("delete team: %w", err)
		}
		err := tx.Model(&domain.ScheduleGroup{}).Where("team_id = ?", id).
			Update("team_id", 0).Error
		if err != nil {
			return fmt.Errorf("clear team refs: %w", err)
		}
		return nil
	})
}

// ListSchedules lists all schedules ordered by id.
func (s *PostgresStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	err := s.db.WithContext(ctx).Order("id ASC").Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// CreateSchedule stores one new schedule.
func (s *PostgresStore) CreateSchedule(ctx context.Context, schedule domain.Schedule) error {
	if err := s.db.WithContext(ctx).Create(&schedule).Error; err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// UpdateSchedule rewrites one schedule row.
func (s *PostgresStore) UpdateSchedule(ctx context.Context, schedule domain.Schedule) error {
	err := s.db.WithContext(ctx).Model(&domain.Schedule{}).
		Where("id = ?", schedule.ID).
		Select("name", "group_id", "starts_at", "ends_at", "mute_starts", "mute_ends", "people").
		Updates(&schedule).Error
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes one schedule.
func (s *PostgresStore) DeleteSchedule(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Schedule{}).Error; err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// MatchingSchedules lists schedules active at one instant, enriched with
// group metadata, resolved people, and the bound pipeline id.
// Params: context and probe instant.
// Returns: enriched schedules or query error.
func (s *PostgresStore) MatchingSchedules(ctx context.Context, at time.Time) ([]domain.OnCallSchedule, error) {
	stamp := at.Unix()
	var schedules []domain.Schedule
	err := s.db.WithContext(ctx).
		Where("starts_at <= ? AND ends_at >= ?", stamp, stamp).
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("matching schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil, nil
	}

	var groups []domain.ScheduleGroup
	if err := s.db.WithContext(ctx).Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("load schedule groups: %w", err)
	}
	groupByID := make(map[int64]domain.ScheduleGroup, len(groups))
	for _, group := range groups {
		groupByID[group.ID] = group
	}

	var users []domain.User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	userByID := make(map[int64]domain.User, len(users))
	for _, user := range users {
		userByID[user.ID] = user
	}

	out := make([]domain.OnCallSchedule, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, AssembleOnCall(schedule, groupByID, userByID))
	}
	return out, nil
}

// AssembleOnCall builds one enriched matcher result row.
// Params: schedule row, group index, user index.
// Returns: schedule with resolved people and pipeline binding.
func AssembleOnCall(schedule domain.Schedule, groups map[int64]domain.ScheduleGroup, users map[int64]domain.User) domain.OnCallSchedule {
	enriched := domain.OnCallSchedule{
		ID:         schedule.ID,
		Name:       schedule.Name,
		GroupID:    schedule.GroupID,
		StartsAt:   schedule.StartsAt,
		EndsAt:     schedule.EndsAt,
		MuteStarts: schedule.MuteStarts,
		MuteEnds:   schedule.MuteEnds,
	}
	if group, ok := groups[schedule.GroupID]; ok {
		enriched.Group = group.Name
		enriched.PipelineID = group.PipelineID
	}
	for _, id := range schedule.People {
		user, ok := users[id]
		if !ok {
			continue
		}
		enriched.People = append(enriched.People, domain.Person{
			Name:       user.Name,
			Email:      user.Email,
			TelegramID: user.TelegramID,
			Ntfy:       user.Ntfy,
			Apprise:    user.Apprise,
			Notifiers:  user.Notifiers,
		})
	}
	return enriched
}

// ListScheduleGroups lists all schedule groups ordered by id.
func (s *PostgresStore) ListScheduleGroups(ctx context.Context) ([]domain.ScheduleGroup, error) {
	var groups []domain.ScheduleGroup
	err := s.db.WithContext(ctx).Order("id ASC").Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list schedule groups: %w", err)
	}
	return groups, nil
}

// CreateScheduleGroup stores one new schedule group.
func (s *PostgresStore) CreateScheduleGroup(ctx context.Context, group domain.ScheduleGroup) error {
	if err := s.db.WithContext(ctx).Create(&group).Error; err != nil {
		return fmt.Errorf("create schedule group: %w", err)
	}
	return nil
}

// UpdateScheduleGroup rewrites one schedule group row.
func (s *PostgresStore) UpdateScheduleGroup(ctx context.Context, group domain.ScheduleGroup) error {
	err := s.db.WithContext(ctx).Model(&domain.ScheduleGroup{}).
		Where("id = ?", group.ID).
		Updates(map[string]any{
			"name":        group.Name,
			"pipeline_id": group.PipelineID,
			"team_id":     group.TeamID,
		}).Error
	if err != nil {
		return fmt.Errorf("update schedule group: %w", err)
	}
	return nil
}

// DeleteScheduleGroup removes one group and clears dependent references.
// Params: group id.
// Returns: delete error; schedules lose the group binding and maintenance
// windows lose the group id rather than being deleted.
func (s *PostgresStore) DeleteScheduleGroup(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var windows []domain.Maintenance
		if err := tx.Find(&windows).Error; err != nil {
			return fmt.Errorf("load maintenance: %w", err)
		}
		for _, window := range windows {
			pruned := removeID(window.OncallGroups, id)
			if len(pruned) == len(window.OncallGroups) {
				continue
			}
			if err := tx.Model(&domain.Maintenance{}).Where("id = ?", window.ID).
				Select("oncall_groups").
				Updates(&domain.Maintenance{OncallGroups: pruned}).Error; err != nil {
				return fmt.Errorf("prune maintenance groups: %w", err)
			}
		}
		if err := tx.Where("id = ?", id).Delete(&domain.ScheduleGroup{}).Error; err != nil {
			return fmt.Errorf("delete schedule group: %w", err)
		}
		err := tx.Model(&domain.Schedule{}).Where("group_id = ?", id).
			Update("group_id", 0).Error
		if err != nil {
			return fmt.Errorf("clear group refs: %w", err)
		}
		return nil
	})
}

// ListMaintenances lists all maintenance windows ordered by id.
func (s *PostgresStore) ListMaintenances(ctx context.Context) ([]domain.Maintenance, error) {
	var windows []domain.Maintenance
	err := s.db.WithContext(ctx).Order("id ASC").Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	return windows, nil
}

// CreateMaintenance stores one new maintenance window.
func (s *PostgresStore) CreateMaintenance(ctx context.Context, window domain.Maintenance) error {
	if err := s.db.WithContext(ctx).Create(&window).Error; err != nil {
		return fmt.Errorf("create maintenance: %w", err)
	}
	return nil
}

// UpdateMaintenance rewrites one maintenance window row.
func (s *PostgresStore) UpdateMaintenance(ctx context.Context, window domain.Maintenance) error {
	err := s.db.WithContext(ctx).Model(&domain.Maintenance{}).
		Where("id = ?", window.ID).
		Select("name", "description", "filter", "oncall_groups", "starts_at", "ends_at").
		Updates(&window).Error
	if err != nil {
		return fmt.Errorf("update maintenance: %w", err)
	}
	return nil
}

// DeleteMaintenance removes one maintenance window.
func (s *PostgresStore) DeleteMaintenance(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Maintenance{}).Error; err != nil {
		return fmt.Errorf("delete maintenance: %w", err)
	}
	return nil
}

// MatchingMaintenance lists maintenance windows active at one instant.
func (s *PostgresStore) MatchingMaintenance(ctx context.Context, at time.Time) ([]domain.Maintenance, error) {
	stamp := at.Unix()
	var windows []domain.Maintenance
	err := s.db.WithContext(ctx).
		Where("starts_at <= ? AND ends_at >= ?", stamp, stamp).
		Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("matching maintenance: %w", err)
	}
	return windows, nil
}

// ListPipelines lists all pipelines ordered by id.
func (s *PostgresStore) ListPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	var pipelines []domain.Pipeline
	err := s.db.WithContext(ctx).Order("id ASC").Find(&pipelines).Error
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	return pipelines, nil
}

// GetPipeline loads one pipeline by id.
func (s *PostgresStore) GetPipeline(ctx context.Context, id int64) (domain.Pipeline, error) {
	var pipeline domain.Pipeline
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&pipeline).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Pipeline{}, ErrNotFound
	}
	if err != nil {
		return domain.Pipeline{}, fmt.Errorf("get pipeline: %w", err)
	}
	return pipeline, nil
}

// CreatePipeline stores one new pipeline.
func (s *PostgresStore) CreatePipeline(ctx context.Context, pipeline domain.Pipeline) error {
	if err := s.db.WithContext(ctx).Create(&pipeline).Error; err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

// UpdatePipeline rewrites one pipeline row.
func (s *PostgresStore) UpdatePipeline(ctx context.Context, pipeline domain.Pipeline) error {
	err := s.db.WithContext(ctx).Model(&domain.Pipeline{}).
		Where("id = ?", pipeline.ID).
		Updates(map[string]any{
			"name":         pipeline.Name,
			"description":  pipeline.Description,
			"yaml_content": pipeline.YAMLContent,
		}).Error
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	return nil
}

// DeletePipeline removes one pipeline and clears group references to it.
func (s *PostgresStore) DeletePipeline(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&domain.Pipeline{}).Error; err != nil {
			return fmt.Errorf("delete pipeline: %w", err)
		}
		err := tx.Model(&domain.ScheduleGroup{}).Where("pipeline_id = ?", id).
			Update("pipeline_id", 0).Error
		if err != nil {
			return fmt.Errorf("clear pipeline refs: %w", err)
		}
		return nil
	})
}

// ListTemplates lists all templates ordered by id.
func (s *PostgresStore) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	var templates []domain.Template
	err := s.db.WithContext(ctx).Order("id ASC").Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// GetTemplate loads one template by id.
func (s *PostgresStore) GetTemplate(ctx context.Context, id int64) (domain.Template, error) {
	var template domain.Template
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Template{}, ErrNotFound
	}
	if err != nil {
		return domain.Template{}, fmt.Errorf("get template: %w", err)
	}
	return template, nil
}

// CreateTemplate stores one new template.
func (s *PostgresStore) CreateTemplate(ctx context.Context, template domain.Template) error {
	if err := s.db.WithContext(ctx).Create(&template).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// UpdateTemplate rewrites one template row.
func (s *PostgresStore) UpdateTemplate(ctx context.Context, template domain.Template) error {
	err := s.db.WithContext(ctx).Model(&domain.Template{}).
		Where("id = ?", template.ID).
		Updates(map[string]any{
			"name":        template.Name,
			"description": template.Description,
			"template":    template.Template,
		}).Error
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// DeleteTemplate removes one template.
func (s *PostgresStore) DeleteTemplate(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Template{}).Error; err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// ListSearches lists saved searches ordered by id.
func (s *PostgresStore) ListSearches(ctx context.Context) ([]domain.SearchFilter, error) {
	var searches []domain.SearchFilter
	err := s.db.WithContext(ctx).Order("id ASC").Limit(defaultSearchLimit).Find(&searches).Error
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	return searches, nil
}

// CreateSearch stores one saved search.
func (s *PostgresStore) CreateSearch(ctx context.Context, search domain.SearchFilter) error {
	if err := s.db.WithContext(ctx).Create(&search).Error; err != nil {
		return fmt.Errorf("create search: %w", err)
	}
	return nil
}

// UpdateSearch rewrites one saved search row.
func (s *PostgresStore) UpdateSearch(ctx context.Context, search domain.SearchFilter) error {
	err := s.db.WithContext(ctx).Model(&domain.SearchFilter{}).
		Where("id = ?", search.ID).
		Updates(map[string]any{
			"shared":  search.Shared,
			"user_id": search.UserID,
			"name":    search.Name,
			"query":   search.Query,
		}).Error
	if err != nil {
		return fmt.Errorf("update search: %w", err)
	}
	return nil
}

// DeleteSearch removes one saved search.
func (s *PostgresStore) DeleteSearch(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.SearchFilter{}).Error; err != nil {
		return fmt.Errorf("delete search: %w", err)
	}
	return nil
}

// removeID filters one id out of a list.
// Params: source list and removed id.
// Returns: filtered copy.
func removeID(ids []int64, removed int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != removed {
			out = append(out, id)
		}
	}
	return out
}
