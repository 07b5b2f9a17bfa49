package store

import (
	"context"
	"errors"
	"time"

	"alerthub/internal/domain"
)

// ErrNotFound indicates an absent row.
var ErrNotFound = errors.New("not found")

// AlertRangeQuery narrows one alert range listing.
// Params: epoch-second window, optional status/full-text filters, paging,
// and history mode (rows joined against the history table).
// Returns: query descriptor for Store.AlertsRange.
type AlertRangeQuery struct {
	From    int64
	To      int64
	Status  string
	Search  string
	Offset  int
	Limit   int
	History bool
}

// Store provides persistence for all AlertHub entities.
// Params: per-entity CRUD plus the matching/aggregate queries the core needs.
// Returns: backend persistence behavior; every method maps one logical
// operation onto one acquired connection.
type Store interface {
	// Alerts.
	GetAlert(ctx context.Context, fingerprint string) (domain.Alert, error)
	InsertAlert(ctx context.Context, alert domain.Alert) error
	UpdateAlert(ctx context.Context, alert domain.Alert) error
	SetAlertStatus(ctx context.Context, fingerprint, status string) error
	DeleteAlert(ctx context.Context, fingerprint string) error
	AppendHistory(ctx context.Context, event domain.HistoryEvent) error
	AlertHistory(ctx context.Context, fingerprint string, limit int) ([]domain.HistoryEvent, error)
	AlertsRange(ctx context.Context, query AlertRangeQuery) ([]domain.Alert, int64, error)
	StatusStats(ctx context.Context) ([]domain.StatusStat, error)
	SeverityStats(ctx context.Context) ([]domain.SeverityStat, error)
	NameStats(ctx context.Context) ([]domain.NameStat, error)

	// Users.
	GetUserByName(ctx context.Context, name string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	CreateUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, user domain.User, updatePassword bool) error
	DeleteUser(ctx context.Context, name string) error
	RemoveUserRefs(ctx context.Context, userID int64) error

	// Teams.
	ListTeams(ctx context.Context) ([]domain.Team, error)
	CreateTeam(ctx context.Context, team domain.Team) error
	UpdateTeam(ctx context.Context, team domain.Team) error
	DeleteTeam(ctx context.Context, id int64) error

	// Schedules.
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	CreateSchedule(ctx context.Context, schedule domain.Schedule) error
	UpdateSchedule(ctx context.Context, schedule domain.Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error
	MatchingSchedules(ctx context.Context, at time.Time) ([]domain.OnCallSchedule, error)

	// Schedule groups.
	ListScheduleGroups(ctx context.Context) ([]domain.ScheduleGroup, error)
	CreateScheduleGroup(ctx context.Context, group domain.ScheduleGroup) error
	UpdateScheduleGroup(ctx context.Context, group domain.ScheduleGroup) error
	DeleteScheduleGroup(ctx context.Context, id int64) error

	// Maintenance windows.
	ListMaintenances(ctx context.Context) ([]domain.Maintenance, error)
	CreateMaintenance(ctx context.Context, window domain.Maintenance) error
	UpdateMaintenance(ctx context.Context, window domain.Maintenance) error
	DeleteMaintenance(ctx context.Context, id int64) error
	MatchingMaintenance(ctx context.Context, at time.Time) ([]domain.Maintenance, error)

	// Pipelines.
	ListPipelines(ctx context.Context) ([]domain.Pipeline, error)
	GetPipeline(ctx context.Context, id int64) (domain.Pipeline, error)
	CreatePipeline(ctx context.Context, pipeline domain.Pipeline) error
	UpdatePipeline(ctx context.Context, pipeline domain.Pipeline) error
	DeletePipeline(ctx context.Context, id int64) error

	// Templates.
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	GetTemplate(ctx context.Context, id int64) (domain.Template, error)
	CreateTemplate(ctx context.Context, template domain.Template) error
	UpdateTemplate(ctx context.Context, template domain.Template) error
	DeleteTemplate(ctx context.Context, id int64) error

	// Saved searches.
	ListSearches(ctx context.Context) ([]domain.SearchFilter, error)
	CreateSearch(ctx context.Context, search domain.SearchFilter) error
	UpdateSearch(ctx context.Context, search domain.SearchFilter) error
	DeleteSearch(ctx context.Context, id int64) error

	Close() error
}
