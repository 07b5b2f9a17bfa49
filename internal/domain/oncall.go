package domain

import "time"

// NotifyChannel identifies one outbound notification transport.
// Params: closed enum value.
// Returns: channel selector for people and DSL builtins.
type NotifyChannel int

const (
	// ChannelNone disables notifications for a person.
	ChannelNone NotifyChannel = 0
	// ChannelEmail is reserved and not implemented.
	ChannelEmail NotifyChannel = 1
	// ChannelTelegram delivers through the Telegram Bot API.
	ChannelTelegram NotifyChannel = 2
	// ChannelNtfy delivers through an ntfy server topic.
	ChannelNtfy NotifyChannel = 3
	// ChannelApprise delivers through an Apprise API server.
	ChannelApprise NotifyChannel = 4
)

// String returns the channel name.
// Params: none.
// Returns: lower-case channel key.
func (c NotifyChannel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelTelegram:
		return "telegram"
	case ChannelNtfy:
		return "ntfy"
	case ChannelApprise:
		return "apprise"
	default:
		return "none"
	}
}

// NotifyChannelNames exposes the enum to DSL expressions.
// Params: none.
// Returns: attribute map for NotifyChannel.<NAME> access.
func NotifyChannelNames() map[string]any {
	return map[string]any{
		"NONE":     int(ChannelNone),
		"EMAIL":    int(ChannelEmail),
		"TELEGRAM": int(ChannelTelegram),
		"NTFY":     int(ChannelNtfy),
		"APPRISE":  int(ChannelApprise),
	}
}

// User is one operator account with notification targets.
// Params: credentials, role, per-channel targets, enabled channels.
// Returns: storage row and schedule people source.
type User struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string          `gorm:"uniqueIndex" json:"name"`
	Password   string          `json:"-"`
	Role       int             `json:"role"`
	Email      string          `json:"email"`
	Notifiers  []NotifyChannel `gorm:"serializer:json" json:"notifiers"`
	TelegramID string          `gorm:"column:telegram_id" json:"telegram_id"`
	Ntfy       string          `json:"ntfy"`
	Apprise    string          `json:"apprise"`
	Timezone   string          `json:"timezone"`
}

// TableName returns the users table name.
func (User) TableName() string {
	return "users"
}

// Person is one resolved on-call responder on a matched schedule.
// Params: identity, per-channel targets, enabled channels.
// Returns: notification fan-out target.
type Person struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	TelegramID string          `json:"telegram_id"`
	Ntfy       string          `json:"ntfy"`
	Apprise    string          `json:"apprise"`
	Notifiers  []NotifyChannel `json:"notifiers"`
}

// ContextMap converts the person for DSL expression access.
// Params: none.
// Returns: map copy of the person.
func (p Person) ContextMap() map[string]any {
	notifiers := make([]any, 0, len(p.Notifiers))
	for _, channel := range p.Notifiers {
		notifiers = append(notifiers, int(channel))
	}
	return map[string]any{
		"name":        p.Name,
		"email":       p.Email,
		"telegram_id": p.TelegramID,
		"ntfy":        p.Ntfy,
		"apprise":     p.Apprise,
		"notifiers":   notifiers,
	}
}

// Team groups user ids for schedule group binding.
type Team struct {
	ID      int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string  `json:"name"`
	Members []int64 `gorm:"serializer:json" json:"members"`
}

// TableName returns the teams table name.
func (Team) TableName() string {
	return "teams"
}

// Schedule is one on-call window with an ordered people list.
// Params: active range, optional daily mute window, member user ids.
// Returns: storage row matched by the schedule matcher.
type Schedule struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string  `json:"name"`
	GroupID    int64   `gorm:"column:group_id" json:"group_id"`
	StartsAt   int64   `gorm:"column:starts_at" json:"starts_at"`
	EndsAt     int64   `gorm:"column:ends_at" json:"ends_at"`
	MuteStarts string  `gorm:"column:mute_starts" json:"mute_starts"`
	MuteEnds   string  `gorm:"column:mute_ends" json:"mute_ends"`
	People     []int64 `gorm:"serializer:json" json:"people"`
}

// TableName returns the schedules table name.
func (Schedule) TableName() string {
	return "schedules"
}

// ScheduleGroup binds schedules to one pipeline and one team.
type ScheduleGroup struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string `json:"name"`
	PipelineID int64  `gorm:"column:pipeline_id" json:"pipeline_id"`
	TeamID     int64  `gorm:"column:team_id" json:"team_id"`
}

// TableName returns the schedule groups table name.
func (ScheduleGroup) TableName() string {
	return "schedule_groups"
}

// OnCallSchedule is one matched schedule enriched with resolved people
// and the bound pipeline id.
// Params: schedule row fields, group metadata, people rows.
// Returns: matcher output consumed by the dispatch pipeline.
type OnCallSchedule struct {
	ID         int64
	Name       string
	Group      string
	GroupID    int64
	StartsAt   int64
	EndsAt     int64
	MuteStarts string
	MuteEnds   string
	People     []Person
	PipelineID int64
}

// ContextMap converts the matched schedule for DSL expression access.
// Params: location for timestamp formatting.
// Returns: map copy mirroring the matcher result shape.
func (s OnCallSchedule) ContextMap(loc *time.Location) map[string]any {
	people := make([]any, 0, len(s.People))
	for _, person := range s.People {
		people = append(people, person.ContextMap())
	}
	return map[string]any{
		"name":        s.Name,
		"group":       s.Group,
		"group_id":    s.GroupID,
		"starts_at":   time.Unix(s.StartsAt, 0).In(loc).Format(time.RFC3339),
		"ends_at":     time.Unix(s.EndsAt, 0).In(loc).Format(time.RFC3339),
		"mute_starts": s.MuteStarts,
		"mute_ends":   s.MuteEnds,
		"people":      people,
		"pipeline_id": s.PipelineID,
	}
}

// Maintenance is one suppression window with its filter expression.
// Params: filter source text, applicable group ids, active range.
// Returns: storage row consumed read-only by the matcher.
type Maintenance struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Filter       string  `json:"filter"`
	OncallGroups []int64 `gorm:"column:oncall_groups;serializer:json" json:"oncall_groups"`
	StartsAt     int64   `gorm:"column:starts_at" json:"starts_at"`
	EndsAt       int64   `gorm:"column:ends_at" json:"ends_at"`
}

// TableName returns the maintenance table name.
func (Maintenance) TableName() string {
	return "maintenance"
}

// AppliesToGroup reports whether the window covers one on-call group.
// Params: group id from the matched schedule.
// Returns: true when oncall_groups is empty or contains the id.
func (m Maintenance) AppliesToGroup(groupID int64) bool {
	if len(m.OncallGroups) == 0 {
		return true
	}
	for _, id := range m.OncallGroups {
		if id == groupID {
			return true
		}
	}
	return false
}

// ContextMap converts the window for DSL expression access.
// Params: location for timestamp formatting.
// Returns: map copy mirroring the matcher result shape.
func (m Maintenance) ContextMap(loc *time.Location) map[string]any {
	groups := make([]any, 0, len(m.OncallGroups))
	for _, id := range m.OncallGroups {
		groups = append(groups, id)
	}
	return map[string]any{
		"name":          m.Name,
		"description":   m.Description,
		"filter":        m.Filter,
		"oncall_groups": groups,
		"starts_at":     time.Unix(m.StartsAt, 0).In(loc).Format(time.RFC3339),
		"ends_at":       time.Unix(m.EndsAt, 0).In(loc).Format(time.RFC3339),
	}
}

// Pipeline is one stored YAML DSL script.
type Pipeline struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	YAMLContent string `gorm:"column:yaml_content" json:"yaml_content"`
}

// TableName returns the pipelines table name.
func (Pipeline) TableName() string {
	return "pipelines"
}

// Template is one stored message template.
type Template struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Template    string `json:"template"`
}

// TableName returns the templates table name.
func (Template) TableName() string {
	return "templates"
}

// SearchFilter is one saved alert search query.
type SearchFilter struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Shared int    `json:"shared"`
	UserID string `gorm:"column:user_id" json:"user_id"`
	Name   string `json:"name"`
	Query  string `json:"query"`
}

// TableName returns the saved searches table name.
func (SearchFilter) TableName() string {
	return "search_filters"
}

// StatusStat is one status aggregate row.
type StatusStat struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

// SeverityStat is one severity aggregate row.
type SeverityStat struct {
	Severity string `json:"severity"`
	Total    int64  `json:"total"`
}

// NameStat is one alertname/severity aggregate row.
type NameStat struct {
	Name     string `gorm:"column:alertname" json:"name"`
	Severity string `json:"severity"`
	Total    int64  `json:"total"`
}

// FormatHumanTime renders epoch seconds in the notification timestamp form.
// Params: epoch seconds and target location.
// Returns: "02 Jan 2006 15:04:05 (+00:00)" style string.
func FormatHumanTime(seconds int64, loc *time.Location) string {
	stamp := time.Unix(seconds, 0).In(loc)
	offset := stamp.Format("-0700")
	return stamp.Format("02 Jan 2006 15:04:05") + " (" + offset[:3] + ":" + offset[3:] + ")"
}
