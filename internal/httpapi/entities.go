package httpapi

import (
	"net/http"

	"alerthub/internal/domain"
)

// Users

// GetUsers lists all accounts without password material.
func (s *Server) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type userRequest struct {
	ID             int64                  `json:"id"`
	Name           string                 `json:"name"`
	Password       string                 `json:"password"`
	Email          string                 `json:"email"`
	Notifiers      []domain.NotifyChannel `json:"notifiers"`
	TelegramID     string                 `json:"telegram_id"`
	Ntfy           string                 `json:"ntfy"`
	Apprise        string                 `json:"apprise"`
	Timezone       string                 `json:"timezone"`
	Role           int                    `json:"role"`
	PasswordUpdate *int                   `json:"password_update"`
}

func (u userRequest) user() domain.User {
	return domain.User{
		ID:         u.ID,
		Name:       u.Name,
		Password:   HashPassword(u.Password),
		Role:       u.Role,
		Email:      u.Email,
		Notifiers:  u.Notifiers,
		TelegramID: u.TelegramID,
		Ntfy:       u.Ntfy,
		Apprise:    u.Apprise,
		Timezone:   u.Timezone,
	}
}

// AddUser creates an account. Admin only.
func (s *Server) AddUser(w http.ResponseWriter, r *http.Request) {
	if requestClaims(r).Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	var body userRequest
	if err := readJSON(r, &body); err != nil || body.Name == "" || body.Password == "" {
		writeMissingFields(w, []string{"name", "password"})
		return
	}
	if _, err := s.store.GetUserByName(r.Context(), body.Name); err == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "User already exists"})
		return
	}
	if err := s.store.CreateUser(r.Context(), body.user()); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// UpdateUser rewrites an account. A user may update themselves; only an
// admin may update others. password_update=0 keeps the stored password.
func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name"})
		return
	}
	claims := requestClaims(r)
	if claims.Subject != body.Name && claims.Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	existing, err := s.store.GetUserByName(r.Context(), body.Name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "No such user"})
		return
	}
	updatePassword := body.PasswordUpdate == nil || *body.PasswordUpdate != 0
	user := body.user()
	user.ID = existing.ID
	if err := s.store.UpdateUser(r.Context(), user, updatePassword); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// DeleteUser removes an account and prunes its references from teams
// and schedules. Admin only.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if requestClaims(r).Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "name missing"})
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteUser(r.Context(), name); err != nil {
		writeDBError(w)
		return
	}
	if err := s.store.RemoveUserRefs(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Teams

func (s *Server) GetTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.ListTeams(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if teams == nil {
		teams = []domain.Team{}
	}
	writeJSON(w, http.StatusOK, teams)
}

// AddTeam creates a team. Admin only.
func (s *Server) AddTeam(w http.ResponseWriter, r *http.Request) {
	if requestClaims(r).Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	var body domain.Team
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name", "members"})
		return
	}
	if err := s.store.CreateTeam(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// UpdateTeam rewrites a team; schedules of groups bound to the team are
// pruned to the new member list. Admin only.
func (s *Server) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	if requestClaims(r).Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	var body domain.Team
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" {
		writeMissingFields(w, []string{"id", "name", "members"})
		return
	}
	if err := s.store.UpdateTeam(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// DeleteTeam removes a team and unbinds its schedule groups. Admin only.
func (s *Server) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	if requestClaims(r).Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteTeam(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Schedules

type scheduleRequest struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	GroupID    int64   `json:"group_id"`
	StartsAt   string  `json:"starts_at"`
	EndsAt     string  `json:"ends_at"`
	MuteStarts string  `json:"mute_starts"`
	MuteEnds   string  `json:"mute_ends"`
	People     []int64 `json:"people"`
}

func (s scheduleRequest) schedule() (domain.Schedule, error) {
	startsAt, err := parseISOTime(s.StartsAt)
	if err != nil {
		return domain.Schedule{}, err
	}
	endsAt, err := parseISOTime(s.EndsAt)
	if err != nil {
		return domain.Schedule{}, err
	}
	return domain.Schedule{
		ID:         s.ID,
		Name:       s.Name,
		GroupID:    s.GroupID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		MuteStarts: s.MuteStarts,
		MuteEnds:   s.MuteEnds,
		People:     s.People,
	}, nil
}

func (s *Server) GetSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	views := make([]map[string]any, 0, len(schedules))
	for _, schedule := range schedules {
		views = append(views, map[string]any{
			"id":          schedule.ID,
			"name":        schedule.Name,
			"group_id":    schedule.GroupID,
			"starts_at":   s.isoTime(schedule.StartsAt),
			"ends_at":     s.isoTime(schedule.EndsAt),
			"mute_starts": schedule.MuteStarts,
			"mute_ends":   schedule.MuteEnds,
			"people":      schedule.People,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) AddSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name", "group_id", "starts_at", "ends_at", "people", "mute_starts", "mute_ends"})
		return
	}
	schedule, err := body.schedule()
	if err != nil {
		writeMissingFields(w, []string{"starts_at", "ends_at"})
		return
	}
	if err := s.store.CreateSchedule(r.Context(), schedule); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" {
		writeMissingFields(w, []string{"id", "name", "group_id", "starts_at", "ends_at", "people", "mute_starts", "mute_ends"})
		return
	}
	schedule, err := body.schedule()
	if err != nil {
		writeMissingFields(w, []string{"starts_at", "ends_at"})
		return
	}
	if err := s.store.UpdateSchedule(r.Context(), schedule); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteSchedule(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Schedule groups

func (s *Server) GetScheduleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListScheduleGroups(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if groups == nil {
		groups = []domain.ScheduleGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) AddScheduleGroup(w http.ResponseWriter, r *http.Request) {
	var body domain.ScheduleGroup
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name", "pipeline_id", "team_id"})
		return
	}
	if err := s.store.CreateScheduleGroup(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) UpdateScheduleGroup(w http.ResponseWriter, r *http.Request) {
	var body domain.ScheduleGroup
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" {
		writeMissingFields(w, []string{"id", "name", "pipeline_id", "team_id"})
		return
	}
	if err := s.store.UpdateScheduleGroup(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// DeleteScheduleGroup removes a group, unbinds its schedules, and drops
// the group id from maintenance window targets.
func (s *Server) DeleteScheduleGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteScheduleGroup(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Maintenance windows

type maintenanceRequest struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Filter       string  `json:"filter"`
	OncallGroups []int64 `json:"oncall_groups"`
	StartsAt     string  `json:"starts_at"`
	EndsAt       string  `json:"ends_at"`
}

func (m maintenanceRequest) window() (domain.Maintenance, error) {
	startsAt, err := parseISOTime(m.StartsAt)
	if err != nil {
		return domain.Maintenance{}, err
	}
	endsAt, err := parseISOTime(m.EndsAt)
	if err != nil {
		return domain.Maintenance{}, err
	}
	return domain.Maintenance{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Filter:       m.Filter,
		OncallGroups: m.OncallGroups,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
	}, nil
}

func (s *Server) GetMaintenances(w http.ResponseWriter, r *http.Request) {
	windows, err := s.store.ListMaintenances(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	views := make([]map[string]any, 0, len(windows))
	for _, window := range windows {
		views = append(views, map[string]any{
			"id":            window.ID,
			"name":          window.Name,
			"description":   window.Description,
			"filter":        window.Filter,
			"oncall_groups": window.OncallGroups,
			"starts_at":     s.isoTime(window.StartsAt),
			"ends_at":       s.isoTime(window.EndsAt),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) AddMaintenance(w http.ResponseWriter, r *http.Request) {
	var body maintenanceRequest
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name", "description", "filter", "oncall_groups", "starts_at", "ends_at"})
		return
	}
	window, err := body.window()
	if err != nil {
		writeMissingFields(w, []string{"starts_at", "ends_at"})
		return
	}
	if err := s.store.CreateMaintenance(r.Context(), window); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) UpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	var body maintenanceRequest
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" {
		writeMissingFields(w, []string{"id", "name", "description", "filter", "oncall_groups", "starts_at", "ends_at"})
		return
	}
	window, err := body.window()
	if err != nil {
		writeMissingFields(w, []string{"starts_at", "ends_at"})
		return
	}
	if err := s.store.UpdateMaintenance(r.Context(), window); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) DeleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteMaintenance(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Pipelines

func (s *Server) GetPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := s.store.ListPipelines(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if pipelines == nil {
		pipelines = []domain.Pipeline{}
	}
	writeJSON(w, http.StatusOK, pipelines)
}

func (s *Server) AddPipeline(w http.ResponseWriter, r *http.Request) {
	var body domain.Pipeline
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name", "description", "yaml_content"})
		return
	}
	if err := s.store.CreatePipeline(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	var body domain.Pipeline
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" {
		writeMissingFields(w, []string{"id", "name", "description", "yaml_content"})
		return
	}
	if err := s.store.UpdatePipeline(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// DeletePipeline removes a pipeline and unbinds schedule groups that
// referenced it.
func (s *Server) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeletePipeline(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Templates

func (s *Server) GetTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if templates == nil {
		templates = []domain.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) AddTemplate(w http.ResponseWriter, r *http.Request) {
	var body domain.Template
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeMissingFields(w, []string{"name", "description", "template"})
		return
	}
	if err := s.store.CreateTemplate(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var body domain.Template
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" {
		writeMissingFields(w, []string{"id", "name", "description", "template"})
		return
	}
	if err := s.store.UpdateTemplate(r.Context(), body); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// Saved searches

func (s *Server) SearchLoad(w http.ResponseWriter, r *http.Request) {
	searches, err := s.store.ListSearches(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if searches == nil {
		searches = []domain.SearchFilter{}
	}
	writeJSON(w, http.StatusOK, searches)
}

type searchRequest struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Query  string `json:"query"`
	Shared bool   `json:"shared"`
	UserID string `json:"user_id"`
}

func (q searchRequest) filter() domain.SearchFilter {
	shared := 0
	if q.Shared {
		shared = 1
	}
	return domain.SearchFilter{
		ID:     q.ID,
		Shared: shared,
		UserID: q.UserID,
		Name:   q.Name,
		Query:  q.Query,
	}
}

func (s *Server) SearchSave(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := readJSON(r, &body); err != nil || body.Name == "" || body.Query == "" || body.UserID == "" {
		writeMissingFields(w, []string{"name", "query", "user_id"})
		return
	}
	if err := s.store.CreateSearch(r.Context(), body.filter()); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

// SearchUpdate rewrites a saved search; only the owner or an admin may
// update one.
func (s *Server) SearchUpdate(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := readJSON(r, &body); err != nil || body.ID == 0 || body.Name == "" || body.Query == "" || body.UserID == "" {
		writeMissingFields(w, []string{"id", "name", "query", "user_id"})
		return
	}
	claims := requestClaims(r)
	if claims.Subject != body.UserID && claims.Role != roleAdmin {
		writePermissionDenied(w)
		return
	}
	if err := s.store.UpdateSearch(r.Context(), body.filter()); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}

func (s *Server) SearchDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "id missing"})
		return
	}
	if err := s.store.DeleteSearch(r.Context(), id); err != nil {
		writeDBError(w)
		return
	}
	writeOK(w)
}
