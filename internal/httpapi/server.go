// Package httpapi exposes the REST surface: the Alertmanager webhook,
// login, and the entity CRUD endpoints the UI consumes.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alerthub/internal/broadcast"
	"alerthub/internal/dispatch"
	"alerthub/internal/lifecycle"
	"alerthub/internal/store"
)

// roleAdmin is the privileged user role.
const roleAdmin = 0

// Server wires the HTTP handlers to the core services.
// Params: storage, state machine, dispatch pool, broadcast mirror, token
// service, logger, display timezone.
// Returns: handler set mounted by Router.
type Server struct {
	store       store.Store
	machine     *lifecycle.Machine
	pool        *dispatch.Pool
	broadcaster *broadcast.Broadcaster
	jwt         *JWTService
	log         *slog.Logger
	loc         *time.Location
}

// NewServer builds the API server.
// Params: core services; broadcaster may be nil when the mirror is off.
// Returns: server ready for Router.
func NewServer(st store.Store, machine *lifecycle.Machine, pool *dispatch.Pool, broadcaster *broadcast.Broadcaster, jwtService *JWTService, log *slog.Logger, loc *time.Location) *Server {
	return &Server{
		store:       st,
		machine:     machine,
		pool:        pool,
		broadcaster: broadcaster,
		jwt:         jwtService,
		log:         log,
		loc:         loc,
	}
}

// Router mounts all routes.
// Params: none.
// Returns: chi mux with webhook, auth, and protected API routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/alertmanager", s.AlertWebhook)
	r.Post("/auth/login", s.Login)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JWTAuth(s.jwt))

		r.Get("/alert", s.AlertByID)
		r.Get("/alertsRange", s.AlertsRange)
		r.Get("/alertHistory", s.AlertHistory)
		r.Post("/setAlertStatus", s.SetAlertStatus)
		r.Get("/deleteAlert", s.DeleteAlert)
		r.Get("/alertStats", s.AlertStats)

		r.Get("/searchLoad", s.SearchLoad)
		r.Post("/searchSave", s.SearchSave)
		r.Post("/searchUpdate", s.SearchUpdate)
		r.Get("/searchDelete", s.SearchDelete)

		r.Get("/getUsers", s.GetUsers)
		r.Post("/addUser", s.AddUser)
		r.Post("/updateUser", s.UpdateUser)
		r.Get("/deleteUser", s.DeleteUser)

		r.Get("/getTeams", s.GetTeams)
		r.Post("/addTeam", s.AddTeam)
		r.Post("/updateTeam", s.UpdateTeam)
		r.Get("/deleteTeam", s.DeleteTeam)

		r.Get("/getSchedules", s.GetSchedules)
		r.Post("/addSchedule", s.AddSchedule)
		r.Post("/updateSchedule", s.UpdateSchedule)
		r.Get("/deleteSchedule", s.DeleteSchedule)

		r.Get("/getScheduleGroups", s.GetScheduleGroups)
		r.Post("/addScheduleGroup", s.AddScheduleGroup)
		r.Post("/updateScheduleGroup", s.UpdateScheduleGroup)
		r.Get("/deleteScheduleGroup", s.DeleteScheduleGroup)

		r.Get("/getMaintenances", s.GetMaintenances)
		r.Post("/addMaintenance", s.AddMaintenance)
		r.Post("/updateMaintenance", s.UpdateMaintenance)
		r.Get("/deleteMaintenance", s.DeleteMaintenance)

		r.Get("/getPipelines", s.GetPipelines)
		r.Post("/addPipeline", s.AddPipeline)
		r.Post("/updatePipeline", s.UpdatePipeline)
		r.Get("/deletePipeline", s.DeletePipeline)

		r.Get("/getTemplates", s.GetTemplates)
		r.Post("/addTemplate", s.AddTemplate)
		r.Post("/updateTemplate", s.UpdateTemplate)
		r.Get("/deleteTemplate", s.DeleteTemplate)

		r.Post("/renderTemplate", s.RenderTemplate)
		r.Post("/validatePipeline", s.ValidatePipeline)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func readJSON(r *http.Request, into any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(into)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"msg": "ok"})
}

func writeDBError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": "DB Error"})
}

func writeMissingFields(w http.ResponseWriter, fields []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"msg":    "Missing or empty required fields",
		"fields": fields,
	})
}

func writePermissionDenied(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "Permission denied"})
}

// queryID reads an integer id query parameter.
func queryID(r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// isoTime renders epoch seconds in the display timezone.
func (s *Server) isoTime(seconds int64) string {
	return time.Unix(seconds, 0).In(s.loc).Format(time.RFC3339)
}

// parseISOTime reads an RFC 3339 timestamp into epoch seconds.
func parseISOTime(value string) (int64, error) {
	if value == "" {
		return 0, errors.New("empty timestamp")
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, err
	}
	return at.Unix(), nil
}
