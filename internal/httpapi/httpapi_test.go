package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alerthub/internal/clock"
	"alerthub/internal/config"
	"alerthub/internal/dispatch"
	"alerthub/internal/domain"
	"alerthub/internal/dsl"
	"alerthub/internal/lifecycle"
	"alerthub/internal/matcher"
	"alerthub/internal/notify"
	"alerthub/internal/store"
)

type apiFixture struct {
	server *Server
	store  *store.MemoryStore
	pool   *dispatch.Pool
	mux    http.Handler
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := store.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Unix(1700000000, 0).UTC()
	clk := clock.Fixed{At: now}
	machine := lifecycle.New(st, clk, log)
	m := matcher.New(st, clk, log, 15*time.Second, time.UTC)
	runner := dsl.NewRunner(st, m, notify.NewSetFromSenders(), log, time.UTC)
	pool := dispatch.New(runner, m, log, config.PipelineConfig{Workers: 1, QueueSize: 16, StopTimeoutSeconds: 5})
	t.Cleanup(func() { _ = pool.Stop() })

	jwtService := NewJWTService("test-secret", time.Hour)
	server := NewServer(st, machine, pool, nil, jwtService, log, time.UTC)
	return &apiFixture{server: server, store: st, pool: pool, mux: server.Router()}
}

func (f *apiFixture) addUser(t *testing.T, name, password string, role int) {
	t.Helper()
	err := f.store.CreateUser(context.Background(), domain.User{
		Name:     name,
		Password: HashPassword(password),
		Role:     role,
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func (f *apiFixture) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestLoginIssuesToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)

	token := f.login(t, "admin", "secret")
	claims, err := f.server.jwt.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != 0 {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/getUsers", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookIngestsAlerts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	payload := map[string]any{
		"alerts": []map[string]any{
			{
				"fingerprint":  "fp-1",
				"status":       "firing",
				"labels":       map[string]string{"alertname": "HighCPU", "severity": "critical", "instance": "n1", "job": "node"},
				"annotations":  map[string]string{"summary": "cpu"},
				"startsAt":     "2023-11-14T22:13:20Z",
				"endsAt":       "0001-01-01T00:00:00Z",
				"generatorURL": "http://prom/graph",
			},
		},
	}
	rec := f.do(t, http.MethodPost, "/alertmanager", "", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	alert, err := f.store.GetAlert(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("alert not persisted: %v", err)
	}
	if alert.Status != "firing" || alert.AlertCount != 1 {
		t.Fatalf("alert = %+v", alert)
	}
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/alertmanager", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)
	token := f.login(t, "admin", "secret")

	payload := map[string]any{
		"alerts": []map[string]any{
			{
				"fingerprint": "fp-9",
				"status":      "firing",
				"labels":      map[string]string{"alertname": "DiskFull", "severity": "warning"},
				"startsAt":    "2023-11-14T22:13:20Z",
			},
		},
	}
	if rec := f.do(t, http.MethodPost, "/alertmanager", "", payload); rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/alert?id=fp-9", token, nil)
	resp := decodeMap(t, rec)
	alerts, ok := resp["alerts"].([]any)
	if !ok || len(alerts) != 1 {
		t.Fatalf("alerts = %v", resp["alerts"])
	}

	rec = f.do(t, http.MethodPost, "/api/v1/setAlertStatus", token, map[string]any{
		"alert_id": "fp-9",
		"status":   "acked",
		"comment":  "looking",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("setAlertStatus status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alertHistory?id=fp-9", token, nil)
	resp = decodeMap(t, rec)
	history, ok := resp["alert_history"].([]any)
	if !ok || len(history) != 2 {
		t.Fatalf("history = %v, want firing + acked rows", resp["alert_history"])
	}

	rec = f.do(t, http.MethodPost, "/api/v1/setAlertStatus", token, map[string]any{
		"alert_id": "fp-9",
		"status":   "nonsense",
		"comment":  "",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/deleteAlert?id=fp-9", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deleteAlert status = %d", rec.Code)
	}
	if _, err := f.store.GetAlert(context.Background(), "fp-9"); err == nil {
		t.Fatal("alert still present after delete")
	}
}

func TestAlertsRangeAndStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)
	token := f.login(t, "admin", "secret")

	payload := map[string]any{
		"alerts": []map[string]any{
			{
				"fingerprint": "fp-a",
				"status":      "firing",
				"labels":      map[string]string{"alertname": "HighCPU", "severity": "critical"},
				"startsAt":    "2023-11-14T22:13:20Z",
			},
			{
				"fingerprint": "fp-b",
				"status":      "firing",
				"labels":      map[string]string{"alertname": "DiskFull", "severity": "warning"},
				"startsAt":    "2023-11-14T21:13:20Z",
			},
		},
	}
	if rec := f.do(t, http.MethodPost, "/alertmanager", "", payload); rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	window := "from=2023-11-14T00:00:00Z&to=2023-11-15T00:00:00Z"
	rec := f.do(t, http.MethodGet, "/api/v1/alertsRange?"+window+"&fts=cpu", token, nil)
	resp := decodeMap(t, rec)
	alerts, _ := resp["alerts"].([]any)
	if len(alerts) != 1 {
		t.Fatalf("fts match = %v, want only HighCPU", resp["alerts"])
	}
	if resp["total"] != float64(1) {
		t.Fatalf("total = %v, want 1", resp["total"])
	}

	// Too-short search terms are ignored.
	rec = f.do(t, http.MethodGet, "/api/v1/alertsRange?"+window+"&fts=cp", token, nil)
	resp = decodeMap(t, rec)
	alerts, _ = resp["alerts"].([]any)
	if len(alerts) != 2 {
		t.Fatalf("short fts = %v, want both alerts", resp["alerts"])
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alertStats", token, nil)
	resp = decodeMap(t, rec)
	statusStats, _ := resp["status"].([]any)
	if len(statusStats) != 1 {
		t.Fatalf("status stats = %v", resp["status"])
	}
	nameStats, _ := resp["alert_name"].([]any)
	if len(nameStats) != 2 {
		t.Fatalf("name stats = %v", resp["alert_name"])
	}
}

func TestUserCRUDPermissions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)
	f.addUser(t, "viewer", "secret", 1)
	adminToken := f.login(t, "admin", "secret")
	viewerToken := f.login(t, "viewer", "secret")

	newUser := map[string]any{
		"name":        "carol",
		"password":    "pw",
		"email":       "carol@example.com",
		"notifiers":   []int{2},
		"telegram_id": "7654321",
		"ntfy":        "carol-topic",
		"apprise":     "",
		"timezone":    "UTC",
		"role":        1,
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/addUser", viewerToken, newUser); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-admin addUser code = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/addUser", adminToken, newUser); rec.Code != http.StatusOK {
		t.Fatalf("admin addUser code = %d body %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/addUser", adminToken, newUser); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate addUser code = %d", rec.Code)
	}

	// A user can update themselves but not others.
	update := map[string]any{
		"name": "carol", "password": "pw2", "email": "carol@example.com",
		"notifiers": []int{2}, "telegram_id": "7654321", "ntfy": "carol-topic",
		"apprise": "", "timezone": "UTC", "role": 1,
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/updateUser", viewerToken, update); rec.Code != http.StatusBadRequest {
		t.Fatalf("cross-user update code = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/updateUser", adminToken, update); rec.Code != http.StatusOK {
		t.Fatalf("admin update code = %d body %s", rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/api/v1/getUsers", viewerToken, nil)
	var users []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("users = %d, want 3", len(users))
	}
	for _, user := range users {
		if _, leaked := user["password"]; leaked {
			t.Fatal("password leaked in user listing")
		}
	}
}

func TestPipelineValidationEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)
	token := f.login(t, "admin", "secret")

	rec := f.do(t, http.MethodPost, "/api/v1/validatePipeline", token, map[string]any{
		"pipeline": "steps:\n  - set:\n      a: 1\n",
	})
	resp := decodeMap(t, rec)
	if resp["result"] != "OK" {
		t.Fatalf("result = %v, want OK", resp["result"])
	}

	rec = f.do(t, http.MethodPost, "/api/v1/validatePipeline", token, map[string]any{
		"pipeline": "steps:\n  - print: hi\n",
	})
	resp = decodeMap(t, rec)
	if resp["result"] == "OK" {
		t.Fatal("print step validated as OK")
	}
}

func TestRenderTemplateEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)
	token := f.login(t, "admin", "secret")

	rec := f.do(t, http.MethodPost, "/api/v1/renderTemplate", token, map[string]any{
		"alert_json": `{"alertname":"HighCPU","severity":"critical"}`,
		"template":   "{{.alertname}} is {{.severity}}",
	})
	resp := decodeMap(t, rec)
	if resp["result"] != "HighCPU is critical" {
		t.Fatalf("result = %v", resp["result"])
	}

	rec = f.do(t, http.MethodPost, "/api/v1/renderTemplate", token, map[string]any{
		"alert_json": "{broken",
		"template":   "x",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("broken alert_json status = %d, want 200 with error text", rec.Code)
	}
	resp = decodeMap(t, rec)
	if resp["result"] == "x" || resp["result"] == "" {
		t.Fatalf("result = %v, want decode error text", resp["result"])
	}
}

func TestScheduleCRUDRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", 0)
	token := f.login(t, "admin", "secret")

	if rec := f.do(t, http.MethodPost, "/api/v1/addScheduleGroup", token, map[string]any{
		"name": "infra", "pipeline_id": 0, "team_id": 0,
	}); rec.Code != http.StatusOK {
		t.Fatalf("addScheduleGroup code = %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/addSchedule", token, map[string]any{
		"name":        "primary",
		"group_id":    2,
		"starts_at":   "2023-11-14T00:00:00Z",
		"ends_at":     "2023-11-15T00:00:00Z",
		"mute_starts": "",
		"mute_ends":   "",
		"people":      []int64{1},
	}); rec.Code != http.StatusOK {
		t.Fatalf("addSchedule code = %d body %s", rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/api/v1/getSchedules", token, nil)
	var schedules []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &schedules); err != nil {
		t.Fatalf("decode schedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(schedules))
	}
	if schedules[0]["starts_at"] != "2023-11-14T00:00:00Z" {
		t.Fatalf("starts_at = %v", schedules[0]["starts_at"])
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/deleteSchedule?id=3", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("deleteSchedule code = %d", rec.Code)
	}
}
