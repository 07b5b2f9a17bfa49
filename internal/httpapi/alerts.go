package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"alerthub/internal/domain"
	"alerthub/internal/metrics"
	"alerthub/internal/store"
)

// AlertWebhook ingests an Alertmanager notification batch. Each alert
// runs through the state machine; persisted alerts are handed to the
// dispatch pool and mirrored on the broadcast subject. Ingestion never
// waits on pipeline execution.
func (s *Server) AlertWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	payload, err := domain.DecodeWebhookPayload(body)
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	for _, event := range payload.Alerts {
		alert, err := s.machine.Apply(r.Context(), event)
		if err != nil {
			metrics.IngestErrors.Inc()
			s.log.Error("alert ingest failed", "fingerprint", event.Fingerprint, "error", err)
			continue
		}
		metrics.AlertsIngestedTotal.WithLabelValues(alert.Status).Inc()
		s.pool.Enqueue(alert)
		s.broadcaster.Publish(alert)
	}
	w.WriteHeader(http.StatusOK)
}

// alertView renders one alert row the way the UI expects: ISO
// timestamps, with endsAt left as 0 while the alert is open-ended.
func (s *Server) alertView(alert domain.Alert) map[string]any {
	var endsAt any = 0
	if alert.EndsAt > 0 {
		endsAt = s.isoTime(alert.EndsAt)
	}
	return map[string]any{
		"_id":          alert.ID,
		"alert_id":     alert.Fingerprint,
		"alertname":    alert.AlertName,
		"severity":     alert.Severity,
		"instance":     alert.Instance,
		"job":          alert.Job,
		"status":       alert.Status,
		"annotations":  alert.Annotations,
		"labels":       alert.Labels,
		"generatorURL": alert.GeneratorURL,
		"updatedAt":    s.isoTime(alert.UpdatedAt),
		"startsAt":     s.isoTime(alert.StartsAt),
		"endsAt":       endsAt,
		"alert_count":  alert.AlertCount,
	}
}

// AlertByID returns one alert by fingerprint.
// Params: query id.
// Returns: {"alerts": [...]} with zero or one element.
func (s *Server) AlertByID(w http.ResponseWriter, r *http.Request) {
	fingerprint := r.URL.Query().Get("id")
	if fingerprint == "" {
		writeJSON(w, http.StatusOK, map[string]any{"error": "wrong arguments"})
		return
	}

	alerts := []map[string]any{}
	alert, err := s.store.GetAlert(r.Context(), fingerprint)
	if err == nil {
		alerts = append(alerts, s.alertView(alert))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// AlertsRange lists alerts inside a time window.
// Params: from/to ISO timestamps, optional status, fts (ignored under 3
// chars), offset/limit, history=true to substitute per-event rows.
// Returns: {"alerts": [...], "total": n}.
func (s *Server) AlertsRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.AlertRangeQuery{
		Status:  q.Get("status"),
		History: q.Get("history") == "true",
	}
	if from, err := parseISOTime(q.Get("from")); err == nil {
		query.From = from
	}
	if to, err := parseISOTime(q.Get("to")); err == nil {
		query.To = to
	}
	if search := q.Get("fts"); len(search) >= 3 {
		query.Search = search
	}
	query.Offset, _ = strconv.Atoi(q.Get("offset"))
	query.Limit = 500
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}

	rows, total, err := s.store.AlertsRange(r.Context(), query)
	if err != nil {
		s.log.Error("alerts range query failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"alerts": []map[string]any{}, "total": 0})
		return
	}
	alerts := make([]map[string]any, 0, len(rows))
	for _, alert := range rows {
		alerts = append(alerts, s.alertView(alert))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "total": total})
}

// AlertHistory lists the recorded status transitions of one alert.
// Params: query id (fingerprint) and limit (default 100).
// Returns: {"alert_history": [...]} newest first.
func (s *Server) AlertHistory(w http.ResponseWriter, r *http.Request) {
	fingerprint := r.URL.Query().Get("id")
	if fingerprint == "" {
		writeJSON(w, http.StatusOK, map[string]any{"error": "wrong arguments"})
		return
	}
	limit := 100
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = parsed
	}

	events, err := s.store.AlertHistory(r.Context(), fingerprint, limit)
	if err != nil {
		s.log.Error("alert history query failed", "fingerprint", fingerprint, "error", err)
		events = nil
	}
	history := make([]map[string]any, 0, len(events))
	for _, event := range events {
		history = append(history, map[string]any{
			"_id":             event.ID,
			"timestamp":       s.isoTime(event.Timestamp),
			"event_timestamp": s.isoTime(event.EventTimestamp),
			"alert_id":        event.Fingerprint,
			"status":          event.Status,
			"comment":         event.Comment,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert_history": history})
}

// SetAlertStatus applies an operator status override.
// Params: JSON body {alert_id, status, comment, update_history?,
// history_status?}.
// Returns: ok, 400 for missing fields or an invalid status, 500 on
// storage failure.
func (s *Server) SetAlertStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlertID       string  `json:"alert_id"`
		Status        string  `json:"status"`
		Comment       string  `json:"comment"`
		UpdateHistory *bool   `json:"update_history"`
		HistoryStatus *string `json:"history_status"`
	}
	if err := readJSON(r, &body); err != nil {
		writeMissingFields(w, []string{"alert_id", "status", "comment"})
		return
	}
	var missing []string
	if body.AlertID == "" {
		missing = append(missing, "alert_id")
	}
	if body.Status == "" {
		missing = append(missing, "status")
	}
	if missing != nil {
		writeMissingFields(w, missing)
		return
	}
	if !domain.IsOperatorStatus(body.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "Invalid status"})
		return
	}

	record := true
	if body.UpdateHistory != nil {
		record = *body.UpdateHistory
	}
	historyStatus := body.Status
	if body.HistoryStatus != nil {
		historyStatus = *body.HistoryStatus
	}

	if err := s.machine.SetStatus(r.Context(), body.AlertID, body.Status, record, historyStatus, body.Comment); err != nil {
		s.log.Error("set alert status failed", "fingerprint", body.AlertID, "error", err)
		writeDBError(w)
		return
	}
	writeOK(w)
}

// DeleteAlert removes one alert and its history.
// Params: query id (fingerprint).
// Returns: ok or DB error.
func (s *Server) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	fingerprint := r.URL.Query().Get("id")
	if fingerprint == "" {
		writeJSON(w, http.StatusOK, map[string]any{"error": "wrong arguments"})
		return
	}
	if err := s.machine.Delete(r.Context(), fingerprint); err != nil {
		s.log.Error("delete alert failed", "fingerprint", fingerprint, "error", err)
		writeDBError(w)
		return
	}
	writeOK(w)
}

// AlertStats returns the status, severity, and alertname aggregates.
func (s *Server) AlertStats(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.StatusStats(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	severity, err := s.store.SeverityStats(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	names, err := s.store.NameStats(r.Context())
	if err != nil {
		writeDBError(w)
		return
	}
	if status == nil {
		status = []domain.StatusStat{}
	}
	if severity == nil {
		severity = []domain.SeverityStat{}
	}
	if names == nil {
		names = []domain.NameStat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"severity":   severity,
		"alert_name": names,
	})
}
