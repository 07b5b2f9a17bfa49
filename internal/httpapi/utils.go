package httpapi

import (
	"encoding/json"
	"net/http"

	"alerthub/internal/dsl"
	"alerthub/internal/notify"
)

// RenderTemplate previews a notification template against a pasted
// alert document. Decode and render errors come back as the result
// text so the UI can show them inline.
// Params: JSON body {alert_json, template}.
// Returns: {"msg": "ok", "result": rendered-or-error}.
func (s *Server) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlertJSON string `json:"alert_json"`
		Template  string `json:"template"`
	}
	if err := readJSON(r, &body); err != nil || body.AlertJSON == "" || body.Template == "" {
		writeMissingFields(w, []string{"alert_json", "template"})
		return
	}

	var result string
	var record map[string]any
	if err := json.Unmarshal([]byte(body.AlertJSON), &record); err != nil {
		s.log.Error("template preview alert decode failed", "error", err)
		result = err.Error()
	} else if rendered, err := notify.Render("preview", body.Template, record); err != nil {
		s.log.Error("template preview render failed", "error", err)
		result = err.Error()
	} else {
		result = rendered
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "ok", "result": result})
}

// ValidatePipeline checks a pipeline document against the step schema
// without executing it.
// Params: JSON body {pipeline}.
// Returns: {"msg": "ok", "result": "OK"} on success, or the validation
// message with its document path.
func (s *Server) ValidatePipeline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pipeline string `json:"pipeline"`
	}
	if err := readJSON(r, &body); err != nil || body.Pipeline == "" {
		writeMissingFields(w, []string{"pipeline"})
		return
	}

	result := "OK"
	if err := dsl.Validate(body.Pipeline); err != nil {
		s.log.Error("pipeline validation failed", "error", err)
		result = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "ok", "result": result})
}
