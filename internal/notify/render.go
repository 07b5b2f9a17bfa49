package notify

import (
	"fmt"
	"strings"
	"text/template"
)

// Render executes one message template against an alert record.
// Params: template label for error messages, template body, alert record.
// Returns: rendered text; unknown fields render as empty values rather
// than failing the whole message.
func Render(name, body string, record map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}
	var rendered strings.Builder
	if err := tmpl.Execute(&rendered, record); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return rendered.String(), nil
}
