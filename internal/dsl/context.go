// Package dsl parses and executes pipeline scripts: YAML documents with
// variables, control flow, and notification builtins, evaluated against
// one alert and its matched schedule.
package dsl

import (
	"reflect"

	"alerthub/internal/domain"
)

// Context holds the state of one pipeline run: read-only bindings for the
// alert, schedule, and maintenance windows, the run's template map, and
// the flat user variable scope mutated by set/for steps.
// Params: per-run bindings.
// Returns: mutable run state shared by every step.
type Context struct {
	Alert        map[string]any
	Schedule     map[string]any
	Maintenances []map[string]any
	Templates    map[string]any
	Vars         map[string]any
}

// NewContext builds a run context from typed inputs.
// Params: alert record, matched schedule map, maintenance window maps.
// Returns: context with empty template and variable scopes.
func NewContext(alert, schedule map[string]any, maintenances []map[string]any) *Context {
	return &Context{
		Alert:        alert,
		Schedule:     schedule,
		Maintenances: maintenances,
		Templates:    make(map[string]any),
		Vars:         make(map[string]any),
	}
}

// env flattens the context into the expression evaluator namespace.
// Params: builtin function bindings.
// Returns: name-to-value map; user vars shadow nothing because the fixed
// names are written last.
func (c *Context) env(builtins map[string]any) map[string]any {
	env := make(map[string]any, len(c.Vars)+len(builtins)+5)
	for name, value := range c.Vars {
		env[name] = value
	}
	for name, fn := range builtins {
		env[name] = fn
	}
	maintenances := make([]any, 0, len(c.Maintenances))
	for _, window := range c.Maintenances {
		maintenances = append(maintenances, window)
	}
	env["alert"] = c.Alert
	env["schedule"] = c.Schedule
	env["maintenances"] = maintenances
	env["templates"] = c.Templates
	env["NotifyChannel"] = domain.NotifyChannelNames()
	return env
}

// truthy applies script truthiness: nil is false, numbers are true when
// nonzero, strings and collections when nonempty.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
