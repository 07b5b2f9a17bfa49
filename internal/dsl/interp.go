package dsl

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"alerthub/internal/domain"
	"alerthub/internal/matcher"
	"alerthub/internal/notify"
	"alerthub/internal/store"
)

// Runner executes pipeline scripts.
// Params: template storage, matcher for mute/maintenance checks, channel
// senders, logger, display timezone.
// Returns: per-alert script execution.
type Runner struct {
	store   store.Store
	matcher *matcher.Matcher
	senders *notify.Set
	log     *slog.Logger
	loc     *time.Location
}

// NewRunner builds a script runner.
// Params: storage, matcher, sender set, logger, timezone.
// Returns: ready runner.
func NewRunner(st store.Store, m *matcher.Matcher, senders *notify.Set, log *slog.Logger, loc *time.Location) *Runner {
	return &Runner{store: st, matcher: m, senders: senders, log: log, loc: loc}
}

// run is the state of one script execution.
type run struct {
	*Runner
	ctx          context.Context
	context      *Context
	schedule     domain.OnCallSchedule
	windows      []domain.Maintenance
	builtinFuncs map[string]any
}

// Run parses and executes one pipeline script against an alert.
// Params: context, YAML source, alert, matched schedule, active windows.
// Returns: the final run context, or nil when the YAML does not parse;
// parse failure is the only error that aborts a run, all others are local.
func (r *Runner) Run(ctx context.Context, source string, alert domain.Alert, schedule domain.OnCallSchedule, windows []domain.Maintenance) *Context {
	script, err := ParseScript(source)
	if err != nil {
		r.log.Error("pipeline yaml error", "error", err)
		return nil
	}

	windowMaps := make([]map[string]any, 0, len(windows))
	for _, window := range windows {
		windowMaps = append(windowMaps, window.ContextMap(r.loc))
	}
	execution := &run{
		Runner:   r,
		ctx:      ctx,
		context:  NewContext(alert.ContextMap(), schedule.ContextMap(r.loc), windowMaps),
		schedule: schedule,
		windows:  windows,
	}
	execution.builtinFuncs = execution.builtins()

	for _, pair := range script.Vars {
		if text, ok := pair.value.(string); ok && isWrapped(text) {
			execution.context.Vars[pair.key] = execution.eval(text)
			continue
		}
		execution.context.Vars[pair.key] = pair.value
	}

	for _, pair := range script.Templates {
		switch value := pair.value.(type) {
		case string:
			if isWrapped(value) {
				execution.context.Templates[pair.key] = execution.eval(value)
			} else {
				execution.context.Templates[pair.key] = value
			}
		case int:
			execution.context.Templates[pair.key] = execution.loadTemplate(int64(value))
		default:
			execution.context.Templates[pair.key] = value
		}
	}

	for _, step := range script.Steps {
		execution.execute(step)
	}
	return execution.context
}

// loadTemplate resolves a stored template id to its text. A failed
// lookup logs and substitutes an empty string.
func (e *run) loadTemplate(id int64) string {
	template, err := e.store.GetTemplate(e.ctx, id)
	if err != nil {
		e.log.Error("template lookup failed", "id", id, "error", err)
		return ""
	}
	return template.Template
}

// execute runs one step against the shared context.
func (e *run) execute(step Step) {
	switch s := step.(type) {
	case PrintStep:
		e.log.Info("pipeline print", "value", e.eval(s.Expr))
	case SetStep:
		for _, pair := range s.Assign {
			e.context.Vars[pair.key] = e.eval(pair.value)
		}
	case IfStep:
		branch := s.Else
		if truthy(e.eval(s.Condition)) {
			branch = s.Then
		}
		for _, sub := range branch {
			e.execute(sub)
		}
	case WhileStep:
		for truthy(e.eval(s.Condition)) {
			for _, sub := range s.Body {
				e.execute(sub)
			}
		}
	case ForStep:
		e.executeFor(s)
	case CallStep:
		if result := e.eval(s.Expr); result != nil {
			e.log.Info("pipeline call", "result", result)
		}
	case UnknownStep:
		e.log.Error("unknown pipeline step", "key", s.Key)
	}
}

// executeFor evaluates the iterable once, then binds each element into
// the flat context before running the body. A non-iterable result logs
// and skips the whole step.
func (e *run) executeFor(s ForStep) {
	iterable := e.eval(s.In)
	elements, ok := iterate(iterable)
	if !ok {
		e.log.Error("not iterable expression", "in", s.In)
		return
	}
	for _, element := range elements {
		e.context.Vars[s.Var] = element
		for _, sub := range s.Body {
			e.execute(sub)
		}
	}
}

// iterate flattens a slice, array, or map value into elements. Maps
// iterate over their keys.
func iterate(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elements := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elements = append(elements, rv.Index(i).Interface())
		}
		return elements, true
	case reflect.Map:
		elements := make([]any, 0, rv.Len())
		for _, key := range rv.MapKeys() {
			elements = append(elements, key.Interface())
		}
		return elements, true
	}
	return nil, false
}
