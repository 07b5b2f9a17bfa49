package dsl

import (
	"strings"

	"github.com/expr-lang/expr"
)

// isWrapped reports whether text is an expression wrapped in {{ }}.
func isWrapped(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}")
}

// unwrap strips the {{ }} delimiters from an expression string.
func unwrap(text string) string {
	trimmed := strings.TrimSpace(text)
	return strings.TrimSpace(trimmed[2 : len(trimmed)-2])
}

// eval evaluates one step value. Non-strings pass through as literals; a
// string is evaluated in the sandboxed expression language against the
// context namespace, with or without {{ }} delimiters. Every evaluation
// failure is logged and yields nil, and the enclosing step continues.
// Params: raw step value.
// Returns: produced value or nil on failure.
func (e *run) eval(value any) any {
	text, ok := value.(string)
	if !ok {
		return value
	}
	code := strings.TrimSpace(text)
	if isWrapped(code) {
		code = unwrap(code)
	}

	program, err := expr.Compile(code)
	if err != nil {
		e.log.Error("invalid expression", "code", code, "error", err)
		return nil
	}
	result, err := expr.Run(program, e.context.env(e.builtinFuncs))
	if err != nil {
		e.log.Error("expression failed", "code", code, "error", err)
		return nil
	}
	return result
}
