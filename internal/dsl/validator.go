package dsl

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// expressionPattern accepts a string that is either fully wrapped in
// {{ }} or contains no braces at all.
var expressionPattern = regexp.MustCompile(`^\{\{.*\}\}$|^[^{}]*$`)

// ValidationError describes why a pipeline document was rejected and
// where in the document the problem sits.
type ValidationError struct {
	Msg  string
	Path []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("YAML validation error: %s\nError path: %s", e.Msg, strings.Join(e.Path, " -> "))
}

func invalid(path []string, msg string) *ValidationError {
	return &ValidationError{Msg: msg, Path: append([]string(nil), path...)}
}

// Validate checks a pipeline document structurally without executing it.
// Params: YAML source.
// Returns: nil when the document is well formed, a *ValidationError for
// schema violations, or a parse error for broken YAML.
func Validate(source string) error {
	var document any
	if err := yaml.Unmarshal([]byte(source), &document); err != nil {
		return fmt.Errorf("YAML parsing error: %v", err)
	}
	root, ok := document.(map[string]any)
	if !ok {
		return invalid(nil, "expected a dictionary")
	}

	for key, value := range root {
		switch key {
		case "templates", "vars":
			if _, ok := value.(map[string]any); !ok {
				return invalid([]string{key}, "expected a dictionary")
			}
		case "steps":
			list, ok := value.([]any)
			if !ok {
				return invalid([]string{key}, "expected a list")
			}
			for idx, item := range list {
				if err := validateStep(item, []string{"steps", fmt.Sprint(idx)}); err != nil {
					return err
				}
			}
		default:
			return invalid([]string{key}, "extra keys not allowed")
		}
	}
	return nil
}

// validateStep checks one step mapping. The recognized kinds are set,
// for, if, while, and call.
func validateStep(value any, path []string) *ValidationError {
	step, ok := value.(map[string]any)
	if !ok || len(step) != 1 {
		return invalid(path, "expected a single-key step dictionary")
	}
	for key, body := range step {
		keyPath := append(path, key)
		switch key {
		case "set":
			if _, ok := body.(map[string]any); !ok {
				return invalid(keyPath, "expected a dictionary")
			}
		case "call":
			// Any value is accepted.
		case "if":
			return validateIf(body, keyPath)
		case "while":
			return validateWhile(body, keyPath)
		case "for":
			return validateFor(body, keyPath)
		default:
			return invalid(keyPath, "not a valid step kind")
		}
	}
	return nil
}

func validateIf(body any, path []string) *ValidationError {
	fields, ok := body.(map[string]any)
	if !ok {
		return invalid(path, "expected a dictionary")
	}
	if err := validateCondition(fields, path); err != nil {
		return err
	}
	then, ok := fields["then"]
	if !ok {
		return invalid(append(path, "then"), "required key not provided")
	}
	if err := validateStepsList(then, append(path, "then")); err != nil {
		return err
	}
	if other, ok := fields["else"]; ok {
		if err := validateStepsList(other, append(path, "else")); err != nil {
			return err
		}
	}
	for key := range fields {
		if key != "condition" && key != "then" && key != "else" {
			return invalid(append(path, key), "extra keys not allowed")
		}
	}
	return nil
}

func validateWhile(body any, path []string) *ValidationError {
	fields, ok := body.(map[string]any)
	if !ok {
		return invalid(path, "expected a dictionary")
	}
	if err := validateCondition(fields, path); err != nil {
		return err
	}
	steps, ok := fields["steps"]
	if !ok {
		return invalid(append(path, "steps"), "required key not provided")
	}
	if err := validateStepsList(steps, append(path, "steps")); err != nil {
		return err
	}
	for key := range fields {
		if key != "condition" && key != "steps" {
			return invalid(append(path, key), "extra keys not allowed")
		}
	}
	return nil
}

func validateFor(body any, path []string) *ValidationError {
	fields, ok := body.(map[string]any)
	if !ok {
		return invalid(path, "expected a dictionary")
	}
	if _, ok := fields["var"].(string); !ok {
		return invalid(append(path, "var"), "expected a string")
	}
	if _, ok := fields["in"].(string); !ok {
		return invalid(append(path, "in"), "expected a string")
	}
	steps, ok := fields["steps"]
	if !ok {
		return invalid(append(path, "steps"), "required key not provided")
	}
	if err := validateStepsList(steps, append(path, "steps")); err != nil {
		return err
	}
	for key := range fields {
		if key != "var" && key != "in" && key != "steps" {
			return invalid(append(path, key), "extra keys not allowed")
		}
	}
	return nil
}

func validateCondition(fields map[string]any, path []string) *ValidationError {
	condition, ok := fields["condition"]
	if !ok {
		return invalid(append(path, "condition"), "required key not provided")
	}
	text, ok := condition.(string)
	if !ok {
		return invalid(append(path, "condition"), "expected a string")
	}
	if !expressionPattern.MatchString(text) {
		return invalid(append(path, "condition"), "Expression must be either inside {{ }}, or not.")
	}
	return nil
}

// validateStepsList accepts either a list of steps or a single step
// dictionary standing in for a one-element list.
func validateStepsList(value any, path []string) *ValidationError {
	if step, ok := value.(map[string]any); ok {
		return validateStep(step, path)
	}
	list, ok := value.([]any)
	if !ok {
		return invalid(path, "expected a list of steps or a single step dict")
	}
	for idx, item := range list {
		if err := validateStep(item, append(path, fmt.Sprint(idx))); err != nil {
			return err
		}
	}
	return nil
}
