package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// entry is one key/value pair in document order. YAML mapping order is
// significant for vars and set steps, where later entries may reference
// earlier ones.
type entry struct {
	key   string
	value any
}

// Script is one parsed pipeline document: evaluated-once variables,
// the template map, and the typed step tree.
type Script struct {
	Vars      []entry
	Templates []entry
	Steps     []Step
}

// Step is one pipeline step variant.
type Step interface {
	isStep()
}

// PrintStep evaluates an expression and logs the result.
type PrintStep struct {
	Expr any
}

// SetStep evaluates expressions and assigns them into the flat context.
type SetStep struct {
	Assign []entry
}

// IfStep branches on a condition.
type IfStep struct {
	Condition any
	Then      []Step
	Else      []Step
}

// WhileStep re-evaluates its condition before each iteration.
type WhileStep struct {
	Condition any
	Body      []Step
}

// ForStep binds each element of an iterable to a variable.
type ForStep struct {
	Var  string
	In   any
	Body []Step
}

// CallStep evaluates an expression for its side effects.
type CallStep struct {
	Expr any
}

// UnknownStep is a step whose kind is not recognized. The interpreter
// logs and skips it.
type UnknownStep struct {
	Key string
}

func (PrintStep) isStep()   {}
func (SetStep) isStep()     {}
func (IfStep) isStep()      {}
func (WhileStep) isStep()   {}
func (ForStep) isStep()     {}
func (CallStep) isStep()    {}
func (UnknownStep) isStep() {}

// ParseScript parses a YAML pipeline document into a typed script.
// Params: YAML source text.
// Returns: parsed script, or an error on YAML syntax failure, which
// aborts the whole run.
func ParseScript(source string) (*Script, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(source), &root); err != nil {
		return nil, fmt.Errorf("parse pipeline yaml: %w", err)
	}

	script := &Script{}
	if len(root.Content) == 0 {
		return script, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return script, nil
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		value := doc.Content[i+1]
		switch key {
		case "vars":
			pairs, err := mappingEntries(value)
			if err != nil {
				return nil, fmt.Errorf("vars: %w", err)
			}
			script.Vars = pairs
		case "templates":
			pairs, err := mappingEntries(value)
			if err != nil {
				return nil, fmt.Errorf("templates: %w", err)
			}
			script.Templates = pairs
		case "steps":
			steps, err := parseSteps(value)
			if err != nil {
				return nil, fmt.Errorf("steps: %w", err)
			}
			script.Steps = steps
		}
	}
	return script, nil
}

// mappingEntries decodes a mapping node into ordered key/value pairs.
func mappingEntries(node *yaml.Node) ([]entry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping at line %d", node.Line)
	}
	pairs := make([]entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return nil, err
		}
		pairs = append(pairs, entry{key: node.Content[i].Value, value: value})
	}
	return pairs, nil
}

// parseSteps decodes a step list. A single step mapping is accepted in
// place of a one-element list.
func parseSteps(node *yaml.Node) ([]Step, error) {
	if node.Kind == yaml.MappingNode {
		step, err := parseStep(node)
		if err != nil {
			return nil, err
		}
		return []Step{step}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a step list at line %d", node.Line)
	}
	steps := make([]Step, 0, len(node.Content))
	for _, item := range node.Content {
		step, err := parseStep(item)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseStep builds one typed step from a single-key mapping node.
func parseStep(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) < 2 {
		return nil, fmt.Errorf("expected a step mapping at line %d", node.Line)
	}
	key := node.Content[0].Value
	value := node.Content[1]

	switch key {
	case "print":
		var raw any
		if err := value.Decode(&raw); err != nil {
			return nil, err
		}
		return PrintStep{Expr: raw}, nil
	case "set":
		pairs, err := mappingEntries(value)
		if err != nil {
			return nil, fmt.Errorf("set at line %d: %w", node.Line, err)
		}
		return SetStep{Assign: pairs}, nil
	case "call":
		var raw any
		if err := value.Decode(&raw); err != nil {
			return nil, err
		}
		return CallStep{Expr: raw}, nil
	case "if":
		return parseIf(value)
	case "while":
		return parseWhile(value)
	case "for":
		return parseFor(value)
	default:
		return UnknownStep{Key: key}, nil
	}
}

func parseIf(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("if at line %d: expected a mapping", node.Line)
	}
	step := IfStep{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "condition":
			if err := value.Decode(&step.Condition); err != nil {
				return nil, err
			}
		case "then":
			steps, err := parseSteps(value)
			if err != nil {
				return nil, err
			}
			step.Then = steps
		case "else":
			steps, err := parseSteps(value)
			if err != nil {
				return nil, err
			}
			step.Else = steps
		}
	}
	return step, nil
}

func parseWhile(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("while at line %d: expected a mapping", node.Line)
	}
	step := WhileStep{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "condition":
			if err := value.Decode(&step.Condition); err != nil {
				return nil, err
			}
		case "steps":
			steps, err := parseSteps(value)
			if err != nil {
				return nil, err
			}
			step.Body = steps
		}
	}
	return step, nil
}

func parseFor(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("for at line %d: expected a mapping", node.Line)
	}
	step := ForStep{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "var":
			step.Var = value.Value
		case "in":
			if err := value.Decode(&step.In); err != nil {
				return nil, err
			}
		case "steps":
			steps, err := parseSteps(value)
			if err != nil {
				return nil, err
			}
			step.Body = steps
		}
	}
	return step, nil
}
