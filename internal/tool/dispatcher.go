// Package tool exposes the inspector, profiler, and benchmark harness as
// named, schema-validated operations the reasoning service can invoke.
// Validation failures come back as structured errors, never faults: the
// caller is an external, imperfect agent and must be able to retry with
// corrected arguments.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
)

// Param declares one argument of a tool.
type Param struct {
	Name        string
	Type        string // "string" | "integer"
	Description string
	Required    bool
	Default     any
}

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition is one registered tool.
type Definition struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// InputSchema renders the argument declaration as a JSON schema object,
// the shape tool-calling LLM APIs expect.
func (d Definition) InputSchema() map[string]any {
	props := map[string]any{}
	var required []string
	for _, p := range d.Params {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Result is the uniform outcome of an invocation. Errors are data, not
// faults.
type Result struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// JSON renders the result for the tool-calling protocol.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error":"marshal result: %v"}`, err)
	}
	return string(b)
}

// Dispatcher holds the fixed tool registry. It is stateless per call;
// any caching lives in the underlying components.
type Dispatcher struct {
	tools map[string]Definition
	order []string
	log   *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		tools: make(map[string]Definition),
		log:   log.With("component", "tool"),
	}
}

// Register adds a tool definition. Later registrations with the same name
// replace earlier ones.
func (d *Dispatcher) Register(def Definition) {
	if _, exists := d.tools[def.Name]; !exists {
		d.order = append(d.order, def.Name)
	}
	d.tools[def.Name] = def
}

// Definitions returns the registered tools in registration order.
func (d *Dispatcher) Definitions() []Definition {
	out := make([]Definition, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name])
	}
	return out
}

// Invoke validates the arguments against the tool's declared schema and
// runs the handler. Unknown tools and schema mismatches return a failed
// Result so the caller can correct itself.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) Result {
	def, ok := d.tools[name]
	if !ok {
		return Result{Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	validated, err := validateArgs(def, args)
	if err != nil {
		return Result{Error: err.Error()}
	}

	d.log.Debug("tool call", "tool", name)
	data, err := def.Handler(ctx, validated)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{OK: true, Data: data}
}

// validateArgs checks required arguments, rejects unknown ones, coerces
// JSON numbers, and fills declared defaults.
func validateArgs(def Definition, args map[string]any) (map[string]any, error) {
	byName := make(map[string]Param, len(def.Params))
	for _, p := range def.Params {
		byName[p.Name] = p
	}

	for name := range args {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("%s: unexpected argument %q", def.Name, name)
		}
	}

	out := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		val, present := args[p.Name]
		if !present || val == nil {
			if p.Required {
				return nil, fmt.Errorf("%s: missing required argument %q", def.Name, p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		coerced, err := coerce(p, val)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %q: %w", def.Name, p.Name, err)
		}
		out[p.Name] = coerced
	}
	return out, nil
}

func coerce(p Param, val any) (any, error) {
	switch p.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", val)
		}
		return s, nil
	case "integer":
		switch v := val.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int(v), nil
		case json.Number:
			i, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", v.String())
			}
			return int(i), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", val)
		}
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", p.Type)
	}
}
