// Package agentfilter selects agents with CEL expressions.
//
// Expressions see the agent as top-level variables:
//
//	id         string
//	name       string
//	role       string
//	expertise  list(string)
//	memory     int     (memory entries reported by the service)
//
// Examples:
//
//	role.contains("Database")
//	"Flutter" in expertise
//	id.startsWith("niyas") || memory > 10
package agentfilter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/inercia/twinbridge/internal/client"
)

// Filter is a compiled agent predicate. It is safe for concurrent use.
type Filter struct {
	expr string
	prg  cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("role", cel.StringType),
		cel.Variable("expertise", cel.ListType(cel.StringType)),
		cel.Variable("memory", cel.IntType),
	)
}

// Compile parses and type-checks expr. The expression must evaluate to a bool.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty filter expression")
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("invalid filter %q: must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether the agent satisfies the filter.
func (f *Filter) Match(a client.AgentDescriptor) (bool, error) {
	expertise := a.Expertise
	if expertise == nil {
		expertise = []string{}
	}
	out, _, err := f.prg.Eval(map[string]any{
		"id":        a.ID,
		"name":      a.Name,
		"role":      a.Role,
		"expertise": expertise,
		"memory":    int64(a.MemoryEntries),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter on agent %s: %w", a.ID, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate filter on agent %s: non-bool result %v", a.ID, out.Value())
	}
	return matched, nil
}

// Apply returns the agents that match, preserving order. A nil filter
// matches everything.
func (f *Filter) Apply(agents []client.AgentDescriptor) ([]client.AgentDescriptor, error) {
	if f == nil {
		return agents, nil
	}
	out := make([]client.AgentDescriptor, 0, len(agents))
	for _, a := range agents {
		ok, err := f.Match(a)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}
