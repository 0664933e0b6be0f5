package policy

import (
	"fmt"
	"strings"

	"github.com/DrSkyle/scantrail/pkg/finding"
	"github.com/google/cel-go/cel"
)

// Filter selects findings with a boolean CEL expression, e.g.
//
//	severity in ["critical", "high"] && region.startsWith("eu-")
type Filter struct {
	Expr string
	prg  cel.Program
}

// NewEnv declares the variables visible to filter expressions.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("account", cel.StringType),
		cel.Variable("account_name", cel.StringType),
		cel.Variable("check", cel.StringType),
		cel.Variable("check_title", cel.StringType),
		cel.Variable("service", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("severity_score", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("resource_type", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("source", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
}

// NewFilter compiles expr. An empty expression yields a nil Filter that keeps everything.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filter compilation error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter program creation error: %w", err)
	}
	return &Filter{Expr: expr, prg: prg}, nil
}

// Vars flattens a finding into the activation passed to the program.
func Vars(f finding.Finding) map[string]interface{} {
	return map[string]interface{}{
		"id":             f.ID,
		"account":        f.AccountID,
		"account_name":   f.AccountName,
		"check":          f.CheckID,
		"check_title":    f.CheckTitle,
		"service":        f.Service,
		"severity":       f.Severity.String(),
		"severity_score": int64(f.Severity.Score()),
		"status":         string(f.Status),
		"resource":       f.ResourceID,
		"resource_type":  f.ResourceType,
		"region":         f.Region,
		"source":         f.Source,
	}
}

// Match evaluates the expression against one finding.
func (fl *Filter) Match(f finding.Finding) (bool, error) {
	if fl == nil {
		return true, nil
	}
	out, _, err := fl.prg.Eval(Vars(f))
	if err != nil {
		return false, fmt.Errorf("filter evaluation failed for %s: %w", f.CheckID, err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out.Value())
	}
	return match, nil
}

// Apply keeps the findings the expression accepts, preserving order.
func (fl *Filter) Apply(findings []finding.Finding) ([]finding.Finding, error) {
	if fl == nil {
		return findings, nil
	}
	out := make([]finding.Finding, 0, len(findings))
	for _, f := range findings {
		ok, err := fl.Match(f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}
