// Package triage provides the CEL-based filter engine analysts use to slice
// the normalized case list. Rules are boolean expressions over case-row
// variables; a rule matches the rows for which it evaluates true.
package triage

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/securekyc/kestrel/internal/domain"
)

// Engine compiles and evaluates triage rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.TriageRule
	Program cel.Program
}

// NewEngine creates a new triage engine.
func NewEngine() (*Engine, error) {
	// CEL environment exposing one normalized case row
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("fraud_score", cel.IntType),
		cel.Variable("confidence", cel.IntType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("doc_type", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("user_name", cel.StringType),
		cel.Variable("reason", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(rule *domain.TriageRule) error {
	if rule == nil {
		return fmt.Errorf("triage rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.TriageRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled
	return nil
}

// UnloadRule removes a rule from the engine.
func (e *Engine) UnloadRule(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, ruleID)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.TriageRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Match evaluates one loaded rule against the rows and returns the matching
// subset. A row that fails to evaluate is skipped rather than failing the
// whole match.
func (e *Engine) Match(ruleID string, rows []domain.NormalizedRow) ([]domain.NormalizedRow, error) {
	e.mu.RLock()
	compiled, ok := e.compiledRules[ruleID]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("triage rule not loaded: %s", ruleID)
	}

	var matched []domain.NormalizedRow
	for _, row := range rows {
		out, _, err := compiled.Program.Eval(activation(row))
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// MatchAll evaluates every loaded rule against the rows, returning matched
// row IDs keyed by rule ID.
func (e *Engine) MatchAll(rows []domain.NormalizedRow) map[string][]string {
	e.mu.RLock()
	rules := make(map[string]*CompiledRule, len(e.compiledRules))
	for id, compiled := range e.compiledRules {
		rules[id] = compiled
	}
	e.mu.RUnlock()

	result := make(map[string][]string, len(rules))
	for id, compiled := range rules {
		var ids []string
		for _, row := range rows {
			out, _, err := compiled.Program.Eval(activation(row))
			if err != nil {
				continue
			}
			if b, ok := out.(types.Bool); ok && bool(b) {
				ids = append(ids, row.ID)
			}
		}
		result[id] = ids
	}
	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *Engine) LoadedRules() []*domain.TriageRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.TriageRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.TriageRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}

// activation maps a case row onto the CEL variables.
func activation(row domain.NormalizedRow) map[string]any {
	return map[string]any{
		"row": map[string]any{
			"id":        row.ID,
			"userName":  row.UserName,
			"docType":   row.DocType,
			"status":    row.Status,
			"riskLevel": string(row.RiskLevel),
		},
		"fraud_score": int64(row.FraudScore),
		"confidence":  int64(row.Confidence),
		"risk_level":  string(row.RiskLevel),
		"doc_type":    row.DocType,
		"status":      row.Status,
		"user_name":   row.UserName,
		"reason":      row.Reason,
	}
}
