// Package policy lints component definitions with OPA/Rego policies.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

// Namespace is the Rego package root every policy must live under.
const Namespace = "compdef"

// EvaluationMode defines how a policy sees resources.
type EvaluationMode string

const (
	// EvalModeIndividual evaluates each resource on its own.
	EvalModeIndividual EvaluationMode = "individual"
	// EvalModeBatched evaluates all resources of matching type together.
	EvalModeBatched EvaluationMode = "batched"
)

// Metadata is read from the policy's `metadata` rule.
type Metadata struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Severity       result.Severity `json:"severity"`
	EvaluationMode EvaluationMode  `json:"evaluation_mode"`
	ResourceTypes  []string        `json:"resource_types"`
}

// LoadedPolicy is a compiled policy ready for evaluation.
type LoadedPolicy struct {
	Metadata
	Module string

	query rego.PreparedEvalQuery
}

// Engine evaluates Rego policies against component definition resources.
type Engine struct {
	policies []LoadedPolicy
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{}
}

// LoadPolicy compiles a Rego module and reads its metadata.
func (e *Engine) LoadPolicy(ctx context.Context, name, source string) error {
	query, err := rego.New(
		rego.Query("data."+Namespace),
		rego.Module(name+".rego", source),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("invalid Rego policy %s: %w", name, err)
	}

	rs, err := query.Eval(ctx)
	if err != nil {
		return fmt.Errorf("failed to read metadata from policy %s: %w", name, err)
	}

	raw, err := findInResults(rs, "metadata")
	if err != nil {
		return fmt.Errorf("policy %s: %w", name, err)
	}
	md, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("policy %s: metadata is not an object", name)
	}

	meta := parseMetadata(md)
	if meta.ID == "" {
		meta.ID = name
	}
	if meta.EvaluationMode == "" {
		meta.EvaluationMode = EvalModeIndividual
	}

	e.policies = append(e.policies, LoadedPolicy{Metadata: meta, Module: source, query: query})
	return nil
}

// LoadPack loads every policy of a pack.
func (e *Engine) LoadPack(ctx context.Context, pack Pack) error {
	for _, src := range pack.Policies() {
		if err := e.LoadPolicy(ctx, src.Name, src.Source); err != nil {
			return fmt.Errorf("pack %s: %w", pack.Name(), err)
		}
	}
	return nil
}

// Policies returns the loaded policies.
func (e *Engine) Policies() []LoadedPolicy {
	return e.policies
}

// Evaluate runs every loaded policy. A policy that fails to evaluate yields an
// error result rather than aborting the run.
func (e *Engine) Evaluate(ctx context.Context, resources []Resource) []result.PolicyResult {
	results := make([]result.PolicyResult, 0, len(e.policies))
	for i := range e.policies {
		p := &e.policies[i]
		res, err := e.evaluatePolicy(ctx, p, resources)
		if err != nil {
			results = append(results, result.PolicyResult{
				PolicyID:      p.ID,
				Name:          p.Name,
				Status:        result.StatusError,
				Severity:      p.Severity,
				Message:       fmt.Sprintf("Policy evaluation error: %v", err),
				ResourceTypes: p.ResourceTypes,
			})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// Lint evaluates the given packs against a component definition.
func Lint(ctx context.Context, cd *oscal.ComponentDefinition, packs ...Pack) ([]result.PolicyResult, error) {
	eng := New()
	for _, p := range packs {
		if err := eng.LoadPack(ctx, p); err != nil {
			return nil, err
		}
	}

	resources, err := FromDefinition(cd)
	if err != nil {
		return nil, err
	}
	return eng.Evaluate(ctx, resources), nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, p *LoadedPolicy, resources []Resource) (*result.PolicyResult, error) {
	matching := filterResources(resources, p.ResourceTypes)

	res := &result.PolicyResult{
		PolicyID:      p.ID,
		Name:          p.Name,
		Severity:      p.Severity,
		ResourceTypes: p.ResourceTypes,
	}

	if len(matching) == 0 {
		res.Status = result.StatusSkip
		res.Message = "No matching resources to evaluate"
		return res, nil
	}

	var violations []result.Violation
	if p.EvaluationMode == EvalModeBatched {
		batch := make([]map[string]interface{}, len(matching))
		for i := range matching {
			batch[i] = matching[i].input()
		}
		v, err := evaluate(ctx, p, map[string]interface{}{"resources": batch})
		if err != nil {
			return nil, err
		}
		violations = v
	} else {
		for i := range matching {
			v, err := evaluate(ctx, p, matching[i].input())
			if err != nil {
				return nil, err
			}
			violations = append(violations, v...)
		}
	}

	res.ResourcesEvaluated = len(matching)
	res.Violations = violations
	res.ResourcesFailed = countResources(violations)

	if len(violations) > 0 {
		res.Status = result.StatusFail
		res.Message = fmt.Sprintf("%d violation(s) found", len(violations))
	} else {
		res.Status = result.StatusPass
		res.Message = "All resources compliant"
	}
	return res, nil
}

func evaluate(ctx context.Context, p *LoadedPolicy, input interface{}) ([]result.Violation, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	raw, err := findInResults(rs, "violations")
	if err != nil {
		return nil, nil //nolint:nilerr // a policy with no matching violations rule produces none
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}

	violations := make([]result.Violation, 0, len(items))
	for _, item := range items {
		if v, ok := parseViolation(item); ok {
			violations = append(violations, v)
		}
	}
	// sets come back unordered
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].ResourceID != violations[j].ResourceID {
			return violations[i].ResourceID < violations[j].ResourceID
		}
		return violations[i].Reason < violations[j].Reason
	})
	return violations, nil
}

var errNotFound = errors.New("not found in policy output")

// findInResults looks up key at any depth below the namespace root, since
// policies may nest packages (compdef.structure.empty_component).
func findInResults(rs rego.ResultSet, key string) (interface{}, error) {
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, errNotFound
	}
	root, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, errNotFound
	}
	if v := findRecursive(root, key); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("%s %w", key, errNotFound)
}

func findRecursive(obj map[string]interface{}, key string) interface{} {
	if v, ok := obj[key]; ok {
		return v
	}
	for _, v := range obj {
		if nested, ok := v.(map[string]interface{}); ok {
			if found := findRecursive(nested, key); found != nil {
				return found
			}
		}
	}
	return nil
}

func parseMetadata(md map[string]interface{}) Metadata {
	var m Metadata
	if v, ok := md["id"].(string); ok {
		m.ID = v
	}
	if v, ok := md["name"].(string); ok {
		m.Name = v
	}
	if v, ok := md["severity"].(string); ok {
		m.Severity = result.Severity(v)
	}
	if v, ok := md["evaluation_mode"].(string); ok {
		m.EvaluationMode = EvaluationMode(v)
	}
	if rt, ok := md["resource_types"].([]interface{}); ok {
		for _, r := range rt {
			if s, ok := r.(string); ok {
				m.ResourceTypes = append(m.ResourceTypes, s)
			}
		}
	}
	return m
}

func parseViolation(item interface{}) (result.Violation, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return result.Violation{}, false
	}
	var v result.Violation
	if s, ok := m["resource_id"].(string); ok {
		v.ResourceID = s
	}
	if s, ok := m["resource_type"].(string); ok {
		v.ResourceType = s
	}
	if s, ok := m["reason"].(string); ok {
		v.Reason = s
	}
	if d, ok := m["details"].(map[string]interface{}); ok {
		v.Details = d
	}
	return v, true
}

func filterResources(resources []Resource, types []string) []Resource {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Resource
	for i := range resources {
		if want[resources[i].Type] {
			out = append(out, resources[i])
		}
	}
	return out
}

func countResources(violations []result.Violation) int {
	seen := make(map[string]bool)
	for _, v := range violations {
		seen[v.ResourceType+"|"+v.ResourceID] = true
	}
	return len(seen)
}
