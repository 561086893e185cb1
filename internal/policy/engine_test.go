package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

const testPolicy = `
package compdef.test

metadata := {
	"id": "test-policy",
	"name": "Test Policy",
	"severity": "high",
	"evaluation_mode": "individual",
	"resource_types": ["oscal:component"]
}

violations contains violation if {
	input.data.title == "bad"
	violation := {
		"resource_id": input.resource_id,
		"resource_type": input.resource_type,
		"reason": "Component is bad"
	}
}
`

func props(kv ...string) *[]oscal.Property {
	var out []oscal.Property
	for i := 0; i+2 < len(kv); i += 3 {
		out = append(out, oscal.Property{Name: kv[i], Value: kv[i+1], Remarks: kv[i+2]})
	}
	return &out
}

func TestEngine_LoadPolicy(t *testing.T) {
	eng := New()
	require.NoError(t, eng.LoadPolicy(context.Background(), "test-policy", testPolicy))

	policies := eng.Policies()
	require.Len(t, policies, 1)
	assert.Equal(t, "test-policy", policies[0].ID)
	assert.Equal(t, "Test Policy", policies[0].Name)
	assert.Equal(t, result.SeverityHigh, policies[0].Severity)
	assert.Equal(t, EvalModeIndividual, policies[0].EvaluationMode)
	assert.Equal(t, []string{"oscal:component"}, policies[0].ResourceTypes)
}

func TestEngine_LoadPolicy_InvalidRego(t *testing.T) {
	err := New().LoadPolicy(context.Background(), "bad-policy", "this is not valid rego")
	assert.Error(t, err)
}

func TestEngine_LoadPolicy_MissingMetadata(t *testing.T) {
	err := New().LoadPolicy(context.Background(), "no-meta", "package compdef.nometa\n\nviolations := set()\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")
}

func TestEngine_Evaluate(t *testing.T) {
	eng := New()
	require.NoError(t, eng.LoadPolicy(context.Background(), "test-policy", testPolicy))

	resources := []Resource{
		{Type: TypeComponent, ID: "bad/Service", Data: map[string]interface{}{"title": "bad"}},
		{Type: TypeComponent, ID: "good/Service", Data: map[string]interface{}{"title": "good"}},
		{Type: TypeValidationComponent, ID: "bad/validation", Data: map[string]interface{}{"title": "bad"}},
	}

	results := eng.Evaluate(context.Background(), resources)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, result.StatusFail, r.Status)
	assert.Equal(t, 2, r.ResourcesEvaluated)
	assert.Equal(t, 1, r.ResourcesFailed)
	require.Len(t, r.Violations, 1)
	assert.Equal(t, "bad/Service", r.Violations[0].ResourceID)
	assert.Equal(t, "Component is bad", r.Violations[0].Reason)
}

func TestEngine_Evaluate_SkipWithoutResources(t *testing.T) {
	eng := New()
	require.NoError(t, eng.LoadPolicy(context.Background(), "test-policy", testPolicy))

	results := eng.Evaluate(context.Background(), nil)
	require.Len(t, results, 1)
	assert.Equal(t, result.StatusSkip, results[0].Status)
}

func TestLint_BuiltinOnCleanDefinition(t *testing.T) {
	cd := &oscal.ComponentDefinition{
		Components: &[]oscal.DefinedComponent{
			{
				UUID:  "c1",
				Title: "K8s",
				Type:  "Service",
				Props: props(
					"Rule_Id", "rule_a", "rule_set_0",
					"Parameter_Id", "param_a", "rule_set_0",
				),
				ControlImplementations: &[]oscal.ControlImplementationSet{
					{
						Source:        "https://example.com/profile.json",
						SetParameters: &[]oscal.SetParameter{{ParamId: "param_a", Values: []string{"1"}}},
						ImplementedRequirements: []oscal.ImplementedRequirementControlImplementation{
							{ControlId: "ac-2", Props: props("Rule_Id", "rule_a", "")},
						},
					},
				},
			},
			{
				UUID:  "c2",
				Title: "Checker",
				Type:  "validation",
				Props: props(
					"Rule_Id", "rule_a", "rule_set_1",
					"Check_Id", "check_a", "rule_set_1",
				),
			},
		},
	}

	results, err := Lint(context.Background(), cd, Builtin())
	require.NoError(t, err)
	require.Len(t, results, 5)

	for _, r := range results {
		assert.Equal(t, result.StatusPass, r.Status, "%s: %s %v", r.PolicyID, r.Message, r.Violations)
	}
}

func TestLint_BuiltinFindsProblems(t *testing.T) {
	cd := &oscal.ComponentDefinition{
		Components: &[]oscal.DefinedComponent{
			{
				UUID:  "c1",
				Title: "K8s",
				Type:  "Service",
				Props: props(
					"Rule_Id", "rule_a", "rule_set_0",
					"Rule_Id", "rule_b", "rule_set_0",
					"Parameter_Id", "param_a", "rule_set_0",
				),
				ControlImplementations: &[]oscal.ControlImplementationSet{
					{
						Source: "https://example.com/profile.json",
						ImplementedRequirements: []oscal.ImplementedRequirementControlImplementation{
							{ControlId: "ac-2", Props: props("Rule_Id", "rule_x", "")},
						},
					},
				},
			},
			{UUID: "c2", Title: "Empty", Type: "Service"},
			{UUID: "c3", Title: "Empty", Type: "Service"},
			{UUID: "c4", Title: "Checker", Type: "validation", Props: props("Rule_Id", "rule_a", "rule_set_1")},
		},
	}

	results, err := Lint(context.Background(), cd, Builtin())
	require.NoError(t, err)

	byID := make(map[string]result.PolicyResult)
	for _, r := range results {
		byID[r.PolicyID] = r
	}

	assert.Equal(t, result.StatusFail, byID["empty-component"].Status)
	assert.Len(t, byID["empty-component"].Violations, 2)

	consistency := byID["rule-set-consistency"]
	assert.Equal(t, result.StatusFail, consistency.Status)
	assert.Len(t, consistency.Violations, 2, "two rule ids in one set and a dangling reference")

	assert.Equal(t, result.StatusFail, byID["parameter-default"].Status)
	assert.Equal(t, result.StatusFail, byID["duplicate-component"].Status)
	assert.Equal(t, result.StatusFail, byID["validation-check"].Status)

	assert.True(t, result.Summarize(results).HasFailures())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(testPolicy), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0600))

	pack, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, pack.Policies(), 1)
	assert.Equal(t, "custom", pack.Policies()[0].Name)

	_, err = LoadDir(t.TempDir())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Builtin()))
	assert.Error(t, reg.Register(Builtin()))

	p, err := reg.Get(BuiltinPackName)
	require.NoError(t, err)
	assert.Len(t, p.Policies(), 5)
	assert.Equal(t, []string{BuiltinPackName}, reg.List())

	_, err = reg.Get("missing")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	packs, err := Resolve([]string{BuiltinPackName}, "")
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, BuiltinPackName, packs[0].Name())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(testPolicy), 0600))
	packs, err = Resolve([]string{BuiltinPackName}, dir)
	require.NoError(t, err)
	assert.Len(t, packs, 2)

	_, err = Resolve([]string{"missing"}, "")
	assert.Error(t, err)
}
