package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		syntax  bool
	}{
		{"minimal", `{"schema_version": 1}`, false, false},
		{"full", `{"schema_version": 1, "scenario_catalogs": ["scenarios/catalog.yaml"],
			"requirements": ["surface", "verification"], "verification_tier": "behavior",
			"verification_lens_template": "queries/v.sql", "extra_inputs": ["fixtures"],
			"binary_name": "ls"}`, false, false},
		{"unknown field", `{"schema_version": 1, "surprise": true}`, true, false},
		{"wrong version", `{"schema_version": 2}`, true, false},
		{"unknown requirement", `{"schema_version": 1, "requirements": ["build"]}`, true, false},
		{"absolute catalog", `{"schema_version": 1, "scenario_catalogs": ["/tmp/x.json"]}`, true, false},
		{"traversal", `{"schema_version": 1, "extra_inputs": ["a/../../b"]}`, true, false},
		{"bad tier", `{"schema_version": 1, "verification_tier": "gold"}`, true, false},
		{"missing version", `{}`, true, false},
		{"truncated", `{"schema_version": 1`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(KindConfig, "enrich/config.json", []byte(tt.data))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			ve, ok := AsValidationError(err)
			require.True(t, ok, "expected ValidationError, got %T", err)
			assert.Equal(t, KindConfig, ve.Kind)
			assert.Equal(t, "enrich/config.json", ve.File)
			assert.Equal(t, tt.syntax, ve.Syntax)
			assert.Equal(t, tt.syntax, IsSyntaxError(err))
			assert.NotEmpty(t, ve.Issues)
			assert.Contains(t, err.Error(), "enrich/config.json")
		})
	}
}

func TestValidateScenarioPlan(t *testing.T) {
	valid := `{
	  "schema_version": 1,
	  "default_env": {"LC_ALL": "C"},
	  "defaults": {"timeout_seconds": 5, "seed_dir": "fixtures/base"},
	  "verification": {
	    "queue": [{"surface_id": "--all", "intent": "verify_behavior"}],
	    "policy": {"kinds": ["option"], "max_new_runs_per_apply": 10,
	               "excludes": [{"surface_id": "--help", "reason": "meta"}]}
	  },
	  "scenarios": [
	    {"id": "help", "kind": "help", "argv": ["--help"], "publish": false},
	    {"id": "baseline", "argv": [], "seed": {"entries": [{"path": ".hidden", "kind": "file"}]}},
	    {"id": "all", "argv": ["--all"], "covers": ["--all"], "coverage_tier": "behavior",
	     "baseline_scenario_id": "baseline",
	     "assertions": [{"kind": "variant_stdout_has_line", "seed_path": ".hidden"}],
	     "expect": {"exit_code": 0, "stdout_contains_all": [".hidden"]}}
	  ]
	}`
	require.NoError(t, Validate(KindScenarioPlan, "scenarios/plan.json", []byte(valid)))

	bad := `{"schema_version": 1, "scenarios": [{"id": "x", "assertions": [{"kind": "stdout_magic"}]}]}`
	err := Validate(KindScenarioPlan, "scenarios/plan.json", []byte(bad))
	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.False(t, ve.Syntax)

	badID := `{"schema_version": 1, "scenarios": [{"id": "../x"}]}`
	require.Error(t, Validate(KindScenarioPlan, "scenarios/plan.json", []byte(badID)))
}

func TestValidateSurface(t *testing.T) {
	inv := `{"schema_version": 1, "items": [
	  {"kind": "option", "id": "--all", "forms": ["-a", "--all"],
	   "invocation": {"value_arity": "none"}}]}`
	require.NoError(t, Validate(KindSurfaceInventory, "inventory/surface.json", []byte(inv)))

	badKind := `{"schema_version": 1, "items": [{"kind": "flag", "id": "--all"}]}`
	require.Error(t, Validate(KindSurfaceInventory, "inventory/surface.json", []byte(badKind)))

	overlays := `{"schema_version": 1, "overlays": [
	  {"id": "--color", "invocation": {"requires_argv": ["--color=always"]}},
	  {"id": "--sort", "behavior_exclusion": {"reason_code": "nondeterministic",
	   "evidence": {"delta_variant_path": "inventory/scenarios/sort-1.json"}}}]}`
	require.NoError(t, Validate(KindSurfaceOverlays, "inventory/surface.overlays.json", []byte(overlays)))

	badReason := `{"schema_version": 1, "overlays": [{"id": "--sort",
	  "behavior_exclusion": {"reason_code": "bored", "evidence": {"delta_variant_path": "x"}}}]}`
	require.Error(t, Validate(KindSurfaceOverlays, "inventory/surface.overlays.json", []byte(badReason)))
}

func TestValidateCatalog(t *testing.T) {
	require.NoError(t, Validate(KindCatalog, "catalog.json", []byte(`{"scenarios": [{"id": "a", "argv": ["-l"]}]}`)))
	require.Error(t, Validate(KindCatalog, "catalog.json", []byte(`{"scenarios": [{"argv": ["-l"]}]}`)))
}

func TestValidateSemantics(t *testing.T) {
	valid := `{"schema_version": 1, "summary": "list files", "synopsis": ["ls [-a] [path]"],
	  "requirements": {"synopsis_min_lines": 1, "options_min_entries": 2}}`
	require.NoError(t, Validate(KindSemantics, "enrich/semantics.json", []byte(valid)))

	unknown := `{"schema_version": 1, "usage": {"line_rules": []}}`
	require.Error(t, Validate(KindSemantics, "enrich/semantics.json", []byte(unknown)))

	negative := `{"schema_version": 1, "requirements": {"options_min_entries": -1}}`
	require.Error(t, Validate(KindSemantics, "enrich/semantics.json", []byte(negative)))
}

func TestValidateUnknownKind(t *testing.T) {
	err := Validate(Kind("#Nope"), "x.json", []byte(`{}`))
	require.Error(t, err)
	_, ok := AsValidationError(err)
	assert.False(t, ok)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{
		Kind: KindConfig,
		File: "enrich/config.json",
		Issues: []Issue{
			{Path: "surprise", Line: 3, Message: "field not allowed"},
			{Path: "tier", Line: 4, Message: "conflicting values"},
		},
	}
	assert.Equal(t, "enrich/config.json:3: schema violation: surprise: field not allowed (and 1 more)", err.Error())

	syntax := &ValidationError{File: "a.json", Syntax: true}
	assert.Equal(t, "a.json: parse error", syntax.Error())
}
