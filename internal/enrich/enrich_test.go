package enrich

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFor(t *testing.T) {
	assert.Equal(t, StateBlocked, StateFor([]Blocker{{Code: "x"}}, true))
	assert.Equal(t, StateMet, StateFor(nil, true))
	assert.Equal(t, StateUnmet, StateFor(nil, false))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		reqs     []RequirementStatus
		decision Decision
		reason   string
	}{
		{
			name:     "all met",
			reqs:     []RequirementStatus{{ID: RequirementSurface, State: StateMet}},
			decision: DecisionComplete,
			reason:   "all requirements met",
		},
		{
			name: "unmet",
			reqs: []RequirementStatus{
				{ID: RequirementSurface, State: StateMet},
				{ID: RequirementVerification, State: StateUnmet},
				{ID: RequirementManPage, State: StateUnmet},
			},
			decision: DecisionIncomplete,
			reason:   "unmet requirements: verification, man_page",
		},
		{
			name: "blocked wins",
			reqs: []RequirementStatus{
				{ID: RequirementSurface, State: StateUnmet},
				{ID: RequirementManPage, State: StateBlocked, Blockers: []Blocker{{Code: "missing_manifest"}}},
				{ID: RequirementVerification, State: StateBlocked, Blockers: []Blocker{{Code: "missing_manifest"}, {Code: "x"}}},
			},
			decision: DecisionBlocked,
			reason:   "blockers present: missing_manifest, x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, reason := Decide(tt.reqs)
			assert.Equal(t, tt.decision, d)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPlannedActionsFor(t *testing.T) {
	reqs := []RequirementStatus{
		{ID: RequirementManPage, State: StateUnmet},
		{ID: RequirementVerification, State: StateUnmet},
		{ID: RequirementCoverage, State: StateBlocked},
		{ID: RequirementSurface, State: StateMet},
	}
	assert.Equal(t, []PlannedAction{ActionScenarioRuns, ActionRenderManPage}, PlannedActionsFor(reqs))
	assert.Empty(t, PlannedActionsFor(nil))
	assert.NotNil(t, PlannedActionsFor(nil), "serializes as [] not null")
}

func TestParseRequirementID(t *testing.T) {
	id, err := ParseRequirementID("man_page")
	require.NoError(t, err)
	assert.Equal(t, RequirementManPage, id)

	_, err = ParseRequirementID("build")
	require.Error(t, err)
}

func TestParseReasonCode(t *testing.T) {
	tests := []struct {
		input string
		want  ReasonCode
	}{
		{"", ""},
		{"outputs_equal", ReasonOutputsEqual},
		{"missing_behavior_scenario", ReasonNoScenario},
		{"scenario_failed", ReasonScenarioError},
		{"missing_assertions", ReasonMissingSemanticPredicate},
		{"assertion_seed_path_not_seeded", ReasonSeedMismatch},
		{"seed_signature_mismatch", ReasonSeedMismatch},
		{"missing_value_examples", ReasonRequiredValueMissing},
		{"something_new", ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReasonCode(tt.input))
		})
	}
}

func TestReasonRank(t *testing.T) {
	assert.Less(t, ReasonScenarioError.Rank(), ReasonAssertionFailed.Rank())
	assert.Less(t, ReasonAssertionFailed.Rank(), ReasonNoScenario.Rank())
	assert.Less(t, ReasonNoScenario.Rank(), ReasonOutputsEqual.Rank())
	assert.Less(t, ReasonOutputsEqual.Rank(), ReasonSeedMismatch.Rank())
	assert.Equal(t, len(ReasonPriority), ReasonCode("bogus").Rank())
	assert.Equal(t, "add behavior scenario", ReasonNoScenario.RecommendedFix())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierAccepted, tier)
	assert.Equal(t, "existence", tier.Label())
	assert.Equal(t, "behavior", TierBehavior.Label())

	_, err = ParseTier("gold")
	require.Error(t, err)
}

func TestParseDeltaOutcome(t *testing.T) {
	assert.Equal(t, DeltaSeen, ParseDeltaOutcome("outputs_differ"))
	assert.Equal(t, DeltaOutputsEqual, ParseDeltaOutcome("outputs_equal"))
	assert.Equal(t, DeltaUnknown, ParseDeltaOutcome("weird"))
	assert.Equal(t, DeltaOutcome(""), ParseDeltaOutcome(""))
}

func TestNextActionJSON(t *testing.T) {
	cmd := NewCommand("bman apply --doc-pack /p", "run it")
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"command","command":"bman apply --doc-pack /p","reason":"run it"}`, string(data))

	edit := NewEdit("scenarios/plan.json", "{}", "add", StrategyUpsertScenariosByID).
		WithPayload(&BehaviorPayload{TargetIDs: []string{"--all"}, ReasonCode: ReasonNoScenario})
	data, err = json.Marshal(edit)
	require.NoError(t, err)

	var decoded NextAction
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, edit, decoded)
	assert.True(t, decoded.IsEdit())
	assert.False(t, decoded.IsCommand())
}

func TestNextActionValidate(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown kind", `{"kind":"dance","reason":"x"}`},
		{"command without command", `{"kind":"command","reason":"x"}`},
		{"command with path", `{"kind":"command","command":"c","path":"p","reason":"x"}`},
		{"edit without path", `{"kind":"edit","merge_strategy":"replace_file","reason":"x"}`},
		{"edit bad strategy", `{"kind":"edit","path":"p","merge_strategy":"yolo","reason":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a NextAction
			require.Error(t, json.Unmarshal([]byte(tt.data), &a))
		})
	}
}

func TestShellArg(t *testing.T) {
	assert.Equal(t, ".", ShellArg(""))
	assert.Equal(t, "pack", ShellArg("pack"))
	assert.Equal(t, "'my pack'", ShellArg("my pack"))
	assert.Equal(t, `'it'\''s'`, ShellArg("it's"))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "bman init ls pack", InitCommand("ls", "pack"))
	assert.Equal(t, "bman validate .", ValidateCommand(""))
	assert.Equal(t, "bman status 'my pack'", StatusCommand("my pack"))
	assert.Equal(t, "bman apply pack --rerun-scenario-id a --rerun-scenario-id 'b c'",
		RerunCommand("pack", []string{"a", "b c"}))
}
