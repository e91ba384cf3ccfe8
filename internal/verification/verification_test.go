package verification

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/progress"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
)

type fakeFiles struct {
	data  map[string]string
	mtime map[string]int64
}

func newFiles() *fakeFiles {
	return &fakeFiles{data: map[string]string{}, mtime: map[string]int64{}}
}

func (f *fakeFiles) ReadFile(rel string) ([]byte, error) {
	d, ok := f.data[rel]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(d), nil
}

func (f *fakeFiles) ModTime(rel string) (int64, bool) {
	t, ok := f.mtime[rel]
	return t, ok
}

func intp(v int) *int { return &v }

func inventory(items ...surface.Item) *surface.Inventory {
	return &surface.Inventory{SchemaVersion: 1, Items: items}
}

func option(id string) surface.Item {
	return surface.Item{Kind: surface.KindOption, ID: id}
}

func behaviorPlan(specs ...scenarios.Spec) *scenarios.Plan {
	return &scenarios.Plan{
		SchemaVersion: 1,
		Verification: &scenarios.VerificationConfig{
			Policy: &scenarios.Policy{Kinds: []string{"option"}},
		},
		Scenarios: specs,
	}
}

func verified(id string) enrich.VerificationEntry {
	return enrich.VerificationEntry{
		SurfaceID:      id,
		Status:         enrich.StatusVerified,
		BehaviorStatus: enrich.StatusVerified,
		EvidencePaths:  []string{},
	}
}

func unverified(id, reason string) enrich.VerificationEntry {
	return enrich.VerificationEntry{
		SurfaceID:      id,
		Status:         enrich.StatusVerified,
		BehaviorStatus: enrich.StatusUnverified,
		ReasonCode:     reason,
		EvidencePaths:  []string{},
	}
}

func TestExistenceTierComplete(t *testing.T) {
	e := verified("-a")
	e.BehaviorStatus = enrich.StatusUnverified
	res := Evaluate(Input{
		RootArg:   ".",
		Tier:      enrich.TierAccepted,
		Inventory: inventory(option("-a"), option("-b")),
		Plan:      behaviorPlan(),
		Entries:   []enrich.VerificationEntry{e, verified("-b")},
	})

	assert.Equal(t, enrich.StateMet, res.Status.State)
	assert.Equal(t, "verification existence complete (tier=accepted; behavior_remaining=1 not required)", res.Status.Reason)
	assert.Nil(t, res.NextAction)
	assert.Equal(t, 2, *res.Status.AcceptedVerifiedCount)
	assert.Equal(t, 2, res.Info.TargetCount)
}

func TestExistenceTierAsksForApply(t *testing.T) {
	plan := behaviorPlan()
	plan.Verification.Policy.Excludes = []scenarios.PolicyExclude{{SurfaceID: "-x", Reason: "destructive"}}
	excluded := unverified("-x", "")
	excluded.Status = enrich.StatusExcluded

	res := Evaluate(Input{
		RootArg:   "pack",
		Tier:      enrich.TierAccepted,
		Inventory: inventory(option("-a"), option("-b"), option("-x")),
		Plan:      plan,
		Index:     scenarios.NewIndex(),
		Entries: []enrich.VerificationEntry{
			{SurfaceID: "-a", Status: enrich.StatusPending},
			verified("-b"),
			excluded,
		},
	})

	require.NotNil(t, res.NextAction)
	assert.Equal(t, enrich.StateUnmet, res.Status.State)
	assert.Equal(t, "verification existence incomplete (tier=accepted)", res.Status.Reason)
	assert.True(t, res.NextAction.IsCommand())
	assert.Equal(t, "bman apply pack", res.NextAction.Command)
	assert.Equal(t, "auto verification remaining: 1 (option 1); max_new_runs_per_apply=50", res.NextAction.Reason)
	assert.Equal(t, []string{"-a"}, res.Status.UnverifiedIDs)
	assert.Equal(t, 1, res.Status.Verification.ExcludedCount)
	assert.Equal(t, "destructive", res.Status.Verification.Excluded[0].Reason)
}

func TestExistenceTierStuckAsksForWorkaround(t *testing.T) {
	plan := behaviorPlan()
	inv := inventory(option("-a"))
	spec := scenarios.AutoScenarios([]scenarios.AutoTarget{{SurfaceID: "-a"}})[0]
	_, digest, err := scenarios.EffectiveConfig(plan, spec)
	require.NoError(t, err)
	idx := scenarios.NewIndex()
	idx.Put(scenarios.IndexEntry{ScenarioID: spec.ID, ScenarioDigest: digest, LastPass: false})

	res := Evaluate(Input{
		RootArg:   ".",
		Tier:      enrich.TierAccepted,
		Inventory: inv,
		Plan:      plan,
		Index:     idx,
		Entries:   []enrich.VerificationEntry{{SurfaceID: "-a", Status: enrich.StatusUnverified, ScenarioID: spec.ID}},
	})

	require.NotNil(t, res.NextAction)
	assert.True(t, res.NextAction.IsEdit())
	assert.Equal(t, docpack.OverlaysPath, res.NextAction.Path)
	assert.Equal(t, enrich.StrategyReplaceFile, res.NextAction.MergeStrategy)

	var doc overlayPatch
	require.NoError(t, json.Unmarshal([]byte(res.NextAction.Content), &doc))
	assert.Equal(t, 1, doc.SchemaVersion)
	require.Len(t, doc.Overlays, 1)
	assert.Equal(t, []string{RequiredArgvPlaceholder}, doc.Overlays[0].Invocation.RequiresArgv)
	assert.Equal(t, []string{"-a: auto verification exits non-zero"}, res.Status.Verification.StubBlockersPreview)
}

func TestBehaviorScaffoldsMissingScenarios(t *testing.T) {
	inv := inventory(option("--color"), option("--size"), option("-q"))
	inv.Items[1].Invocation = surface.Invocation{ValueArity: surface.ArityRequired}
	in := Input{
		RootArg:   ".",
		Tier:      enrich.TierBehavior,
		Inventory: inv,
		Plan:      behaviorPlan(),
		Entries: []enrich.VerificationEntry{
			unverified("--color", "no_scenario"),
			unverified("--size", "required_value_missing"),
			verified("-q"),
		},
	}

	res := Evaluate(in)
	require.NotNil(t, res.NextAction)
	assert.Equal(t, "verification behavior incomplete (tier=behavior)", res.Status.Reason)
	assert.Equal(t, docpack.ScenarioPlanPath, res.NextAction.Path)
	assert.Equal(t, enrich.StrategyUpsertScenariosByID, res.NextAction.MergeStrategy)
	assert.Equal(t, []string{"--color", "--size"}, res.NextAction.Payload.TargetIDs)
	assert.Equal(t, enrich.ReasonNoScenario, res.NextAction.Payload.ReasonCode)
	assert.Contains(t, res.NextAction.Reason, "batched deterministic scaffold for 2 targets")

	var doc scenarioPatch
	require.NoError(t, json.Unmarshal([]byte(res.NextAction.Content), &doc))
	require.Len(t, doc.Scenarios, 3)
	assert.Equal(t, DefaultBaselineID, doc.Scenarios[0].ID)
	assert.Equal(t, "verify_color", doc.Scenarios[1].ID)
	assert.Equal(t, DefaultBaselineID, doc.Scenarios[1].BaselineScenarioID)
	assert.Equal(t, []string{"--size", ValuePlaceholder}, doc.Scenarios[2].Argv)

	// Same state, same bytes.
	again := Evaluate(in)
	assert.Equal(t, res.NextAction.Content, again.NextAction.Content)

	triage := res.Status.Verification
	require.Len(t, triage.BehaviorUnverifiedReasons, 2)
	assert.Equal(t, enrich.ReasonNoScenario, triage.BehaviorUnverifiedReasons[0].ReasonCode)
	assert.Equal(t, enrich.ReasonRequiredValueMissing, triage.BehaviorUnverifiedReasons[1].ReasonCode)
	assert.Equal(t, "add value_examples overlay in inventory/surface.overlays.json", triage.BehaviorUnverifiedReasons[1].RecommendedFix)
}

func TestBehaviorPriorityPrefersScenarioError(t *testing.T) {
	failing := unverified("--b", "scenario_error")
	failing.ScenarioID = "verify_b"
	failing.BehaviorScenarioIDs = []string{"verify_b"}
	plan := behaviorPlan(scenarios.Spec{ID: "verify_b", Argv: []string{"--b"}, Covers: []string{"--b"}, BaselineScenarioID: "base"})

	res := Evaluate(Input{
		RootArg:   ".",
		Tier:      enrich.TierBehavior,
		Inventory: inventory(option("--a"), option("--b")),
		Plan:      plan,
		Entries:   []enrich.VerificationEntry{unverified("--a", "no_scenario"), failing},
	})

	require.NotNil(t, res.NextAction)
	assert.Equal(t, []string{"--b"}, res.NextAction.Payload.TargetIDs)
	assert.Equal(t, enrich.ReasonScenarioError, res.NextAction.Payload.ReasonCode)
	assert.Contains(t, res.NextAction.Reason, "behavior scenario_error for --b in scenario verify_b")
	require.Len(t, res.Status.Verification.Diagnostics, 1)
	assert.Equal(t, "verify_b", res.Status.Verification.Diagnostics[0].ScenarioID)
}

func TestBehaviorPendingAsksForApply(t *testing.T) {
	pending := unverified("--a", "")
	pending.BehaviorStatus = enrich.StatusPending

	res := Evaluate(Input{
		RootArg:   ".",
		Tier:      enrich.TierBehavior,
		Inventory: inventory(option("--a")),
		Plan:      behaviorPlan(),
		Entries:   []enrich.VerificationEntry{pending},
	})

	require.NotNil(t, res.NextAction)
	assert.Equal(t, "bman apply .", res.NextAction.Command)
	assert.Equal(t, "run behavior verification for --a", res.NextAction.Reason)
}

func TestBehaviorExistencePrePass(t *testing.T) {
	res := Evaluate(Input{
		RootArg:   ".",
		Tier:      enrich.TierBehavior,
		Inventory: inventory(option("--a")),
		Plan:      behaviorPlan(),
		Index:     scenarios.NewIndex(),
		Entries:   []enrich.VerificationEntry{{SurfaceID: "--a", Status: enrich.StatusUnverified, BehaviorStatus: enrich.StatusUnverified, ReasonCode: "no_scenario"}},
	})

	require.NotNil(t, res.NextAction)
	assert.True(t, res.NextAction.IsCommand())
	assert.Contains(t, res.NextAction.Reason, "auto verification remaining: 1")
}

func outputsEqualEntry(id string) enrich.VerificationEntry {
	e := unverified(id, "outputs_equal")
	e.ScenarioID = "verify_" + id[2:]
	e.BehaviorScenarioIDs = []string{e.ScenarioID}
	e.DeltaOutcome = "outputs_equal"
	e.DeltaEvidencePaths = []string{
		scenarios.EvidencePath(e.ScenarioID, 100),
		scenarios.EvidencePath("baseline", 100),
	}
	return e
}

func outputsEqualInput(files *fakeFiles, withHint bool, p *progress.Progress) Input {
	item := option("--color")
	overlays := &surface.Overlays{SchemaVersion: 1}
	if withHint {
		item.Invocation.RequiresArgv = []string{"show"}
		overlays.Overlays = []surface.Overlay{{ID: "--color", Invocation: &surface.OverlayInvocation{RequiresArgv: []string{"show"}}}}
	}
	return Input{
		Files:     files,
		RootArg:   ".",
		Tier:      enrich.TierBehavior,
		Inventory: inventory(item),
		Overlays:  overlays,
		Plan:      behaviorPlan(),
		Entries:   []enrich.VerificationEntry{outputsEqualEntry("--color")},
		Progress:  p,
	}
}

func TestOutputsEqualNeedsWorkaround(t *testing.T) {
	res := Evaluate(outputsEqualInput(newFiles(), false, nil))

	require.NotNil(t, res.NextAction)
	assert.Equal(t, docpack.OverlaysPath, res.NextAction.Path)
	assert.Equal(t, enrich.StrategyMergeOverlaysByID, res.NextAction.MergeStrategy)
	assert.Equal(t, "add requires_argv workaround overlays in inventory/surface.overlays.json; see verification.stub_blockers_preview", res.NextAction.Reason)
	assert.Equal(t, []string{"overlays[].invocation.requires_argv"}, res.NextAction.Payload.SuggestedOverlayKeys)

	var doc overlayPatch
	require.NoError(t, json.Unmarshal([]byte(res.NextAction.Content), &doc))
	assert.Zero(t, doc.SchemaVersion)
	assert.Equal(t, "--color", doc.Overlays[0].ID)
}

func TestOutputsEqualStateMachine(t *testing.T) {
	files := newFiles()
	variant := scenarios.EvidencePath("verify_color", 100)
	files.mtime[docpack.OverlaysPath] = 200
	files.mtime[variant] = 100

	// Workaround newer than the evidence: rerun.
	res := Evaluate(outputsEqualInput(files, true, nil))
	require.NotNil(t, res.NextAction)
	assert.True(t, res.NextAction.IsCommand())
	assert.Equal(t, "bman apply . --rerun-scenario-id verify_color", res.NextAction.Command)
	assert.Equal(t, "requires_argv workaround is present but outputs_equal evidence has not progressed; rerun targeted behavior delta checks for 1 scenario ids (1 targets, no-progress retry 1/2)", res.NextAction.Reason)

	// Retries exhausted: terminal exclusion edit.
	p := progress.New()
	entry := outputsEqualEntry("--color")
	p.OutputsEqualRetriesBySurface["--color"] = progress.OutputsEqualRetry{RetryCount: 2, DeltaSignature: progress.DeltaSignature(entry)}
	res = Evaluate(outputsEqualInput(files, true, p))
	require.NotNil(t, res.NextAction)
	assert.True(t, res.NextAction.IsEdit())
	assert.Contains(t, res.NextAction.Reason, "stopped outputs_equal retries after 2 no-progress attempts")
	var doc overlayPatch
	require.NoError(t, json.Unmarshal([]byte(res.NextAction.Content), &doc))
	require.NotNil(t, doc.Overlays[0].BehaviorExclusion)
	assert.Equal(t, surface.ExcludeFixtureGap, doc.Overlays[0].BehaviorExclusion.ReasonCode)
	assert.Equal(t, variant, doc.Overlays[0].BehaviorExclusion.Evidence.DeltaVariantPath)

	// Evidence newer than the workaround: exclusion.
	files.mtime[variant] = 300
	res = Evaluate(outputsEqualInput(files, true, nil))
	require.NotNil(t, res.NextAction)
	assert.True(t, res.NextAction.IsEdit())
	assert.Contains(t, res.NextAction.Reason, "add behavior_exclusion stubs")
	assert.Equal(t, variant, res.NextAction.Payload.LatestDeltaPath)
}

func TestOutputsEqualStateFor(t *testing.T) {
	entry := outputsEqualEntry("--color")
	hinted := option("--color")
	hinted.Invocation.RequiresArgv = []string{"show"}

	files := newFiles()
	assert.Equal(t, NeedsWorkaround, OutputsEqualStateFor(files, option("--color"), entry))
	assert.Equal(t, ReadyForExclusion, OutputsEqualStateFor(files, hinted, entry), "no overlays file")

	files.mtime[docpack.OverlaysPath] = 100
	assert.Equal(t, NeedsDeltaRerun, OutputsEqualStateFor(files, hinted, entry), "no delta evidence on disk")
	files.mtime[entry.DeltaEvidencePaths[1]] = 100
	assert.Equal(t, NeedsDeltaRerun, OutputsEqualStateFor(files, hinted, entry))
	files.mtime[entry.DeltaEvidencePaths[0]] = 101
	assert.Equal(t, ReadyForExclusion, OutputsEqualStateFor(files, hinted, entry))
}

func assertionFailedInput(p *progress.Progress, evidence string) Input {
	entry := unverified("--count", "assertion_failed")
	entry.ScenarioID = "verify_count"
	entry.BehaviorScenarioIDs = []string{"verify_count"}
	entry.AssertionKind = "variant_stdout_has_line"
	entry.EvidencePaths = []string{evidence}
	plan := behaviorPlan(
		scenarios.Spec{ID: "baseline", Expect: scenarios.Expect{ExitCode: intp(0)}},
		scenarios.Spec{
			ID: "verify_count", Argv: []string{"--count"}, Covers: []string{"--count"},
			BaselineScenarioID: "baseline",
			Assertions:         []scenarios.Assertion{{Kind: scenarios.AssertVariantHasLine, StdoutToken: "3"}},
		},
	)
	return Input{
		RootArg:   ".",
		Tier:      enrich.TierBehavior,
		Inventory: inventory(option("--count")),
		Plan:      plan,
		Entries:   []enrich.VerificationEntry{entry},
		Progress:  p,
	}
}

func TestAssertionFailedNoopGuardConverges(t *testing.T) {
	p := progress.New()
	edits, reruns := 0, 0

	for i := 0; i < 6; i++ {
		in := assertionFailedInput(p, fmt.Sprintf("inventory/scenarios/verify_count-%d.json", i+1))
		res := Evaluate(in)
		require.NotNil(t, res.NextAction)

		if res.NextAction.IsEdit() {
			edits++
			require.NotNil(t, res.Signature)
			assert.Equal(t, enrich.ReasonAssertionFailed, res.Signature.ReasonCode)
			p.RecordEdit(*res.Signature)
			continue
		}
		if res.NextAction.Payload.SuggestedExclusion != nil {
			assert.Equal(t, "bman status .", res.NextAction.Command)
			assert.Equal(t, "fixture_gap", res.NextAction.Payload.SuggestedExclusion.ReasonCode)
			break
		}
		reruns++
		assert.Equal(t, "bman apply . --rerun-scenario-id verify_count", res.NextAction.Command)
		assert.Contains(t, res.NextAction.Reason, fmt.Sprintf("(no-progress attempt %d/2)", reruns))

		// The forced rerun produced identical evidence.
		_, failing := ConvergenceTargets(in)
		require.Len(t, failing, 1)
		p.UpdateAssertionFailedAfterApply(failing, []string{"verify_count"})
	}

	assert.Equal(t, 1, edits)
	assert.Equal(t, enrich.AssertionFailedNoopCap, reruns)
}

func TestInvalidExclusionBlocks(t *testing.T) {
	in := outputsEqualInput(newFiles(), true, nil)
	in.Overlays.Overlays = append(in.Overlays.Overlays, surface.Overlay{
		ID: "--color",
		BehaviorExclusion: &surface.BehaviorExclusion{
			ReasonCode: surface.ExcludeFixtureGap,
			Evidence:   surface.ExclusionEvidence{DeltaVariantPath: "inventory/scenarios/other-1.json"},
		},
	})

	res := Evaluate(in)
	assert.Equal(t, enrich.StateBlocked, res.Status.State)
	assert.Equal(t, "verification inputs blocked (tier=behavior)", res.Status.Reason)
	require.Len(t, res.Status.Blockers, 1)
	assert.Equal(t, "behavior_exclusion_invalid", res.Status.Blockers[0].Code)
}

func TestValidExclusionCompletesBehavior(t *testing.T) {
	in := outputsEqualInput(newFiles(), true, nil)
	in.Overlays.Overlays[0].BehaviorExclusion = &surface.BehaviorExclusion{
		ReasonCode: surface.ExcludeFixtureGap,
		Note:       ExclusionNote,
		Evidence:   surface.ExclusionEvidence{DeltaVariantPath: scenarios.EvidencePath("verify_color", 100)},
	}

	res := Evaluate(in)
	assert.Equal(t, enrich.StateMet, res.Status.State)
	assert.Equal(t, "verification behavior complete (tier=behavior)", res.Status.Reason)
	assert.Equal(t, 1, res.Status.Verification.ExcludedCount)
	assert.Equal(t, "behavior_exclusion: fixture_gap", res.Status.Verification.Excluded[0].Reason)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		entry   enrich.VerificationEntry
		missing bool
		want    enrich.ReasonCode
	}{
		{"legacy spelling", enrich.VerificationEntry{ReasonCode: "missing_behavior_scenario"}, false, enrich.ReasonNoScenario},
		{"missing value without scenario", enrich.VerificationEntry{}, true, enrich.ReasonNoScenario},
		{"missing value with scenario", enrich.VerificationEntry{BehaviorScenarioIDs: []string{"s"}}, true, enrich.ReasonRequiredValueMissing},
		{"empty", enrich.VerificationEntry{}, false, enrich.ReasonUnknown},
		{"unrecognized", enrich.VerificationEntry{ReasonCode: "weird"}, false, enrich.ReasonUnknown},
		{"assertion", enrich.VerificationEntry{ReasonCode: "assertion_failed"}, false, enrich.ReasonAssertionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.entry, tt.missing))
		})
	}
}

func TestTriagePreviewIsCapped(t *testing.T) {
	var items []surface.Item
	var entries []enrich.VerificationEntry
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("--opt%02d", i)
		items = append(items, option(id))
		entries = append(entries, unverified(id, "no_scenario"))
	}
	in := Input{RootArg: ".", Tier: enrich.TierBehavior, Inventory: inventory(items...), Plan: behaviorPlan(), Entries: entries}

	res := Evaluate(in)
	triage := res.Status.Verification
	assert.Equal(t, 25, triage.TriagedUnverifiedCount)
	assert.Len(t, triage.TriagedUnverifiedPreview, enrich.TriagePreviewLimit)
	assert.Len(t, res.NextAction.Payload.TargetIDs, enrich.BehaviorBatchLimit)

	in.Full = true
	full := Evaluate(in).Status.Verification
	assert.Len(t, full.TriagedUnverifiedPreview, 25)
	assert.Len(t, full.BehaviorUnverifiedReasons[0].Preview, 25)
}

func TestRepairAddsDeltaAssertion(t *testing.T) {
	entry := unverified("--a", "missing_delta_assertion")
	entry.ScenarioID = "verify_a"
	entry.BehaviorScenarioIDs = []string{"verify_a"}
	plan := behaviorPlan(scenarios.Spec{
		ID: "verify_a", Argv: []string{"--a"}, Covers: []string{"--a"}, CoverageTier: scenarios.TierBehavior,
		Assertions: []scenarios.Assertion{{Kind: scenarios.AssertVariantHasLine, StdoutToken: "A"}},
	})

	res := Evaluate(Input{RootArg: ".", Tier: enrich.TierBehavior, Inventory: inventory(option("--a")), Plan: plan, Entries: []enrich.VerificationEntry{entry}})
	require.NotNil(t, res.NextAction)

	var doc scenarioPatch
	require.NoError(t, json.Unmarshal([]byte(res.NextAction.Content), &doc))
	require.Len(t, doc.Scenarios, 2)
	assert.Equal(t, DefaultBaselineID, doc.Scenarios[0].ID)
	repaired := doc.Scenarios[1]
	assert.Equal(t, DefaultBaselineID, repaired.BaselineScenarioID)
	assert.Equal(t, []scenarios.Assertion{
		{Kind: scenarios.AssertVariantHasLine, StdoutToken: "A"},
		{Kind: scenarios.AssertBaselineLacksLine, StdoutToken: "A"},
	}, repaired.Assertions)

	// The plan itself is untouched.
	assert.Empty(t, plan.Scenarios[0].BaselineScenarioID)
}

func TestCoverageEditScaffoldsAcceptanceScenarios(t *testing.T) {
	inv := inventory(option("--all"), surface.Item{Kind: surface.KindSubcommand, ID: "status"})
	action := CoverageEdit(inv, []string{"--all", "status"})

	assert.Equal(t, enrich.StrategyUpsertScenariosByID, action.MergeStrategy)
	assert.Equal(t, docpack.ScenarioPlanPath, action.Path)
	var doc scenarioPatch
	require.NoError(t, json.Unmarshal([]byte(action.Content), &doc))
	require.Len(t, doc.Scenarios, 2)
	assert.Equal(t, "accept_all", doc.Scenarios[0].ID)
	assert.Equal(t, []string{"--all"}, doc.Scenarios[0].Covers)
	assert.Equal(t, scenarios.TierAcceptance, doc.Scenarios[0].CoverageTier)
	assert.Equal(t, "accept_status", doc.Scenarios[1].ID)
	assert.Equal(t, []string{"--all", "status"}, action.Payload.TargetIDs)
}
