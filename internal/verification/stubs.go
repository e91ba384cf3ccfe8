package verification

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
)

// Placeholders left in scaffolds for a human to replace.
const (
	RequiredArgvPlaceholder = "<required_argv>"
	ValuePlaceholder        = "<value>"
	DefaultBaselineID       = "baseline"
	ExclusionNote           = "still outputs_equal after workarounds"
)

type scenarioPatch struct {
	Scenarios []scenarios.Spec `json:"scenarios"`
}

type overlayPatch struct {
	SchemaVersion int               `json:"schema_version,omitempty"`
	Overlays      []surface.Overlay `json:"overlays"`
}

func mustPatch(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("encode patch: %v", err))
	}
	return string(data) + "\n"
}

// overlayEdit targets the overlays file, replacing it only when it does
// not exist yet.
func overlayEdit(in Input, overlays []surface.Overlay, reason string, payload *enrich.BehaviorPayload) enrich.NextAction {
	if in.Overlays == nil {
		content := mustPatch(overlayPatch{SchemaVersion: surface.OverlaysSchemaVersion, Overlays: overlays})
		return enrich.NewEdit(docpack.OverlaysPath, content, reason, enrich.StrategyReplaceFile).WithPayload(payload)
	}
	content := mustPatch(overlayPatch{Overlays: overlays})
	return enrich.NewEdit(docpack.OverlaysPath, content, reason, enrich.StrategyMergeOverlaysByID).WithPayload(payload)
}

func itemKind(inv *surface.Inventory, id string) surface.ItemKind {
	if it, ok := inv.Find(id); ok {
		return it.Kind
	}
	return surface.KindOption
}

func requiresArgvOverlays(inv *surface.Inventory, ids []string) []surface.Overlay {
	out := make([]surface.Overlay, 0, len(ids))
	for _, id := range ids {
		out = append(out, surface.Overlay{
			ID:         id,
			Kind:       itemKind(inv, id),
			Invocation: &surface.OverlayInvocation{RequiresArgv: []string{RequiredArgvPlaceholder}},
		})
	}
	return out
}

func valueExampleOverlays(inv *surface.Inventory, ids []string) []surface.Overlay {
	out := make([]surface.Overlay, 0, len(ids))
	for _, id := range ids {
		out = append(out, surface.Overlay{
			ID:         id,
			Kind:       itemKind(inv, id),
			Invocation: &surface.OverlayInvocation{ValueExamples: []string{ValuePlaceholder}},
		})
	}
	return out
}

func exclusionOverlays(inv *surface.Inventory, ids []string, byID map[string]enrich.VerificationEntry) []surface.Overlay {
	out := make([]surface.Overlay, 0, len(ids))
	for _, id := range ids {
		out = append(out, surface.Overlay{
			ID:   id,
			Kind: itemKind(inv, id),
			BehaviorExclusion: &surface.BehaviorExclusion{
				ReasonCode: surface.ExcludeFixtureGap,
				Note:       ExclusionNote,
				Evidence:   surface.ExclusionEvidence{DeltaVariantPath: deltaVariantPath(byID[id])},
			},
		})
	}
	return out
}

// deltaVariantPath is the variant half of the delta evidence, or the path
// the variant evidence would have when none was recorded.
func deltaVariantPath(entry enrich.VerificationEntry) string {
	if len(entry.DeltaEvidencePaths) > 0 {
		return entry.DeltaEvidencePaths[0]
	}
	id := entry.ScenarioID
	if id == "" {
		id = entry.SurfaceID
	}
	return "inventory/scenarios/" + scenarios.FileStem(id) + ".json"
}

// StubScenarioID is the id of the scaffolded behavior scenario for a
// surface id.
func StubScenarioID(surfaceID string) string {
	stem := strings.Trim(scenarios.FileStem(surfaceID), "-._")
	if stem == "" {
		stem = "item"
	}
	return "verify_" + stem
}

// baselineID picks the baseline most existing behavior scenarios use.
func baselineID(plan *scenarios.Plan) string {
	counts := map[string]int{}
	for _, s := range plan.Scenarios {
		if s.BaselineScenarioID != "" {
			counts[s.BaselineScenarioID]++
		}
	}
	best := DefaultBaselineID
	for id, n := range counts {
		if n > counts[best] || (n == counts[best] && id < best) {
			best = id
		}
	}
	return best
}

func baselineStub(id string) scenarios.Spec {
	zero := 0
	return scenarios.Spec{
		ID:             id,
		Kind:           scenarios.KindBehavior,
		Argv:           []string{},
		CoverageTier:   scenarios.TierAcceptance,
		CoverageIgnore: true,
		Expect:         scenarios.Expect{ExitCode: &zero},
	}
}

func invocationArgv(it surface.Item, id string) []string {
	argv := slices.Clone(it.Invocation.RequiresArgv)
	argv = append(argv, id)
	if it.Invocation.ValueArity == surface.ArityRequired {
		switch {
		case len(it.Invocation.ValueExamples) > 0:
			argv = append(argv, it.Invocation.ValueExamples[0])
		case it.Invocation.ValuePlaceholder != "":
			argv = append(argv, it.Invocation.ValuePlaceholder)
		default:
			argv = append(argv, ValuePlaceholder)
		}
	}
	return argv
}

// behaviorStubs scaffolds one variant scenario per id, plus the baseline
// when the plan does not declare it.
func behaviorStubs(in Input, ids []string) []scenarios.Spec {
	base := baselineID(in.Plan)
	var out []scenarios.Spec
	if _, ok := in.Plan.Find(base); !ok {
		out = append(out, baselineStub(base))
	}
	zero := 0
	for _, id := range ids {
		it, _ := in.Inventory.Find(id)
		out = append(out, scenarios.Spec{
			ID:                 StubScenarioID(id),
			Kind:               scenarios.KindBehavior,
			Argv:               invocationArgv(it, id),
			CoverageTier:       scenarios.TierBehavior,
			Covers:             []string{id},
			BaselineScenarioID: base,
			Assertions:         []scenarios.Assertion{{Kind: scenarios.AssertVariantDiffersFromBL}},
			Expect:             scenarios.Expect{ExitCode: &zero},
		})
	}
	return out
}

func acceptanceStubs(inv *surface.Inventory, ids []string) []scenarios.Spec {
	out := make([]scenarios.Spec, 0, len(ids))
	zero := 0
	for _, id := range ids {
		it, _ := inv.Find(id)
		out = append(out, scenarios.Spec{
			ID:           strings.Replace(StubScenarioID(id), "verify_", "accept_", 1),
			Kind:         scenarios.KindBehavior,
			Argv:         invocationArgv(it, id),
			CoverageTier: scenarios.TierAcceptance,
			Covers:       []string{id},
			Expect:       scenarios.Expect{ExitCode: &zero},
		})
	}
	return out
}

// repairStubs returns the patch that addresses code for the scenario
// behind entry. Codes without a mechanical fix return the scenario as it
// is, as a scaffold to edit.
func repairStubs(in Input, entry enrich.VerificationEntry, code enrich.ReasonCode) ([]scenarios.Spec, bool) {
	spec, ok := in.Plan.Find(entry.ScenarioID)
	if !ok || spec.IsAuto() {
		return nil, false
	}
	spec = cloneSpec(spec)
	var extra []scenarios.Spec

	switch code {
	case enrich.ReasonSeedMismatch:
		if p := entry.AssertionSeedPath; p != "" && !hasSeedPath(spec, p) {
			if spec.Seed == nil {
				spec.Seed = &scenarios.Seed{}
			}
			spec.Seed.Entries = append(spec.Seed.Entries, scenarios.SeedEntry{Path: p, Kind: "file"})
		}
	case enrich.ReasonMissingDeltaAssertion, enrich.ReasonMissingSemanticPredicate:
		if spec.BaselineScenarioID == "" {
			spec.BaselineScenarioID = baselineID(in.Plan)
			if _, ok := in.Plan.Find(spec.BaselineScenarioID); !ok {
				extra = append(extra, baselineStub(spec.BaselineScenarioID))
			}
		}
		if !spec.HasDeltaAssertion() {
			spec.Assertions = append(spec.Assertions, pairedAssertions(spec.Assertions)...)
		}
	}
	return append(extra, spec), true
}

// pairedAssertions mirrors every variant line assertion onto the baseline,
// falling back to a plain difference check.
func pairedAssertions(existing []scenarios.Assertion) []scenarios.Assertion {
	var out []scenarios.Assertion
	for _, a := range existing {
		switch a.Kind {
		case scenarios.AssertVariantHasLine:
			out = append(out, scenarios.Assertion{Kind: scenarios.AssertBaselineLacksLine, SeedPath: a.SeedPath, StdoutToken: a.StdoutToken})
		case scenarios.AssertVariantLacksLine:
			out = append(out, scenarios.Assertion{Kind: scenarios.AssertBaselineHasLine, SeedPath: a.SeedPath, StdoutToken: a.StdoutToken})
		}
	}
	if len(out) == 0 {
		out = append(out, scenarios.Assertion{Kind: scenarios.AssertVariantDiffersFromBL})
	}
	return out
}

func hasSeedPath(spec scenarios.Spec, p string) bool {
	if spec.Seed == nil {
		return false
	}
	for _, e := range spec.Seed.Entries {
		if e.Path == p {
			return true
		}
	}
	return false
}

func cloneSpec(s scenarios.Spec) scenarios.Spec {
	s.Argv = slices.Clone(s.Argv)
	s.Covers = slices.Clone(s.Covers)
	s.Assertions = slices.Clone(s.Assertions)
	if s.Seed != nil {
		seed := *s.Seed
		seed.Entries = slices.Clone(seed.Entries)
		s.Seed = &seed
	}
	return s
}

// CoverageEdit scaffolds acceptance scenarios for uncovered surface ids.
func CoverageEdit(inv *surface.Inventory, uncovered []string) enrich.NextAction {
	ids := batch(uncovered)
	content := mustPatch(scenarioPatch{Scenarios: acceptanceStubs(inv, ids)})
	return enrich.NewEdit(docpack.ScenarioPlanPath, content,
		fmt.Sprintf("%d surface items have no covering scenario; add acceptance scenarios", len(uncovered)),
		enrich.StrategyUpsertScenariosByID,
	).WithPayload(&enrich.BehaviorPayload{TargetIDs: ids})
}
