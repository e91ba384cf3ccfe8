// Package verification evaluates the verification requirement for one
// tier and picks the single next step that moves it forward.
//
// Evaluation is a pure function of the published pack state, the live
// ledger rows and the progress store. Nothing here writes files.
package verification

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/progress"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
)

// Files is the read-only view of the pack the evaluator needs.
type Files interface {
	ReadFile(rel string) ([]byte, error)
	ModTime(rel string) (int64, bool)
}

// Input is everything one evaluation reads.
type Input struct {
	Files Files

	// RootArg is the pack path as it should appear in suggested commands.
	RootArg string

	Tier      enrich.Tier
	Inventory *surface.Inventory // overlays already merged
	Overlays  *surface.Overlays  // nil when the overlays file is absent
	Plan      *scenarios.Plan
	Index     *scenarios.Index
	Entries   []enrich.VerificationEntry
	Progress  *progress.Progress
	Full      bool
}

// Result is the outcome of Evaluate.
type Result struct {
	Status     enrich.RequirementStatus
	NextAction *enrich.NextAction

	// Signature is set when NextAction is an assertion_failed Edit. Apply
	// records it so a repeat can be detected.
	Signature *enrich.ActionSignature

	Info enrich.VerificationPlanInfo
}

// Evaluate computes the verification requirement for in.Tier.
func Evaluate(in Input) Result {
	if in.Progress == nil {
		in.Progress = progress.New()
	}
	if in.Tier == enrich.TierBehavior {
		return evaluateBehavior(in)
	}
	return evaluateExistence(in)
}

// InputsMissing is the requirement result when a verification input file
// is absent.
func InputsMissing(tier enrich.Tier, missing []string) enrich.RequirementStatus {
	return enrich.RequirementStatus{
		ID:               enrich.RequirementVerification,
		State:            enrich.StateUnmet,
		Reason:           fmt.Sprintf("verification inputs missing: %s (tier=%s)", strings.Join(missing, "; "), tier),
		VerificationTier: tier,
	}
}

// InputsBlocked is the requirement result when a verification input could
// not be read.
func InputsBlocked(tier enrich.Tier, blockers []enrich.Blocker) enrich.RequirementStatus {
	return enrich.RequirementStatus{
		ID:               enrich.RequirementVerification,
		State:            enrich.StateBlocked,
		Reason:           fmt.Sprintf("verification inputs blocked (tier=%s)", tier),
		Blockers:         blockers,
		VerificationTier: tier,
	}
}

// existenceTargets are the policy-kind items. Policy excludes stay in the
// list; the ledger marks them excluded.
func existenceTargets(in Input) []string {
	return in.Inventory.IDsOfKinds(in.Plan.PolicyKinds())
}

// behaviorTargets are the queued behavior ids, or every policy-kind item
// when nothing is queued, minus policy excludes.
func behaviorTargets(in Input) []string {
	ids := slices.Clone(in.Plan.BehaviorQueue())
	if len(ids) == 0 {
		ids = in.Inventory.IDsOfKinds(in.Plan.PolicyKinds())
	}
	excludes := in.Plan.PolicyExcludes()
	ids = slices.DeleteFunc(ids, func(id string) bool {
		_, ok := excludes[id]
		return ok
	})
	slices.Sort(ids)
	return slices.Compact(ids)
}

type existence struct {
	targets   []string
	remaining []string
	excluded  []enrich.ExcludedTarget
	verified  int
}

func computeExistence(in Input, targets []string, byID map[string]enrich.VerificationEntry) existence {
	excludes := in.Plan.PolicyExcludes()
	var ex existence
	for _, id := range targets {
		e := byID[id]
		if reason, ok := excludes[id]; ok || e.Status == enrich.StatusExcluded {
			ex.excluded = append(ex.excluded, enrich.ExcludedTarget{SurfaceID: id, Reason: reason})
			continue
		}
		ex.targets = append(ex.targets, id)
		if e.Verified() {
			ex.verified++
		} else {
			ex.remaining = append(ex.remaining, id)
		}
	}
	return ex
}

// stuck reports whether every remaining id already failed its current
// auto-verify scenario, so another apply cannot make progress.
func stuck(in Input, remaining []string) bool {
	if len(remaining) == 0 || in.Index == nil {
		return false
	}
	for _, id := range remaining {
		it, _ := in.Inventory.Find(id)
		spec := scenarios.AutoScenarios([]scenarios.AutoTarget{{SurfaceID: id, RequiresArgv: it.Invocation.RequiresArgv}})[0]
		_, digest, err := scenarios.EffectiveConfig(in.Plan, spec)
		if err != nil {
			return false
		}
		entry, ok := in.Index.Get(spec.ID)
		if !ok || entry.LastPass || entry.ScenarioDigest != digest {
			return false
		}
	}
	return true
}

func evaluateExistence(in Input) Result {
	byID := entriesByID(in.Entries)
	ex := computeExistence(in, existenceTargets(in), byID)

	behaviorRemaining := 0
	for _, id := range ex.targets {
		if !byID[id].BehaviorVerified() {
			behaviorRemaining++
		}
	}

	st := enrich.RequirementStatus{
		ID:                      enrich.RequirementVerification,
		VerificationTier:        enrich.TierAccepted,
		UnverifiedIDs:           preview(ex.remaining, in.Full),
		AcceptedVerifiedCount:   intPtr(ex.verified),
		AcceptedUnverifiedCount: intPtr(len(ex.remaining)),
		BehaviorVerifiedCount:   intPtr(len(ex.targets) - behaviorRemaining),
		BehaviorUnverifiedCount: intPtr(behaviorRemaining),
		Evidence:                evidenceFor(ex.remaining, byID),
		Verification: &enrich.VerificationTriage{
			TriagedUnverifiedCount:   len(ex.remaining),
			TriagedUnverifiedPreview: orEmpty(preview(ex.remaining, in.Full)),
			RemainingByKind:          remainingByKind(in.Inventory, ex.remaining),
			ExcludedCount:            len(ex.excluded),
			Excluded:                 ex.excluded,
		},
	}
	info := enrich.VerificationPlanInfo{
		Tier:           enrich.TierAccepted,
		TargetCount:    len(ex.targets),
		RemainingCount: len(ex.remaining),
		ExcludedCount:  len(ex.excluded),
	}

	if len(ex.remaining) == 0 {
		st.State = enrich.StateMet
		st.Reason = "verification existence complete (tier=accepted)"
		if behaviorRemaining > 0 {
			st.Reason = fmt.Sprintf("verification existence complete (tier=accepted; behavior_remaining=%d not required)", behaviorRemaining)
		}
		return Result{Status: st, Info: info}
	}

	st.State = enrich.StateUnmet
	st.Reason = "verification existence incomplete (tier=accepted)"
	action := existenceAction(in, ex.remaining, st.Verification)
	return Result{Status: st, NextAction: &action, Info: info}
}

// existenceAction asks for another apply while auto-verify can still make
// progress. Once every remaining id has failed its auto scenario, it asks
// for invocation workarounds instead.
func existenceAction(in Input, remaining []string, triage *enrich.VerificationTriage) enrich.NextAction {
	if !stuck(in, remaining) {
		limit := in.Plan.MaxNewRunsPerApply()
		reason := fmt.Sprintf("auto verification remaining: %d (%s); max_new_runs_per_apply=%d", len(remaining), kindCounts(in.Inventory, remaining), limit)
		if len(remaining) > limit {
			reason += fmt.Sprintf("; set scenarios/plan.json verification.policy.max_new_runs_per_apply >= %d to finish in one apply", len(remaining))
		}
		return enrich.NewCommand(applyCommand(in.RootArg), reason).
			WithPayload(&enrich.BehaviorPayload{TargetIDs: batch(remaining)})
	}

	var withoutHint []string
	for _, id := range remaining {
		if !hasRequiresArgv(in.Inventory, id) {
			withoutHint = append(withoutHint, id)
		}
	}
	if len(withoutHint) > 0 {
		ids := batch(withoutHint)
		triage.StubBlockersPreview = stubBlockers(ids, "auto verification exits non-zero", in.Full)
		return overlayEdit(in,
			requiresArgvOverlays(in.Inventory, ids),
			fmt.Sprintf("auto verification failed for %d targets; add requires_argv workaround overlays in %s", len(ids), docpack.OverlaysPath),
			&enrich.BehaviorPayload{TargetIDs: ids, SuggestedOverlayKeys: []string{"overlays[].invocation.requires_argv"}},
		)
	}

	ids := batch(remaining)
	content := mustPatch(scenarioPatch{Scenarios: acceptanceStubs(in.Inventory, ids)})
	return enrich.NewEdit(docpack.ScenarioPlanPath, content,
		fmt.Sprintf("auto verification still fails with requires_argv for %d targets; add acceptance scenarios with working argv", len(ids)),
		enrich.StrategyUpsertScenariosByID,
	).WithPayload(&enrich.BehaviorPayload{TargetIDs: ids})
}

func entriesByID(entries []enrich.VerificationEntry) map[string]enrich.VerificationEntry {
	out := make(map[string]enrich.VerificationEntry, len(entries))
	for _, e := range entries {
		out[e.SurfaceID] = e
	}
	return out
}

func hasRequiresArgv(inv *surface.Inventory, id string) bool {
	it, ok := inv.Find(id)
	return ok && len(it.Invocation.RequiresArgv) > 0
}

func remainingByKind(inv *surface.Inventory, ids []string) map[string]int {
	if len(ids) == 0 {
		return nil
	}
	out := map[string]int{}
	for _, id := range ids {
		kind := string(surface.KindOption)
		if it, ok := inv.Find(id); ok {
			kind = string(it.Kind)
		}
		out[kind]++
	}
	return out
}

func kindCounts(inv *surface.Inventory, ids []string) string {
	counts := remainingByKind(inv, ids)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func evidenceFor(ids []string, byID map[string]enrich.VerificationEntry) []enrich.EvidenceRef {
	var paths []string
	for _, id := range ids {
		e := byID[id]
		paths = append(paths, e.EvidencePaths...)
		paths = append(paths, e.DeltaEvidencePaths...)
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)
	refs := make([]enrich.EvidenceRef, 0, len(paths))
	for _, p := range paths {
		refs = append(refs, enrich.EvidenceRef{Path: p})
	}
	return refs
}

func preview(ids []string, full bool) []string {
	if full || len(ids) <= enrich.TriagePreviewLimit {
		return slices.Clone(ids)
	}
	return slices.Clone(ids[:enrich.TriagePreviewLimit])
}

func batch(ids []string) []string {
	if len(ids) <= enrich.BehaviorBatchLimit {
		return slices.Clone(ids)
	}
	return slices.Clone(ids[:enrich.BehaviorBatchLimit])
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func intPtr(v int) *int { return &v }

func applyCommand(root string) string { return enrich.ApplyCommand(root) }

func statusCommand(root string) string { return enrich.StatusCommand(root) }

func rerunCommand(root string, scenarioIDs []string) string {
	return enrich.RerunCommand(root, scenarioIDs)
}
