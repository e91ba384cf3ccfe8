package verification

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/progress"
	"github.com/roach88/bman/internal/surface"
)

// behaviorSets partitions the behavior targets of one evaluation.
type behaviorSets struct {
	byID      map[string]enrich.VerificationEntry
	targets   []string
	remaining []string
	excluded  []enrich.ExcludedTarget
	verified  int

	needsApply   map[string]bool
	missingValue map[string]bool

	outputsEqual map[OutputsEqualState][]string
	retry        map[string]int
}

// candidates are the remaining ids that already have evidence to act on.
func (b *behaviorSets) candidates() []string {
	var out []string
	for _, id := range b.remaining {
		if !b.needsApply[id] {
			out = append(out, id)
		}
	}
	return out
}

func (b *behaviorSets) pending() []string {
	var out []string
	for _, id := range b.remaining {
		if b.needsApply[id] {
			out = append(out, id)
		}
	}
	return out
}

func (b *behaviorSets) actionCode(id string) enrich.ReasonCode {
	return Classify(b.byID[id], b.missingValue[id])
}

// exclusionEntries maps each target to the delta evidence an exclusion
// must cite.
func exclusionEntries(targets []string, byID map[string]enrich.VerificationEntry) map[string]surface.ExclusionEntry {
	out := make(map[string]surface.ExclusionEntry, len(targets))
	for _, id := range targets {
		e, ok := byID[id]
		if !ok {
			continue
		}
		out[id] = surface.ExclusionEntry{
			DeltaOutcome:       enrich.ParseDeltaOutcome(e.DeltaOutcome),
			DeltaEvidencePaths: e.DeltaEvidencePaths,
		}
	}
	return out
}

func partitionBehavior(in Input, targets []string, valid map[string]surface.BehaviorExclusion, byID map[string]enrich.VerificationEntry) *behaviorSets {
	b := &behaviorSets{
		byID:         byID,
		needsApply:   map[string]bool{},
		missingValue: map[string]bool{},
		outputsEqual: map[OutputsEqualState][]string{},
		retry:        map[string]int{},
	}

	excludes := in.Plan.PolicyExcludes()
	for _, id := range sortedKeys(excludes) {
		b.excluded = append(b.excluded, enrich.ExcludedTarget{SurfaceID: id, Reason: excludes[id]})
	}

	for _, id := range targets {
		if ex, ok := valid[id]; ok {
			b.excluded = append(b.excluded, enrich.ExcludedTarget{SurfaceID: id, Reason: "behavior_exclusion: " + string(ex.ReasonCode)})
			continue
		}
		b.targets = append(b.targets, id)
		e := byID[id]
		if e.BehaviorVerified() {
			b.verified++
			continue
		}
		b.remaining = append(b.remaining, id)
		if e.BehaviorStatus == enrich.StatusPending {
			b.needsApply[id] = true
			continue
		}
		if it, ok := in.Inventory.Find(id); ok && it.NeedsValueExamples() && len(e.BehaviorScenarioIDs) == 0 {
			b.missingValue[id] = true
		}
	}
	slices.SortFunc(b.excluded, func(x, y enrich.ExcludedTarget) int { return strings.Compare(x.SurfaceID, y.SurfaceID) })

	var equal []string
	for _, id := range b.candidates() {
		if !b.missingValue[id] && enrich.ParseDeltaOutcome(byID[id].DeltaOutcome) == enrich.DeltaOutputsEqual {
			equal = append(equal, id)
		}
	}
	for _, id := range batch(equal) {
		it, _ := in.Inventory.Find(id)
		state := OutputsEqualStateFor(in.Files, it, byID[id])
		b.outputsEqual[state] = append(b.outputsEqual[state], id)
		b.retry[id] = in.Progress.RetryCount(id, progress.DeltaSignature(byID[id]))
	}
	return b
}

func evaluateBehavior(in Input) Result {
	byID := entriesByID(in.Entries)
	targets := behaviorTargets(in)
	pre := computeExistence(in, targets, byID)

	st := enrich.RequirementStatus{
		ID:                      enrich.RequirementVerification,
		VerificationTier:        enrich.TierBehavior,
		AcceptedVerifiedCount:   intPtr(pre.verified),
		AcceptedUnverifiedCount: intPtr(len(pre.remaining)),
	}

	valid, err := surface.ValidateExclusions(in.Overlays.Exclusions(), targets, exclusionEntries(targets, byID))
	if err != nil {
		blocked := InputsBlocked(enrich.TierBehavior, []enrich.Blocker{{
			Code:     "behavior_exclusion_invalid",
			Message:  err.Error(),
			Evidence: []enrich.EvidenceRef{{Path: docpack.OverlaysPath}},
		}})
		blocked.AcceptedVerifiedCount = st.AcceptedVerifiedCount
		blocked.AcceptedUnverifiedCount = st.AcceptedUnverifiedCount
		return Result{Status: blocked, Info: enrich.VerificationPlanInfo{Tier: enrich.TierBehavior, TargetCount: len(targets)}}
	}

	b := partitionBehavior(in, targets, valid, byID)
	st.UnverifiedIDs = preview(b.remaining, in.Full)
	st.BehaviorVerifiedCount = intPtr(b.verified)
	st.BehaviorUnverifiedCount = intPtr(len(b.remaining))
	st.Evidence = evidenceFor(b.remaining, byID)
	st.Verification = behaviorTriage(in, b)
	info := enrich.VerificationPlanInfo{
		Tier:           enrich.TierBehavior,
		TargetCount:    len(b.targets),
		RemainingCount: len(b.remaining),
		ExcludedCount:  len(b.excluded),
	}

	if len(b.remaining) == 0 {
		st.State = enrich.StateMet
		st.Reason = "verification behavior complete (tier=behavior)"
		return Result{Status: st, Info: info}
	}
	st.State = enrich.StateUnmet
	st.Reason = "verification behavior incomplete (tier=behavior)"

	// Existence first, unless auto-verify already failed everywhere.
	if len(pre.remaining) > 0 && !stuck(in, pre.remaining) {
		action := existenceAction(in, pre.remaining, st.Verification)
		return Result{Status: st, NextAction: &action, Info: info}
	}

	action, sig := behaviorAction(in, b, st.Verification)
	return Result{Status: st, NextAction: &action, Signature: sig, Info: info}
}

func behaviorAction(in Input, b *behaviorSets, triage *enrich.VerificationTriage) (enrich.NextAction, *enrich.ActionSignature) {
	if ids := b.outputsEqual[NeedsWorkaround]; len(ids) > 0 {
		triage.StubBlockersPreview = stubBlockers(ids, "outputs_equal without requires_argv workaround", in.Full)
		return overlayEdit(in, requiresArgvOverlays(in.Inventory, ids),
			fmt.Sprintf("add requires_argv workaround overlays in %s; see verification.stub_blockers_preview", docpack.OverlaysPath),
			&enrich.BehaviorPayload{
				TargetIDs:            ids,
				ReasonCode:           enrich.ReasonOutputsEqual,
				SuggestedOverlayKeys: []string{"overlays[].invocation.requires_argv"},
			},
		), nil
	}

	if ids := b.outputsEqual[NeedsDeltaRerun]; len(ids) > 0 {
		if capped := b.capHit(ids); len(capped) > 0 {
			return plateauEdit(in, b, capped), nil
		}
		return deltaRerun(in, b, ids), nil
	}

	if ids := b.outputsEqual[ReadyForExclusion]; len(ids) > 0 {
		if capped := b.capHit(ids); len(capped) > 0 {
			return plateauEdit(in, b, capped), nil
		}
		return overlayEdit(in, exclusionOverlays(in.Inventory, ids, b.byID),
			fmt.Sprintf("outputs_equal persists with the requires_argv workaround for %d targets; add behavior_exclusion stubs in %s", len(ids), docpack.OverlaysPath),
			&enrich.BehaviorPayload{TargetIDs: ids, ReasonCode: enrich.ReasonOutputsEqual, LatestDeltaPath: deltaVariantPath(b.byID[ids[0]])},
		), nil
	}

	if first, ok := b.firstByPriority(); ok {
		code := b.actionCode(first)
		ids := []string{first}
		if code == enrich.ReasonNoScenario || code == enrich.ReasonOutputsEqual {
			var same []string
			for _, id := range b.candidates() {
				if b.actionCode(id) == code {
					same = append(same, id)
				}
			}
			ids = batch(same)
		}
		return reasonAction(in, b, ids, code)
	}

	ids := batch(b.pending())
	return enrich.NewCommand(applyCommand(in.RootArg),
		fmt.Sprintf("run behavior verification for %s", strings.Join(ids, ", ")),
	).WithPayload(&enrich.BehaviorPayload{TargetIDs: ids}), nil
}

// firstByPriority returns the candidate with the most urgent action code,
// earliest id first.
func (b *behaviorSets) firstByPriority() (string, bool) {
	best, bestRank := "", -1
	for _, id := range b.candidates() {
		rank := b.actionCode(id).Rank()
		if bestRank < 0 || rank < bestRank {
			best, bestRank = id, rank
		}
	}
	return best, bestRank >= 0
}

func (b *behaviorSets) capHit(ids []string) []string {
	var out []string
	for _, id := range ids {
		if b.retry[id] >= enrich.BehaviorRerunCap {
			out = append(out, id)
		}
	}
	return out
}

func plateauEdit(in Input, b *behaviorSets, ids []string) enrich.NextAction {
	retry := b.retry[ids[0]]
	return overlayEdit(in, exclusionOverlays(in.Inventory, ids, b.byID),
		fmt.Sprintf("stopped outputs_equal retries after %d no-progress attempts; add behavior_exclusion stubs in %s for %d targets", enrich.BehaviorRerunCap, docpack.OverlaysPath, len(ids)),
		&enrich.BehaviorPayload{
			TargetIDs:       ids,
			ReasonCode:      enrich.ReasonOutputsEqual,
			RetryCount:      &retry,
			LatestDeltaPath: deltaVariantPath(b.byID[ids[0]]),
		},
	)
}

func deltaRerun(in Input, b *behaviorSets, ids []string) enrich.NextAction {
	var scenarioIDs []string
	retry := 0
	for _, id := range ids {
		scenarioIDs = append(scenarioIDs, progress.RerunScenarioIDs(b.byID[id])...)
		retry = max(retry, b.retry[id])
	}
	slices.Sort(scenarioIDs)
	scenarioIDs = slices.Compact(scenarioIDs)
	reason := fmt.Sprintf("requires_argv workaround is present but outputs_equal evidence has not progressed; rerun targeted behavior delta checks for %d scenario ids (%d targets, no-progress retry %d/%d)",
		len(scenarioIDs), len(ids), retry+1, enrich.BehaviorRerunCap)
	return enrich.NewCommand(rerunCommand(in.RootArg, scenarioIDs), reason).WithPayload(&enrich.BehaviorPayload{
		TargetIDs:       ids,
		ReasonCode:      enrich.ReasonOutputsEqual,
		RetryCount:      &retry,
		LatestDeltaPath: deltaVariantPath(b.byID[ids[0]]),
	})
}

// reasonAction builds the scaffold for ids, all sharing code. For
// assertion_failed the no-op guard turns a repeated edit into a targeted
// rerun, and eventually into a suggested exclusion.
func reasonAction(in Input, b *behaviorSets, ids []string, code enrich.ReasonCode) (enrich.NextAction, *enrich.ActionSignature) {
	id := ids[0]
	entry := b.byID[id]

	if code == enrich.ReasonMissingDeltaAssertion {
		if retry := in.Progress.RetryCount(id, progress.DeltaSignature(entry)); retry >= enrich.BehaviorRerunCap {
			return suggestedExclusion(in, entry, code, retry), nil
		}
	}

	if code == enrich.ReasonRequiredValueMissing {
		return overlayEdit(in, valueExampleOverlays(in.Inventory, ids),
			reasonText(code, entry, ids)+"; apply patch as merge by overlay id",
			&enrich.BehaviorPayload{TargetIDs: ids, ReasonCode: code, SuggestedOverlayKeys: []string{"overlays[].invocation.value_examples"}},
		), nil
	}

	specs, ok := repairStubs(in, entry, code)
	if !ok || len(ids) > 1 {
		specs = behaviorStubs(in, ids)
	}
	content := mustPatch(scenarioPatch{Scenarios: specs})
	payload := &enrich.BehaviorPayload{TargetIDs: ids, ReasonCode: code}

	if code == enrich.ReasonAssertionFailed {
		sig := enrich.ActionSignature{
			ReasonCode:          code,
			TargetID:            id,
			ContentHash:         progress.ContentHash(content),
			EvidenceFingerprint: progress.EvidenceFingerprint(entry),
		}
		if in.Progress.IsNoop(sig) {
			n := in.Progress.NoProgressCount(id)
			if n >= enrich.AssertionFailedNoopCap {
				return suggestedExclusion(in, entry, code, n), nil
			}
			scenarioIDs := progress.RerunScenarioIDs(entry)
			reason := fmt.Sprintf("assertion_failed edit would be identical to previous with no evidence change; pivot to targeted rerun for %d scenario ids (no-progress attempt %d/%d)",
				len(scenarioIDs), n+1, enrich.AssertionFailedNoopCap)
			payload.RetryCount = &n
			return enrich.NewCommand(rerunCommand(in.RootArg, scenarioIDs), reason).WithPayload(payload), nil
		}
		edit := enrich.NewEdit(docpack.ScenarioPlanPath, content, reasonText(code, entry, ids)+"; apply patch as upsert by scenario.id", enrich.StrategyUpsertScenariosByID)
		return edit.WithPayload(payload), &sig
	}

	reason := reasonText(code, entry, ids)
	if len(ids) > 1 {
		reason += fmt.Sprintf("; batched deterministic scaffold for %d targets", len(ids))
	}
	reason += "; apply patch as upsert by scenario.id"
	return enrich.NewEdit(docpack.ScenarioPlanPath, content, reason, enrich.StrategyUpsertScenariosByID).WithPayload(payload), nil
}

func reasonText(code enrich.ReasonCode, entry enrich.VerificationEntry, ids []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "behavior %s for %s", code, ids[0])
	if entry.ScenarioID != "" && code != enrich.ReasonNoScenario {
		fmt.Fprintf(&b, " in scenario %s", entry.ScenarioID)
	}
	if entry.AssertionKind != "" && (code == enrich.ReasonAssertionFailed || code == enrich.ReasonSeedMismatch) {
		fmt.Fprintf(&b, " (assertion %s", entry.AssertionKind)
		if entry.AssertionSeedPath != "" {
			fmt.Fprintf(&b, ", seed_path %s", entry.AssertionSeedPath)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(FixHint(code, entry))
	return b.String()
}

func suggestedExclusion(in Input, entry enrich.VerificationEntry, code enrich.ReasonCode, retry int) enrich.NextAction {
	reason := surface.ExcludeFixtureGap
	if code == enrich.ReasonMissingDeltaAssertion {
		reason = surface.ExcludeAssertionGap
	}
	path := deltaVariantPath(entry)
	return enrich.NewCommand(statusCommand(in.RootArg),
		fmt.Sprintf("rerun cap reached for %s; review next_action.payload.suggested_exclusion and apply exclusion manually if justified", code),
	).WithPayload(&enrich.BehaviorPayload{
		TargetIDs:       []string{entry.SurfaceID},
		ReasonCode:      code,
		RetryCount:      &retry,
		LatestDeltaPath: path,
		SuggestedExclusion: &enrich.SuggestedExclusion{
			SurfaceID:  entry.SurfaceID,
			ReasonCode: string(reason),
			Note:       fmt.Sprintf("reason_code=%s; rerun cap reached after %d retries; exclude only if behavior remains unverifiable", code, retry),
			Evidence:   enrich.ExclusionEvidence{DeltaVariantPath: path},
		},
	})
}

// ConvergenceTargets lists the ledger rows the progress store tracks after
// an apply: outputs_equal targets that carry a requires_argv workaround,
// and assertion_failed targets. Only the behavior tier tracks anything.
func ConvergenceTargets(in Input) (outputsEqual, assertionFailed []progress.Target) {
	if in.Tier != enrich.TierBehavior {
		return nil, nil
	}
	if in.Progress == nil {
		in.Progress = progress.New()
	}
	byID := entriesByID(in.Entries)
	targets := behaviorTargets(in)
	valid, err := surface.ValidateExclusions(in.Overlays.Exclusions(), targets, exclusionEntries(targets, byID))
	if err != nil {
		valid = nil
	}
	b := partitionBehavior(in, targets, valid, byID)
	for _, state := range []OutputsEqualState{NeedsDeltaRerun, ReadyForExclusion} {
		for _, id := range b.outputsEqual[state] {
			outputsEqual = append(outputsEqual, progress.Target{SurfaceID: id, Entry: byID[id]})
		}
	}
	slices.SortFunc(outputsEqual, func(x, y progress.Target) int { return strings.Compare(x.SurfaceID, y.SurfaceID) })
	for _, id := range b.candidates() {
		if ReasonCodeFor(byID[id], b.missingValue[id]) == enrich.ReasonAssertionFailed {
			assertionFailed = append(assertionFailed, progress.Target{SurfaceID: id, Entry: byID[id]})
		}
	}
	return outputsEqual, assertionFailed
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
