package verification

import (
	"slices"

	"github.com/roach88/bman/internal/enrich"
)

func behaviorTriage(in Input, b *behaviorSets) *enrich.VerificationTriage {
	t := &enrich.VerificationTriage{
		TriagedUnverifiedCount:   len(b.remaining),
		TriagedUnverifiedPreview: orEmpty(preview(b.remaining, in.Full)),
		RemainingByKind:          remainingByKind(in.Inventory, b.remaining),
		ExcludedCount:            len(b.excluded),
		Excluded:                 b.excluded,
	}

	groups := map[enrich.ReasonCode][]string{}
	var reasons []enrich.TargetReason
	var diags []enrich.TargetDiagnostic
	for _, id := range b.candidates() {
		entry := b.byID[id]
		code := ReasonCodeFor(entry, b.missingValue[id])
		groups[code] = append(groups[code], id)
		reasons = append(reasons, enrich.TargetReason{SurfaceID: id, ReasonCode: code})
		if entry.ScenarioID != "" && code != enrich.ReasonNoScenario && code != enrich.ReasonRequiredValueMissing {
			diags = append(diags, enrich.TargetDiagnostic{
				SurfaceID:         id,
				ReasonCode:        code,
				ScenarioID:        entry.ScenarioID,
				AssertionKind:     entry.AssertionKind,
				AssertionSeedPath: entry.AssertionSeedPath,
				FixHint:           FixHint(code, entry),
			})
		}
	}

	codes := make([]enrich.ReasonCode, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	slices.SortFunc(codes, func(x, y enrich.ReasonCode) int { return x.Rank() - y.Rank() })
	for _, code := range codes {
		t.BehaviorUnverifiedReasons = append(t.BehaviorUnverifiedReasons, enrich.ReasonSummary{
			ReasonCode:     code,
			Count:          len(groups[code]),
			Preview:        preview(groups[code], in.Full),
			RecommendedFix: code.RecommendedFix(),
		})
	}
	t.BehaviorUnverifiedPreview = capped(reasons, in.Full)
	t.Diagnostics = capped(diags, in.Full)
	return t
}

func capped[T any](items []T, full bool) []T {
	if full || len(items) <= enrich.TriagePreviewLimit {
		return items
	}
	return items[:enrich.TriagePreviewLimit]
}

func stubBlockers(ids []string, why string, full bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range preview(ids, full) {
		out = append(out, id+": "+why)
	}
	return out
}
