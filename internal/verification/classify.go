package verification

import (
	"fmt"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/surface"
)

// ReasonCodeFor is the reason a behavior target is unverified as reported
// in triage. missingValueExamples marks an item that requires a value but
// has no scenario and no known example value.
func ReasonCodeFor(entry enrich.VerificationEntry, missingValueExamples bool) enrich.ReasonCode {
	if missingValueExamples {
		return enrich.ReasonRequiredValueMissing
	}
	if code := enrich.ParseReasonCode(entry.ReasonCode); code != "" {
		return code
	}
	return enrich.ReasonUnknown
}

// Classify is the reason code that drives the next action. A target with
// no behavior scenario that is missing value examples is scaffolded like
// any other target without a scenario.
func Classify(entry enrich.VerificationEntry, missingValueExamples bool) enrich.ReasonCode {
	code := ReasonCodeFor(entry, missingValueExamples)
	if code == enrich.ReasonRequiredValueMissing && len(entry.BehaviorScenarioIDs) == 0 {
		return enrich.ReasonNoScenario
	}
	return code
}

// OutputsEqualState is where an outputs_equal target stands in the
// workaround, rerun, exclude progression.
type OutputsEqualState string

const (
	// NeedsWorkaround: the item has no requires_argv hint yet.
	NeedsWorkaround OutputsEqualState = "needs_workaround"

	// NeedsDeltaRerun: the workaround is newer than the delta evidence.
	NeedsDeltaRerun OutputsEqualState = "needs_delta_rerun"

	// ReadyForExclusion: outputs stayed equal with the workaround in place.
	ReadyForExclusion OutputsEqualState = "ready_for_exclusion"
)

// OutputsEqualStateFor classifies an outputs_equal target. The workaround
// counts as exercised once some delta evidence is newer than the overlays
// file.
func OutputsEqualStateFor(files Files, item surface.Item, entry enrich.VerificationEntry) OutputsEqualState {
	if len(item.Invocation.RequiresArgv) == 0 {
		return NeedsWorkaround
	}
	overlays, ok := files.ModTime(docpack.OverlaysPath)
	if !ok {
		return ReadyForExclusion
	}
	var newest int64
	seen := false
	for _, p := range entry.DeltaEvidencePaths {
		if t, ok := files.ModTime(p); ok {
			seen = true
			newest = max(newest, t)
		}
	}
	if !seen || overlays >= newest {
		return NeedsDeltaRerun
	}
	return ReadyForExclusion
}

// FixHint is the per-target remedy shown in diagnostics.
func FixHint(code enrich.ReasonCode, entry enrich.VerificationEntry) string {
	switch code {
	case enrich.ReasonSeedMismatch:
		if entry.AssertionSeedPath != "" {
			return fmt.Sprintf("seed_path %s is not materialized; add it to seed.entries or point the assertion at a seeded path", entry.AssertionSeedPath)
		}
	case enrich.ReasonAssertionFailed:
		if entry.AssertionKind != "" {
			return fmt.Sprintf("assertion %s failed; adjust stdout_token or the scenario argv so the variant output matches", entry.AssertionKind)
		}
	case enrich.ReasonScenarioError:
		return "variant or baseline run failed; check argv and expect.exit_code against the evidence"
	case enrich.ReasonMissingDeltaAssertion:
		return "pair each variant_* assertion with a baseline_* assertion, or assert variant_stdout_differs_from_baseline"
	case enrich.ReasonRequiredValueMissing:
		return "scaffold argv uses a placeholder value token; replace it or add value_examples"
	}
	return code.RecommendedFix()
}
