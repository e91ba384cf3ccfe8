package enrich

import "fmt"

// Tier selects how much proof the verification requirement demands.
type Tier string

const (
	// TierAccepted is satisfied once any scenario exercises each target.
	TierAccepted Tier = "accepted"

	// TierBehavior needs variant-vs-baseline evidence with assertions.
	TierBehavior Tier = "behavior"
)

// ParseTier converts a serialized tier, defaulting empty to accepted.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "", TierAccepted:
		return TierAccepted, nil
	case TierBehavior:
		return TierBehavior, nil
	}
	return "", fmt.Errorf("unknown verification tier %q", s)
}

// Label is the human label of the tier used in requirement reasons.
func (t Tier) Label() string {
	if t == TierBehavior {
		return "behavior"
	}
	return "existence"
}

// ReasonCode explains why a behavior target is not verified.
type ReasonCode string

const (
	ReasonScenarioError            ReasonCode = "scenario_error"
	ReasonAssertionFailed          ReasonCode = "assertion_failed"
	ReasonNoScenario               ReasonCode = "no_scenario"
	ReasonOutputsEqual             ReasonCode = "outputs_equal"
	ReasonSeedMismatch             ReasonCode = "seed_mismatch"
	ReasonMissingDeltaAssertion    ReasonCode = "missing_delta_assertion"
	ReasonMissingSemanticPredicate ReasonCode = "missing_semantic_predicate"
	ReasonRequiredValueMissing     ReasonCode = "required_value_missing"
	ReasonUnknown                  ReasonCode = "unknown"
)

// ReasonPriority lists reason codes from most to least urgent.
var ReasonPriority = []ReasonCode{
	ReasonScenarioError,
	ReasonAssertionFailed,
	ReasonNoScenario,
	ReasonOutputsEqual,
	ReasonSeedMismatch,
	ReasonMissingDeltaAssertion,
	ReasonMissingSemanticPredicate,
	ReasonRequiredValueMissing,
	ReasonUnknown,
}

var legacyReasonCodes = map[string]ReasonCode{
	"missing_behavior_scenario":      ReasonNoScenario,
	"scenario_failed":                ReasonScenarioError,
	"missing_assertions":             ReasonMissingSemanticPredicate,
	"assertion_seed_path_not_seeded": ReasonSeedMismatch,
	"seed_signature_mismatch":        ReasonSeedMismatch,
	"missing_value_examples":         ReasonRequiredValueMissing,
}

// ParseReasonCode normalizes a ledger reason code. Legacy spellings map to
// their current code; anything unrecognized becomes ReasonUnknown.
// An empty string yields an empty code.
func ParseReasonCode(s string) ReasonCode {
	if s == "" {
		return ""
	}
	if code, ok := legacyReasonCodes[s]; ok {
		return code
	}
	for _, code := range ReasonPriority {
		if string(code) == s {
			return code
		}
	}
	return ReasonUnknown
}

// Rank returns the priority index of c; lower is more urgent.
func (c ReasonCode) Rank() int {
	for i, code := range ReasonPriority {
		if code == c {
			return i
		}
	}
	return len(ReasonPriority)
}

// RecommendedFix is the short human remedy for a reason code.
func (c ReasonCode) RecommendedFix() string {
	switch c {
	case ReasonRequiredValueMissing:
		return "add value_examples overlay in inventory/surface.overlays.json"
	case ReasonNoScenario:
		return "add behavior scenario"
	case ReasonScenarioError:
		return "fix behavior scenario run"
	case ReasonMissingSemanticPredicate:
		return "add stdout/stderr expect predicate or non-empty assertions[]"
	case ReasonSeedMismatch:
		return "add seed-grounded assertions"
	case ReasonMissingDeltaAssertion:
		return "add delta assertion pair"
	case ReasonOutputsEqual:
		return "add requires_argv workaround overlay, rerun delta verification, then exclude with evidence if still equal"
	case ReasonAssertionFailed:
		return "fix assertion failure"
	default:
		return "inspect inventory/verification_ledger.json"
	}
}

// DeltaOutcome compares a variant run with its baseline.
type DeltaOutcome string

const (
	DeltaSeen           DeltaOutcome = "delta_seen"
	DeltaOutputsEqual   DeltaOutcome = "outputs_equal"
	DeltaScenarioFailed DeltaOutcome = "scenario_failed"
	DeltaUnknown        DeltaOutcome = "unknown"
)

// ParseDeltaOutcome normalizes a ledger delta outcome.
func ParseDeltaOutcome(s string) DeltaOutcome {
	switch DeltaOutcome(s) {
	case "":
		return ""
	case DeltaSeen, "outputs_differ":
		return DeltaSeen
	case DeltaOutputsEqual:
		return DeltaOutputsEqual
	case DeltaScenarioFailed:
		return DeltaScenarioFailed
	}
	return DeltaUnknown
}

// Ledger status values.
const (
	StatusVerified   = "verified"
	StatusUnverified = "unverified"
	StatusExcluded   = "excluded"
	StatusPending    = "pending"
)

// VerificationEntry is one verification ledger row as produced by the SQL
// lens.
type VerificationEntry struct {
	SurfaceID           string   `json:"surface_id"`
	Status              string   `json:"status"`
	BehaviorStatus      string   `json:"behavior_status"`
	ReasonCode          string   `json:"reason_code,omitempty"`
	ScenarioID          string   `json:"scenario_id,omitempty"`
	BehaviorScenarioIDs []string `json:"behavior_scenario_ids,omitempty"`
	AssertionKind       string   `json:"assertion_kind,omitempty"`
	AssertionSeedPath   string   `json:"assertion_seed_path,omitempty"`
	AssertionToken      string   `json:"assertion_token,omitempty"`
	DeltaOutcome        string   `json:"delta_outcome,omitempty"`
	DeltaEvidencePaths  []string `json:"delta_evidence_paths,omitempty"`
	EvidencePaths       []string `json:"evidence_paths"`
}

// Verified reports whether the existence status is verified.
func (e VerificationEntry) Verified() bool { return e.Status == StatusVerified }

// BehaviorVerified reports whether the behavior status is verified.
func (e VerificationEntry) BehaviorVerified() bool { return e.BehaviorStatus == StatusVerified }

// ActionSignature identifies a recommended edit. Two equal signatures mean
// re-emitting the edit would change nothing.
type ActionSignature struct {
	ReasonCode          ReasonCode `json:"reason_code"`
	TargetID            string     `json:"target_id"`
	ContentHash         string     `json:"content_hash"`
	EvidenceFingerprint string     `json:"evidence_fingerprint"`
}

// VerificationTriage summarizes unverified targets for humans.
type VerificationTriage struct {
	TriagedUnverifiedCount    int                `json:"triaged_unverified_count"`
	TriagedUnverifiedPreview  []string           `json:"triaged_unverified_preview"`
	RemainingByKind           map[string]int     `json:"remaining_by_kind,omitempty"`
	ExcludedCount             int                `json:"excluded_count"`
	Excluded                  []ExcludedTarget   `json:"excluded,omitempty"`
	BehaviorUnverifiedReasons []ReasonSummary    `json:"behavior_unverified_reasons,omitempty"`
	BehaviorUnverifiedPreview []TargetReason     `json:"behavior_unverified_preview,omitempty"`
	Diagnostics               []TargetDiagnostic `json:"diagnostics,omitempty"`
	StubBlockersPreview       []string           `json:"stub_blockers_preview,omitempty"`
}

// ExcludedTarget is a target removed from the verification set.
type ExcludedTarget struct {
	SurfaceID string `json:"surface_id"`
	Reason    string `json:"reason"`
}

// ReasonSummary groups unverified targets by reason code.
type ReasonSummary struct {
	ReasonCode     ReasonCode `json:"reason_code"`
	Count          int        `json:"count"`
	Preview        []string   `json:"preview"`
	RecommendedFix string     `json:"recommended_fix"`
}

// TargetReason pairs a target with its reason code.
type TargetReason struct {
	SurfaceID  string     `json:"surface_id"`
	ReasonCode ReasonCode `json:"reason_code"`
}

// TargetDiagnostic is a per-target hint for assertion-level failures.
type TargetDiagnostic struct {
	SurfaceID         string     `json:"surface_id"`
	ReasonCode        ReasonCode `json:"reason_code"`
	ScenarioID        string     `json:"scenario_id,omitempty"`
	AssertionKind     string     `json:"assertion_kind,omitempty"`
	AssertionSeedPath string     `json:"assertion_seed_path,omitempty"`
	FixHint           string     `json:"fix_hint"`
}
