// Package scenarios models the scenario plan, decides which scenarios must
// run, executes them through a Runner and records evidence.
//
// Scenario identity for caching is the content digest of the effective
// configuration, not the scenario id: renaming a scenario never forces a
// rerun, and any semantic change always does.
package scenarios

import (
	"slices"
	"strings"

	"github.com/roach88/bman/internal/enrich"
)

// Kind distinguishes help scenarios from behavior scenarios.
type Kind string

const (
	KindHelp     Kind = "help"
	KindBehavior Kind = "behavior"
)

// CoverageTier says what a passing scenario proves about its targets.
type CoverageTier string

const (
	TierAcceptance CoverageTier = "acceptance"
	TierBehavior   CoverageTier = "behavior"
)

// AssertionKind names a stdout predicate.
type AssertionKind string

const (
	AssertVariantHasLine       AssertionKind = "variant_stdout_has_line"
	AssertVariantLacksLine     AssertionKind = "variant_stdout_lacks_line"
	AssertBaselineHasLine      AssertionKind = "baseline_stdout_has_line"
	AssertBaselineLacksLine    AssertionKind = "baseline_stdout_lacks_line"
	AssertVariantDiffersFromBL AssertionKind = "variant_stdout_differs_from_baseline"
)

// IsDelta reports whether the assertion compares against the baseline.
func (k AssertionKind) IsDelta() bool {
	switch k {
	case AssertBaselineHasLine, AssertBaselineLacksLine, AssertVariantDiffersFromBL:
		return true
	}
	return false
}

// Intent is what a verification queue entry asks for.
type Intent string

const (
	IntentVerifyAccepted Intent = "verify_accepted"
	IntentVerifyBehavior Intent = "verify_behavior"
	IntentExclude        Intent = "exclude"
)

// Plan is the content of scenarios/plan.json, with catalog scenarios
// appended after load.
type Plan struct {
	SchemaVersion int                 `json:"schema_version"`
	Binary        string              `json:"binary,omitempty"`
	DefaultEnv    map[string]string   `json:"default_env,omitempty"`
	Defaults      *Defaults           `json:"defaults,omitempty"`
	Coverage      *Coverage           `json:"coverage,omitempty"`
	Verification  *VerificationConfig `json:"verification,omitempty"`
	Scenarios     []Spec              `json:"scenarios"`
}

// Defaults apply to every scenario that does not set a field itself.
type Defaults struct {
	Env             map[string]string `json:"env,omitempty"`
	SeedDir         string            `json:"seed_dir,omitempty"`
	Cwd             string            `json:"cwd,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds,omitempty"`
	NetMode         string            `json:"net_mode,omitempty"`
	NoSandbox       *bool             `json:"no_sandbox,omitempty"`
	NoStrace        *bool             `json:"no_strace,omitempty"`
	SnippetMaxLines int               `json:"snippet_max_lines,omitempty"`
	SnippetMaxBytes int               `json:"snippet_max_bytes,omitempty"`
}

// Coverage lists surface items that cannot be covered and why.
type Coverage struct {
	Blocked []CoverageBlock `json:"blocked,omitempty"`
}

// CoverageBlock marks items as intentionally uncovered.
type CoverageBlock struct {
	ItemIDs []string `json:"item_ids"`
	Reason  string   `json:"reason"`
}

// VerificationConfig is the curated verification queue and policy.
type VerificationConfig struct {
	Queue  []QueueEntry `json:"queue,omitempty"`
	Policy *Policy      `json:"policy,omitempty"`
}

// QueueEntry requests verification of one surface item.
type QueueEntry struct {
	SurfaceID string   `json:"surface_id"`
	Intent    Intent   `json:"intent"`
	Prereqs   []string `json:"prereqs,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Policy bounds the automatic target set.
type Policy struct {
	Kinds              []string        `json:"kinds,omitempty"`
	MaxNewRunsPerApply *int            `json:"max_new_runs_per_apply,omitempty"`
	Excludes           []PolicyExclude `json:"excludes,omitempty"`
}

// PolicyExclude removes one surface item from the automatic target set.
type PolicyExclude struct {
	SurfaceID string   `json:"surface_id"`
	Prereqs   []string `json:"prereqs,omitempty"`
	Reason    string   `json:"reason"`
}

// Spec is one declared scenario.
type Spec struct {
	ID                 string            `json:"id"`
	Kind               Kind              `json:"kind,omitempty"`
	Publish            *bool             `json:"publish,omitempty"`
	Argv               []string          `json:"argv,omitempty"`
	Env                map[string]string `json:"env,omitempty"`
	SeedDir            string            `json:"seed_dir,omitempty"`
	Seed               *Seed             `json:"seed,omitempty"`
	Cwd                string            `json:"cwd,omitempty"`
	TimeoutSeconds     int               `json:"timeout_seconds,omitempty"`
	NetMode            string            `json:"net_mode,omitempty"`
	NoSandbox          *bool             `json:"no_sandbox,omitempty"`
	NoStrace           *bool             `json:"no_strace,omitempty"`
	SnippetMaxLines    int               `json:"snippet_max_lines,omitempty"`
	SnippetMaxBytes    int               `json:"snippet_max_bytes,omitempty"`
	CoverageTier       CoverageTier      `json:"coverage_tier,omitempty"`
	Covers             []string          `json:"covers,omitempty"`
	CoverageIgnore     bool              `json:"coverage_ignore,omitempty"`
	BaselineScenarioID string            `json:"baseline_scenario_id,omitempty"`
	Assertions         []Assertion       `json:"assertions,omitempty"`
	Expect             Expect            `json:"expect"`
}

// Seed describes files materialized into the scenario working directory.
type Seed struct {
	Entries []SeedEntry `json:"entries,omitempty"`
}

// SeedEntry is one materialized path.
type SeedEntry struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	Contents string `json:"contents,omitempty"`
	Target   string `json:"target,omitempty"`
	Mode     int    `json:"mode,omitempty"`
}

// Assertion is a stdout predicate over variant and baseline runs.
type Assertion struct {
	Kind        AssertionKind `json:"kind"`
	SeedPath    string        `json:"seed_path,omitempty"`
	StdoutToken string        `json:"stdout_token,omitempty"`
}

// Expect is the pass condition of a single run.
type Expect struct {
	ExitCode          *int     `json:"exit_code,omitempty"`
	ExitSignal        int      `json:"exit_signal,omitempty"`
	StdoutContainsAll []string `json:"stdout_contains_all,omitempty"`
	StdoutContainsAny []string `json:"stdout_contains_any,omitempty"`
	StdoutRegexAll    []string `json:"stdout_regex_all,omitempty"`
	StdoutRegexAny    []string `json:"stdout_regex_any,omitempty"`
	StderrContainsAll []string `json:"stderr_contains_all,omitempty"`
	StderrContainsAny []string `json:"stderr_contains_any,omitempty"`
	StderrRegexAll    []string `json:"stderr_regex_all,omitempty"`
	StderrRegexAny    []string `json:"stderr_regex_any,omitempty"`
}

// HasPredicate reports whether the expectation checks any output content.
func (e Expect) HasPredicate() bool {
	return len(e.StdoutContainsAll)+len(e.StdoutContainsAny)+len(e.StdoutRegexAll)+len(e.StdoutRegexAny)+
		len(e.StderrContainsAll)+len(e.StderrContainsAny)+len(e.StderrRegexAll)+len(e.StderrRegexAny) > 0
}

// EffectiveKind defaults an unset kind to behavior.
func (s Spec) EffectiveKind() Kind {
	if s.Kind == "" {
		return KindBehavior
	}
	return s.Kind
}

// Publishes reports whether evidence for the scenario is published.
func (s Spec) Publishes() bool {
	return s.Publish == nil || *s.Publish
}

// EffectiveCoverageTier defaults the tier: a scenario with a baseline is a
// behavior scenario, anything else is an acceptance scenario.
func (s Spec) EffectiveCoverageTier() CoverageTier {
	if s.CoverageTier != "" {
		return s.CoverageTier
	}
	if s.BaselineScenarioID != "" {
		return TierBehavior
	}
	return TierAcceptance
}

// IsBehaviorFor reports whether s is a behavior scenario covering id.
func (s Spec) IsBehaviorFor(id string) bool {
	return s.EffectiveKind() == KindBehavior &&
		s.EffectiveCoverageTier() == TierBehavior &&
		slices.Contains(s.Covers, id)
}

// IsAuto reports whether the scenario was synthesized by auto-verify.
func (s Spec) IsAuto() bool {
	return strings.HasPrefix(s.ID, enrich.AutoVerifyScenarioPrefix)
}

// HasDeltaAssertion reports whether any assertion references the baseline.
func (s Spec) HasDeltaAssertion() bool {
	for _, a := range s.Assertions {
		if a.Kind.IsDelta() {
			return true
		}
	}
	return false
}

// Find returns the scenario with the given id.
func (p *Plan) Find(id string) (Spec, bool) {
	for _, s := range p.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

// BehaviorScenariosFor returns the ids of behavior scenarios covering a
// surface id, sorted.
func (p *Plan) BehaviorScenariosFor(surfaceID string) []string {
	var ids []string
	for _, s := range p.Scenarios {
		if s.IsBehaviorFor(surfaceID) {
			ids = append(ids, s.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// CoveringScenarios returns the ids of all scenarios covering surfaceID.
func (p *Plan) CoveringScenarios(surfaceID string) []string {
	var ids []string
	for _, s := range p.Scenarios {
		if !s.CoverageIgnore && slices.Contains(s.Covers, surfaceID) {
			ids = append(ids, s.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// PolicyKinds returns the surface kinds subject to automatic verification.
func (p *Plan) PolicyKinds() []string {
	if p.Verification != nil && p.Verification.Policy != nil && len(p.Verification.Policy.Kinds) > 0 {
		return p.Verification.Policy.Kinds
	}
	return []string{"option", "subcommand"}
}

// MaxNewRunsPerApply bounds auto-verify scenarios per apply.
func (p *Plan) MaxNewRunsPerApply() int {
	if p.Verification != nil && p.Verification.Policy != nil && p.Verification.Policy.MaxNewRunsPerApply != nil {
		return *p.Verification.Policy.MaxNewRunsPerApply
	}
	return enrich.DefaultMaxNewRunsPerApply
}

// PolicyExcludes maps excluded surface ids to their reasons.
func (p *Plan) PolicyExcludes() map[string]string {
	out := make(map[string]string)
	if p.Verification == nil || p.Verification.Policy == nil {
		return out
	}
	for _, ex := range p.Verification.Policy.Excludes {
		out[ex.SurfaceID] = ex.Reason
	}
	for _, q := range p.Verification.Queue {
		if q.Intent == IntentExclude {
			reason := q.Reason
			if reason == "" {
				reason = "excluded by verification queue"
			}
			out[q.SurfaceID] = reason
		}
	}
	return out
}

// BehaviorQueue returns queue entries asking for behavior verification.
func (p *Plan) BehaviorQueue() []string {
	if p.Verification == nil {
		return nil
	}
	var ids []string
	for _, q := range p.Verification.Queue {
		if q.Intent == IntentVerifyBehavior && !slices.Contains(ids, q.SurfaceID) {
			ids = append(ids, q.SurfaceID)
		}
	}
	return ids
}

// CoverageBlocked maps blocked item ids to their reason.
func (p *Plan) CoverageBlocked() map[string]string {
	out := make(map[string]string)
	if p.Coverage == nil {
		return out
	}
	for _, b := range p.Coverage.Blocked {
		for _, id := range b.ItemIDs {
			out[id] = b.Reason
		}
	}
	return out
}
