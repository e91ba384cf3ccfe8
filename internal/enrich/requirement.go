// Package enrich holds the data model shared by the evaluation pipeline:
// requirement identifiers and states, blockers, next actions, verification
// ledger rows and the persisted Plan, Report and History records.
//
// Every enumeration is a closed set. String values are only the JSON
// projection; parsing rejects anything outside the set.
package enrich

import (
	"fmt"
	"slices"
	"strings"
)

// RequirementID names one desired property of a doc pack.
type RequirementID string

const (
	RequirementSurface        RequirementID = "surface"
	RequirementCoverage       RequirementID = "coverage"
	RequirementCoverageLedger RequirementID = "coverage_ledger"
	RequirementVerification   RequirementID = "verification"
	RequirementExamplesReport RequirementID = "examples_report"
	RequirementManPage        RequirementID = "man_page"
)

// AllRequirements lists every requirement in canonical order.
var AllRequirements = []RequirementID{
	RequirementSurface,
	RequirementCoverage,
	RequirementCoverageLedger,
	RequirementVerification,
	RequirementExamplesReport,
	RequirementManPage,
}

// DefaultRequirements is used when the config does not list any.
var DefaultRequirements = []RequirementID{
	RequirementSurface,
	RequirementVerification,
	RequirementManPage,
}

// ParseRequirementID converts a serialized id into a RequirementID.
func ParseRequirementID(s string) (RequirementID, error) {
	id := RequirementID(s)
	if !slices.Contains(AllRequirements, id) {
		return "", fmt.Errorf("unknown requirement %q", s)
	}
	return id, nil
}

// RequirementState is the evaluated state of one requirement.
type RequirementState string

const (
	StateMet     RequirementState = "met"
	StateUnmet   RequirementState = "unmet"
	StateBlocked RequirementState = "blocked"
)

// Decision aggregates requirement states.
type Decision string

const (
	DecisionComplete   Decision = "complete"
	DecisionIncomplete Decision = "incomplete"
	DecisionBlocked    Decision = "blocked"
)

// PlannedAction is one step apply can execute.
type PlannedAction string

const (
	ActionSurfaceDiscovery PlannedAction = "surface_discovery"
	ActionScenarioRuns     PlannedAction = "scenario_runs"
	ActionCoverageLedger   PlannedAction = "coverage_ledger"
	ActionRenderManPage    PlannedAction = "render_man_page"
)

// canonicalActions is the execution order of planned actions.
var canonicalActions = []PlannedAction{
	ActionSurfaceDiscovery,
	ActionScenarioRuns,
	ActionCoverageLedger,
	ActionRenderManPage,
}

// EvidenceRef points at a file that supports a requirement result.
type EvidenceRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
}

// Blocker is a condition that needs a human edit before a requirement can
// make progress.
type Blocker struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Evidence   []EvidenceRef `json:"evidence,omitempty"`
	NextAction *NextAction   `json:"next_action,omitempty"`
}

// RequirementStatus is the evaluated result for one requirement.
//
// The verification fields are only populated for the verification
// requirement.
type RequirementStatus struct {
	ID       RequirementID    `json:"id"`
	State    RequirementState `json:"state"`
	Reason   string           `json:"reason"`
	Evidence []EvidenceRef    `json:"evidence,omitempty"`
	Blockers []Blocker        `json:"blockers,omitempty"`

	UnverifiedIDs           []string            `json:"unverified_ids,omitempty"`
	VerificationTier        Tier                `json:"verification_tier,omitempty"`
	AcceptedVerifiedCount   *int                `json:"accepted_verified_count,omitempty"`
	AcceptedUnverifiedCount *int                `json:"accepted_unverified_count,omitempty"`
	BehaviorVerifiedCount   *int                `json:"behavior_verified_count,omitempty"`
	BehaviorUnverifiedCount *int                `json:"behavior_unverified_count,omitempty"`
	Verification            *VerificationTriage `json:"verification,omitempty"`
}

// StateFor derives a requirement state: Blocked when any blocker exists,
// otherwise Met or Unmet by the domain check.
func StateFor(blockers []Blocker, met bool) RequirementState {
	switch {
	case len(blockers) > 0:
		return StateBlocked
	case met:
		return StateMet
	default:
		return StateUnmet
	}
}

// Decide aggregates requirement results into a Decision and its reason.
func Decide(reqs []RequirementStatus) (Decision, string) {
	var blockerCodes, unmet []string
	for _, r := range reqs {
		switch r.State {
		case StateBlocked:
			for _, b := range r.Blockers {
				if !slices.Contains(blockerCodes, b.Code) {
					blockerCodes = append(blockerCodes, b.Code)
				}
			}
		case StateUnmet:
			unmet = append(unmet, string(r.ID))
		}
	}
	if len(blockerCodes) > 0 {
		return DecisionBlocked, "blockers present: " + strings.Join(blockerCodes, ", ")
	}
	if len(unmet) > 0 {
		return DecisionIncomplete, "unmet requirements: " + strings.Join(unmet, ", ")
	}
	return DecisionComplete, "all requirements met"
}

// ActionFor maps a requirement to the planned action that can satisfy it.
func ActionFor(id RequirementID) PlannedAction {
	switch id {
	case RequirementSurface:
		return ActionSurfaceDiscovery
	case RequirementCoverage, RequirementVerification, RequirementExamplesReport:
		return ActionScenarioRuns
	case RequirementCoverageLedger:
		return ActionCoverageLedger
	case RequirementManPage:
		return ActionRenderManPage
	default:
		return ""
	}
}

// PlannedActionsFor derives the deduplicated planned actions, in canonical
// order, for every requirement that is not met.
func PlannedActionsFor(reqs []RequirementStatus) []PlannedAction {
	wanted := make(map[PlannedAction]bool)
	for _, r := range reqs {
		if r.State == StateMet {
			continue
		}
		if a := ActionFor(r.ID); a != "" {
			wanted[a] = true
		}
	}
	actions := []PlannedAction{}
	for _, a := range canonicalActions {
		if wanted[a] {
			actions = append(actions, a)
		}
	}
	return actions
}

// HasAction reports whether actions contains a.
func HasAction(actions []PlannedAction, a PlannedAction) bool {
	return slices.Contains(actions, a)
}
