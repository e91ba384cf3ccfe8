// Package nextaction picks the single next step for a doc pack.
//
// Synthesize walks a fixed precedence and returns the first action that
// applies, so the same pack state always yields the same recommendation:
//
//  1. a missing prerequisite input (config, scenario plan, pack manifest)
//  2. a blocked requirement
//  3. a missing or stale lock, unless forced
//  4. a missing or stale plan, unless forced
//  5. the first unmet requirement, in declared order
//  6. nothing left to do
package nextaction

import (
	"fmt"
	"slices"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/scenarios"
)

// Input is the evaluated pack state.
type Input struct {
	// RootArg is the pack path as it should appear in suggested commands.
	RootArg    string
	BinaryName string

	// MissingInputs lists absent lock inputs and prerequisites, pack
	// relative.
	MissingInputs []string

	Requirements []enrich.RequirementStatus

	// Areas holds the corrective action each requirement proposed.
	Areas map[enrich.RequirementID]enrich.NextAction

	Lock  lock.Status
	Plan  enrich.PlanStatus
	Force bool
}

// Synthesize returns the next action for in.
func Synthesize(in Input) enrich.NextAction {
	if a, ok := missingPrerequisite(in); ok {
		return a
	}
	if a, ok := blockedRequirement(in); ok {
		return a
	}
	if !in.Force {
		switch {
		case !in.Lock.Present:
			return enrich.NewCommand(enrich.ValidateCommand(in.RootArg), "lock missing; validate resolves the inputs")
		case in.Lock.Stale:
			return enrich.NewCommand(enrich.ValidateCommand(in.RootArg), "lock stale; inputs changed since the last validate")
		case !in.Plan.Present:
			return enrich.NewCommand(enrich.PlanCommand(in.RootArg), "plan missing; plan evaluates the locked inputs")
		case in.Plan.Stale:
			return enrich.NewCommand(enrich.PlanCommand(in.RootArg), "plan stale relative to lock")
		}
	}
	for _, r := range in.Requirements {
		if r.State != enrich.StateUnmet {
			continue
		}
		if a, ok := in.Areas[r.ID]; ok {
			return a
		}
		return enrich.NewCommand(enrich.ApplyCommand(in.RootArg), fmt.Sprintf("address %s: %s", r.ID, r.Reason))
	}
	return enrich.NewCommand(enrich.StatusCommand(in.RootArg), "requirements met; recheck when inputs change")
}

func missingPrerequisite(in Input) (enrich.NextAction, bool) {
	missing := func(rel string) bool { return slices.Contains(in.MissingInputs, rel) }
	binary := in.BinaryName
	if binary == "" {
		binary = "<binary>"
	}
	switch {
	case missing(docpack.ConfigPath):
		return enrich.NewCommand(enrich.InitCommand(binary, in.RootArg),
			docpack.ConfigPath+" missing; init writes the default config"), true
	case missing(docpack.ScenarioPlanPath):
		content, err := docpack.MarshalJSON(scenarios.StubPlan())
		if err != nil {
			panic(fmt.Sprintf("encode stub plan: %v", err))
		}
		return enrich.NewEdit(docpack.ScenarioPlanPath, string(content),
			docpack.ScenarioPlanPath+" missing; start from a help scenario", enrich.StrategyReplaceFile), true
	case missing(docpack.ManifestPath):
		return enrich.NewCommand(enrich.InitCommand(binary, in.RootArg),
			docpack.ManifestPath+" missing; init records the binary"), true
	}
	if len(in.MissingInputs) > 0 {
		return enrich.NewCommand(enrich.ValidateCommand(in.RootArg),
			fmt.Sprintf("required input missing: %s; create it or drop it from %s", in.MissingInputs[0], docpack.ConfigPath)), true
	}
	return enrich.NextAction{}, false
}

func blockedRequirement(in Input) (enrich.NextAction, bool) {
	for _, r := range in.Requirements {
		if r.State != enrich.StateBlocked {
			continue
		}
		for _, b := range r.Blockers {
			if b.NextAction != nil {
				return *b.NextAction, true
			}
		}
		if len(r.Blockers) == 0 {
			return enrich.NewCommand(enrich.StatusCommand(in.RootArg), fmt.Sprintf("%s blocked: %s", r.ID, r.Reason)), true
		}
		return blockerRemedy(in.RootArg, r.ID, r.Blockers[0]), true
	}
	return enrich.NextAction{}, false
}

// generatedOutputs are written by apply; a broken one is removed and
// regenerated rather than edited.
var generatedOutputs = []string{
	docpack.SurfacePath,
	docpack.ScenarioIndexPath,
	docpack.VerificationLedgerPath,
	docpack.CoverageLedgerPath,
	docpack.ExamplesReportPath,
	docpack.ManMetaPath,
}

// blockerRemedy names the file at fault and the command to run once it is
// fixed: validate for pack inputs, plan for apply outputs.
func blockerRemedy(root string, id enrich.RequirementID, b enrich.Blocker) enrich.NextAction {
	detail := fmt.Sprintf("%s blocked: %s: %s", id, b.Code, b.Message)
	if len(b.Evidence) == 0 {
		return enrich.NewCommand(enrich.StatusCommand(root), detail)
	}
	rel := b.Evidence[0].Path
	if slices.Contains(generatedOutputs, rel) {
		return enrich.NewCommand(enrich.PlanCommand(root), fmt.Sprintf("remove or fix %s; %s", rel, detail))
	}
	return enrich.NewCommand(enrich.ValidateCommand(root), fmt.Sprintf("fix %s; %s", rel, detail))
}
