package scenarios

import (
	"github.com/roach88/bman/internal/enrich"
)

// AutoTarget is a surface item that needs an existence check and has no
// scenario of its own.
type AutoTarget struct {
	SurfaceID    string
	RequiresArgv []string
}

// AutoScenarioID is the synthetic scenario id for a surface id.
func AutoScenarioID(surfaceID string) string {
	return enrich.AutoVerifyScenarioPrefix + surfaceID
}

// AutoScenarios synthesizes one acceptance scenario per target: run the
// binary with the target (after any required argv) and expect exit 0.
func AutoScenarios(targets []AutoTarget) []Spec {
	specs := make([]Spec, 0, len(targets))
	zero := 0
	for _, t := range targets {
		argv := append([]string{}, t.RequiresArgv...)
		argv = append(argv, t.SurfaceID)
		specs = append(specs, Spec{
			ID:           AutoScenarioID(t.SurfaceID),
			Kind:         KindBehavior,
			Argv:         argv,
			CoverageTier: TierAcceptance,
			Covers:       []string{t.SurfaceID},
			Expect:       Expect{ExitCode: &zero},
		})
	}
	return specs
}

// HelpScenarioID is the id of the help scenario in a stub plan.
const HelpScenarioID = "help"

// StubPlan is the scenario plan init writes: one help scenario that
// surface discovery and the man page synopsis start from.
func StubPlan() *Plan {
	zero := 0
	return &Plan{
		SchemaVersion: PlanSchemaVersion,
		Scenarios: []Spec{{
			ID:     HelpScenarioID,
			Kind:   KindHelp,
			Argv:   []string{"--help"},
			Expect: Expect{ExitCode: &zero},
		}},
	}
}
