package requirements

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lens"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/schema"
	"github.com/roach88/bman/internal/verification"
)

// surfaceInputs resolves the merged inventory and the scenario plan, or
// reports why they are unavailable. Missing files are recorded.
func (s *state) surfaceInputs() (missing []string, blockers []enrich.Blocker) {
	s.loadInventory()
	s.loadPlan()

	switch {
	case s.inventoryErr == nil:
	case docpack.IsNotExist(s.inventoryErr):
		missing = append(missing, docpack.SurfacePath)
	default:
		blockers = append(blockers, blocker("surface_invalid", docpack.SurfacePath, s.inventoryErr))
	}
	if s.overlaysErr != nil {
		blockers = append(blockers, blocker("surface_overlays_invalid", docpack.OverlaysPath, s.overlaysErr))
	}

	switch {
	case s.planErr == nil:
	case docpack.IsNotExist(s.planErr):
		rel := docpack.ScenarioPlanPath
		if s.in.Root.Exists(rel) {
			rel = s.in.Config.ScenarioCatalog()
		}
		missing = append(missing, rel)
	default:
		rel := docpack.ScenarioPlanPath
		var verr *schema.ValidationError
		if errors.As(s.planErr, &verr) && verr.File != "" {
			rel = verr.File
		}
		blockers = append(blockers, blocker("scenario_plan_invalid", rel, s.planErr))
	}

	for _, rel := range missing {
		s.addMissing(rel)
	}
	return missing, blockers
}

func (s *state) surfaceRequirement() enrich.RequirementStatus {
	s.loadInventory()
	switch {
	case s.inventoryErr == nil:
	case docpack.IsNotExist(s.inventoryErr):
		s.addMissing(docpack.SurfacePath)
		return unmet("surface inventory missing")
	default:
		return blocked("surface inventory invalid", blocker("surface_invalid", docpack.SurfacePath, s.inventoryErr))
	}
	if s.overlaysErr != nil {
		return blocked("surface overlays invalid", blocker("surface_overlays_invalid", docpack.OverlaysPath, s.overlaysErr))
	}

	inv := s.inventory
	ev := evidence(docpack.SurfacePath)

	// Discovery blockers describe the inputs discovery last ran against.
	// Once those inputs changed, another apply has to rediscover first.
	discovery := inv.Blockers[:s.discoveryBlockers]
	merge := inv.Blockers[s.discoveryBlockers:]
	if len(merge) > 0 {
		return blocked("surface overlays do not match the inventory", merge...)
	}
	if len(discovery) > 0 {
		if s.outdated(inv.InputsHash) {
			return unmet("surface discovery blocked on outdated inputs; rediscovery pending", ev...)
		}
		return blocked("surface discovery blocked", discovery...)
	}

	n := len(inv.MeaningfulItems())
	if n == 0 {
		return unmet("surface inventory has no items", ev...)
	}
	if s.staleAgainstLock(inv.InputsHash) {
		return unmet("surface inventory stale relative to lock", ev...)
	}
	return met(fmt.Sprintf("surface inventory has %d items", n), ev...)
}

func (s *state) coverageRequirement(areas map[enrich.RequirementID]enrich.NextAction) enrich.RequirementStatus {
	missing, blockers := s.surfaceInputs()
	if len(blockers) > 0 {
		return blocked("coverage inputs blocked", blockers...)
	}
	if len(missing) > 0 {
		return unmet("coverage inputs missing: " + strings.Join(missing, ", "))
	}

	ev := evidence(docpack.SurfacePath, docpack.ScenarioPlanPath)
	ignored := s.plan.CoverageBlocked()
	items := s.inventory.MeaningfulItems()
	var uncovered []string
	for _, it := range items {
		if _, ok := ignored[it.ID]; ok {
			continue
		}
		if len(s.plan.CoveringScenarios(it.ID)) == 0 {
			uncovered = append(uncovered, it.ID)
		}
	}
	if len(uncovered) == 0 {
		return met(fmt.Sprintf("%d surface items covered or blocked", len(items)), ev...)
	}
	slices.Sort(uncovered)
	areas[enrich.RequirementCoverage] = verification.CoverageEdit(s.inventory, uncovered)
	st := unmet(fmt.Sprintf("%d of %d surface items uncovered", len(uncovered), len(items)), ev...)
	st.UnverifiedIDs = preview(uncovered, s.in.Full)
	return st
}

func (s *state) coverageLedgerRequirement() enrich.RequirementStatus {
	l, err := lens.LoadCoverageLedger(s.in.Root)
	switch {
	case err == nil:
	case docpack.IsNotExist(err):
		s.addMissing(docpack.CoverageLedgerPath)
		return unmet("coverage ledger missing")
	default:
		return blocked("coverage ledger invalid", blocker("coverage_ledger_invalid", docpack.CoverageLedgerPath, err))
	}
	ev := evidence(docpack.CoverageLedgerPath)
	if s.staleAgainstLock(l.InputsHash) {
		return unmet("coverage ledger stale relative to lock", ev...)
	}
	return met(fmt.Sprintf("coverage ledger has %d items, %d uncovered", len(l.Items), len(l.Uncovered())), ev...)
}

func (s *state) examplesRequirement(areas map[enrich.RequirementID]enrich.NextAction) enrich.RequirementStatus {
	r, err := scenarios.LoadExamplesReport(s.in.Root)
	switch {
	case err == nil:
	case docpack.IsNotExist(err):
		s.addMissing(docpack.ExamplesReportPath)
		return unmet("examples report missing")
	default:
		return blocked("examples report invalid", blocker("examples_report_invalid", docpack.ExamplesReportPath, err))
	}
	ev := evidence(docpack.ExamplesReportPath)
	if s.staleAgainstLock(r.InputsHash) {
		return unmet("examples report stale relative to lock", ev...)
	}

	// Auto-verify scenarios are judged by the verification requirement.
	var failing []scenarios.ExampleResult
	for _, res := range r.Scenarios {
		if !res.Pass && !strings.HasPrefix(res.ScenarioID, enrich.AutoVerifyScenarioPrefix) {
			failing = append(failing, res)
		}
	}
	if len(failing) == 0 {
		return met(fmt.Sprintf("examples report has %d passing scenarios", r.PassCount), ev...)
	}

	ids := make([]string, 0, len(failing))
	for _, res := range failing {
		ids = append(ids, res.ScenarioID)
	}
	if a, ok := s.failingScenarioEdit(failing[0]); ok {
		areas[enrich.RequirementExamplesReport] = a
	}
	st := unmet(fmt.Sprintf("%d of %d scenarios failing", len(failing), r.ScenarioCount), ev...)
	st.UnverifiedIDs = preview(ids, s.in.Full)
	return st
}

// failingScenarioEdit proposes the failing scenario back as an upsert, so
// the author can fix its argv, seed or expectations in place.
func (s *state) failingScenarioEdit(res scenarios.ExampleResult) (enrich.NextAction, bool) {
	s.loadPlan()
	if s.plan == nil {
		return enrich.NextAction{}, false
	}
	spec, ok := s.plan.Find(res.ScenarioID)
	if !ok {
		return enrich.NextAction{}, false
	}
	reason := fmt.Sprintf("fix failing scenario %s", res.ScenarioID)
	if len(res.Failures) > 0 {
		reason += ": " + res.Failures[0]
	}
	content, err := docpack.MarshalJSON(struct {
		Scenarios []scenarios.Spec `json:"scenarios"`
	}{Scenarios: []scenarios.Spec{spec}})
	if err != nil {
		return enrich.NextAction{}, false
	}
	return enrich.NewEdit(docpack.ScenarioPlanPath, string(content), reason, enrich.StrategyUpsertScenariosByID).
		WithPayload(&enrich.BehaviorPayload{TargetIDs: spec.Covers}), true
}
