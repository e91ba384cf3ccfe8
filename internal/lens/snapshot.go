package lens

import (
	"encoding/json"
	"path"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
)

// FileReader reads pack-relative files.
type FileReader interface {
	ReadFile(rel string) ([]byte, error)
}

// Snapshot is the read-only state a lens query runs against.
type Snapshot struct {
	Items      []ItemRow
	Scenarios  []ScenarioRow
	Covers     []CoverRow
	Runs       []RunRow
	Assertions []AssertionRow
}

// ItemRow is one surface item.
type ItemRow struct {
	SurfaceID          string
	Kind               string
	NeedsValueExamples bool
	ExcludedReason     string
	CoverageBlocked    string
}

// ScenarioRow is one scenario known to the plan or the run cache.
type ScenarioRow struct {
	ScenarioID         string
	Kind               string
	CoverageTier       string
	CoverageIgnore     bool
	BaselineScenarioID string
	HasPredicate       bool
	HasDeltaAssertion  bool
	AssertionCount     int
	IsAuto             bool
}

// CoverRow links a scenario to a surface id it covers.
type CoverRow struct {
	ScenarioID string
	SurfaceID  string
}

// RunRow is the cached outcome of a scenario whose digest is current.
type RunRow struct {
	ScenarioID   string
	Pass         bool
	EvidencePath string
	StdoutSHA256 string
}

// AssertionRow is one evaluated assertion.
type AssertionRow struct {
	ScenarioID string
	Ordinal    int
	Kind       string
	SeedPath   string
	Token      string
	Seeded     bool
	Passed     bool
}

// SnapshotInput gathers what BuildSnapshot reads.
type SnapshotInput struct {
	Inventory *surface.Inventory
	Plan      *scenarios.Plan
	Index     *scenarios.Index

	// Excludes maps surface ids removed from verification to a reason.
	Excludes map[string]string
}

// BuildSnapshot resolves the plan, run cache and evidence into rows. Runs
// whose digest no longer matches the scenario, or whose evidence is gone,
// are left out so the lens reports them as pending.
func BuildSnapshot(src FileReader, in SnapshotInput) (*Snapshot, error) {
	snap := &Snapshot{}
	plan := in.Plan
	if plan == nil {
		plan = &scenarios.Plan{}
	}
	idx := in.Index
	if idx == nil {
		idx = scenarios.NewIndex()
	}

	blocked := plan.CoverageBlocked()
	if in.Inventory != nil {
		seen := map[string]bool{}
		for _, it := range in.Inventory.Items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			snap.Items = append(snap.Items, ItemRow{
				SurfaceID:          it.ID,
				Kind:               string(it.Kind),
				NeedsValueExamples: it.NeedsValueExamples(),
				ExcludedReason:     in.Excludes[it.ID],
				CoverageBlocked:    blocked[it.ID],
			})
		}
	}

	specs := slices.Clone(plan.Scenarios)
	specs = append(specs, cachedAutoScenarios(plan, idx, in.Inventory)...)

	evidence := map[string]*scenarios.Evidence{}
	for _, spec := range specs {
		snap.Scenarios = append(snap.Scenarios, ScenarioRow{
			ScenarioID:         spec.ID,
			Kind:               string(spec.EffectiveKind()),
			CoverageTier:       string(spec.EffectiveCoverageTier()),
			CoverageIgnore:     spec.CoverageIgnore,
			BaselineScenarioID: spec.BaselineScenarioID,
			HasPredicate:       spec.Expect.HasPredicate(),
			HasDeltaAssertion:  spec.HasDeltaAssertion(),
			AssertionCount:     len(spec.Assertions),
			IsAuto:             spec.IsAuto(),
		})
		covered := map[string]bool{}
		for _, id := range spec.Covers {
			if covered[id] {
				continue
			}
			covered[id] = true
			snap.Covers = append(snap.Covers, CoverRow{ScenarioID: spec.ID, SurfaceID: id})
		}

		run, ev, ok := currentRun(src, plan, spec, idx)
		if !ok {
			continue
		}
		snap.Runs = append(snap.Runs, run)
		evidence[spec.ID] = ev
	}

	for _, spec := range specs {
		for i, a := range spec.Assertions {
			snap.Assertions = append(snap.Assertions, evaluateAssertion(src, spec, i, a, evidence))
		}
	}
	return snap, nil
}

// cachedAutoScenarios reconstructs auto-verify scenarios that have cache
// entries, so their evidence counts toward existence verification.
func cachedAutoScenarios(plan *scenarios.Plan, idx *scenarios.Index, inv *surface.Inventory) []scenarios.Spec {
	var targets []scenarios.AutoTarget
	for _, e := range idx.Entries {
		if !strings.HasPrefix(e.ScenarioID, scenarios.AutoScenarioID("")) {
			continue
		}
		if _, declared := plan.Find(e.ScenarioID); declared {
			continue
		}
		id := strings.TrimPrefix(e.ScenarioID, scenarios.AutoScenarioID(""))
		t := scenarios.AutoTarget{SurfaceID: id}
		if inv != nil {
			if it, ok := inv.Find(id); ok {
				t.RequiresArgv = it.Invocation.RequiresArgv
			}
		}
		targets = append(targets, t)
	}
	return scenarios.AutoScenarios(targets)
}

func currentRun(src FileReader, plan *scenarios.Plan, spec scenarios.Spec, idx *scenarios.Index) (RunRow, *scenarios.Evidence, bool) {
	entry, ok := idx.Get(spec.ID)
	if !ok {
		return RunRow{}, nil, false
	}
	_, digest, err := scenarios.EffectiveConfig(plan, spec)
	if err != nil || digest != entry.ScenarioDigest {
		return RunRow{}, nil, false
	}
	row := RunRow{ScenarioID: spec.ID, Pass: entry.LastPass}
	p, ok := idx.LatestEvidence(spec.ID)
	if !ok {
		return row, nil, true
	}
	data, err := src.ReadFile(p)
	if err != nil {
		return RunRow{}, nil, false
	}
	var ev scenarios.Evidence
	if err := json.Unmarshal(data, &ev); err != nil {
		return RunRow{}, nil, false
	}
	row.EvidencePath = p
	row.StdoutSHA256 = ev.StdoutSHA256
	return row, &ev, true
}

// AssertionToken is the stdout token an assertion looks for: the explicit
// token, else the base name of its seed path.
func AssertionToken(a scenarios.Assertion) string {
	if a.StdoutToken != "" {
		return a.StdoutToken
	}
	if a.SeedPath != "" {
		return path.Base(a.SeedPath)
	}
	return ""
}

func evaluateAssertion(src FileReader, spec scenarios.Spec, ordinal int, a scenarios.Assertion, evidence map[string]*scenarios.Evidence) AssertionRow {
	row := AssertionRow{
		ScenarioID: spec.ID,
		Ordinal:    ordinal,
		Kind:       string(a.Kind),
		SeedPath:   a.SeedPath,
		Token:      AssertionToken(a),
		Seeded:     isSeeded(src, spec, a.SeedPath),
	}

	variant := evidence[spec.ID]
	baseline := evidence[spec.BaselineScenarioID]
	switch a.Kind {
	case scenarios.AssertVariantHasLine:
		row.Passed = lineCheck(variant, row.Token, true)
	case scenarios.AssertVariantLacksLine:
		row.Passed = lineCheck(variant, row.Token, false)
	case scenarios.AssertBaselineHasLine:
		row.Passed = lineCheck(baseline, row.Token, true)
	case scenarios.AssertBaselineLacksLine:
		row.Passed = lineCheck(baseline, row.Token, false)
	case scenarios.AssertVariantDiffersFromBL:
		row.Passed = variant != nil && baseline != nil && variant.StdoutSHA256 != baseline.StdoutSHA256
	}
	return row
}

// lineCheck reports whether ev's stdout has (or lacks) a line containing
// token. A token missing from truncated stdout is undecidable and never
// passes either way.
func lineCheck(ev *scenarios.Evidence, token string, want bool) bool {
	if ev == nil {
		return false
	}
	found := hasLine(ev.Stdout, token)
	if !found && ev.StdoutTruncated {
		return false
	}
	return found == want
}

func hasLine(stdout, token string) bool {
	for _, line := range strings.Split(stdout, "\n") {
		if strings.Contains(line, token) {
			return true
		}
	}
	return false
}

// isSeeded reports whether seedPath is materialized by the scenario: an
// explicit seed entry, or a file under its seed_dir.
func isSeeded(src FileReader, spec scenarios.Spec, seedPath string) bool {
	if seedPath == "" {
		return true
	}
	clean := path.Clean(seedPath)
	for _, e := range scenarios.NormalizeSeed(spec.Seed) {
		if e.Path == clean {
			return true
		}
	}
	if spec.SeedDir != "" {
		if _, err := src.ReadFile(path.Join(spec.SeedDir, clean)); err == nil {
			return true
		}
	}
	return false
}
