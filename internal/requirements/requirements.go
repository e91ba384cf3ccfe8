// Package requirements evaluates the configured requirements of a doc pack
// against its published state.
//
// Each requirement is evaluated independently, in declared order. A missing
// input makes a requirement Unmet and is listed in MissingArtifacts. An input
// that exists but cannot be parsed blocks only the requirements that read it.
// Evaluation never writes to the pack.
package requirements

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lens"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/progress"
	"github.com/roach88/bman/internal/render"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
	"github.com/roach88/bman/internal/verification"
)

// EvalInput is the context of one evaluation.
type EvalInput struct {
	Root docpack.Root

	// RootArg is the pack path as it should appear in suggested commands.
	RootArg string

	Config     config.Config
	LockStatus lock.Status

	// Lens computes verification rows live. Nil uses the SQLite lens.
	Lens lens.Lens

	// Progress is the read-only progress store. Nil is an empty store.
	Progress *progress.Progress

	Full bool
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Requirements     []enrich.RequirementStatus
	MissingArtifacts []string
	Blockers         []enrich.Blocker
	Decision         enrich.Decision
	DecisionReason   string
	PlannedActions   []enrich.PlannedAction

	// Areas holds the corrective action a requirement proposes for itself,
	// keyed by requirement id. The next action synthesizer picks from it.
	Areas map[enrich.RequirementID]enrich.NextAction

	// Verification is set when the verification requirement was evaluated
	// with all of its inputs.
	Verification *VerificationOutcome

	BinaryName string
}

// VerificationOutcome keeps what apply needs to update the progress store.
type VerificationOutcome struct {
	Input     verification.Input
	Signature *enrich.ActionSignature
	Info      enrich.VerificationPlanInfo
}

// Evaluate evaluates every configured requirement.
func Evaluate(ctx context.Context, in EvalInput) (Evaluation, error) {
	if in.Lens == nil {
		in.Lens = lens.NewSQLiteLens()
	}
	if in.Progress == nil {
		in.Progress = progress.New()
	}
	s := newState(in)

	ev := Evaluation{Areas: map[enrich.RequirementID]enrich.NextAction{}}
	for _, id := range in.Config.EffectiveRequirements() {
		var st enrich.RequirementStatus
		var err error
		switch id {
		case enrich.RequirementSurface:
			st = s.surfaceRequirement()
		case enrich.RequirementCoverage:
			st = s.coverageRequirement(ev.Areas)
		case enrich.RequirementCoverageLedger:
			st = s.coverageLedgerRequirement()
		case enrich.RequirementVerification:
			st, err = s.verificationRequirement(ctx, &ev)
		case enrich.RequirementExamplesReport:
			st = s.examplesRequirement(ev.Areas)
		case enrich.RequirementManPage:
			st = s.manPageRequirement(ev.Areas)
		default:
			return Evaluation{}, fmt.Errorf("unknown requirement %q", id)
		}
		if err != nil {
			return Evaluation{}, err
		}
		st.ID = id
		ev.Requirements = append(ev.Requirements, st)
		for _, b := range st.Blockers {
			if !slices.ContainsFunc(ev.Blockers, func(x enrich.Blocker) bool { return x.Code == b.Code && x.Message == b.Message }) {
				ev.Blockers = append(ev.Blockers, b)
			}
		}
	}

	ev.MissingArtifacts = s.missingArtifacts()
	ev.Decision, ev.DecisionReason = enrich.Decide(ev.Requirements)
	ev.PlannedActions = enrich.PlannedActionsFor(ev.Requirements)
	ev.BinaryName = s.binaryName()
	return ev, nil
}

// state lazily loads every artifact a requirement reads, once.
type state struct {
	in EvalInput

	missing []string

	inventoryLoaded bool
	inventory       *surface.Inventory // overlays merged
	overlays        *surface.Overlays
	inventoryErr    error
	overlaysErr     error

	// discoveryBlockers counts the leading inventory blockers that came
	// from discovery rather than from the overlays merge.
	discoveryBlockers int

	planLoaded bool
	plan       *scenarios.Plan
	planErr    error

	manifestLoaded bool
	manifest       *docpack.Manifest
	manifestErr    error
}

func newState(in EvalInput) *state {
	return &state{in: in}
}

func (s *state) addMissing(rel string) {
	if !slices.Contains(s.missing, rel) {
		s.missing = append(s.missing, rel)
	}
}

func (s *state) missingArtifacts() []string {
	out := slices.Clone(s.missing)
	slices.Sort(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func (s *state) lockFresh() bool {
	return s.in.LockStatus.Present && !s.in.LockStatus.Stale
}

// staleAgainstLock reports whether an artifact stamped with hash was built
// from other inputs than the current, fresh lock.
func (s *state) staleAgainstLock(hash string) bool {
	return s.lockFresh() && hash != s.in.LockStatus.InputsHash
}

// outdated reports whether an artifact stamped with hash may no longer
// reflect the inputs: the lock moved on, or the lock itself is stale.
func (s *state) outdated(hash string) bool {
	return s.in.LockStatus.Present && (s.in.LockStatus.Stale || hash != s.in.LockStatus.InputsHash)
}

func (s *state) loadInventory() {
	if s.inventoryLoaded {
		return
	}
	s.inventoryLoaded = true
	raw, err := surface.LoadInventory(s.in.Root)
	if err != nil {
		s.inventoryErr = err
		return
	}
	s.discoveryBlockers = len(raw.Blockers)
	s.overlays, s.overlaysErr = surface.LoadOverlays(s.in.Root)
	s.inventory = surface.Merge(raw, s.overlays)
}

func (s *state) loadPlan() {
	if s.planLoaded {
		return
	}
	s.planLoaded = true
	s.plan, s.planErr = scenarios.LoadPlan(s.in.Root, s.in.Config.ScenarioCatalog())
}

func (s *state) loadManifest() {
	if s.manifestLoaded {
		return
	}
	s.manifestLoaded = true
	s.manifest, s.manifestErr = s.in.Root.LoadManifest()
}

// binaryName prefers the manifest, then the config.
func (s *state) binaryName() string {
	s.loadManifest()
	if s.manifest != nil {
		return s.manifest.BinaryName
	}
	return s.in.Config.BinaryName
}

func blocker(code, rel string, err error) enrich.Blocker {
	return enrich.Blocker{
		Code:     code,
		Message:  err.Error(),
		Evidence: []enrich.EvidenceRef{{Path: rel}},
	}
}

func evidence(paths ...string) []enrich.EvidenceRef {
	refs := make([]enrich.EvidenceRef, 0, len(paths))
	for _, p := range paths {
		refs = append(refs, enrich.EvidenceRef{Path: p})
	}
	return refs
}

func unmet(reason string, ev ...enrich.EvidenceRef) enrich.RequirementStatus {
	return enrich.RequirementStatus{State: enrich.StateUnmet, Reason: reason, Evidence: ev}
}

func met(reason string, ev ...enrich.EvidenceRef) enrich.RequirementStatus {
	return enrich.RequirementStatus{State: enrich.StateMet, Reason: reason, Evidence: ev}
}

func blocked(reason string, blockers ...enrich.Blocker) enrich.RequirementStatus {
	var ev []enrich.EvidenceRef
	for _, b := range blockers {
		ev = append(ev, b.Evidence...)
	}
	return enrich.RequirementStatus{State: enrich.StateBlocked, Reason: reason, Evidence: ev, Blockers: blockers}
}

func preview(ids []string, full bool) []string {
	if full || len(ids) <= enrich.TriagePreviewLimit {
		return ids
	}
	return ids[:enrich.TriagePreviewLimit]
}

// renderSemantics loads enrich/semantics.json; the man page requirement
// distinguishes a missing file from an invalid one.
func (s *state) renderSemantics() (*render.Semantics, error) {
	return render.LoadSemantics(s.in.Root)
}
