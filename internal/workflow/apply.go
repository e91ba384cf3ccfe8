package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"slices"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lens"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/progress"
	"github.com/roach88/bman/internal/render"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/staging"
	"github.com/roach88/bman/internal/surface"
	"github.com/roach88/bman/internal/verification"
)

// Apply stage names, in execution order. ApplyOptions.FailAfterStage takes
// one of them.
const (
	StageSurfaceDiscovery = "surface_discovery"
	StageScenarioRuns     = "scenario_runs"
	StageLedgers          = "ledgers"
	StageRenderManPage    = "render_man_page"

	// StageReport is the post-publish step that re-evaluates the pack and
	// writes the report. It is not a planned action.
	StageReport = "report"
)

// ApplyOptions tunes one apply.
type ApplyOptions struct {
	RerunAll         bool
	RerunFailed      bool
	RerunScenarioIDs []string

	// FailAfterStage aborts the apply after the named stage has staged its
	// outputs. Tests use it to check that nothing is published. StageReport
	// fails after publishing, before the report is written.
	FailAfterStage string
}

// StageFailure is the error FailAfterStage injects.
type StageFailure struct {
	Stage string
}

// Error implements the error interface.
func (e *StageFailure) Error() string {
	return fmt.Sprintf("injected failure after stage %s", e.Stage)
}

// Apply executes the planned actions in a staging transaction and publishes
// the outputs only when every stage succeeded. A missing or stale lock is
// revalidated and a missing or stale plan is replanned first. A failure
// before publishing leaves the pack untouched and keeps the staging tree
// under enrich/txns for inspection. A failure while writing the report
// comes after the outputs are published and the staging tree is removed.
func (o *Orchestrator) Apply(ctx context.Context, opts ApplyOptions) (*enrich.Report, error) {
	mode, err := scenarios.ParseRunMode(opts.RerunAll, opts.RerunFailed)
	if err != nil {
		return nil, err
	}
	cfg, plan, st, err := o.preflight(ctx)
	if err != nil {
		o.appendHistory(enrich.HistoryEntry{Step: enrich.StepApply, InputsHash: st.InputsHash, Message: err.Error()})
		return nil, err
	}

	txn, err := staging.Begin(o.root, o.ids, o.clock)
	if err != nil {
		o.appendHistory(enrich.HistoryEntry{Step: enrich.StepApply, InputsHash: st.InputsHash, Message: err.Error()})
		return nil, err
	}
	logger := o.logger.With("txn_id", txn.ID)
	logger.Info("apply started", "planned_actions", plan.PlannedActions, "mode", mode)

	r := &applyRun{
		o:    o,
		cfg:  cfg,
		plan: plan,
		txn:  txn,
		opts: opts,
		mode: mode,
	}
	if err := r.stages(ctx); err != nil {
		return nil, o.applyFailed(txn, st.InputsHash, err)
	}
	published, err := txn.Publish()
	if err != nil {
		return nil, o.applyFailed(txn, st.InputsHash, err)
	}
	if err := txn.Cleanup(); err != nil {
		logger.Warn("cleanup staging", "error", err)
	}
	logger.Info("outputs published", "files", len(published))

	report, err := r.finish(ctx, st, published)
	if err != nil {
		logger.Error("apply published outputs but report failed", "published", published, "error", err)
		o.appendHistory(enrich.HistoryEntry{
			Step:       enrich.StepApply,
			InputsHash: st.InputsHash,
			TxnID:      txn.ID,
			Message:    fmt.Sprintf("outputs published; report failed: %v", err),
		})
		return nil, fmt.Errorf("apply txn %s: outputs published: %w", txn.ID, err)
	}
	o.appendHistory(enrich.HistoryEntry{
		Step:        enrich.StepApply,
		Success:     true,
		InputsHash:  report.InputsHash,
		OutputsHash: report.OutputsHash,
		TxnID:       txn.ID,
		Message:     string(report.Decision),
	})
	return report, nil
}

func (o *Orchestrator) applyFailed(txn *staging.Txn, inputsHash string, err error) error {
	o.logger.Error("apply failed; staging kept", "txn_id", txn.ID, "staging", txn.Dir(), "error", err)
	o.appendHistory(enrich.HistoryEntry{
		Step:       enrich.StepApply,
		InputsHash: inputsHash,
		TxnID:      txn.ID,
		Message:    err.Error(),
	})
	return fmt.Errorf("apply txn %s: %w", txn.ID, err)
}

// preflight brings the lock and the plan up to date and checks that they
// agree.
func (o *Orchestrator) preflight(ctx context.Context) (config.Config, *enrich.Plan, lock.Status, error) {
	cfg, err := config.Load(o.root)
	if err != nil {
		return config.Config{}, nil, lock.Status{}, err
	}
	_, st, err := lock.LoadStatus(o.root)
	if err != nil {
		return config.Config{}, nil, st, err
	}
	if !st.Present || st.Stale {
		o.logger.Info("lock missing or stale; validating", "present", st.Present)
		if _, err := o.Validate(ctx); err != nil {
			return config.Config{}, nil, st, err
		}
		if _, st, err = lock.LoadStatus(o.root); err != nil {
			return config.Config{}, nil, st, err
		}
	}
	plan, ps, err := o.loadPlan(st)
	if err != nil {
		return config.Config{}, nil, st, err
	}
	if !ps.Present || ps.Stale {
		o.logger.Info("plan missing or stale; planning", "present", ps.Present)
		if plan, err = o.Plan(ctx, false); err != nil {
			return config.Config{}, nil, st, err
		}
	}
	if plan.Lock.InputsHash != st.InputsHash {
		return config.Config{}, nil, st, &StaleError{Artifact: docpack.PlanPath, Recorded: plan.Lock.InputsHash, Current: st.InputsHash}
	}
	return cfg, plan, st, nil
}

// applyRun carries the state of one apply between stages.
type applyRun struct {
	o    *Orchestrator
	cfg  config.Config
	plan *enrich.Plan
	txn  *staging.Txn
	opts ApplyOptions
	mode scenarios.RunMode

	executed []enrich.PlannedAction
	warnings []string

	scenarioPlan   *scenarios.Plan
	examples       *scenarios.ExamplesReport
	runSummary     *enrich.ScenarioRunSummary
	executedForced []string
}

// warn records a report warning once.
func (r *applyRun) warn(msg string) {
	if !slices.Contains(r.warnings, msg) {
		r.warnings = append(r.warnings, msg)
	}
}

func (r *applyRun) inputsHash() string { return r.plan.Lock.InputsHash }

func (r *applyRun) binaryName() string {
	if r.plan.BinaryName != "" {
		return r.plan.BinaryName
	}
	return r.o.binaryName(r.cfg)
}

// binary resolves what to execute: the manifest path, else the name looked
// up on PATH, else the bare name.
func (r *applyRun) binary() string {
	if m, err := r.o.root.LoadManifest(); err == nil && m.BinaryPath != "" {
		return m.BinaryPath
	}
	name := r.binaryName()
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

func (r *applyRun) planned(a enrich.PlannedAction) bool {
	return enrich.HasAction(r.plan.PlannedActions, a)
}

func (r *applyRun) ran(a enrich.PlannedAction) bool {
	return slices.Contains(r.executed, a)
}

// stages runs every stage whose action was planned, or whose inputs an
// earlier stage of this apply just changed.
func (r *applyRun) stages(ctx context.Context) error {
	forcedRuns := r.mode != scenarios.ModeDefault || len(r.opts.RerunScenarioIDs) > 0
	steps := []struct {
		name   string
		action enrich.PlannedAction
		want   func() bool
		run    func(context.Context) error
	}{
		{
			name:   StageSurfaceDiscovery,
			action: enrich.ActionSurfaceDiscovery,
			want:   func() bool { return r.planned(enrich.ActionSurfaceDiscovery) },
			run:    r.discoverSurface,
		},
		{
			name:   StageScenarioRuns,
			action: enrich.ActionScenarioRuns,
			want: func() bool {
				return forcedRuns || r.planned(enrich.ActionScenarioRuns) || r.ran(enrich.ActionSurfaceDiscovery)
			},
			run: r.runScenarios,
		},
		{
			name:   StageLedgers,
			action: enrich.ActionCoverageLedger,
			want: func() bool {
				return r.planned(enrich.ActionCoverageLedger) || r.ran(enrich.ActionScenarioRuns) ||
					r.ran(enrich.ActionSurfaceDiscovery) || r.cfg.Requires(enrich.RequirementVerification)
			},
			run: r.buildLedgers,
		},
		{
			name:   StageRenderManPage,
			action: enrich.ActionRenderManPage,
			want: func() bool {
				return r.planned(enrich.ActionRenderManPage) ||
					(r.cfg.Requires(enrich.RequirementManPage) && len(r.executed) > 0)
			},
			run: r.renderManPage,
		},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.want() {
			continue
		}
		r.o.logger.Debug("stage started", "stage", s.name)
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("stage %s: %w", s.name, err)
		}
		r.executed = append(r.executed, s.action)
		if r.opts.FailAfterStage == s.name {
			return &StageFailure{Stage: s.name}
		}
	}
	return nil
}

// loadScenarioPlan reads the scenario plan, with its catalog, once.
func (r *applyRun) loadScenarioPlan() (*scenarios.Plan, error) {
	if r.scenarioPlan != nil {
		return r.scenarioPlan, nil
	}
	p, err := scenarios.LoadPlan(r.o.root, r.cfg.ScenarioCatalog())
	if err != nil {
		return nil, err
	}
	r.scenarioPlan = p
	return p, nil
}

// inventory reads the surface inventory through the transaction, so a
// discovery staged earlier in this apply wins, and merges the overlays.
// A missing inventory is nil. Unreadable overlays are skipped with a
// warning; the surface requirement reports them.
func (r *applyRun) inventory() (*surface.Inventory, *surface.Overlays, error) {
	inv, err := surface.LoadInventory(r.txn)
	if err != nil {
		if docpack.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	ov, err := surface.LoadOverlays(r.o.root)
	if err != nil {
		r.warn(fmt.Sprintf("overlays ignored: %v", err))
		ov = nil
	}
	return surface.Merge(inv, ov), ov, nil
}

func (r *applyRun) discoverSurface(ctx context.Context) error {
	sp, err := r.loadScenarioPlan()
	if err != nil {
		return err
	}
	inv, err := r.o.discoverer.Discover(ctx, surface.DiscoverRequest{
		Root:       r.o.root,
		Plan:       sp,
		Binary:     r.binary(),
		BinaryName: r.binaryName(),
		InputsHash: r.inputsHash(),
		Clock:      r.o.clock,
	})
	if err != nil {
		return err
	}
	if len(inv.Blockers) > 0 {
		r.warn(fmt.Sprintf("surface discovery recorded %d blockers", len(inv.Blockers)))
	}
	r.o.logger.Info("surface discovered", "items", len(inv.Items), "blockers", len(inv.Blockers))
	return r.txn.WriteJSON(docpack.SurfacePath, inv)
}

func (r *applyRun) runScenarios(ctx context.Context) error {
	sp, err := r.loadScenarioPlan()
	if err != nil {
		return err
	}
	inv, _, err := r.inventory()
	if err != nil {
		return err
	}
	res, err := scenarios.Run(ctx, scenarios.RunRequest{
		Root:        r.o.root,
		Plan:        sp,
		Index:       scenarios.LoadIndex(r.txn),
		Binary:      r.binary(),
		BinaryName:  r.binaryName(),
		InputsHash:  r.inputsHash(),
		Mode:        r.mode,
		ForcedIDs:   r.opts.RerunScenarioIDs,
		AutoTargets: autoTargets(inv, sp),
		Runner:      r.o.runner,
		Sink:        r.txn,
		Clock:       r.o.clock,
		Logger:      r.o.logger,
	})
	if err != nil {
		return err
	}
	if err := r.txn.WriteJSON(docpack.ExamplesReportPath, res.Report); err != nil {
		return err
	}
	report := res.Report
	r.examples = &report
	r.executedForced = res.ExecutedForcedIDs
	r.warnings = append(r.warnings, res.Warnings...)
	r.runSummary = &enrich.ScenarioRunSummary{
		ScenarioCount: report.ScenarioCount,
		RunCount:      report.RunCount,
		SkippedCount:  report.SkippedCount,
		PassCount:     report.PassCount,
		FailCount:     report.FailCount,
	}
	r.o.logger.Info("scenarios run", "scenarios", report.ScenarioCount, "ran", report.RunCount, "failed", report.FailCount)
	return nil
}

// autoTargets lists the policy-kind surface items that no declared
// scenario covers and the policy does not exclude.
func autoTargets(inv *surface.Inventory, sp *scenarios.Plan) []scenarios.AutoTarget {
	if inv == nil {
		return nil
	}
	excluded := sp.PolicyExcludes()
	var out []scenarios.AutoTarget
	for _, id := range inv.IDsOfKinds(sp.PolicyKinds()) {
		if _, ok := excluded[id]; ok {
			continue
		}
		if len(sp.CoveringScenarios(id)) > 0 || len(sp.BehaviorScenariosFor(id)) > 0 {
			continue
		}
		it, _ := inv.Find(id)
		out = append(out, scenarios.AutoTarget{SurfaceID: id, RequiresArgv: it.Invocation.RequiresArgv})
	}
	return out
}

func (r *applyRun) buildLedgers(ctx context.Context) error {
	sp, err := r.loadScenarioPlan()
	if err != nil {
		return err
	}
	inv, _, err := r.inventory()
	if err != nil {
		return err
	}
	if inv == nil {
		r.warn("ledgers not built: surface inventory missing")
		return nil
	}
	template, err := lens.LoadTemplate(r.o.root, r.cfg.VerificationLensTemplate)
	if err != nil {
		return err
	}
	snap, err := lens.BuildSnapshot(r.txn, lens.SnapshotInput{
		Inventory: inv,
		Plan:      sp,
		Index:     scenarios.LoadIndex(r.txn),
		Excludes:  sp.PolicyExcludes(),
	})
	if err != nil {
		return err
	}
	ledgers, err := lens.BuildLedgers(ctx, r.o.lens, template, snap, r.inputsHash(), r.o.clock)
	if err != nil {
		return err
	}
	if err := r.txn.WriteJSON(docpack.VerificationLedgerPath, ledgers.Verification); err != nil {
		return err
	}
	return r.txn.WriteJSON(docpack.CoverageLedgerPath, ledgers.Coverage)
}

func (r *applyRun) renderManPage(_ context.Context) error {
	name := r.binaryName()
	if name == "" {
		r.warn("man page not rendered: binary name unknown")
		return nil
	}
	sp, err := r.loadScenarioPlan()
	if err != nil {
		return err
	}
	inv, _, err := r.inventory()
	if err != nil {
		return err
	}
	sem, err := render.LoadSemantics(r.o.root)
	if err != nil {
		if !docpack.IsNotExist(err) {
			r.warn(fmt.Sprintf("semantics ignored: %v", err))
		}
		sem = nil
	}
	examples := r.examples
	if examples == nil {
		if rep, err := scenarios.LoadExamplesReport(r.txn); err == nil {
			examples = rep
		}
	}

	page, err := r.o.renderer.Render(render.Input{
		BinaryName: name,
		Semantics:  sem,
		Inventory:  inv,
		Plan:       sp,
		Examples:   examples,
		HelpText:   r.helpText(),
	})
	if err != nil {
		return err
	}
	if err := r.txn.WriteBytes(docpack.ManPagePath(name), []byte(page.Text)); err != nil {
		return err
	}
	r.warnings = append(r.warnings, page.Summary.Warnings...)
	meta := render.NewMeta(name, r.inputsHash(), page, examples, r.o.now())
	return r.txn.WriteJSON(docpack.ManMetaPath, meta)
}

// helpText is the stdout of the latest help scenario run, if any.
func (r *applyRun) helpText() string {
	idx := scenarios.LoadIndex(r.txn)
	rel, ok := idx.LatestEvidence(scenarios.HelpScenarioID)
	if !ok {
		return ""
	}
	data, err := r.txn.ReadFile(rel)
	if err != nil {
		return ""
	}
	var ev scenarios.Evidence
	if err := json.Unmarshal(data, &ev); err != nil {
		return ""
	}
	return ev.Stdout
}

// finish re-evaluates the published pack, advances the progress store and
// writes the report.
func (r *applyRun) finish(ctx context.Context, st lock.Status, published []string) (*enrich.Report, error) {
	o := r.o
	prog := progress.Load(o.root)
	ps := enrich.PlanStatus{Present: true, InputsHash: r.inputsHash()}

	ev, err := o.evaluate(ctx, r.cfg, st, ps, prog, false, false)
	if err != nil {
		return nil, err
	}
	changed := false
	if ev.Verification != nil {
		outputsEqual, assertionFailed := verification.ConvergenceTargets(ev.Verification.Input)
		if prog.UpdateOutputsEqualAfterApply(outputsEqual, r.executedForced) {
			changed = true
		}
		if prog.UpdateAssertionFailedAfterApply(assertionFailed, r.executedForced) {
			changed = true
		}
		if changed {
			// Counters feed the recommendation; evaluate again over them.
			if ev, err = o.evaluate(ctx, r.cfg, st, ps, prog, false, false); err != nil {
				return nil, err
			}
		}
	}

	report := &enrich.Report{
		SchemaVersion:      enrich.PlanSchemaVersion,
		GeneratedAtEpochMs: o.now(),
		BinaryName:         ev.BinaryName,
		InputsHash:         r.inputsHash(),
		ExecutedActions:    orEmpty(r.executed),
		Published:          orEmpty(published),
		Scenarios:          r.runSummary,
		ForcedRerunIDs:     r.executedForced,
		Warnings:           r.warnings,
		Requirements:       ev.Requirements,
		Decision:           ev.Decision,
		DecisionReason:     ev.DecisionReason,
		NextAction:         ev.Next,
		LastRun: enrich.LastRun{
			TxnID:             r.txn.ID,
			StartedAtEpochMs:  r.txn.StartedAtEpochMs,
			FinishedAtEpochMs: o.now(),
			Success:           true,
		},
	}
	if ev.Verification != nil && ev.Verification.Signature != nil {
		sig := *ev.Verification.Signature
		if prog.RecordEdit(sig) {
			changed = true
		}
		report.RecommendedEdits = append(report.RecommendedEdits, sig)
	}
	if changed {
		if err := progress.Write(o.root, prog); err != nil {
			return nil, fmt.Errorf("write progress: %w", err)
		}
	}

	outputs, err := lock.HashPaths(o.root, published)
	if err != nil {
		return nil, fmt.Errorf("hash published outputs: %w", err)
	}
	report.OutputsHash = outputs
	if r.opts.FailAfterStage == StageReport {
		return nil, &StageFailure{Stage: StageReport}
	}
	if err := o.root.WriteJSON(docpack.ReportPath, report); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	o.logger.Info("apply finished", "decision", report.Decision, "outputs_hash", outputs)
	return report, nil
}
