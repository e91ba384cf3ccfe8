package workflow

import (
	"context"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/progress"
)

// StatusOptions tunes a status evaluation.
type StatusOptions struct {
	// Force evaluates the requirements even when the lock is missing or
	// stale, and lets the next action skip the lock and plan steps.
	Force bool

	// Full lifts preview limits in verification triage.
	Full bool
}

// Status evaluates the pack without writing anything to it. A missing
// config is reported through the next action; an invalid one is an error.
func (o *Orchestrator) Status(ctx context.Context, opts StatusOptions) (*enrich.StatusSummary, error) {
	cfg, err := config.Load(o.root)
	switch {
	case err == nil:
	case docpack.IsNotExist(err):
		cfg = config.Default(o.binaryName(config.Config{}))
	default:
		return nil, err
	}

	_, st, err := lock.LoadStatus(o.root)
	if err != nil {
		return nil, err
	}
	_, ps, err := o.loadPlan(st)
	if err != nil {
		return nil, err
	}

	ev, err := o.evaluate(ctx, cfg, st, ps, progress.Load(o.root), opts.Force, opts.Full)
	if err != nil {
		return nil, err
	}

	s := &enrich.StatusSummary{
		SchemaVersion:      enrich.PlanSchemaVersion,
		GeneratedAtEpochMs: o.now(),
		BinaryName:         ev.BinaryName,
		Lock:               st,
		Plan:               ps,
		Requirements:       ev.Requirements,
		MissingArtifacts:   ev.Missing,
		Blockers:           orEmpty(ev.Blockers),
		Decision:           ev.Decision,
		DecisionReason:     ev.DecisionReason,
		NextAction:         ev.Next,
		ForceUsed:          opts.Force,
	}
	if opts.Force && (!st.Present || st.Stale) {
		s.Warnings = append(s.Warnings, "lock missing or stale; requirements evaluated against the current files")
	}
	o.logger.Debug("status evaluated", "decision", s.Decision, "next_action", s.NextAction.Kind)
	return s, nil
}
