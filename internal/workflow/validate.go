package workflow

import (
	"context"
	"fmt"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/progress"
)

// Validate resolves and hashes the configured inputs and writes
// enrich/lock.json.
func (o *Orchestrator) Validate(ctx context.Context) (*lock.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := o.validate()
	if err != nil {
		o.appendHistory(enrich.HistoryEntry{Step: enrich.StepValidate, Message: err.Error()})
		return nil, err
	}
	o.appendHistory(enrich.HistoryEntry{Step: enrich.StepValidate, Success: true, InputsHash: l.InputsHash})
	o.logger.Info("lock written", "doc_pack", o.root.Dir(), "inputs_hash", l.InputsHash, "inputs", len(l.Inputs))
	return &l, nil
}

func (o *Orchestrator) validate() (lock.Lock, error) {
	cfg, err := config.Load(o.root)
	if err != nil {
		return lock.Lock{}, err
	}
	l, err := lock.Build(o.root, o.lockInput(cfg), o.clock)
	if err != nil {
		return lock.Lock{}, err
	}
	if err := lock.Write(o.root, l); err != nil {
		return lock.Lock{}, fmt.Errorf("write lock: %w", err)
	}
	return l, nil
}

// Plan evaluates the requirements against the current lock and writes
// enrich/plan.out.json. Without force a missing lock returns ErrLockMissing
// and a stale one a *StaleError. A forced plan over a missing lock embeds
// a lock built in memory; nothing else is written.
func (o *Orchestrator) Plan(ctx context.Context, force bool) (*enrich.Plan, error) {
	p, err := o.plan(ctx, force)
	if err != nil {
		o.appendHistory(enrich.HistoryEntry{Step: enrich.StepPlan, ForceUsed: force, Message: err.Error()})
		return nil, err
	}
	o.appendHistory(enrich.HistoryEntry{
		Step:       enrich.StepPlan,
		Success:    true,
		InputsHash: p.Lock.InputsHash,
		ForceUsed:  p.ForceUsed,
		Message:    string(p.Decision),
	})
	o.logger.Info("plan written", "decision", p.Decision, "planned_actions", len(p.PlannedActions))
	return p, nil
}

func (o *Orchestrator) plan(ctx context.Context, force bool) (*enrich.Plan, error) {
	cfg, err := config.Load(o.root)
	if err != nil {
		return nil, err
	}
	l, st, err := lock.LoadStatus(o.root)
	if err != nil {
		return nil, err
	}
	forced := false
	switch {
	case l == nil && !force:
		return nil, ErrLockMissing
	case l == nil:
		built, err := lock.Build(o.root, o.lockInput(cfg), o.clock)
		if err != nil {
			return nil, err
		}
		l = &built
		st = lock.Status{Present: true, InputsHash: built.InputsHash, CurrentHash: built.InputsHash}
		forced = true
	case st.Stale && !force:
		return nil, &StaleError{Artifact: docpack.LockPath, Recorded: st.InputsHash, Current: st.CurrentHash}
	case st.Stale:
		o.logger.Warn("planning against a stale lock", "recorded", st.InputsHash, "current", st.CurrentHash)
		forced = true
	}

	// The plan being written is by definition fresh.
	ps := enrich.PlanStatus{Present: true, InputsHash: l.InputsHash}
	ev, err := o.evaluate(ctx, cfg, st, ps, progress.Load(o.root), force, false)
	if err != nil {
		return nil, err
	}

	p := &enrich.Plan{
		SchemaVersion:      enrich.PlanSchemaVersion,
		GeneratedAtEpochMs: o.now(),
		BinaryName:         ev.BinaryName,
		Lock:               *l,
		Requirements:       ev.Requirements,
		PlannedActions:     orEmpty(ev.PlannedActions),
		NextAction:         ev.Next,
		Decision:           ev.Decision,
		DecisionReason:     ev.DecisionReason,
		ForceUsed:          forced,
	}
	if ev.Verification != nil {
		info := ev.Verification.Info
		p.VerificationPlan = &info
	}
	if err := o.root.WriteJSON(docpack.PlanPath, p); err != nil {
		return nil, fmt.Errorf("write plan: %w", err)
	}
	return p, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
