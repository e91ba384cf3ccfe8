// Package workflow drives the Lock -> Plan -> Apply pipeline over one doc
// pack.
//
// Validate resolves and hashes the inputs into enrich/lock.json. Plan
// evaluates the requirements against a fresh lock into enrich/plan.out.json.
// Apply executes the planned actions inside a staging transaction and
// publishes the outputs only when every stage succeeded. Status evaluates
// the same requirements without writing anything.
//
// Every step appends one line to enrich/history.jsonl.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lens"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/nextaction"
	"github.com/roach88/bman/internal/progress"
	"github.com/roach88/bman/internal/render"
	"github.com/roach88/bman/internal/requirements"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/staging"
	"github.com/roach88/bman/internal/surface"
)

var (
	// ErrLockMissing is returned by Plan when no lock exists and the plan
	// is not forced.
	ErrLockMissing = errors.New("lock missing; run validate first")

	// ErrAlreadyInitialized is returned by Init when every file it would
	// write already exists.
	ErrAlreadyInitialized = errors.New("doc pack already initialized")
)

// StaleError reports an artifact built from other inputs than the current
// ones.
type StaleError struct {
	Artifact string
	Recorded string
	Current  string
}

// Error implements the error interface.
func (e *StaleError) Error() string {
	return fmt.Sprintf("%s stale: recorded inputs_hash %s, current %s", e.Artifact, e.Recorded, e.Current)
}

// IsStale returns true if err is a StaleError.
// Uses errors.As to handle wrapped errors.
func IsStale(err error) bool {
	var se *StaleError
	return errors.As(err, &se)
}

// Orchestrator runs pipeline steps against one pack.
type Orchestrator struct {
	root    docpack.Root
	rootArg string

	logger     *slog.Logger
	clock      docpack.Clock
	runner     scenarios.Runner
	discoverer surface.Discoverer
	renderer   render.Renderer
	lens       lens.Lens
	ids        staging.IDGenerator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRootArg sets the pack path shown in suggested commands. Defaults to
// the pack directory.
func WithRootArg(arg string) Option {
	return func(o *Orchestrator) { o.rootArg = arg }
}

// WithLogger sets the logger. Defaults to discarding everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the clock used for every generated_at stamp.
func WithClock(c docpack.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithRunner sets the scenario runner. Defaults to running processes.
func WithRunner(r scenarios.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithDiscoverer sets the surface discoverer. Defaults to help discovery
// through the scenario runner.
func WithDiscoverer(d surface.Discoverer) Option {
	return func(o *Orchestrator) { o.discoverer = d }
}

// WithRenderer sets the man page renderer. Defaults to roff.
func WithRenderer(r render.Renderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithLens sets the verification lens. Defaults to SQLite.
func WithLens(l lens.Lens) Option {
	return func(o *Orchestrator) { o.lens = l }
}

// WithIDs sets the transaction id generator. Defaults to UUIDv7.
func WithIDs(ids staging.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = ids }
}

// New creates an Orchestrator for root.
func New(root docpack.Root, opts ...Option) *Orchestrator {
	o := &Orchestrator{root: root, rootArg: root.Dir()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.clock == nil {
		o.clock = docpack.SystemClock{}
	}
	if o.runner == nil {
		o.runner = scenarios.NewProcessRunner(o.logger)
	}
	if o.discoverer == nil {
		o.discoverer = surface.NewHelpDiscoverer(o.runner, o.logger)
	}
	if o.renderer == nil {
		o.renderer = render.NewRoffRenderer()
	}
	if o.lens == nil {
		o.lens = lens.NewSQLiteLens()
	}
	if o.ids == nil {
		o.ids = staging.UUIDv7{}
	}
	return o
}

// Root returns the pack the orchestrator works on.
func (o *Orchestrator) Root() docpack.Root { return o.root }

func (o *Orchestrator) now() int64 { return docpack.NowMillis(o.clock) }

// appendHistory records one step. Failing to record history never fails
// the step itself.
func (o *Orchestrator) appendHistory(e enrich.HistoryEntry) {
	e.TimestampEpochMs = o.now()
	line, err := json.Marshal(e)
	if err == nil {
		err = o.root.AppendLine(docpack.HistoryPath, line)
	}
	if err != nil {
		o.logger.Warn("append history", "step", e.Step, "error", err)
	}
}

// binaryName prefers the manifest, then the config.
func (o *Orchestrator) binaryName(cfg config.Config) string {
	if m, err := o.root.LoadManifest(); err == nil {
		return m.BinaryName
	}
	return cfg.BinaryName
}

// missingInputs lists the lock inputs and prerequisites that do not exist.
func (o *Orchestrator) missingInputs(cfg config.Config) []string {
	var missing []string
	if !o.root.Exists(docpack.ConfigPath) {
		missing = append(missing, docpack.ConfigPath)
	}
	for _, rel := range cfg.RequiredInputs() {
		if !o.root.Exists(rel) && !slices.Contains(missing, rel) {
			missing = append(missing, rel)
		}
	}
	if !o.root.Exists(docpack.ManifestPath) {
		missing = append(missing, docpack.ManifestPath)
	}
	return missing
}

// lockInput is what validate hashes for cfg.
func (o *Orchestrator) lockInput(cfg config.Config) lock.BuildInput {
	return lock.BuildInput{
		ConfigPath: docpack.ConfigPath,
		Required:   cfg.RequiredInputs(),
		Optional:   lock.DefaultOptionalInputs,
		BinaryName: o.binaryName(cfg),
	}
}

// loadPlan reads enrich/plan.out.json and judges it against the lock.
func (o *Orchestrator) loadPlan(st lock.Status) (*enrich.Plan, enrich.PlanStatus, error) {
	var p enrich.Plan
	if err := o.root.ReadJSON(docpack.PlanPath, &p); err != nil {
		if docpack.IsNotExist(err) {
			return nil, enrich.PlanStatus{}, nil
		}
		return nil, enrich.PlanStatus{}, err
	}
	ps := enrich.PlanStatus{
		Present:    true,
		InputsHash: p.Lock.InputsHash,
		Stale:      !st.Present || st.Stale || p.Lock.InputsHash != st.InputsHash,
	}
	return &p, ps, nil
}

// evaluation is a requirement evaluation plus the synthesized next action.
type evaluation struct {
	requirements.Evaluation
	Next    enrich.NextAction
	Missing []string
}

func (o *Orchestrator) evaluate(ctx context.Context, cfg config.Config, st lock.Status, ps enrich.PlanStatus, prog *progress.Progress, force, full bool) (evaluation, error) {
	ev, err := requirements.Evaluate(ctx, requirements.EvalInput{
		Root:       o.root,
		RootArg:    o.rootArg,
		Config:     cfg,
		LockStatus: st,
		Lens:       o.lens,
		Progress:   prog,
		Full:       full,
	})
	if err != nil {
		return evaluation{}, err
	}
	missing := o.missingInputs(cfg)
	next := nextaction.Synthesize(nextaction.Input{
		RootArg:       o.rootArg,
		BinaryName:    ev.BinaryName,
		MissingInputs: missing,
		Requirements:  ev.Requirements,
		Areas:         ev.Areas,
		Lock:          st,
		Plan:          ps,
		Force:         force,
	})
	return evaluation{
		Evaluation: ev,
		Next:       next,
		Missing:    sortedUnion(missing, ev.MissingArtifacts),
	}, nil
}

func sortedUnion(a, b []string) []string {
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
