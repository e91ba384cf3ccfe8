package scenarios

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/bman/internal/docpack"
)

// Sink receives staged writes.
type Sink interface {
	WriteJSON(rel string, v any) error
}

// RunRequest is everything one scenario batch needs.
type RunRequest struct {
	Root        docpack.Root
	Plan        *Plan
	Index       *Index
	Binary      string
	BinaryName  string
	InputsHash  string
	Mode        RunMode
	ForcedIDs   []string
	AutoTargets []AutoTarget
	Runner      Runner
	Sink        Sink
	Clock       docpack.Clock
	Logger      *slog.Logger
}

// RunResult is the outcome of a batch.
type RunResult struct {
	Index             *Index
	Report            ExamplesReport
	ExecutedForcedIDs []string
	Warnings          []string
}

// NormalizeForcedIDs trims, sorts and deduplicates forced ids. Ids that do
// not name a known scenario are dropped with a warning.
func NormalizeForcedIDs(ids []string, known func(string) bool) ([]string, []string) {
	var out, warnings []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	out = slices.Compact(out)

	valid := out[:0]
	for _, id := range out {
		if known(id) {
			valid = append(valid, id)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("unknown rerun scenario id: %s", id))
	}
	return valid, warnings
}

// Run executes every eligible scenario in declared order, then the
// auto-verify scenarios. The index is rewritten through the sink after
// each run. A runner failure becomes a failed entry and never aborts the
// batch; only context cancellation and sink errors do.
func Run(ctx context.Context, req RunRequest) (RunResult, error) {
	logger := req.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if req.Plan == nil {
		return RunResult{}, fmt.Errorf("run scenarios: no scenario plan")
	}
	idx := req.Index
	if idx == nil {
		idx = NewIndex()
	}

	specs := append([]Spec{}, req.Plan.Scenarios...)
	known := make(map[string]bool, len(specs))
	for _, s := range specs {
		known[s.ID] = true
	}

	budget := req.Plan.MaxNewRunsPerApply()
	for _, s := range AutoScenarios(req.AutoTargets) {
		if known[s.ID] {
			continue
		}
		if _, cached := idx.Get(s.ID); !cached {
			if budget <= 0 {
				continue
			}
			budget--
		}
		known[s.ID] = true
		specs = append(specs, s)
	}

	forced, warnings := NormalizeForcedIDs(req.ForcedIDs, func(id string) bool { return known[id] })
	forcedSet := make(map[string]bool, len(forced))
	for _, id := range forced {
		forcedSet[id] = true
	}

	report := ExamplesReport{
		SchemaVersion:      ExamplesReportSchemaVersion,
		GeneratedAtEpochMs: docpack.NowMillis(req.Clock),
		BinaryName:         req.BinaryName,
		InputsHash:         req.InputsHash,
		Scenarios:          []ExampleResult{},
	}
	var executedForced []string

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return RunResult{}, fmt.Errorf("run scenarios: %w", err)
		}

		cfg, digest, err := EffectiveConfig(req.Plan, spec)
		if err != nil {
			return RunResult{}, err
		}

		entry, hasEntry := idx.Get(spec.ID)
		var entryPtr *IndexEntry
		if hasEntry {
			entryPtr = &entry
		}
		cached := hasEntry && hasCachedOutcome(req.Root, entry)

		if !ShouldRun(req.Mode, digest, entryPtr, cached, forcedSet[spec.ID]) {
			report.add(spec, entry, false)
			continue
		}

		ran := runOne(ctx, req, spec, cfg, digest, logger)
		if err := ctx.Err(); err != nil {
			return RunResult{}, fmt.Errorf("run scenarios: %w", err)
		}
		if len(ran.EvidencePaths) > 0 {
			if err := req.Sink.WriteJSON(ran.EvidencePaths[0], ran.evidence); err != nil {
				return RunResult{}, fmt.Errorf("stage evidence for %s: %w", spec.ID, err)
			}
		}
		idx.Put(ran.IndexEntry)
		if err := req.Sink.WriteJSON(docpack.ScenarioIndexPath, idx); err != nil {
			return RunResult{}, fmt.Errorf("stage scenario index: %w", err)
		}
		if forcedSet[spec.ID] {
			executedForced = append(executedForced, spec.ID)
		}
		report.add(spec, ran.IndexEntry, true)
	}

	report.finish()
	return RunResult{
		Index:             idx,
		Report:            report,
		ExecutedForcedIDs: executedForced,
		Warnings:          warnings,
	}, nil
}

// runEntry is an index entry plus the evidence it will publish.
type runEntry struct {
	IndexEntry
	evidence Evidence
}

func runOne(ctx context.Context, req RunRequest, spec Spec, cfg Config, digest string, logger *slog.Logger) runEntry {
	now := docpack.NowMillis(req.Clock)
	inv := Invocation{
		ScenarioID: spec.ID,
		Binary:     req.Binary,
		Argv:       cfg.Argv,
		Env:        cfg.Env,
		Seed:       cfg.Seed,
		Cwd:        cfg.Cwd,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		NetMode:    cfg.NetMode,
		NoSandbox:  cfg.NoSandbox,
	}
	if cfg.SeedDir != "" {
		inv.SeedDir = req.Root.Path(cfg.SeedDir)
	}

	out, err := req.Runner.Run(ctx, inv)
	if err != nil {
		logger.Warn("scenario runner failed", "scenario_id", spec.ID, "error", err)
		return runEntry{IndexEntry: IndexEntry{
			ScenarioID:       spec.ID,
			ScenarioDigest:   digest,
			LastRunAtEpochMs: now,
			LastPass:         false,
			Failures:         []string{fmt.Sprintf("scenario runner failed: %v", err)},
			EvidencePaths:    []string{},
		}}
	}

	failures := Check(cfg.Expect, out)
	entry := runEntry{
		IndexEntry: IndexEntry{
			ScenarioID:       spec.ID,
			ScenarioDigest:   digest,
			LastRunAtEpochMs: now,
			LastPass:         len(failures) == 0,
			Failures:         failures,
			EvidencePaths:    []string{},
		},
		evidence: NewEvidence(spec, digest, cfg, out, failures, now),
	}
	if spec.Publishes() {
		entry.EvidencePaths = []string{EvidencePath(spec.ID, now)}
	}
	logger.Info("scenario ran", "scenario_id", spec.ID, "pass", entry.LastPass)
	return entry
}

// hasCachedOutcome reports whether the published evidence of an entry is
// still on disk.
func hasCachedOutcome(root docpack.Root, e IndexEntry) bool {
	for _, p := range e.EvidencePaths {
		if !root.Exists(p) {
			return false
		}
	}
	return true
}
