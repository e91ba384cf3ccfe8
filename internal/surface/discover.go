package surface

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/scenarios"
)

// MaxDiscoveryRounds bounds recursive subcommand help discovery.
const MaxDiscoveryRounds = 3

// DiscoverRequest is the input of one discovery pass.
type DiscoverRequest struct {
	Root       docpack.Root
	Plan       *scenarios.Plan
	Binary     string
	BinaryName string
	InputsHash string
	Clock      docpack.Clock
}

// Discoverer produces a surface inventory for the target binary.
type Discoverer interface {
	Discover(ctx context.Context, req DiscoverRequest) (*Inventory, error)
}

// HelpDiscoverer runs the help scenarios of the plan and extracts options
// and subcommands from their stdout. Discovered subcommands get their own
// "<sub> --help" request, up to MaxDiscoveryRounds levels deep.
type HelpDiscoverer struct {
	Runner scenarios.Runner
	Logger *slog.Logger
}

// NewHelpDiscoverer creates a HelpDiscoverer.
func NewHelpDiscoverer(runner scenarios.Runner, logger *slog.Logger) *HelpDiscoverer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HelpDiscoverer{Runner: runner, Logger: logger}
}

// Discover implements Discoverer. Problems that a human must fix become
// inventory blockers; only context cancellation is returned as an error.
func (d *HelpDiscoverer) Discover(ctx context.Context, req DiscoverRequest) (*Inventory, error) {
	inv := &Inventory{
		SchemaVersion:      InventorySchemaVersion,
		GeneratedAtEpochMs: docpack.NowMillis(req.Clock),
		BinaryName:         req.BinaryName,
		InputsHash:         req.InputsHash,
		Items:              []Item{},
	}
	planRef := []enrich.EvidenceRef{{Path: docpack.ScenarioPlanPath}}

	var queue []helpRun
	if req.Plan != nil {
		for _, spec := range req.Plan.Scenarios {
			if spec.EffectiveKind() == scenarios.KindHelp {
				queue = append(queue, helpRun{spec: spec})
			}
		}
	}
	if len(queue) == 0 {
		inv.Blockers = append(inv.Blockers, enrich.Blocker{
			Code:       "surface_help_scenarios_missing",
			Message:    "no help scenarios available for surface discovery",
			Evidence:   planRef,
			NextAction: HelpScenarioEdit("add a help scenario in scenarios/plan.json"),
		})
		return inv, nil
	}
	if req.Binary == "" {
		inv.Blockers = append(inv.Blockers, enrich.Blocker{
			Code:     "scenario_missing_binary",
			Message:  "binary path unknown; cannot run help scenarios",
			Evidence: []enrich.EvidenceRef{{Path: docpack.ManifestPath}},
		})
		return inv, nil
	}

	explored := map[string]bool{}
	for round := 0; round <= MaxDiscoveryRounds && len(queue) > 0; round++ {
		var next []helpRun
		for _, p := range queue {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("discover surface: %w", err)
			}
			if explored[p.id()] {
				continue
			}
			explored[p.id()] = true

			stdout, err := d.run(ctx, req, p)
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("discover surface: %w", ctx.Err())
				}
				inv.Blockers = append(inv.Blockers, enrich.Blocker{
					Code:     "surface_help_failed",
					Message:  fmt.Sprintf("help scenario %s failed: %v", p.id(), err),
					Evidence: planRef,
				})
				continue
			}

			for _, it := range ParseHelp(stdout, p.context) {
				it.Evidence = planRef
				if _, seen := inv.Find(it.ID); seen {
					continue
				}
				inv.Items = append(inv.Items, it)
				if it.Kind == KindSubcommand && round < MaxDiscoveryRounds {
					ctxArgv := append(slices.Clone(p.context), it.ID)
					next = append(next, helpRun{context: ctxArgv})
				}
			}
		}
		queue = next
	}
	d.Logger.Debug("surface discovered", "items", len(inv.Items), "blockers", len(inv.Blockers))
	return inv, nil
}

// helpRun is either a declared help scenario or a synthesized
// "<context...> --help" run.
type helpRun struct {
	spec    scenarios.Spec
	context []string
}

func (p helpRun) id() string {
	if p.spec.ID != "" {
		return p.spec.ID
	}
	return "help::" + strings.Join(p.context, " ")
}

func (d *HelpDiscoverer) run(ctx context.Context, req DiscoverRequest, p helpRun) (string, error) {
	spec := p.spec
	if spec.ID == "" {
		spec = scenarios.Spec{ID: p.id(), Kind: scenarios.KindHelp, Argv: append(slices.Clone(p.context), "--help")}
	}
	cfg, _, err := scenarios.EffectiveConfig(req.Plan, spec)
	if err != nil {
		return "", err
	}
	inv := scenarios.Invocation{
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
	out, err := d.Runner.Run(ctx, inv)
	if err != nil {
		return "", err
	}
	if out.TimedOut {
		return "", fmt.Errorf("timed out")
	}
	// Some tools print usage on stderr.
	if len(out.Stdout) == 0 {
		return string(out.Stderr), nil
	}
	return string(out.Stdout), nil
}

var (
	optionForm     = regexp.MustCompile(`^(--?[A-Za-z0-9?][A-Za-z0-9_-]*)(\[?[= ]?[<A-Za-z{\[][^\s,\]]*\]?)?$`)
	commandHeading = regexp.MustCompile(`(?i)^(available\s+)?(sub)?commands:?$`)
	commandLine    = regexp.MustCompile(`^([a-z][a-z0-9_-]*)(\s{2,}(.*))?$`)
	columnGap      = regexp.MustCompile(`\s{2,}`)
)

// ParseHelp extracts surface items from help text. Options are lines whose
// first non-blank character is '-'; subcommands are indented lines below a
// "Commands:" heading. Items found under a subcommand context carry that
// context as requires_argv.
func ParseHelp(text string, context []string) []Item {
	var items []Item
	inCommands := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			inCommands = false
			continue
		}
		indented := line != trimmed

		if commandHeading.MatchString(trimmed) {
			inCommands = true
			continue
		}
		if !indented {
			inCommands = false
		}

		if strings.HasPrefix(trimmed, "-") {
			if it, ok := parseOptionLine(trimmed); ok {
				if len(context) > 0 {
					it.Invocation.RequiresArgv = slices.Clone(context)
				}
				items = append(items, it)
			}
			continue
		}
		if inCommands && indented {
			if m := commandLine.FindStringSubmatch(trimmed); m != nil {
				items = append(items, Item{
					Kind:        KindSubcommand,
					ID:          m[1],
					Display:     m[1],
					Description: strings.TrimSpace(m[3]),
					Invocation:  Invocation{RequiresArgv: cloneOrNil(context)},
				})
			}
		}
	}
	return items
}

func parseOptionLine(line string) (Item, bool) {
	cols := columnGap.Split(line, 2)
	description := ""
	if len(cols) == 2 {
		description = strings.TrimSpace(cols[1])
	}

	var forms []string
	arity := ArityNone
	placeholder := ""
	for _, part := range strings.Split(cols[0], ",") {
		part = strings.TrimSpace(part)
		m := optionForm.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		forms = append(forms, m[1])
		if v := strings.TrimSpace(m[2]); v != "" {
			if strings.HasPrefix(v, "[") {
				arity = ArityOptional
			} else {
				arity = ArityRequired
			}
			placeholder = strings.Trim(v, "[]= ")
		}
	}
	if len(forms) == 0 {
		return Item{}, false
	}

	id := forms[0]
	for _, f := range forms {
		if strings.HasPrefix(f, "--") {
			id = f
			break
		}
	}
	return Item{
		Kind:        KindOption,
		ID:          id,
		Forms:       forms,
		Display:     strings.TrimSpace(cols[0]),
		Description: description,
		Invocation:  Invocation{ValueArity: arity, ValuePlaceholder: placeholder},
	}, true
}

func cloneOrNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

const helpScenarioStub = `{
  "scenarios": [
    {"id": "help", "kind": "help", "argv": ["--help"], "expect": {"exit_code": 0}}
  ]
}
`

// HelpScenarioEdit upserts the standard help scenario into the plan.
func HelpScenarioEdit(reason string) *enrich.NextAction {
	a := enrich.NewEdit(docpack.ScenarioPlanPath, helpScenarioStub, reason, enrich.StrategyUpsertScenariosByID)
	return &a
}
