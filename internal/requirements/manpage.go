package requirements

import (
	"fmt"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/render"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
)

const manifestMissingMessage = "binary name unavailable; manifest missing"

func (s *state) manPageRequirement(areas map[enrich.RequirementID]enrich.NextAction) enrich.RequirementStatus {
	s.loadManifest()
	switch {
	case s.manifestErr == nil:
	case docpack.IsNotExist(s.manifestErr):
		s.addMissing(docpack.ManifestPath)
		return blocked(manifestMissingMessage, enrich.Blocker{
			Code:     "missing_manifest",
			Message:  manifestMissingMessage,
			Evidence: evidence(docpack.ManifestPath),
		})
	default:
		return blocked("pack manifest invalid", blocker("manifest_invalid", docpack.ManifestPath, s.manifestErr))
	}
	bin := s.manifest.BinaryName

	sem, err := s.renderSemantics()
	switch {
	case err == nil:
	case docpack.IsNotExist(err):
		s.addMissing(docpack.SemanticsPath)
		areas[enrich.RequirementManPage] = enrich.NewEdit(docpack.SemanticsPath, render.SemanticsStub(bin),
			fmt.Sprintf("describe %s for its man page", bin), enrich.StrategyReplaceFile)
		return unmet("render semantics missing")
	default:
		// Semantics is one small document; there is nothing to merge into
		// once it no longer parses.
		areas[enrich.RequirementManPage] = enrich.NewEdit(docpack.SemanticsPath, render.SemanticsStub(bin),
			fmt.Sprintf("rewrite invalid %s: %v", docpack.SemanticsPath, err), enrich.StrategyReplaceFile)
		return unmet("render semantics invalid", evidence(docpack.SemanticsPath)...)
	}

	manPath := docpack.ManPagePath(bin)
	if !s.in.Root.Exists(manPath) {
		s.addMissing(manPath)
		s.loadPlan()
		if s.plan != nil && !hasHelpScenario(s.plan) {
			areas[enrich.RequirementManPage] = *surface.HelpScenarioEdit("the man page synopsis needs usage text; add a help scenario")
		}
		return unmet("man page missing")
	}

	meta, err := render.LoadMeta(s.in.Root)
	switch {
	case err == nil:
	case docpack.IsNotExist(err):
		s.addMissing(docpack.ManMetaPath)
		return unmet("man page metadata missing", evidence(manPath)...)
	default:
		return blocked("man page metadata unreadable", blocker("man_meta_parse_error", docpack.ManMetaPath, err))
	}
	ev := evidence(manPath, docpack.ManMetaPath)
	if s.staleAgainstLock(meta.InputsHash) {
		return unmet("man outputs stale relative to lock", ev...)
	}
	summary := meta.RenderSummary
	if summary == nil {
		return unmet("render summary missing from man page metadata", ev...)
	}
	if len(summary.SemanticsUnmet) > 0 {
		sections := strings.Join(summary.SemanticsUnmet, ", ")
		areas[enrich.RequirementManPage] = enrich.NewEdit(docpack.SemanticsPath, sem.Patched(bin, summary.SemanticsUnmet),
			fmt.Sprintf("fill %s in %s", sections, docpack.SemanticsPath), enrich.StrategyReplaceFile)
		return unmet("rendered but semantics insufficient: "+sections, ev...)
	}

	s.loadInventory()
	if s.inventory != nil && s.inventory.IsMultiCommand() && summary.CommandsEntries == 0 {
		apply := enrich.NewCommand(enrich.ApplyCommand(s.in.RootArg), "rerender the man page from the current surface")
		return blocked("man page lacks a COMMANDS section", enrich.Blocker{
			Code:       "man_commands_missing",
			Message:    fmt.Sprintf("%s has subcommands but its man page lists none", bin),
			Evidence:   ev,
			NextAction: &apply,
		})
	}
	return met("man page present", ev...)
}

func hasHelpScenario(plan *scenarios.Plan) bool {
	for _, spec := range plan.Scenarios {
		if spec.EffectiveKind() == scenarios.KindHelp {
			return true
		}
	}
	return false
}
