package requirements

import (
	"context"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/lens"
	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/verification"
)

// verificationRequirement computes ledger rows live over the published
// state and hands them to the verification evaluator. Nothing is written.
func (s *state) verificationRequirement(ctx context.Context, ev *Evaluation) (enrich.RequirementStatus, error) {
	tier := s.in.Config.Tier()
	missing, blockers := s.surfaceInputs()
	if len(blockers) > 0 {
		return verification.InputsBlocked(tier, blockers), nil
	}
	if len(missing) > 0 {
		return verification.InputsMissing(tier, missing), nil
	}

	templateRel := s.in.Config.VerificationLensTemplate
	template, err := lens.LoadTemplate(s.in.Root, templateRel)
	if err != nil {
		return verification.InputsBlocked(tier, []enrich.Blocker{
			blocker("verification_lens_template_missing", templateRel, err),
		}), nil
	}

	idx := scenarios.LoadIndex(s.in.Root)
	snap, err := lens.BuildSnapshot(s.in.Root, lens.SnapshotInput{
		Inventory: s.inventory,
		Plan:      s.plan,
		Index:     idx,
		Excludes:  s.plan.PolicyExcludes(),
	})
	if err != nil {
		return verification.InputsBlocked(tier, []enrich.Blocker{
			blocker("verification_snapshot_failed", docpack.ScenarioIndexPath, err),
		}), nil
	}
	entries, err := s.in.Lens.Verification(ctx, template, snap)
	if err != nil {
		if ctx.Err() != nil {
			return enrich.RequirementStatus{}, ctx.Err()
		}
		rel := templateRel
		if rel == "" {
			rel = docpack.VerificationLedgerPath
		}
		return verification.InputsBlocked(tier, []enrich.Blocker{
			blocker("verification_lens_failed", rel, err),
		}), nil
	}

	in := verification.Input{
		Files:     s.in.Root,
		RootArg:   s.in.RootArg,
		Tier:      tier,
		Inventory: s.inventory,
		Overlays:  s.overlays,
		Plan:      s.plan,
		Index:     idx,
		Entries:   entries,
		Progress:  s.in.Progress,
		Full:      s.in.Full,
	}
	res := verification.Evaluate(in)
	if res.NextAction != nil {
		ev.Areas[enrich.RequirementVerification] = *res.NextAction
	}
	ev.Verification = &VerificationOutcome{Input: in, Signature: res.Signature, Info: res.Info}
	return res.Status, nil
}
