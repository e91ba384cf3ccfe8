package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/workflow"
)

type statusOptions struct {
	*RootOptions
	force  bool
	json   bool
	full   bool
	strict bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &statusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [doc-pack]",
		Short: "Show requirement status and the next action",
		Long: `Evaluate every requirement of the doc pack and print the decision
together with the single next action.

Status never writes to the pack. With --force the requirements are
evaluated even when the lock is missing or stale. With --strict a decision
other than complete exits with code 1.`,
		Args: checkArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, packArg(args, 0), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "evaluate despite a missing or stale lock")
	cmd.Flags().BoolVar(&opts.json, "json", false, "alias for --format json")
	cmd.Flags().BoolVar(&opts.full, "full", false, "list every verification target instead of a preview")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit 1 unless the decision is complete")

	return cmd
}

func runStatus(opts *statusOptions, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.json {
		out.Format = "json"
	}
	o, err := opts.orchestrator(cmd, out, dir)
	if err != nil {
		return err
	}

	s, err := o.Status(cmd.Context(), workflow.StatusOptions{Force: opts.force, Full: opts.full})
	if err != nil {
		return out.Fail(ExitFailure, err)
	}

	if out.Structured() {
		if err := out.Success(s); err != nil {
			return err
		}
	} else {
		printStatus(out.Writer, s)
	}

	if opts.strict && s.Decision != enrich.DecisionComplete {
		return NewExitError(ExitFailure, fmt.Sprintf("decision %s: %s", s.Decision, s.DecisionReason))
	}
	return nil
}

func printStatus(w io.Writer, s *enrich.StatusSummary) {
	fmt.Fprintf(w, "lock: %s\n", freshness(s.Lock.Present, s.Lock.Stale))
	fmt.Fprintf(w, "plan: %s\n", freshness(s.Plan.Present, s.Plan.Stale))
	printRequirements(w, s.Requirements)
	for _, rel := range s.MissingArtifacts {
		fmt.Fprintf(w, "missing: %s\n", rel)
	}
	for _, msg := range s.Warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
	printDecision(w, s.Decision, s.DecisionReason, s.NextAction)
}

func freshness(present, stale bool) string {
	switch {
	case !present:
		return "missing"
	case stale:
		return "stale"
	default:
		return "fresh"
	}
}

var stateMarks = map[enrich.RequirementState]string{
	enrich.StateMet:     "✓",
	enrich.StateUnmet:   "✗",
	enrich.StateBlocked: "!",
}

func printRequirements(w io.Writer, reqs []enrich.RequirementStatus) {
	for _, r := range reqs {
		fmt.Fprintf(w, "%s %-12s %-7s %s\n", stateMarks[r.State], r.ID, r.State, r.Reason)
		for _, b := range r.Blockers {
			fmt.Fprintf(w, "    blocker %s: %s\n", b.Code, b.Message)
		}
	}
}

func printDecision(w io.Writer, d enrich.Decision, reason string, next enrich.NextAction) {
	fmt.Fprintf(w, "decision: %s (%s)\n", d, reason)
	switch next.Kind {
	case enrich.KindCommand:
		fmt.Fprintf(w, "next: %s\n", next.Command)
	case enrich.KindEdit:
		fmt.Fprintf(w, "next: edit %s (%s)\n", next.Path, next.MergeStrategy)
	}
	if next.Reason != "" {
		fmt.Fprintf(w, "      %s\n", next.Reason)
	}
}
