// Package render turns the verified pack state into a man page.
//
// Renderer is the collaborator interface; RoffRenderer is the built-in
// implementation. Every render also produces a Summary that the man_page
// requirement later reads back from man/meta.json.
package render

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/roach88/bman/internal/scenarios"
	"github.com/roach88/bman/internal/surface"
)

//go:embed man.tmpl
var manTemplate string

// SummarySchemaVersion is the current render summary format.
const SummarySchemaVersion = 1

// Input is what a renderer reads.
type Input struct {
	BinaryName string
	Semantics  *Semantics
	Inventory  *surface.Inventory // may be nil
	Plan       *scenarios.Plan    // may be nil
	Examples   *scenarios.ExamplesReport
	HelpText   string
}

// Page is a rendered man page.
type Page struct {
	Text    string
	Summary Summary
}

// Summary counts what made it onto the page.
type Summary struct {
	SchemaVersion    int      `json:"schema_version"`
	SynopsisLines    int      `json:"synopsis_lines"`
	DescriptionLines int      `json:"description_lines"`
	OptionsEntries   int      `json:"options_entries"`
	CommandsEntries  int      `json:"commands_entries"`
	ExamplesEntries  int      `json:"examples_entries"`
	SemanticsUnmet   []string `json:"semantics_unmet,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Renderer produces a man page.
type Renderer interface {
	Render(in Input) (Page, error)
}

// RoffRenderer renders a minimal roff page with the NAME, SYNOPSIS,
// DESCRIPTION, OPTIONS, COMMANDS, EXAMPLES and SEE ALSO sections.
type RoffRenderer struct {
	tmpl *template.Template
}

// NewRoffRenderer parses the embedded page template.
func NewRoffRenderer() *RoffRenderer {
	funcs := template.FuncMap{"roff": Escape}
	return &RoffRenderer{tmpl: template.Must(template.New("man").Funcs(funcs).Parse(manTemplate))}
}

type entry struct {
	Term string
	Body string
}

type page struct {
	Name        string
	Upper       string
	Summary     string
	Synopsis    []string
	Description []string
	Options     []entry
	Commands    []entry
	Examples    []entry
	SeeAlso     []string
}

// Render implements Renderer.
func (r *RoffRenderer) Render(in Input) (Page, error) {
	if in.BinaryName == "" {
		return Page{}, fmt.Errorf("render man page: binary name is empty")
	}
	sem := in.Semantics
	if sem == nil {
		sem = &Semantics{SchemaVersion: SemanticsSchemaVersion}
	}

	p := page{
		Name:        in.BinaryName,
		Upper:       strings.ToUpper(in.BinaryName),
		Summary:     strings.TrimSpace(sem.Summary),
		Synopsis:    nonBlank(sem.Synopsis),
		Description: nonBlank(sem.Description),
		SeeAlso:     nonBlank(sem.SeeAlso),
	}
	var warnings []string
	if len(p.Synopsis) == 0 {
		p.Synopsis = UsageLines(in.HelpText)
	}
	if p.Summary == "" {
		warnings = append(warnings, "semantics summary empty")
	}
	if in.Inventory != nil {
		for _, it := range in.Inventory.Items {
			switch it.Kind {
			case surface.KindOption:
				p.Options = append(p.Options, entry{Term: optionTerm(it), Body: it.Description})
			case surface.KindSubcommand, surface.KindCommand:
				p.Commands = append(p.Commands, entry{Term: it.ID, Body: it.Description})
			}
		}
	}
	p.Examples = examples(in)

	var b strings.Builder
	if err := r.tmpl.Execute(&b, p); err != nil {
		return Page{}, fmt.Errorf("render man page: %w", err)
	}

	summary := Summary{
		SchemaVersion:    SummarySchemaVersion,
		SynopsisLines:    len(p.Synopsis),
		DescriptionLines: len(p.Description),
		OptionsEntries:   len(p.Options),
		CommandsEntries:  len(p.Commands),
		ExamplesEntries:  len(p.Examples),
		Warnings:         warnings,
	}
	summary.SemanticsUnmet = unmet(sem.Requirements, summary)
	return Page{Text: b.String(), Summary: summary}, nil
}

func unmet(req RenderRequirements, s Summary) []string {
	var out []string
	if s.SynopsisLines < req.synopsisMin() {
		out = append(out, "synopsis")
	}
	if req.DescriptionMinLines != nil && s.DescriptionLines < *req.DescriptionMinLines {
		out = append(out, "description")
	}
	if req.OptionsMinEntries != nil && s.OptionsEntries < *req.OptionsMinEntries {
		out = append(out, "options")
	}
	if req.CommandsMinEntries != nil && s.CommandsEntries < *req.CommandsMinEntries {
		out = append(out, "commands")
	}
	return out
}

// examples lists passing published behavior scenarios in report order.
func examples(in Input) []entry {
	if in.Examples == nil || in.Plan == nil {
		return nil
	}
	var out []entry
	for _, res := range in.Examples.Scenarios {
		if !res.Pass || res.Kind != scenarios.KindBehavior {
			continue
		}
		spec, ok := in.Plan.Find(res.ScenarioID)
		if !ok || !spec.Publishes() || spec.IsAuto() || spec.CoverageIgnore {
			continue
		}
		argv := append([]string{in.BinaryName}, spec.Argv...)
		out = append(out, entry{Term: strings.Join(argv, " "), Body: strings.Join(spec.Covers, ", ")})
	}
	return out
}

func optionTerm(it surface.Item) string {
	forms := it.Forms
	if len(forms) == 0 {
		forms = []string{it.ID}
	}
	term := strings.Join(forms, ", ")
	if ph := it.Invocation.ValuePlaceholder; ph != "" && !strings.Contains(term, ph) {
		term += " " + ph
	}
	return term
}

// UsageLines extracts the usage block of help text: the line starting
// with "usage:" and its indented continuation lines.
func UsageLines(help string) []string {
	var out []string
	in := false
	for _, line := range strings.Split(help, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := cutPrefixFold(trimmed, "usage:"); ok {
			in = true
			if rest = strings.TrimSpace(rest); rest != "" {
				out = append(out, rest)
			}
			continue
		}
		if !in {
			continue
		}
		if trimmed == "" || line == trimmed {
			break
		}
		out = append(out, trimmed)
	}
	return out
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func nonBlank(lines []string) []string {
	out := slices.Clone(lines)
	return slices.DeleteFunc(out, func(s string) bool { return strings.TrimSpace(s) == "" })
}

// Escape makes text safe for a roff body line.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\e`)
	s = strings.ReplaceAll(s, "-", `\-`)
	if strings.HasPrefix(s, ".") || strings.HasPrefix(s, "'") {
		s = `\&` + s
	}
	return s
}
