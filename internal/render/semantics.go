package render

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/schema"
)

// SemanticsSchemaVersion is the current enrich/semantics.json format.
const SemanticsSchemaVersion = 1

// Semantics is the pack-owned render input: text the help output does not
// carry, and the minimum content a rendered page must have.
type Semantics struct {
	SchemaVersion int                `json:"schema_version"`
	Summary       string             `json:"summary,omitempty"`
	Synopsis      []string           `json:"synopsis,omitempty"`
	Description   []string           `json:"description,omitempty"`
	SeeAlso       []string           `json:"see_also,omitempty"`
	Requirements  RenderRequirements `json:"requirements"`
}

// RenderRequirements are minimum counts checked after rendering. Nil
// fields are not checked.
type RenderRequirements struct {
	SynopsisMinLines    *int `json:"synopsis_min_lines,omitempty"`
	DescriptionMinLines *int `json:"description_min_lines,omitempty"`
	OptionsMinEntries   *int `json:"options_min_entries,omitempty"`
	CommandsMinEntries  *int `json:"commands_min_entries,omitempty"`
}

func (r RenderRequirements) synopsisMin() int {
	if r.SynopsisMinLines == nil {
		return 1
	}
	return *r.SynopsisMinLines
}

// FileReader reads pack-relative files.
type FileReader interface {
	ReadFile(rel string) ([]byte, error)
}

// LoadSemantics reads and validates enrich/semantics.json. A missing file
// is reported through docpack.IsNotExist.
func LoadSemantics(src FileReader) (*Semantics, error) {
	data, err := src.ReadFile(docpack.SemanticsPath)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(schema.KindSemantics, docpack.SemanticsPath, data); err != nil {
		return nil, err
	}
	var s Semantics
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docpack.SemanticsPath, err)
	}
	return &s, nil
}

// SemanticsStub is the starting semantics file for a binary.
func SemanticsStub(binaryName string) string {
	one := 1
	stub := Semantics{
		SchemaVersion: SemanticsSchemaVersion,
		Summary:       fmt.Sprintf("<one line describing %s>", binaryName),
		Description:   []string{},
		Requirements:  RenderRequirements{SynopsisMinLines: &one},
	}
	return encodeSemantics(stub)
}

// Patched returns s with placeholder lines added to every unmet section
// that semantics can supply. Options and commands come from the surface
// and are left alone.
func (s Semantics) Patched(binaryName string, unmet []string) string {
	out := s
	out.Synopsis = slices.Clone(s.Synopsis)
	out.Description = slices.Clone(s.Description)
	for _, section := range unmet {
		switch section {
		case "synopsis":
			for len(nonBlank(out.Synopsis)) < out.Requirements.synopsisMin() {
				out.Synopsis = append(out.Synopsis, binaryName+" [OPTIONS]")
			}
		case "description":
			if out.Requirements.DescriptionMinLines == nil {
				continue
			}
			for len(nonBlank(out.Description)) < *out.Requirements.DescriptionMinLines {
				out.Description = append(out.Description, fmt.Sprintf("<describe %s>", binaryName))
			}
		}
	}
	return encodeSemantics(out)
}

func encodeSemantics(s Semantics) string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data) + "\n"
}
