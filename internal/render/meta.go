package render

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/scenarios"
)

// MetaSchemaVersion is the current man/meta.json format.
const MetaSchemaVersion = 1

// Meta is man/meta.json, written next to every rendered page.
type Meta struct {
	SchemaVersion      int           `json:"schema_version"`
	GeneratedAtEpochMs int64         `json:"generated_at_epoch_ms"`
	BinaryName         string        `json:"binary_name"`
	InputsHash         string        `json:"inputs_hash,omitempty"`
	ManPage            string        `json:"man_page"`
	RenderSummary      *Summary      `json:"render_summary,omitempty"`
	Examples           *ExamplesMeta `json:"examples,omitempty"`
}

// ExamplesMeta points at the examples report the page was built from.
type ExamplesMeta struct {
	ExamplesReportPath string `json:"examples_report_path"`
	ScenarioCount      int    `json:"scenario_count"`
	PassCount          int    `json:"pass_count"`
	FailCount          int    `json:"fail_count"`
}

// NewMeta describes page as rendered for binaryName against inputsHash.
func NewMeta(binaryName, inputsHash string, page Page, report *scenarios.ExamplesReport, epochMs int64) Meta {
	summary := page.Summary
	m := Meta{
		SchemaVersion:      MetaSchemaVersion,
		GeneratedAtEpochMs: epochMs,
		BinaryName:         binaryName,
		InputsHash:         inputsHash,
		ManPage:            docpack.ManPagePath(binaryName),
		RenderSummary:      &summary,
	}
	if report != nil {
		m.Examples = &ExamplesMeta{
			ExamplesReportPath: docpack.ExamplesReportPath,
			ScenarioCount:      report.ScenarioCount,
			PassCount:          report.PassCount,
			FailCount:          report.FailCount,
		}
	}
	return m
}

// LoadMeta reads man/meta.json. A missing file is reported through
// docpack.IsNotExist.
func LoadMeta(src FileReader) (*Meta, error) {
	data, err := src.ReadFile(docpack.ManMetaPath)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docpack.ManMetaPath, err)
	}
	return &m, nil
}
