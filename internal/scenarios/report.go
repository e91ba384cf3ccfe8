package scenarios

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/bman/internal/docpack"
)

// ExamplesReportSchemaVersion is the current examples report format.
const ExamplesReportSchemaVersion = 1

// ExamplesReport is man/examples_report.json: the outcome of every
// scenario known to the last apply.
type ExamplesReport struct {
	SchemaVersion      int             `json:"schema_version"`
	GeneratedAtEpochMs int64           `json:"generated_at_epoch_ms"`
	BinaryName         string          `json:"binary_name,omitempty"`
	InputsHash         string          `json:"inputs_hash"`
	ScenarioCount      int             `json:"scenario_count"`
	PassCount          int             `json:"pass_count"`
	FailCount          int             `json:"fail_count"`
	RunCount           int             `json:"run_count"`
	SkippedCount       int             `json:"skipped_count"`
	Scenarios          []ExampleResult `json:"scenarios"`
}

// ExampleResult is one scenario line of the report.
type ExampleResult struct {
	ScenarioID     string   `json:"scenario_id"`
	Kind           Kind     `json:"kind"`
	Ran            bool     `json:"ran"`
	Pass           bool     `json:"pass"`
	ScenarioDigest string   `json:"scenario_digest"`
	Failures       []string `json:"failures,omitempty"`
	EvidencePaths  []string `json:"evidence_paths"`
}

func (r *ExamplesReport) add(spec Spec, e IndexEntry, ran bool) {
	paths := e.EvidencePaths
	if paths == nil {
		paths = []string{}
	}
	r.Scenarios = append(r.Scenarios, ExampleResult{
		ScenarioID:     spec.ID,
		Kind:           spec.EffectiveKind(),
		Ran:            ran,
		Pass:           e.LastPass,
		ScenarioDigest: e.ScenarioDigest,
		Failures:       e.Failures,
		EvidencePaths:  paths,
	})
}

func (r *ExamplesReport) finish() {
	sort.SliceStable(r.Scenarios, func(i, j int) bool {
		return r.Scenarios[i].ScenarioID < r.Scenarios[j].ScenarioID
	})
	r.ScenarioCount = len(r.Scenarios)
	r.PassCount, r.FailCount, r.RunCount, r.SkippedCount = 0, 0, 0, 0
	for _, s := range r.Scenarios {
		if s.Pass {
			r.PassCount++
		} else {
			r.FailCount++
		}
		if s.Ran {
			r.RunCount++
		} else {
			r.SkippedCount++
		}
	}
}

// Failing returns the ids of failed scenarios.
func (r *ExamplesReport) Failing() []string {
	var ids []string
	for _, s := range r.Scenarios {
		if !s.Pass {
			ids = append(ids, s.ScenarioID)
		}
	}
	return ids
}

// LoadExamplesReport reads man/examples_report.json. A missing file is
// reported through docpack.IsNotExist.
func LoadExamplesReport(src FileReader) (*ExamplesReport, error) {
	data, err := src.ReadFile(docpack.ExamplesReportPath)
	if err != nil {
		return nil, err
	}
	var r ExamplesReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docpack.ExamplesReportPath, err)
	}
	return &r, nil
}
