package scenarios

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/schema"
)

// PlanSchemaVersion is the current scenario plan format.
const PlanSchemaVersion = 1

// Catalog is an external scenario list appended to the plan.
type Catalog struct {
	SchemaVersion int    `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Scenarios     []Spec `json:"scenarios" yaml:"scenarios"`
}

// FileReader reads pack-relative files.
type FileReader interface {
	ReadFile(rel string) ([]byte, error)
}

// LoadPlan reads scenarios/plan.json and, when catalog is non-empty, the
// scenario catalog, validating both against their schemas. Catalog
// scenarios are appended after plan scenarios. A scenario id declared
// twice is a schema error naming both files.
func LoadPlan(src FileReader, catalog string) (*Plan, error) {
	data, err := src.ReadFile(docpack.ScenarioPlanPath)
	if err != nil {
		return nil, err
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}

	origin := make(map[string]string, len(plan.Scenarios))
	for _, s := range plan.Scenarios {
		if prev, ok := origin[s.ID]; ok {
			return nil, duplicateError(schema.KindScenarioPlan, docpack.ScenarioPlanPath, s.ID, prev, docpack.ScenarioPlanPath)
		}
		origin[s.ID] = docpack.ScenarioPlanPath
	}

	if catalog == "" {
		return plan, nil
	}
	cat, err := loadCatalog(src, catalog)
	if err != nil {
		return nil, err
	}
	for _, s := range cat.Scenarios {
		if prev, ok := origin[s.ID]; ok {
			return nil, duplicateError(schema.KindCatalog, catalog, s.ID, prev, catalog)
		}
		origin[s.ID] = catalog
		plan.Scenarios = append(plan.Scenarios, s)
	}
	return plan, nil
}

// ParsePlan validates and decodes scenario plan bytes.
func ParsePlan(data []byte) (*Plan, error) {
	if err := schema.Validate(schema.KindScenarioPlan, docpack.ScenarioPlanPath, data); err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docpack.ScenarioPlanPath, err)
	}
	return &plan, nil
}

func loadCatalog(src FileReader, rel string) (*Catalog, error) {
	data, err := src.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	if isYAML(rel) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, &schema.ValidationError{
				Kind:   schema.KindCatalog,
				File:   rel,
				Syntax: true,
				Issues: []schema.Issue{{Message: err.Error()}},
			}
		}
	}
	if err := schema.Validate(schema.KindCatalog, rel, data); err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse %s: %w", rel, err)
	}
	return &cat, nil
}

func isYAML(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON re-encodes a YAML document as JSON so that one schema check
// covers both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	return out, nil
}

func duplicateError(kind schema.Kind, file, id, first, second string) error {
	return &schema.ValidationError{
		Kind: kind,
		File: file,
		Issues: []schema.Issue{{
			Path:    "scenarios",
			Message: fmt.Sprintf("duplicate scenario id %q (declared in %s and %s)", id, first, second),
		}},
	}
}
