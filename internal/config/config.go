// Package config loads and validates the pack-owned configuration in
// enrich/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/schema"
)

// SchemaVersion is the current config format.
const SchemaVersion = 1

// Config is the content of enrich/config.json.
type Config struct {
	SchemaVersion            int                    `json:"schema_version"`
	ScenarioCatalogs         []string               `json:"scenario_catalogs,omitempty"`
	Requirements             []enrich.RequirementID `json:"requirements,omitempty"`
	VerificationTier         enrich.Tier            `json:"verification_tier,omitempty"`
	VerificationLensTemplate string                 `json:"verification_lens_template,omitempty"`
	ExtraInputs              []string               `json:"extra_inputs,omitempty"`
	BinaryName               string                 `json:"binary_name,omitempty"`
}

// Default returns the config written by init.
func Default(binaryName string) Config {
	return Config{
		SchemaVersion:    SchemaVersion,
		Requirements:     slices.Clone(enrich.DefaultRequirements),
		VerificationTier: enrich.TierAccepted,
		BinaryName:       binaryName,
	}
}

// Load reads, schema-checks and semantically validates the config.
// A missing file yields an error for which docpack.IsNotExist is true.
func Load(root docpack.Root) (Config, error) {
	data, err := root.ReadFile(docpack.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse validates raw config bytes and decodes them.
func Parse(data []byte) (Config, error) {
	if err := schema.Validate(schema.KindConfig, docpack.ConfigPath, data); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", docpack.ConfigPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate applies the checks that the schema cannot express.
func (c Config) Validate() error {
	var issues []schema.Issue

	if len(c.ScenarioCatalogs) > 1 {
		issues = append(issues, schema.Issue{
			Path:    "scenario_catalogs",
			Message: fmt.Sprintf("at most one scenario catalog is supported, got %d", len(c.ScenarioCatalogs)),
		})
	}
	for _, rel := range c.relativeInputs() {
		if _, err := docpack.CleanRel(rel.value); err != nil {
			issues = append(issues, schema.Issue{Path: rel.field, Message: err.Error()})
		}
	}
	seen := make(map[enrich.RequirementID]bool)
	for _, id := range c.Requirements {
		if _, err := enrich.ParseRequirementID(string(id)); err != nil {
			issues = append(issues, schema.Issue{Path: "requirements", Message: err.Error()})
			continue
		}
		if seen[id] {
			issues = append(issues, schema.Issue{Path: "requirements", Message: fmt.Sprintf("duplicate requirement %q", id)})
		}
		seen[id] = true
	}
	if _, err := enrich.ParseTier(string(c.VerificationTier)); err != nil {
		issues = append(issues, schema.Issue{Path: "verification_tier", Message: err.Error()})
	}

	if len(issues) > 0 {
		return &schema.ValidationError{Kind: schema.KindConfig, File: docpack.ConfigPath, Issues: issues}
	}
	return nil
}

type relInput struct {
	field string
	value string
}

func (c Config) relativeInputs() []relInput {
	var out []relInput
	for _, p := range c.ScenarioCatalogs {
		out = append(out, relInput{"scenario_catalogs", p})
	}
	if c.VerificationLensTemplate != "" {
		out = append(out, relInput{"verification_lens_template", c.VerificationLensTemplate})
	}
	for _, p := range c.ExtraInputs {
		out = append(out, relInput{"extra_inputs", p})
	}
	return out
}

// EffectiveRequirements returns the configured requirements, or the
// defaults when none are listed.
func (c Config) EffectiveRequirements() []enrich.RequirementID {
	if len(c.Requirements) == 0 {
		return slices.Clone(enrich.DefaultRequirements)
	}
	return slices.Clone(c.Requirements)
}

// Requires reports whether id is an effective requirement.
func (c Config) Requires(id enrich.RequirementID) bool {
	return slices.Contains(c.EffectiveRequirements(), id)
}

// Tier returns the verification tier, defaulting to accepted.
func (c Config) Tier() enrich.Tier {
	tier, err := enrich.ParseTier(string(c.VerificationTier))
	if err != nil {
		return enrich.TierAccepted
	}
	return tier
}

// ScenarioCatalog returns the configured catalog path, if any.
func (c Config) ScenarioCatalog() string {
	if len(c.ScenarioCatalogs) == 0 {
		return ""
	}
	return c.ScenarioCatalogs[0]
}

// RequiredInputs lists the inputs a lock must cover besides the config
// itself: the scenario plan, the catalog, the lens template and any
// extra inputs.
func (c Config) RequiredInputs() []string {
	inputs := []string{docpack.ScenarioPlanPath}
	inputs = append(inputs, c.ScenarioCatalogs...)
	if c.VerificationLensTemplate != "" {
		inputs = append(inputs, c.VerificationLensTemplate)
	}
	inputs = append(inputs, c.ExtraInputs...)
	return inputs
}

// Write replaces enrich/config.json.
func Write(root docpack.Root, c Config) error {
	return root.WriteJSON(docpack.ConfigPath, c)
}
