package scenarios

import (
	"fmt"
	"path"
	"sort"

	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/ir"
)

// Config is the fully resolved configuration of one scenario run.
type Config struct {
	Argv               []string          `json:"argv"`
	Expect             Expect            `json:"expect"`
	SeedDir            string            `json:"seed_dir"`
	Seed               []SeedEntry       `json:"seed"`
	Cwd                string            `json:"cwd"`
	TimeoutSeconds     int               `json:"timeout_seconds"`
	NetMode            string            `json:"net_mode"`
	NoSandbox          bool              `json:"no_sandbox"`
	NoStrace           bool              `json:"no_strace"`
	SnippetMaxLines    int               `json:"snippet_max_lines"`
	SnippetMaxBytes    int               `json:"snippet_max_bytes"`
	Env                map[string]string `json:"-"`
	Assertions         []Assertion       `json:"assertions"`
	BaselineScenarioID string            `json:"baseline_scenario_id"`
}

// envPair keeps env ordering explicit in the digest.
type envPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// digestView is the hashed projection of Config. The scenario id is
// deliberately absent.
type digestView struct {
	Config
	EnvPairs []envPair `json:"env"`
}

// EffectiveConfig merges plan defaults into spec and returns the result
// with its ScenarioDigest.
//
// Env precedence: plan.default_env < defaults.env < scenario.env.
// Field precedence: scenario > defaults > built-in constants.
func EffectiveConfig(plan *Plan, spec Spec) (Config, string, error) {
	var defaults Defaults
	if plan != nil && plan.Defaults != nil {
		defaults = *plan.Defaults
	}

	env := make(map[string]string)
	if plan != nil {
		for k, v := range plan.DefaultEnv {
			env[k] = v
		}
	}
	for k, v := range defaults.Env {
		env[k] = v
	}
	for k, v := range spec.Env {
		env[k] = v
	}

	cfg := Config{
		Argv:               append([]string{}, spec.Argv...),
		Expect:             normalizeExpect(spec.Expect),
		SeedDir:            firstString(spec.SeedDir, defaults.SeedDir),
		Seed:               NormalizeSeed(spec.Seed),
		Cwd:                firstString(spec.Cwd, defaults.Cwd),
		TimeoutSeconds:     firstInt(spec.TimeoutSeconds, defaults.TimeoutSeconds, enrich.DefaultTimeoutSeconds),
		NetMode:            firstString(spec.NetMode, defaults.NetMode, "off"),
		NoSandbox:          firstBool(spec.NoSandbox, defaults.NoSandbox),
		NoStrace:           firstBool(spec.NoStrace, defaults.NoStrace),
		SnippetMaxLines:    firstInt(spec.SnippetMaxLines, defaults.SnippetMaxLines, enrich.DefaultSnippetMaxLines),
		SnippetMaxBytes:    firstInt(spec.SnippetMaxBytes, defaults.SnippetMaxBytes, enrich.DefaultSnippetMaxBytes),
		Env:                env,
		Assertions:         append([]Assertion{}, spec.Assertions...),
		BaselineScenarioID: spec.BaselineScenarioID,
	}

	digest, err := Digest(cfg)
	if err != nil {
		return Config{}, "", fmt.Errorf("scenario %s: %w", spec.ID, err)
	}
	return cfg, digest, nil
}

// Digest hashes the canonical JSON of a resolved config.
func Digest(cfg Config) (string, error) {
	view := digestView{Config: cfg}
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	view.EnvPairs = make([]envPair, 0, len(keys))
	for _, k := range keys {
		view.EnvPairs = append(view.EnvPairs, envPair{Key: k, Value: cfg.Env[k]})
	}

	value, err := ir.ToValue(view)
	if err != nil {
		return "", err
	}
	return ir.HashCanonical(ir.DomainScenario, value)
}

// NormalizeSeed cleans entry paths, defaults file contents to empty and
// sorts entries by path, so cosmetic reordering never changes a digest.
func NormalizeSeed(seed *Seed) []SeedEntry {
	out := []SeedEntry{}
	if seed == nil {
		return out
	}
	for _, e := range seed.Entries {
		e.Path = path.Clean(e.Path)
		if e.Kind != "file" {
			e.Contents = ""
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// normalizeExpect sorts the unordered predicate lists.
func normalizeExpect(e Expect) Expect {
	for _, list := range []*[]string{
		&e.StdoutContainsAll, &e.StdoutContainsAny, &e.StdoutRegexAll, &e.StdoutRegexAny,
		&e.StderrContainsAll, &e.StderrContainsAny, &e.StderrRegexAll, &e.StderrRegexAny,
	} {
		if len(*list) > 0 {
			sorted := append([]string{}, *list...)
			sort.Strings(sorted)
			*list = sorted
		}
	}
	return e
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}
