package scenarios

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
)

// EvidenceSchemaVersion is the current evidence file format.
const EvidenceSchemaVersion = 1

// Evidence is the published record of one scenario run.
type Evidence struct {
	SchemaVersion      int      `json:"schema_version"`
	ScenarioID         string   `json:"scenario_id"`
	ScenarioDigest     string   `json:"scenario_digest"`
	GeneratedAtEpochMs int64    `json:"generated_at_epoch_ms"`
	Argv               []string `json:"argv"`
	ExitCode           *int     `json:"exit_code"`
	ExitSignal         int      `json:"exit_signal,omitempty"`
	TimedOut           bool     `json:"timed_out"`
	DurationMs         int64    `json:"duration_ms"`
	Stdout             string   `json:"stdout"`
	Stderr             string   `json:"stderr"`
	StdoutTruncated    bool     `json:"stdout_truncated,omitempty"`
	StderrTruncated    bool     `json:"stderr_truncated,omitempty"`
	StdoutSHA256       string   `json:"stdout_sha256"`
	Pass               bool     `json:"pass"`
	Failures           []string `json:"failures,omitempty"`
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileStem maps a scenario id onto a safe file name stem.
func FileStem(id string) string {
	return unsafeFileChars.ReplaceAllString(id, "_")
}

// EvidencePath is inventory/scenarios/<id>-<epoch_ms>.json.
func EvidencePath(id string, epochMs int64) string {
	return path.Join(docpack.ScenarioEvidenceDir, fmt.Sprintf("%s-%d.json", FileStem(id), epochMs))
}

// NewEvidence builds the evidence record of one run. Auto-verify output is
// cut to the snippet limits; other scenarios keep up to
// enrich.MaxScenarioEvidenceBytes so assertions see the whole output.
// StdoutSHA256 always covers the full output.
func NewEvidence(spec Spec, digest string, cfg Config, out Outcome, failures []string, epochMs int64) Evidence {
	sum := sha256.Sum256(out.Stdout)
	maxLines, maxBytes := 0, enrich.MaxScenarioEvidenceBytes
	if spec.IsAuto() {
		maxLines, maxBytes = cfg.SnippetMaxLines, cfg.SnippetMaxBytes
	}
	stdout, stdoutCut := Truncate(string(out.Stdout), maxLines, maxBytes)
	stderr, stderrCut := Truncate(string(out.Stderr), maxLines, maxBytes)
	return Evidence{
		SchemaVersion:      EvidenceSchemaVersion,
		ScenarioID:         spec.ID,
		ScenarioDigest:     digest,
		GeneratedAtEpochMs: epochMs,
		Argv:               append([]string{}, cfg.Argv...),
		ExitCode:           out.ExitCode,
		ExitSignal:         out.Signal,
		TimedOut:           out.TimedOut,
		DurationMs:         out.Duration.Milliseconds(),
		Stdout:             stdout,
		Stderr:             stderr,
		StdoutTruncated:    stdoutCut,
		StderrTruncated:    stderrCut,
		StdoutSHA256:       hex.EncodeToString(sum[:]),
		Pass:               len(failures) == 0,
		Failures:           failures,
	}
}

// Truncate keeps at most maxLines lines and maxBytes bytes of s without
// splitting a UTF-8 sequence. Non-positive limits disable that bound.
func Truncate(s string, maxLines, maxBytes int) (string, bool) {
	cut := false
	if maxLines > 0 {
		lines := strings.SplitAfter(s, "\n")
		if len(lines) > maxLines && !(len(lines) == maxLines+1 && lines[maxLines] == "") {
			s = strings.Join(lines[:maxLines], "")
			cut = true
		}
	}
	if maxBytes > 0 && len(s) > maxBytes {
		end := maxBytes
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		s = s[:end]
		cut = true
	}
	return s, cut
}
