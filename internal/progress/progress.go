// Package progress persists the verification convergence counters in
// enrich/verification_progress.json.
//
// Only apply mutates the store. Status and plan read it to decide whether
// a recommendation would repeat, and must never write it back.
package progress

import (
	"encoding/json"
	"path"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/ir"
)

// SchemaVersion is the current progress file format.
const SchemaVersion = 1

// OutputsEqualRetry counts targeted reruns of an outputs_equal target.
// The count only applies while DeltaSignature matches the live ledger.
type OutputsEqualRetry struct {
	RetryCount     int    `json:"retry_count"`
	DeltaSignature string `json:"delta_signature,omitempty"`
}

// AssertionFailed tracks repeated identical recommendations for an
// assertion_failed target.
type AssertionFailed struct {
	NoProgressCount int                    `json:"no_progress_count"`
	LastSignature   enrich.ActionSignature `json:"last_signature"`
}

// Progress is the content of enrich/verification_progress.json.
type Progress struct {
	SchemaVersion                int                          `json:"schema_version"`
	OutputsEqualRetriesBySurface map[string]OutputsEqualRetry `json:"outputs_equal_retries_by_surface,omitempty"`
	AssertionFailedBySurface     map[string]AssertionFailed   `json:"assertion_failed_by_surface,omitempty"`
}

// FileReader reads pack-relative files.
type FileReader interface {
	ReadFile(rel string) ([]byte, error)
}

// New returns an empty store.
func New() *Progress {
	return &Progress{
		SchemaVersion:                SchemaVersion,
		OutputsEqualRetriesBySurface: map[string]OutputsEqualRetry{},
		AssertionFailedBySurface:     map[string]AssertionFailed{},
	}
}

// Load reads the store. A missing file, invalid JSON or a different schema
// version all yield an empty store: counters are advisory and rebuilding
// them only costs extra reruns.
func Load(src FileReader) *Progress {
	data, err := src.ReadFile(docpack.ProgressPath)
	if err != nil {
		return New()
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil || p.SchemaVersion != SchemaVersion {
		return New()
	}
	if p.OutputsEqualRetriesBySurface == nil {
		p.OutputsEqualRetriesBySurface = map[string]OutputsEqualRetry{}
	}
	if p.AssertionFailedBySurface == nil {
		p.AssertionFailedBySurface = map[string]AssertionFailed{}
	}
	return &p
}

// Write atomically replaces the store. Map keys are emitted sorted.
func Write(root docpack.Root, p *Progress) error {
	out := *p
	out.SchemaVersion = SchemaVersion
	return root.WriteJSON(docpack.ProgressPath, out)
}

// RetryCount returns the outputs_equal retry count for surfaceID when the
// recorded delta signature equals signature, else 0.
func (p *Progress) RetryCount(surfaceID, signature string) int {
	e, ok := p.OutputsEqualRetriesBySurface[surfaceID]
	if !ok || e.DeltaSignature != signature {
		return 0
	}
	return e.RetryCount
}

// NoProgressCount returns the assertion_failed no-progress count.
func (p *Progress) NoProgressCount(surfaceID string) int {
	return p.AssertionFailedBySurface[surfaceID].NoProgressCount
}

// IsNoop reports whether candidate repeats the last recorded signature of
// its target. A target without a record is never a no-op.
func (p *Progress) IsNoop(candidate enrich.ActionSignature) bool {
	e, ok := p.AssertionFailedBySurface[candidate.TargetID]
	if !ok {
		return false
	}
	return e.LastSignature == candidate
}

// RecordEdit stores the signature of an assertion_failed Edit that apply
// recommended, so the next evaluation can recognize a repeat.
func (p *Progress) RecordEdit(sig enrich.ActionSignature) bool {
	if sig.ReasonCode != enrich.ReasonAssertionFailed || sig.TargetID == "" {
		return false
	}
	e := p.AssertionFailedBySurface[sig.TargetID]
	if e.LastSignature == sig {
		return false
	}
	e.LastSignature = sig
	p.AssertionFailedBySurface[sig.TargetID] = e
	return true
}

// Target is one ledger row subject to convergence tracking.
type Target struct {
	SurfaceID string
	Entry     enrich.VerificationEntry
}

// UpdateOutputsEqualAfterApply reconciles retry counters with the ledger
// after an apply. Only active targets are retained. A changed delta
// signature resets the count; a forced rerun of any of the target's
// scenarios increments it. Reports whether anything changed.
func (p *Progress) UpdateOutputsEqualAfterApply(active []Target, executedForced []string) bool {
	keep := make(map[string]bool, len(active))
	for _, t := range active {
		keep[t.SurfaceID] = true
	}
	changed := false
	for id := range p.OutputsEqualRetriesBySurface {
		if !keep[id] {
			delete(p.OutputsEqualRetriesBySurface, id)
			changed = true
		}
	}

	for _, t := range active {
		sig := DeltaSignature(t.Entry)
		e, exists := p.OutputsEqualRetriesBySurface[t.SurfaceID]
		if !rerunExecuted(t.Entry, executedForced) {
			if exists && e.DeltaSignature != sig {
				p.OutputsEqualRetriesBySurface[t.SurfaceID] = OutputsEqualRetry{DeltaSignature: sig}
				changed = true
			}
			continue
		}
		if e.DeltaSignature != sig {
			e.RetryCount = 0
		}
		e.RetryCount++
		e.DeltaSignature = sig
		p.OutputsEqualRetriesBySurface[t.SurfaceID] = e
		changed = true
	}
	return changed
}

// UpdateAssertionFailedAfterApply reconciles no-progress counters after an
// apply. Targets no longer failing are dropped. For a target whose
// scenarios were forcibly rerun, changed evidence resets the counter and
// forgets the recorded edit; unchanged evidence increments the counter.
func (p *Progress) UpdateAssertionFailedAfterApply(failing []Target, executedForced []string) bool {
	keep := make(map[string]bool, len(failing))
	for _, t := range failing {
		keep[t.SurfaceID] = true
	}
	changed := false
	for id := range p.AssertionFailedBySurface {
		if !keep[id] {
			delete(p.AssertionFailedBySurface, id)
			changed = true
		}
	}

	for _, t := range failing {
		if !rerunExecuted(t.Entry, executedForced) {
			continue
		}
		fp := EvidenceFingerprint(t.Entry)
		e := p.AssertionFailedBySurface[t.SurfaceID]
		if e.LastSignature.EvidenceFingerprint != fp {
			e = AssertionFailed{LastSignature: enrich.ActionSignature{
				ReasonCode:          enrich.ReasonAssertionFailed,
				TargetID:            t.SurfaceID,
				EvidenceFingerprint: fp,
			}}
		} else {
			e.NoProgressCount++
		}
		p.AssertionFailedBySurface[t.SurfaceID] = e
		changed = true
	}
	return changed
}

func rerunExecuted(entry enrich.VerificationEntry, executed []string) bool {
	for _, id := range RerunScenarioIDs(entry) {
		if slices.Contains(executed, id) {
			return true
		}
	}
	return false
}

// RerunScenarioIDs lists the scenarios a targeted rerun of entry executes:
// its preferred scenario and every linked behavior scenario, sorted.
func RerunScenarioIDs(entry enrich.VerificationEntry) []string {
	var ids []string
	if id := strings.TrimSpace(entry.ScenarioID); id != "" {
		ids = append(ids, id)
	}
	for _, id := range entry.BehaviorScenarioIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// DeltaSignature identifies the delta evidence of entry independent of run
// timestamps: a rerun of the same scenario keeps the signature, a new
// scenario changes it.
func DeltaSignature(entry enrich.VerificationEntry) string {
	paths := entry.DeltaEvidencePaths
	if len(paths) == 0 {
		paths = entry.EvidencePaths
	}
	return strings.Join(signatureTokens(paths), "|")
}

// EvidenceFingerprint hashes the semantically meaningful ledger fields of
// entry. Evidence paths are reduced to scenario tokens first.
func EvidenceFingerprint(entry enrich.VerificationEntry) string {
	paths := append(append([]string(nil), entry.DeltaEvidencePaths...), entry.EvidencePaths...) // slices.Concat equivalent (Go 1.21 toolchain)
	return ir.MustHashCanonical(ir.DomainEvidence, map[string]any{
		"reason_code":         entry.ReasonCode,
		"scenario_id":         entry.ScenarioID,
		"assertion_kind":      entry.AssertionKind,
		"assertion_seed_path": entry.AssertionSeedPath,
		"assertion_token":     entry.AssertionToken,
		"evidence":            signatureTokens(paths),
	})
}

// ContentHash hashes the content of a proposed edit.
func ContentHash(content string) string {
	return ir.HashBytes(ir.DomainContent, []byte(content))
}

func signatureTokens(paths []string) []string {
	tokens := []string{}
	for _, p := range paths {
		if t := SignatureToken(p); t != "" {
			tokens = append(tokens, t)
		}
	}
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

// SignatureToken maps an evidence path to "scenario:<stem>" when it has
// the <stem>-<digits>.json shape, else the trimmed path.
func SignatureToken(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if id, ok := ScenarioFromEvidencePath(p); ok {
		return "scenario:" + id
	}
	return p
}

// ScenarioFromEvidencePath extracts the scenario file stem from an
// evidence path of the form <stem>-<digits>.json.
func ScenarioFromEvidencePath(p string) (string, bool) {
	stem, ok := strings.CutSuffix(path.Base(strings.TrimSpace(p)), ".json")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 || i == len(stem)-1 {
		return "", false
	}
	for _, c := range stem[i+1:] {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return stem[:i], true
}
