package scenarios

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/bman/internal/docpack"
)

// RunMode selects which cached scenarios are re-executed.
type RunMode string

const (
	ModeDefault     RunMode = "default"
	ModeRerunAll    RunMode = "rerun_all"
	ModeRerunFailed RunMode = "rerun_failed"
)

// IndexSchemaVersion is the current scenario index format.
const IndexSchemaVersion = 1

// IndexEntry is the cache record of one scenario's last run.
type IndexEntry struct {
	ScenarioID       string   `json:"scenario_id"`
	ScenarioDigest   string   `json:"scenario_digest"`
	LastRunAtEpochMs int64    `json:"last_run_at_epoch_ms"`
	LastPass         bool     `json:"last_pass"`
	Failures         []string `json:"failures,omitempty"`
	EvidencePaths    []string `json:"evidence_paths"`
}

// Index is inventory/scenarios/index.json.
type Index struct {
	SchemaVersion int          `json:"schema_version"`
	Entries       []IndexEntry `json:"entries"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{SchemaVersion: IndexSchemaVersion, Entries: []IndexEntry{}}
}

// LoadIndex reads the scenario index. A missing or unreadable index is an
// empty cache: every scenario will simply run again.
func LoadIndex(src FileReader) *Index {
	data, err := src.ReadFile(docpack.ScenarioIndexPath)
	if err != nil {
		return NewIndex()
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil || idx.SchemaVersion != IndexSchemaVersion {
		return NewIndex()
	}
	if idx.Entries == nil {
		idx.Entries = []IndexEntry{}
	}
	return &idx
}

// Get returns the entry for id.
func (idx *Index) Get(id string) (IndexEntry, bool) {
	for _, e := range idx.Entries {
		if e.ScenarioID == id {
			return e, true
		}
	}
	return IndexEntry{}, false
}

// Put inserts or replaces the entry for e.ScenarioID, keeping entries
// sorted by id.
func (idx *Index) Put(e IndexEntry) {
	if e.EvidencePaths == nil {
		e.EvidencePaths = []string{}
	}
	for i := range idx.Entries {
		if idx.Entries[i].ScenarioID == e.ScenarioID {
			idx.Entries[i] = e
			return
		}
	}
	idx.Entries = append(idx.Entries, e)
	sort.Slice(idx.Entries, func(i, j int) bool {
		return idx.Entries[i].ScenarioID < idx.Entries[j].ScenarioID
	})
}

// LatestEvidence returns the newest evidence path of the entry for id.
func (idx *Index) LatestEvidence(id string) (string, bool) {
	e, ok := idx.Get(id)
	if !ok || len(e.EvidencePaths) == 0 {
		return "", false
	}
	return e.EvidencePaths[len(e.EvidencePaths)-1], true
}

// ShouldRun decides whether a scenario executes in this apply.
//
//   - a forced id always runs
//   - no cached outcome always runs
//   - RerunAll always runs
//   - RerunFailed runs iff there is no entry or the last run failed
//   - Default runs iff there is no entry, the last run failed or the
//     digest changed
//
// An entry is trusted in Default mode only when the digest matches and
// the last run passed.
func ShouldRun(mode RunMode, digest string, entry *IndexEntry, hasCachedOutcome, forced bool) bool {
	if forced || !hasCachedOutcome {
		return true
	}
	switch mode {
	case ModeRerunAll:
		return true
	case ModeRerunFailed:
		return entry == nil || !entry.LastPass
	default:
		return entry == nil || !entry.LastPass || entry.ScenarioDigest != digest
	}
}

// ParseRunMode maps CLI flags onto a RunMode.
func ParseRunMode(rerunAll, rerunFailed bool) (RunMode, error) {
	switch {
	case rerunAll && rerunFailed:
		return "", fmt.Errorf("--rerun-all and --rerun-failed are mutually exclusive")
	case rerunAll:
		return ModeRerunAll, nil
	case rerunFailed:
		return ModeRerunFailed, nil
	default:
		return ModeDefault, nil
	}
}
