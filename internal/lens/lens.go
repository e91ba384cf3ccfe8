// Package lens computes verification and coverage ledgers by running SQL
// templates over a read-only snapshot of the pack state.
//
// The default implementation loads the snapshot into a private in-memory
// SQLite database per query, so a template can never modify pack files.
package lens

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
)

//go:embed verification_from_scenarios.sql
var defaultVerificationSQL string

//go:embed coverage.sql
var coverageSQL string

// DefaultTemplate returns the embedded verification template.
func DefaultTemplate() string { return defaultVerificationSQL }

// LoadTemplate returns the configured template, or the embedded default
// when rel is empty.
func LoadTemplate(src FileReader, rel string) (string, error) {
	if rel == "" {
		return defaultVerificationSQL, nil
	}
	data, err := src.ReadFile(rel)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Lens turns a snapshot into ledger rows.
type Lens interface {
	Verification(ctx context.Context, template string, snap *Snapshot) ([]enrich.VerificationEntry, error)
	Coverage(ctx context.Context, snap *Snapshot) ([]CoverageEntry, error)
}

// SQLiteLens is the default Lens.
type SQLiteLens struct{}

// NewSQLiteLens returns a SQLiteLens.
func NewSQLiteLens() *SQLiteLens { return &SQLiteLens{} }

// Verification implements Lens. Rows are returned in template order.
func (l *SQLiteLens) Verification(ctx context.Context, template string, snap *Snapshot) ([]enrich.VerificationEntry, error) {
	var entries []enrich.VerificationEntry
	err := l.query(ctx, template, snap, func(row map[string]string) error {
		id := row["surface_id"]
		if id == "" {
			return fmt.Errorf("verification row without surface_id")
		}
		entries = append(entries, enrich.VerificationEntry{
			SurfaceID:           id,
			Status:              orDefault(row["status"], enrich.StatusUnverified),
			BehaviorStatus:      orDefault(row["behavior_status"], enrich.StatusUnverified),
			ReasonCode:          row["reason_code"],
			ScenarioID:          row["scenario_id"],
			BehaviorScenarioIDs: splitList(row["behavior_scenario_ids"]),
			AssertionKind:       row["assertion_kind"],
			AssertionSeedPath:   row["assertion_seed_path"],
			AssertionToken:      row["assertion_token"],
			DeltaOutcome:        row["delta_outcome"],
			DeltaEvidencePaths:  splitList(row["delta_evidence_paths"]),
			EvidencePaths:       orEmpty(splitList(row["evidence_paths"])),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Coverage implements Lens.
func (l *SQLiteLens) Coverage(ctx context.Context, snap *Snapshot) ([]CoverageEntry, error) {
	var entries []CoverageEntry
	err := l.query(ctx, coverageSQL, snap, func(row map[string]string) error {
		entries = append(entries, CoverageEntry{
			SurfaceID:     row["surface_id"],
			Kind:          row["kind"],
			Status:        CoverageStatus(row["status"]),
			CoveredBy:     orEmpty(splitList(row["covered_by"])),
			BlockedReason: row["blocked_reason"],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// query loads snap into a fresh database and calls fn once per result row
// with NULL columns mapped to "".
func (l *SQLiteLens) query(ctx context.Context, query string, snap *Snapshot, fn func(map[string]string) error) error {
	d, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.load(ctx, snap); err != nil {
		return err
	}

	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("lens query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("lens query columns: %w", err)
	}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("lens row scan: %w", err)
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = values[i].String
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lens rows: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// VerificationLedgerSchemaVersion is the current ledger format.
const VerificationLedgerSchemaVersion = 1

// VerificationLedger is inventory/verification_ledger.json.
type VerificationLedger struct {
	SchemaVersion      int                        `json:"schema_version"`
	GeneratedAtEpochMs int64                      `json:"generated_at_epoch_ms"`
	InputsHash         string                     `json:"inputs_hash"`
	Entries            []enrich.VerificationEntry `json:"entries"`
}

// CoverageStatus is the coverage state of one item.
type CoverageStatus string

const (
	CoverageCovered   CoverageStatus = "covered"
	CoverageBlocked   CoverageStatus = "blocked"
	CoverageUncovered CoverageStatus = "uncovered"
)

// CoverageEntry is one coverage ledger row.
type CoverageEntry struct {
	SurfaceID     string         `json:"surface_id"`
	Kind          string         `json:"kind"`
	Status        CoverageStatus `json:"status"`
	CoveredBy     []string       `json:"covered_by"`
	BlockedReason string         `json:"blocked_reason,omitempty"`
}

// CoverageLedger is inventory/coverage_ledger.json.
type CoverageLedger struct {
	SchemaVersion      int             `json:"schema_version"`
	GeneratedAtEpochMs int64           `json:"generated_at_epoch_ms"`
	InputsHash         string          `json:"inputs_hash"`
	Items              []CoverageEntry `json:"items"`
}

// Uncovered returns the ids of uncovered items.
func (c *CoverageLedger) Uncovered() []string {
	var ids []string
	for _, e := range c.Items {
		if e.Status == CoverageUncovered {
			ids = append(ids, e.SurfaceID)
		}
	}
	return ids
}

// LoadCoverageLedger reads inventory/coverage_ledger.json.
func LoadCoverageLedger(src FileReader) (*CoverageLedger, error) {
	return loadJSON[CoverageLedger](src, docpack.CoverageLedgerPath)
}

// LoadVerificationLedger reads inventory/verification_ledger.json.
func LoadVerificationLedger(src FileReader) (*VerificationLedger, error) {
	return loadJSON[VerificationLedger](src, docpack.VerificationLedgerPath)
}
