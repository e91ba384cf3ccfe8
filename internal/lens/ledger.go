package lens

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
)

// CoverageLedgerSchemaVersion is the current coverage ledger format.
const CoverageLedgerSchemaVersion = 1

// Ledgers is the pair of ledgers an apply publishes.
type Ledgers struct {
	Verification VerificationLedger
	Coverage     CoverageLedger
}

// BuildLedgers runs the verification template and the coverage query over
// snap and stamps both results with inputsHash.
func BuildLedgers(ctx context.Context, l Lens, template string, snap *Snapshot, inputsHash string, clock docpack.Clock) (Ledgers, error) {
	entries, err := l.Verification(ctx, template, snap)
	if err != nil {
		return Ledgers{}, fmt.Errorf("build verification ledger: %w", err)
	}
	coverage, err := l.Coverage(ctx, snap)
	if err != nil {
		return Ledgers{}, fmt.Errorf("build coverage ledger: %w", err)
	}
	if entries == nil {
		entries = []enrich.VerificationEntry{}
	}
	if coverage == nil {
		coverage = []CoverageEntry{}
	}
	now := docpack.NowMillis(clock)
	return Ledgers{
		Verification: VerificationLedger{
			SchemaVersion:      VerificationLedgerSchemaVersion,
			GeneratedAtEpochMs: now,
			InputsHash:         inputsHash,
			Entries:            entries,
		},
		Coverage: CoverageLedger{
			SchemaVersion:      CoverageLedgerSchemaVersion,
			GeneratedAtEpochMs: now,
			InputsHash:         inputsHash,
			Items:              coverage,
		},
	}, nil
}

// EntriesByID indexes verification entries by surface id.
func EntriesByID(entries []enrich.VerificationEntry) map[string]enrich.VerificationEntry {
	out := make(map[string]enrich.VerificationEntry, len(entries))
	for _, e := range entries {
		out[e.SurfaceID] = e
	}
	return out
}

func loadJSON[T any](src FileReader, rel string) (*T, error) {
	data, err := src.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", rel, err)
	}
	return &v, nil
}
