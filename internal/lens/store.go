package lens

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// db is a private in-memory SQLite database holding one snapshot.
type db struct {
	conn *sql.DB
}

// openDB creates an empty in-memory database with the snapshot schema.
//
// The pool is pinned to a single connection: every new connection to
// ":memory:" would otherwise see its own empty database.
func openDB(ctx context.Context) (*db, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open lens database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to lens database: %w", err)
	}
	if err := applyPragmas(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to execute lens schema: %w", err)
	}
	return &db{conn: conn}, nil
}

func (d *db) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func applyPragmas(ctx context.Context, conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// load inserts the snapshot in a single transaction.
func (d *db) load(ctx context.Context, snap *Snapshot) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot load: %w", err)
	}
	defer tx.Rollback()

	for _, it := range snap.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (surface_id, kind, needs_value_examples, excluded_reason, coverage_blocked) VALUES (?, ?, ?, ?, ?)`,
			it.SurfaceID, it.Kind, it.NeedsValueExamples, nullString(it.ExcludedReason), nullString(it.CoverageBlocked)); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", it.SurfaceID, err)
		}
	}
	for _, s := range snap.Scenarios {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scenarios (scenario_id, kind, coverage_tier, coverage_ignore, baseline_scenario_id,
			     has_predicate, has_delta_assertion, assertion_count, is_auto)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ScenarioID, s.Kind, s.CoverageTier, s.CoverageIgnore, nullString(s.BaselineScenarioID),
			s.HasPredicate, s.HasDeltaAssertion, s.AssertionCount, s.IsAuto); err != nil {
			return fmt.Errorf("failed to insert scenario %s: %w", s.ScenarioID, err)
		}
	}
	for _, c := range snap.Covers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scenario_covers (scenario_id, surface_id) VALUES (?, ?)`,
			c.ScenarioID, c.SurfaceID); err != nil {
			return fmt.Errorf("failed to insert coverage %s -> %s: %w", c.ScenarioID, c.SurfaceID, err)
		}
	}
	for _, r := range snap.Runs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (scenario_id, pass, evidence_path, stdout_sha256) VALUES (?, ?, ?, ?)`,
			r.ScenarioID, r.Pass, nullString(r.EvidencePath), nullString(r.StdoutSHA256)); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", r.ScenarioID, err)
		}
	}
	for _, a := range snap.Assertions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assertion_results (scenario_id, ordinal, kind, seed_path, token, seeded, passed)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ScenarioID, a.Ordinal, a.Kind, nullString(a.SeedPath), nullString(a.Token), a.Seeded, a.Passed); err != nil {
			return fmt.Errorf("failed to insert assertion %s#%d: %w", a.ScenarioID, a.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
