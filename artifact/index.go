package artifact

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/movinture/latent-logic/comparison"
	"github.com/movinture/latent-logic/validation"
)

// IndexRow is one indexed (run_group, framework, model, prompt) unit.
type IndexRow struct {
	RunGroup       string             `json:"run_group"`
	Framework      string             `json:"framework"`
	Model          string             `json:"model"`
	PromptID       string             `json:"prompt_id"`
	Valid          validation.Verdict `json:"valid"`
	Provenance     string             `json:"provenance"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	Turns          int                `json:"turns"`
	ToolCalls      int                `json:"tool_calls"`
	Status         string             `json:"status"`
	RunPath        string             `json:"run_path"`
	ValidationPath string             `json:"validation_path"`
}

// Index is a SQLite catalog of persisted records. It is safe for
// concurrent use.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index at path. Use ":memory:" for an
// in-process index.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("index path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	ix := &Index{db: db}
	if err := ix.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return ix, nil
}

func (ix *Index) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_group TEXT NOT NULL,
		framework TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_id TEXT NOT NULL,
		valid INTEGER,
		provenance TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		turns INTEGER NOT NULL,
		tool_calls INTEGER NOT NULL,
		status TEXT NOT NULL,
		run_path TEXT NOT NULL,
		validation_path TEXT NOT NULL,
		PRIMARY KEY (run_group, framework, model, prompt_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_framework ON runs(framework);
	`
	_, err := ix.db.ExecContext(ctx, schema)
	return err
}

// Close releases the database.
func (ix *Index) Close() error { return ix.db.Close() }

// Upsert inserts row or replaces the row for the same unit.
func (ix *Index) Upsert(ctx context.Context, row IndexRow) error {
	var valid sql.NullBool
	if b := row.Valid.Bool(); b != nil {
		valid = sql.NullBool{Bool: *b, Valid: true}
	}
	query := `
		INSERT INTO runs (run_group, framework, model, prompt_id, valid, provenance, failure_reason,
			turns, tool_calls, status, run_path, validation_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_group, framework, model, prompt_id) DO UPDATE SET
			valid = excluded.valid,
			provenance = excluded.provenance,
			failure_reason = excluded.failure_reason,
			turns = excluded.turns,
			tool_calls = excluded.tool_calls,
			status = excluded.status,
			run_path = excluded.run_path,
			validation_path = excluded.validation_path
	`
	_, err := ix.db.ExecContext(ctx, query,
		row.RunGroup, row.Framework, row.Model, row.PromptID, valid, row.Provenance, row.FailureReason,
		row.Turns, row.ToolCalls, row.Status, row.RunPath, row.ValidationPath,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert index row: %w", err)
	}
	return nil
}

// Rows lists a run group's rows ordered by framework, model and prompt.
func (ix *Index) Rows(ctx context.Context, runGroup string) ([]IndexRow, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT run_group, framework, model, prompt_id, valid, provenance, failure_reason,
			turns, tool_calls, status, run_path, validation_path
		FROM runs WHERE run_group = ?
		ORDER BY framework, model, prompt_id
	`, runGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var out []IndexRow
	for rows.Next() {
		var r IndexRow
		var valid sql.NullBool
		if err := rows.Scan(&r.RunGroup, &r.Framework, &r.Model, &r.PromptID, &valid, &r.Provenance,
			&r.FailureReason, &r.Turns, &r.ToolCalls, &r.Status, &r.RunPath, &r.ValidationPath); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		if valid.Valid {
			r.Valid = validation.VerdictOf(valid.Bool)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Keys returns, for every run group holding framework rows, the covered
// (model, prompt) pairs.
func (ix *Index) Keys(ctx context.Context, framework string) (map[string][]comparison.Key, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT run_group, model, prompt_id FROM runs
		WHERE framework = ?
		ORDER BY run_group, model, prompt_id
	`, framework)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	out := map[string][]comparison.Key{}
	for rows.Next() {
		var group string
		var k comparison.Key
		if err := rows.Scan(&group, &k.Model, &k.PromptID); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		out[group] = append(out[group], k)
	}
	return out, rows.Err()
}
