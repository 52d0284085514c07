// Package analytics computes the dashboard's aggregate views over the full
// agent-run log.
//
// Each request loads a fresh snapshot of the log into an in-memory SQLite
// database and runs its views as SQL against the agent_runs table. The
// snapshot is discarded at the end of the request: there is no long-lived
// in-memory database and no cross-request cache, so a dashboard render is
// always a pure function of the log file at read time.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/arclight-ai/opsdeck/internal/model"
)

// Table is the tabular shape every view and sandbox query returns: an ordered
// list of named columns plus row data keyed by column name. Nil cell values
// represent NULL measures (e.g. the acceptance rate of an empty group).
type Table struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

const createAgentRuns = `
CREATE TABLE agent_runs (
	run_id                  TEXT NOT NULL,
	timestamp               TEXT NOT NULL,
	user_id                 TEXT NOT NULL,
	task_type               TEXT NOT NULL,
	agent_version           TEXT NOT NULL,
	resolution_time_seconds REAL NOT NULL,
	user_accepted           INTEGER NOT NULL,
	user_rating             INTEGER NOT NULL,
	abstained               INTEGER NOT NULL,
	error_occurred          INTEGER NOT NULL,
	lead_source             TEXT,
	crm_stage               TEXT,
	opportunity_value       REAL,
	workflow_stage          TEXT,
	time_saved_minutes      REAL,
	prompt_version          TEXT
)`

// Snapshot is one fully-loaded copy of the record set, queryable as SQL.
// It holds no state beyond the in-memory database and must be closed when
// the request ends.
type Snapshot struct {
	db      *sql.DB
	Records int
}

// NewSnapshot loads records into a fresh in-memory database. After loading,
// the connection is switched to query-only mode so neither the fixed views
// nor the sandbox can mutate the snapshot.
func NewSnapshot(ctx context.Context, records []model.Record) (*Snapshot, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("analytics: open snapshot db: %w", err)
	}
	// One connection only: each database/sql connection to ":memory:" would
	// otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createAgentRuns); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("analytics: create agent_runs: %w", err)
	}

	if len(records) > 0 {
		stmt, err := db.PrepareContext(ctx,
			`INSERT INTO agent_runs VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("analytics: prepare insert: %w", err)
		}
		for _, r := range records {
			_, err := stmt.ExecContext(ctx,
				r.RunID,
				r.Timestamp.Format(model.TimestampLayout),
				r.UserID,
				string(r.TaskType),
				r.AgentVersion,
				r.ResolutionTime,
				boolInt(r.UserAccepted),
				r.UserRating,
				boolInt(r.Abstained),
				boolInt(r.ErrorOccurred),
				r.LeadSource,
				r.CRMStage,
				r.OpportunityValue,
				string(r.WorkflowStage),
				r.TimeSavedMinutes,
				r.PromptVersion,
			)
			if err != nil {
				_ = stmt.Close()
				_ = db.Close()
				return nil, fmt.Errorf("analytics: insert record %s: %w", r.RunID, err)
			}
		}
		_ = stmt.Close()
	}

	if _, err := db.ExecContext(ctx, `PRAGMA query_only = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("analytics: set query_only: %w", err)
	}

	return &Snapshot{db: db, Records: len(records)}, nil
}

// Close releases the in-memory database.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// query executes sql with args and collects the result into a Table.
func (s *Snapshot) query(ctx context.Context, query string, args ...any) (Table, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Table{}, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, err
	}

	t := Table{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeCell(values[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

// normalizeCell converts driver-level values into JSON-friendly ones.
func normalizeCell(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// cellFloat reads a numeric cell as *float64, nil for NULL. Used by tests and
// the overview handler to inspect measures without caring about the driver's
// concrete numeric type.
func cellFloat(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}

// CellFloat exposes cellFloat for callers outside the package.
func CellFloat(v any) *float64 { return cellFloat(v) }

// CellString reads a cell as a string, empty for NULL.
func CellString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

// CellInt reads a numeric cell as int64, 0 for NULL.
func CellInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// normalizeQuery collapses whitespace for logging.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
