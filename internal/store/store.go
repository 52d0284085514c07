// Package store persists agent-run records as an append-only CSV log.
//
// The log is a flat file: one header row naming the canonical columns, one
// row per record, UTF-8, newline-terminated. Records are never rewritten;
// schema evolution is handled at load time by default-filling columns that
// older rows predate. The store assumes a single logical writer — concurrent
// appenders are a documented limitation of this tool, not a supported mode.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arclight-ai/opsdeck/internal/model"
)

// ErrUnavailable is returned by LoadAll when the log file does not exist.
// Callers rendering dashboards treat this as "zero records", not a fault.
var ErrUnavailable = errors.New("store: log unavailable")

// Store reads and appends the agent-run log.
type Store struct {
	path   string
	logger *slog.Logger
}

// New creates a Store over the log file at path. The file is not created
// until the first Append.
func New(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// LoadAll reads the entire log in file order and parses every row into a
// Record. The schema policy is lenient: rows that fail to parse are skipped
// and counted rather than aborting the load, since historical data quality
// varies. Returns ErrUnavailable when the file does not exist.
func (s *Store) LoadAll(ctx context.Context) ([]model.Record, int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnavailable, s.path)
		}
		return nil, 0, fmt.Errorf("store: open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // header width varies across schema versions

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("store: read header: %w", err)
	}

	var records []model.Record
	skipped := 0
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			s.logger.Warn("log row unreadable, skipping", "line", line, "error", err)
			continue
		}

		named := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				named[col] = row[i]
			}
		}
		rec, err := model.RecordFromRow(named)
		if err != nil {
			skipped++
			s.logger.Warn("log row failed schema parse, skipping", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, nil
}

// Append serializes one record and adds it to the end of the log. If the log
// does not exist yet, it is created with a header row first. Column order is
// fixed (model.Columns) so that loads by column name stay stable as the
// schema grows.
func (s *Store) Append(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create log directory: %w", err)
		}
	}

	_, statErr := os.Stat(s.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open log for append: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(model.Columns); err != nil {
			return fmt.Errorf("store: write header: %w", err)
		}
	}
	if err := w.Write(rec.Row()); err != nil {
		return fmt.Errorf("store: write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("store: flush record: %w", err)
	}

	s.logger.Debug("record appended", "run_id", rec.RunID, "task_type", rec.TaskType)
	return nil
}
