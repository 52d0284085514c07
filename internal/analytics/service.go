package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/arclight-ai/opsdeck/internal/model"
	"github.com/arclight-ai/opsdeck/internal/store"
)

// Service ties the log store to the aggregation engine. Every call loads a
// fresh snapshot; concurrent identical loads are coalesced with singleflight
// so a burst of dashboard requests shares one log scan instead of N, without
// introducing a cache (the result is never reused after the flight ends).
type Service struct {
	store  *store.Store
	logger *slog.Logger
	flight singleflight.Group
}

// NewService creates the analytics service over a log store.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

type loadResult struct {
	records []model.Record
	skipped int
}

// load reads the full log. A missing log file is the supported empty state,
// not an error: dashboards render zeros.
func (s *Service) load(ctx context.Context) (loadResult, error) {
	v, err, shared := s.flight.Do("load", func() (any, error) {
		records, skipped, err := s.store.LoadAll(ctx)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return loadResult{}, nil
			}
			return loadResult{}, err
		}
		if skipped > 0 {
			s.logger.Warn("log rows skipped during load", "skipped", skipped)
		}
		return loadResult{records: records, skipped: skipped}, nil
	})
	if err != nil {
		return loadResult{}, err
	}
	if shared {
		s.logger.Debug("snapshot load coalesced with concurrent request")
	}
	return v.(loadResult), nil
}

// Snapshot loads the log and builds a queryable snapshot. The caller owns the
// snapshot and must Close it. The second return value is the number of rows
// skipped by the lenient schema policy.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, int, error) {
	res, err := s.load(ctx)
	if err != nil {
		return nil, 0, err
	}
	snap, err := NewSnapshot(ctx, res.records)
	if err != nil {
		return nil, 0, err
	}
	return snap, res.skipped, nil
}

// View computes one named view from a fresh snapshot.
func (s *Service) View(ctx context.Context, name string) (Table, error) {
	fn, ok := Views[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	snap, _, err := s.Snapshot(ctx)
	if err != nil {
		return Table{}, err
	}
	defer func() { _ = snap.Close() }()
	return fn(snap, ctx)
}

// Audit computes the filtered audit listing from a fresh snapshot.
func (s *Service) Audit(ctx context.Context, f AuditFilter) (Table, error) {
	snap, _, err := s.Snapshot(ctx)
	if err != nil {
		return Table{}, err
	}
	defer func() { _ = snap.Close() }()
	return snap.Audit(ctx, f)
}

// Query runs one sandboxed ad-hoc query from a fresh snapshot.
func (s *Service) Query(ctx context.Context, raw string) (Table, error) {
	snap, _, err := s.Snapshot(ctx)
	if err != nil {
		return Table{}, err
	}
	defer func() { _ = snap.Close() }()
	t, err := snap.Query(ctx, raw)
	if err != nil {
		var rerr *RejectedError
		if errors.As(err, &rerr) {
			s.logger.Warn("ad-hoc query rejected",
				"query", normalizeQuery(raw),
				"reason", rerr.Reason,
			)
		}
		return Table{}, err
	}
	s.logger.Debug("ad-hoc query executed",
		"query", normalizeQuery(raw),
		"rows", len(t.Rows),
	)
	return t, nil
}
