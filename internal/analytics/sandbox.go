package analytics

import (
	"context"
	"fmt"
	"strings"
)

// The ad-hoc query path lets an operator run arbitrary read-only SQL against
// the agent_runs snapshot. Validation is an allow-list of one statement shape
// (a SELECT) plus a keyword denylist; the snapshot itself is additionally in
// query_only mode, so even a query that slips past the denylist cannot
// persist anything. The denylist is a known-incomplete defense for an
// internal tool, not a tenant-isolation boundary.

// forbiddenKeywords are rejected anywhere in the query text, case-insensitive.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "CREATE", "ALTER", "TRUNCATE",
}

// RejectedError is returned when a query fails sandbox validation before
// execution. Reason is surfaced verbatim to the caller.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "query rejected: " + e.Reason
}

// ExecError wraps a failure from the underlying engine while executing a
// validated query (syntax errors, unknown columns). The engine's message is
// preserved for display.
type ExecError struct {
	Err error
}

func (e *ExecError) Error() string {
	return "query failed: " + e.Err.Error()
}

func (e *ExecError) Unwrap() error { return e.Err }

// ValidateQuery applies the sandbox policy without executing anything.
func ValidateQuery(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &RejectedError{Reason: "empty query"}
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return &RejectedError{Reason: "only SELECT queries are allowed"}
	}
	for _, kw := range forbiddenKeywords {
		if strings.Contains(upper, kw) {
			return &RejectedError{Reason: fmt.Sprintf("unsafe keyword detected: %s", kw)}
		}
	}
	return nil
}

// Query validates raw against the sandbox policy and executes it against the
// snapshot. Execution failures come back as *ExecError.
func (s *Snapshot) Query(ctx context.Context, raw string) (Table, error) {
	if err := ValidateQuery(raw); err != nil {
		return Table{}, err
	}
	t, err := s.query(ctx, strings.TrimSpace(raw))
	if err != nil {
		return Table{}, &ExecError{Err: err}
	}
	return t, nil
}
