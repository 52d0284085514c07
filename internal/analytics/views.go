package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/arclight-ai/opsdeck/internal/model"
)

// Each view is a deterministic aggregation over the whole snapshot. Rate
// measures are 100 * (count of true / group count); SQL AVG over an empty
// group yields NULL, which surfaces as a nil cell rather than a fault.

// Summary computes whole-set headline metrics.
func (s *Snapshot) Summary(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			COUNT(*) AS total_runs,
			COUNT(DISTINCT user_id) AS unique_users,
			COUNT(DISTINCT task_type) AS task_types,
			AVG(resolution_time_seconds) AS avg_resolution_time,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate,
			AVG(user_rating) AS avg_rating,
			AVG(CASE WHEN abstained THEN 1.0 ELSE 0.0 END) * 100 AS abstention_rate,
			AVG(CASE WHEN error_occurred THEN 1.0 ELSE 0.0 END) * 100 AS error_rate,
			SUM(time_saved_minutes) AS total_time_saved,
			ROUND(SUM(time_saved_minutes) / 60.0, 1) AS total_hours_saved
		FROM agent_runs`)
}

// ByVersion compares agent versions head to head (the A/B view).
func (s *Snapshot) ByVersion(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			agent_version,
			COUNT(*) AS total_tasks,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate,
			AVG(user_rating) AS avg_rating,
			AVG(resolution_time_seconds) AS avg_resolution_time,
			AVG(CASE WHEN error_occurred THEN 1.0 ELSE 0.0 END) * 100 AS error_rate,
			AVG(CASE WHEN abstained THEN 1.0 ELSE 0.0 END) * 100 AS abstention_rate
		FROM agent_runs
		GROUP BY agent_version
		ORDER BY agent_version`)
}

// ByTaskType breaks metrics down per task type, busiest first.
func (s *Snapshot) ByTaskType(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			task_type,
			COUNT(*) AS total_tasks,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate,
			AVG(user_rating) AS avg_rating,
			AVG(resolution_time_seconds) AS avg_resolution_time
		FROM agent_runs
		GROUP BY task_type
		ORDER BY total_tasks DESC`)
}

// ByWorkflowStage breaks metrics down per GTM workflow stage, busiest first.
func (s *Snapshot) ByWorkflowStage(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			workflow_stage,
			COUNT(*) AS total_tasks,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate,
			ROUND(SUM(time_saved_minutes), 1) AS total_time_saved,
			ROUND(AVG(time_saved_minutes), 1) AS avg_time_saved,
			AVG(user_rating) AS avg_rating
		FROM agent_runs
		GROUP BY workflow_stage
		ORDER BY total_tasks DESC`)
}

// DailyTrend buckets runs by calendar day, oldest first.
func (s *Snapshot) DailyTrend(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			strftime('%Y-%m-%d', timestamp) AS date,
			COUNT(*) AS total_tasks,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate,
			AVG(user_rating) AS avg_rating,
			COUNT(DISTINCT user_id) AS active_users
		FROM agent_runs
		GROUP BY strftime('%Y-%m-%d', timestamp)
		ORDER BY date`)
}

// PipelineFunnel groups runs by CRM stage in fixed stage-progression order,
// with unrecognized stages sorted after Closed Lost.
func (s *Snapshot) PipelineFunnel(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			crm_stage,
			COUNT(*) AS count,
			SUM(opportunity_value) AS total_value,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate
		FROM agent_runs
		GROUP BY crm_stage
		ORDER BY
			CASE crm_stage
				WHEN 'MQL' THEN 1
				WHEN 'SAL' THEN 2
				WHEN 'SQL' THEN 3
				WHEN 'Discovery' THEN 4
				WHEN 'Technical Validation' THEN 5
				WHEN 'Value/Impact' THEN 6
				WHEN 'Negotiation' THEN 7
				WHEN 'Closed Won' THEN 8
				WHEN 'Closed Lost' THEN 9
				ELSE 10
			END`)
}

// TimeSaved totals the manual-labor offset per task type, biggest saver first.
func (s *Snapshot) TimeSaved(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			task_type,
			COUNT(*) AS total_runs,
			ROUND(SUM(time_saved_minutes), 1) AS total_minutes_saved,
			ROUND(AVG(time_saved_minutes), 1) AS avg_minutes_saved,
			ROUND(SUM(time_saved_minutes) / 60.0, 1) AS total_hours_saved
		FROM agent_runs
		GROUP BY task_type
		ORDER BY total_minutes_saved DESC`)
}

// PromptVersions compares performance across prompt template revisions.
func (s *Snapshot) PromptVersions(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			prompt_version,
			COUNT(*) AS total_runs,
			AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100 AS acceptance_rate,
			AVG(user_rating) AS avg_rating,
			AVG(resolution_time_seconds) AS avg_resolution_time
		FROM agent_runs
		GROUP BY prompt_version
		ORDER BY prompt_version`)
}

// LeadSources ranks lead sources by acceptance rate. Feeds the overview
// page's "top sources / needs attention" panels.
func (s *Snapshot) LeadSources(ctx context.Context) (Table, error) {
	return s.query(ctx, `
		SELECT
			lead_source,
			COUNT(*) AS volume,
			ROUND(AVG(CASE WHEN user_accepted THEN 1.0 ELSE 0.0 END) * 100, 1) AS acceptance_rate
		FROM agent_runs
		GROUP BY lead_source
		ORDER BY acceptance_rate DESC`)
}

// Outcome filters for the audit listing. Each maps to one boolean predicate.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeEscalated = "escalated"
	OutcomeError     = "error"
)

// AuditFilter narrows the audit listing. Zero values mean "no filter".
type AuditFilter struct {
	TaskType model.TaskType
	Version  string
	Outcome  string
	Limit    int
}

// DefaultAuditLimit caps the audit listing when the caller supplies none.
const DefaultAuditLimit = 50

// MaxAuditLimit is the hard row cap for the audit listing.
const MaxAuditLimit = 500

// Audit returns the row-level listing, newest first, capped at the filter's
// limit. Filters are bound as query parameters, never interpolated.
func (s *Snapshot) Audit(ctx context.Context, f AuditFilter) (Table, error) {
	where := []string{"1=1"}
	var args []any

	if f.TaskType != "" {
		where = append(where, "task_type = ?")
		args = append(args, string(f.TaskType))
	}
	if f.Version != "" {
		where = append(where, "agent_version = ?")
		args = append(args, f.Version)
	}
	switch f.Outcome {
	case OutcomeAccepted:
		where = append(where, "user_accepted = 1")
	case OutcomeRejected:
		where = append(where, "user_accepted = 0")
	case OutcomeEscalated:
		where = append(where, "abstained = 1")
	case OutcomeError:
		where = append(where, "error_occurred = 1")
	case "":
	default:
		return Table{}, fmt.Errorf("analytics: unknown outcome filter %q", f.Outcome)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT
			run_id, timestamp, user_id, task_type, agent_version,
			ROUND(resolution_time_seconds, 2) AS resolution_time,
			CASE WHEN user_accepted THEN 'Accepted' ELSE 'Rejected' END AS outcome,
			user_rating, abstained, error_occurred,
			lead_source, crm_stage, opportunity_value,
			workflow_stage, time_saved_minutes, prompt_version
		FROM agent_runs
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT ?`, strings.Join(where, " AND "))

	return s.query(ctx, q, args...)
}

// ViewFunc computes one named view over a snapshot.
type ViewFunc func(*Snapshot, context.Context) (Table, error)

// ErrUnknownView is returned when a view name is not in the registry.
var ErrUnknownView = errors.New("analytics: unknown view")

// Views is the registry of named aggregate views exposed to the HTTP and MCP
// surfaces. The audit listing is separate because it takes a filter.
var Views = map[string]ViewFunc{
	"summary":           (*Snapshot).Summary,
	"by_version":        (*Snapshot).ByVersion,
	"by_task_type":      (*Snapshot).ByTaskType,
	"by_workflow_stage": (*Snapshot).ByWorkflowStage,
	"daily_trend":       (*Snapshot).DailyTrend,
	"funnel":            (*Snapshot).PipelineFunnel,
	"time_saved":        (*Snapshot).TimeSaved,
	"prompt_versions":   (*Snapshot).PromptVersions,
	"lead_sources":      (*Snapshot).LeadSources,
}

// ViewNames returns the registry keys in sorted order.
func ViewNames() []string {
	names := make([]string, 0, len(Views))
	for name := range Views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
