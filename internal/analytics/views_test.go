package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-ai/opsdeck/internal/model"
)

func newSnap(t *testing.T, records []model.Record) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(context.Background(), records)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	return snap
}

func rec(mutate func(*model.Record)) model.Record {
	r := model.Record{
		RunID:            "RUN000",
		Timestamp:        time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC),
		UserID:           "USR101",
		TaskType:         model.TaskLeadSummary,
		AgentVersion:     "A",
		ResolutionTime:   3.0,
		UserAccepted:     true,
		UserRating:       4,
		LeadSource:       "Inbound - Webinar",
		CRMStage:         "MQL",
		OpportunityValue: 10000,
		WorkflowStage:    model.StagePipelineGeneration,
		TimeSavedMinutes: 14,
		PromptVersion:    "v1.2",
	}
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func TestSummaryEmptyLog(t *testing.T) {
	snap := newSnap(t, nil)
	table, err := snap.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.EqualValues(t, 0, CellInt(row["total_runs"]))
	// Rate measures over an empty set are NULL, never a division fault.
	assert.Nil(t, row["acceptance_rate"])
	assert.Nil(t, row["avg_resolution_time"])
	assert.Nil(t, row["total_time_saved"])
}

func TestByVersionScenario(t *testing.T) {
	// Three runs: A accepted, A rejected, B accepted.
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.AgentVersion = "A"; r.UserAccepted = true }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.AgentVersion = "A"; r.UserAccepted = false }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.AgentVersion = "B"; r.UserAccepted = true }),
	}
	snap := newSnap(t, records)

	table, err := snap.ByVersion(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	a, b := table.Rows[0], table.Rows[1]
	assert.Equal(t, "A", CellString(a["agent_version"]))
	assert.EqualValues(t, 2, CellInt(a["total_tasks"]))
	require.NotNil(t, CellFloat(a["acceptance_rate"]))
	assert.InDelta(t, 50.0, *CellFloat(a["acceptance_rate"]), 0.001)

	assert.Equal(t, "B", CellString(b["agent_version"]))
	assert.EqualValues(t, 1, CellInt(b["total_tasks"]))
	assert.InDelta(t, 100.0, *CellFloat(b["acceptance_rate"]), 0.001)
}

func TestGroupCountsSumToTotal(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.TaskType = model.TaskLeadSummary }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.TaskType = model.TaskFollowUp }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.TaskType = model.TaskFollowUp }),
		rec(func(r *model.Record) { r.RunID = "RUN004"; r.TaskType = model.TaskDataHygiene }),
		rec(func(r *model.Record) { r.RunID = "RUN005"; r.TaskType = model.TaskRiskAnalysis }),
	}
	snap := newSnap(t, records)
	ctx := context.Background()

	summary, err := snap.Summary(ctx)
	require.NoError(t, err)
	total := CellInt(summary.Rows[0]["total_runs"])

	for _, view := range []string{"by_version", "by_task_type", "by_workflow_stage", "daily_trend", "funnel", "prompt_versions"} {
		table, err := Views[view](snap, ctx)
		require.NoError(t, err, view)
		var sum int64
		for _, row := range table.Rows {
			for _, col := range []string{"total_tasks", "count", "total_runs"} {
				if v, ok := row[col]; ok {
					sum += CellInt(v)
					break
				}
			}
		}
		assert.Equal(t, total, sum, "view %s group counts", view)
	}
}

func TestByTaskTypeOrderedByCountDesc(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.TaskType = model.TaskDataHygiene }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.TaskType = model.TaskFollowUp }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.TaskType = model.TaskFollowUp }),
		rec(func(r *model.Record) { r.RunID = "RUN004"; r.TaskType = model.TaskFollowUp }),
		rec(func(r *model.Record) { r.RunID = "RUN005"; r.TaskType = model.TaskLeadSummary }),
		rec(func(r *model.Record) { r.RunID = "RUN006"; r.TaskType = model.TaskLeadSummary }),
	}
	snap := newSnap(t, records)

	table, err := snap.ByTaskType(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "follow_up", CellString(table.Rows[0]["task_type"]))
	assert.Equal(t, "lead_summary", CellString(table.Rows[1]["task_type"]))
	assert.Equal(t, "data_hygiene", CellString(table.Rows[2]["task_type"]))
}

func TestPipelineFunnelOrdering(t *testing.T) {
	stages := []string{"Closed Lost", "Self-Serve", "Negotiation", "MQL", "Discovery", "Closed Won", "SQL", "SAL", "Technical Validation", "Value/Impact"}
	var records []model.Record
	for i, stage := range stages {
		st := stage
		records = append(records, rec(func(r *model.Record) {
			r.RunID = "RUN" + string(rune('A'+i))
			r.CRMStage = st
		}))
	}
	snap := newSnap(t, records)

	table, err := snap.PipelineFunnel(context.Background())
	require.NoError(t, err)

	var got []string
	for _, row := range table.Rows {
		got = append(got, CellString(row["crm_stage"]))
	}
	want := []string{"MQL", "SAL", "SQL", "Discovery", "Technical Validation", "Value/Impact", "Negotiation", "Closed Won", "Closed Lost", "Self-Serve"}
	assert.Equal(t, want, got)
}

func TestDailyTrendOrderedByDayAscending(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) {
			r.RunID = "RUN001"
			r.Timestamp = time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
		}),
		rec(func(r *model.Record) {
			r.RunID = "RUN002"
			r.Timestamp = time.Date(2026, 1, 28, 16, 0, 0, 0, time.UTC)
		}),
		rec(func(r *model.Record) {
			r.RunID = "RUN003"
			r.Timestamp = time.Date(2026, 1, 28, 11, 0, 0, 0, time.UTC)
			r.UserID = "USR102"
		}),
	}
	snap := newSnap(t, records)

	table, err := snap.DailyTrend(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2026-01-28", CellString(table.Rows[0]["date"]))
	assert.EqualValues(t, 2, CellInt(table.Rows[0]["total_tasks"]))
	assert.EqualValues(t, 2, CellInt(table.Rows[0]["active_users"]))
	assert.Equal(t, "2026-02-03", CellString(table.Rows[1]["date"]))
}

func TestTimeSavedOrderedByTotalDesc(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.TaskType = model.TaskDataHygiene; r.TimeSavedMinutes = 5 }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.TaskType = model.TaskRiskAnalysis; r.TimeSavedMinutes = 20 }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.TaskType = model.TaskRiskAnalysis; r.TimeSavedMinutes = 18 }),
		rec(func(r *model.Record) { r.RunID = "RUN004"; r.TaskType = model.TaskLeadSummary; r.TimeSavedMinutes = 12 }),
	}
	snap := newSnap(t, records)

	table, err := snap.TimeSaved(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "risk_analysis", CellString(table.Rows[0]["task_type"]))
	assert.InDelta(t, 38.0, *CellFloat(table.Rows[0]["total_minutes_saved"]), 0.001)
	assert.Equal(t, "lead_summary", CellString(table.Rows[1]["task_type"]))
	assert.Equal(t, "data_hygiene", CellString(table.Rows[2]["task_type"]))
}

func TestAuditEscalatedFilter(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	var records []model.Record
	for i := 0; i < 6; i++ {
		idx := i
		records = append(records, rec(func(r *model.Record) {
			r.RunID = "RUN00" + string(rune('1'+idx))
			r.Timestamp = base.Add(time.Duration(idx) * time.Hour)
			r.Abstained = idx%2 == 0
			r.UserAccepted = false
		}))
	}
	snap := newSnap(t, records)

	table, err := snap.Audit(context.Background(), AuditFilter{Outcome: OutcomeEscalated, Limit: 2})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	// Newest first: RUN005 (hour 4) before RUN003 (hour 2); limit dropped RUN001.
	assert.Equal(t, "RUN005", CellString(table.Rows[0]["run_id"]))
	assert.Equal(t, "RUN003", CellString(table.Rows[1]["run_id"]))
	for _, row := range table.Rows {
		assert.EqualValues(t, 1, CellInt(row["abstained"]))
	}
}

func TestAuditCombinedFilters(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.TaskType = model.TaskFollowUp; r.AgentVersion = "A" }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.TaskType = model.TaskFollowUp; r.AgentVersion = "B" }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.TaskType = model.TaskLeadSummary; r.AgentVersion = "B" }),
		rec(func(r *model.Record) {
			r.RunID = "RUN004"
			r.TaskType = model.TaskFollowUp
			r.AgentVersion = "B"
			r.ErrorOccurred = true
			r.UserAccepted = false
		}),
	}
	snap := newSnap(t, records)
	ctx := context.Background()

	table, err := snap.Audit(ctx, AuditFilter{TaskType: model.TaskFollowUp, Version: "B"})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	table, err = snap.Audit(ctx, AuditFilter{Outcome: OutcomeError})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "RUN004", CellString(table.Rows[0]["run_id"]))

	_, err = snap.Audit(ctx, AuditFilter{Outcome: "exploded"})
	require.Error(t, err)
}

func TestLeadSourcesOrderedByAcceptance(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.LeadSource = "Outbound - Cold"; r.UserAccepted = false }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.LeadSource = "Outbound - Cold"; r.UserAccepted = true }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.LeadSource = "Partner Referral"; r.UserAccepted = true }),
	}
	snap := newSnap(t, records)

	table, err := snap.LeadSources(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Partner Referral", CellString(table.Rows[0]["lead_source"]))
	assert.InDelta(t, 100.0, *CellFloat(table.Rows[0]["acceptance_rate"]), 0.001)
	assert.Equal(t, "Outbound - Cold", CellString(table.Rows[1]["lead_source"]))
	assert.InDelta(t, 50.0, *CellFloat(table.Rows[1]["acceptance_rate"]), 0.001)
}

func TestPromptVersionsOrderedAscending(t *testing.T) {
	records := []model.Record{
		rec(func(r *model.Record) { r.RunID = "RUN001"; r.PromptVersion = "v2.0" }),
		rec(func(r *model.Record) { r.RunID = "RUN002"; r.PromptVersion = "v1.0" }),
		rec(func(r *model.Record) { r.RunID = "RUN003"; r.PromptVersion = "v1.2" }),
	}
	snap := newSnap(t, records)

	table, err := snap.PromptVersions(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "v1.0", CellString(table.Rows[0]["prompt_version"]))
	assert.Equal(t, "v1.2", CellString(table.Rows[1]["prompt_version"]))
	assert.Equal(t, "v2.0", CellString(table.Rows[2]["prompt_version"]))
}

func TestViewRegistryComplete(t *testing.T) {
	want := []string{
		"by_task_type", "by_version", "by_workflow_stage", "daily_trend",
		"funnel", "lead_sources", "prompt_versions", "summary", "time_saved",
	}
	assert.Equal(t, want, ViewNames())
}
