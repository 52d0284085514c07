// Package model defines the core domain types for opsdeck.
//
// A Record is one logged agent-task execution event. Records are append-only:
// corrections happen by appending a new record, never by mutating an old one.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// TaskType identifies the kind of GTM task the agent performed.
type TaskType string

const (
	TaskLeadSummary  TaskType = "lead_summary"
	TaskFollowUp     TaskType = "follow_up"
	TaskRiskAnalysis TaskType = "risk_analysis"
	TaskDataHygiene  TaskType = "data_hygiene"
)

// TaskTypes lists all known task types in canonical order.
var TaskTypes = []TaskType{TaskLeadSummary, TaskFollowUp, TaskRiskAnalysis, TaskDataHygiene}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskLeadSummary, TaskFollowUp, TaskRiskAnalysis, TaskDataHygiene:
		return true
	}
	return false
}

// WorkflowStage is the coarse GTM business-process phase a task belongs to.
type WorkflowStage string

const (
	StagePipelineGeneration WorkflowStage = "Pipeline Generation"
	StageDealExecution      WorkflowStage = "Deal Execution"
	StageOnboarding         WorkflowStage = "Onboarding & Adoption"
)

// workflowStages maps each task type to its workflow stage. This table is the
// single source of truth: every entry point that needs a workflow stage goes
// through DeriveWorkflowStage.
var workflowStages = map[TaskType]WorkflowStage{
	TaskLeadSummary:  StagePipelineGeneration,
	TaskFollowUp:     StageDealExecution,
	TaskRiskAnalysis: StageDealExecution,
	TaskDataHygiene:  StageOnboarding,
}

// DeriveWorkflowStage returns the workflow stage for a task type.
// Unmapped task types default to Pipeline Generation.
func DeriveWorkflowStage(t TaskType) WorkflowStage {
	if s, ok := workflowStages[t]; ok {
		return s
	}
	return StagePipelineGeneration
}

// timeSavedBase holds the estimated manual-labor offset per task type, in
// minutes, as (low, high) midpoint heuristics. Lead research that used to take
// 15-30 minutes, follow-up drafting, risk-signal collation, manual cleanup.
var timeSavedBase = map[TaskType][2]float64{
	TaskLeadSummary:  {8, 20},
	TaskFollowUp:     {5, 15},
	TaskRiskAnalysis: {10, 25},
	TaskDataHygiene:  {3, 10},
}

// EstimateTimeSaved returns the estimated minutes of manual work offset by an
// agent run. The heuristic is the midpoint of the per-task range; unknown task
// types fall back to the follow-up range. Centralized here so every emission
// path produces consistent values.
func EstimateTimeSaved(t TaskType) float64 {
	r, ok := timeSavedBase[t]
	if !ok {
		r = timeSavedBase[TaskFollowUp]
	}
	return (r[0] + r[1]) / 2
}

// TimeSavedRange returns the per-task manual-effort range in minutes.
// Unknown task types fall back to the follow-up range.
func TimeSavedRange(t TaskType) (lo, hi float64) {
	r, ok := timeSavedBase[t]
	if !ok {
		r = timeSavedBase[TaskFollowUp]
	}
	return r[0], r[1]
}

// TimestampLayout is the canonical textual form of record timestamps,
// both in the persisted log and in API responses.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultPromptVersion is applied to legacy records written before the
// prompt_version column existed.
const DefaultPromptVersion = "v1.0"

// Record is one logged agent-task execution event.
type Record struct {
	RunID            string        `json:"run_id"`
	Timestamp        time.Time     `json:"timestamp"`
	UserID           string        `json:"user_id"`
	TaskType         TaskType      `json:"task_type"`
	AgentVersion     string        `json:"agent_version"`
	ResolutionTime   float64       `json:"resolution_time_seconds"`
	UserAccepted     bool          `json:"user_accepted"`
	UserRating       int           `json:"user_rating"` // 1-5, 0 = unrated
	Abstained        bool          `json:"abstained"`
	ErrorOccurred    bool          `json:"error_occurred"`
	LeadSource       string        `json:"lead_source"`
	CRMStage         string        `json:"crm_stage"`
	OpportunityValue float64       `json:"opportunity_value"`
	WorkflowStage    WorkflowStage `json:"workflow_stage"`
	TimeSavedMinutes float64       `json:"time_saved_minutes"`
	PromptVersion    string        `json:"prompt_version"`
}

// Columns is the canonical persisted column order. The log store writes
// columns in exactly this order; changing it breaks older logs.
var Columns = []string{
	"run_id",
	"timestamp",
	"user_id",
	"task_type",
	"agent_version",
	"resolution_time_seconds",
	"user_accepted",
	"user_rating",
	"abstained",
	"error_occurred",
	"lead_source",
	"crm_stage",
	"opportunity_value",
	"workflow_stage",
	"time_saved_minutes",
	"prompt_version",
}

// SchemaError reports a raw row field that could not be parsed into its
// declared type.
type SchemaError struct {
	Field string
	Value string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: field %q: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// RecordFromRow builds a typed Record from a raw row of named string fields,
// as read from the persisted log. The three legacy-optional fields
// (workflow_stage, time_saved_minutes, prompt_version) are default-filled when
// absent, and user_rating may be empty for unrated runs; every other field is
// required and yields a *SchemaError when it cannot be parsed.
func RecordFromRow(row map[string]string) (Record, error) {
	var rec Record
	var err error

	get := func(field string) (string, error) {
		v, ok := row[field]
		if !ok || v == "" {
			return "", &SchemaError{Field: field, Value: "", Err: fmt.Errorf("missing")}
		}
		return v, nil
	}

	if rec.RunID, err = get("run_id"); err != nil {
		return Record{}, err
	}
	ts, err := get("timestamp")
	if err != nil {
		return Record{}, err
	}
	if rec.Timestamp, err = time.Parse(TimestampLayout, ts); err != nil {
		return Record{}, &SchemaError{Field: "timestamp", Value: ts, Err: err}
	}
	if rec.UserID, err = get("user_id"); err != nil {
		return Record{}, err
	}
	tt, err := get("task_type")
	if err != nil {
		return Record{}, err
	}
	rec.TaskType = TaskType(tt)
	if rec.AgentVersion, err = get("agent_version"); err != nil {
		return Record{}, err
	}
	if rec.ResolutionTime, err = parseFloat(row, "resolution_time_seconds"); err != nil {
		return Record{}, err
	}
	if rec.UserAccepted, err = parseBool(row, "user_accepted"); err != nil {
		return Record{}, err
	}
	// user_rating is 1-5, or 0/absent when the run was never rated; unrated
	// rows stay in the log.
	if v := row["user_rating"]; v != "" {
		if rec.UserRating, err = parseInt(row, "user_rating"); err != nil {
			return Record{}, err
		}
	}
	if rec.Abstained, err = parseBool(row, "abstained"); err != nil {
		return Record{}, err
	}
	if rec.ErrorOccurred, err = parseBool(row, "error_occurred"); err != nil {
		return Record{}, err
	}

	// Business-context dimensions are free-form; absent means empty.
	rec.LeadSource = row["lead_source"]
	rec.CRMStage = row["crm_stage"]
	if v := row["opportunity_value"]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Record{}, &SchemaError{Field: "opportunity_value", Value: v, Err: err}
		}
		rec.OpportunityValue = f
	}

	// Legacy-optional columns: schema evolution must not require rewriting
	// historical rows, so absent values get deterministic defaults.
	if v := row["workflow_stage"]; v != "" {
		rec.WorkflowStage = WorkflowStage(v)
	} else {
		rec.WorkflowStage = StagePipelineGeneration
	}
	if v := row["time_saved_minutes"]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Record{}, &SchemaError{Field: "time_saved_minutes", Value: v, Err: err}
		}
		rec.TimeSavedMinutes = f
	}
	if v := row["prompt_version"]; v != "" {
		rec.PromptVersion = v
	} else {
		rec.PromptVersion = DefaultPromptVersion
	}

	return rec, nil
}

// Row serializes a Record into its persisted textual form, ordered per Columns.
func (r Record) Row() []string {
	return []string{
		r.RunID,
		r.Timestamp.Format(TimestampLayout),
		r.UserID,
		string(r.TaskType),
		r.AgentVersion,
		formatFloat(r.ResolutionTime),
		strconv.FormatBool(r.UserAccepted),
		strconv.Itoa(r.UserRating),
		strconv.FormatBool(r.Abstained),
		strconv.FormatBool(r.ErrorOccurred),
		r.LeadSource,
		r.CRMStage,
		formatFloat(r.OpportunityValue),
		string(r.WorkflowStage),
		formatFloat(r.TimeSavedMinutes),
		r.PromptVersion,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(row map[string]string, field string) (float64, error) {
	v, ok := row[field]
	if !ok || v == "" {
		return 0, &SchemaError{Field: field, Value: "", Err: fmt.Errorf("missing")}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &SchemaError{Field: field, Value: v, Err: err}
	}
	return f, nil
}

func parseInt(row map[string]string, field string) (int, error) {
	v, ok := row[field]
	if !ok || v == "" {
		return 0, &SchemaError{Field: field, Value: "", Err: fmt.Errorf("missing")}
	}
	// Tolerate "4.0"-style values from older exporters.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &SchemaError{Field: field, Value: v, Err: err}
	}
	return n, nil
}

func parseBool(row map[string]string, field string) (bool, error) {
	v, ok := row[field]
	if !ok || v == "" {
		return false, &SchemaError{Field: field, Value: "", Err: fmt.Errorf("missing")}
	}
	switch v {
	case "true", "True", "TRUE", "1":
		return true, nil
	case "false", "False", "FALSE", "0":
		return false, nil
	}
	return false, &SchemaError{Field: field, Value: v, Err: fmt.Errorf("not a boolean")}
}
