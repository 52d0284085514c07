package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/arclight-ai/opsdeck/internal/analytics"
	"github.com/arclight-ai/opsdeck/internal/emitter"
	"github.com/arclight-ai/opsdeck/internal/model"
)

func (s *Server) registerTools() {
	// opsdeck_report — compute one named aggregate view.
	s.mcpServer.AddTool(
		mcplib.NewTool("opsdeck_report",
			mcplib.WithDescription(`Compute one aggregate report view over the full agent-run log.

WHEN TO USE: To answer questions about how the AI sales agents are
performing — acceptance rates, version comparisons, time saved, pipeline
coverage. Start with "summary" for headline metrics.

AVAILABLE VIEWS: `+strings.Join(analytics.ViewNames(), ", ")+`

WHAT YOU GET BACK: a table with named columns and one row per group.
Rate columns are percentages; null cells mean the group was empty.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("view",
				mcplib.Description("Report view name, e.g. summary, by_version, funnel, time_saved"),
				mcplib.Required(),
			),
		),
		s.handleReport,
	)

	// opsdeck_query — sandboxed ad-hoc SQL over the run log.
	s.mcpServer.AddTool(
		mcplib.NewTool("opsdeck_query",
			mcplib.WithDescription(`Run a read-only SQL query against the agent_runs table.

WHEN TO USE: When no fixed report view answers the question. The table has
one row per logged run: run_id, timestamp, user_id, task_type,
agent_version, resolution_time_seconds, user_accepted, user_rating,
abstained, error_occurred, lead_source, crm_stage, opportunity_value,
workflow_stage, time_saved_minutes, prompt_version.

ONLY SELECT statements are accepted; anything that could mutate data is
rejected before execution.

EXAMPLE: SELECT agent_version, AVG(user_rating) FROM agent_runs
GROUP BY agent_version`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("A single SELECT statement over agent_runs"),
				mcplib.Required(),
			),
		),
		s.handleQuery,
	)

	// opsdeck_run_task — execute one agent task and log it.
	s.mcpServer.AddTool(
		mcplib.NewTool("opsdeck_run_task",
			mcplib.WithDescription(`Run one sales-workflow task through the AI agent and log the outcome.

WHEN TO USE: To execute real work — summarize a lead, draft a follow-up
plan, analyze deal risk, or check CRM data hygiene. Every run is appended
to the audit log and shows up in the report views.

TASK TYPES: lead_summary, follow_up, risk_analysis, data_hygiene.

Requests touching pricing, legal, executive, roadmap, or competitive
topics are escalated to human review instead of answered.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("task_type",
				mcplib.Description("One of: lead_summary, follow_up, risk_analysis, data_hygiene"),
				mcplib.Required(),
			),
			mcplib.WithString("user_id",
				mcplib.Description("Identifier of the rep the task is run for, e.g. sdr_rep_04"),
				mcplib.Required(),
			),
			mcplib.WithObject("params",
				mcplib.Description("Task-specific fields, e.g. lead_name, company_name, deal_stage, summary"),
			),
			mcplib.WithString("lead_source",
				mcplib.Description("Where the lead came from, e.g. Inbound - Webinar"),
			),
			mcplib.WithString("crm_stage",
				mcplib.Description("CRM pipeline stage of the opportunity, e.g. Discovery"),
			),
			mcplib.WithNumber("opportunity_value",
				mcplib.Description("Opportunity value in dollars"),
			),
		),
		s.handleRunTask,
	)
}

func (s *Server) handleReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	view := request.GetString("view", "")
	if view == "" {
		return errorResult("view is required"), nil
	}

	table, err := s.analytics.View(ctx, view)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownView) {
			return errorResult(fmt.Sprintf("unknown view %q; available: %s",
				view, strings.Join(analytics.ViewNames(), ", "))), nil
		}
		return errorResult(fmt.Sprintf("report failed: %v", err)), nil
	}
	return jsonResult(table), nil
}

func (s *Server) handleQuery(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}

	table, err := s.analytics.Query(ctx, query)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(table), nil
}

func (s *Server) handleRunTask(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	task := model.TaskType(request.GetString("task_type", ""))
	if !task.Valid() {
		return errorResult("unknown task_type: " + string(task)), nil
	}
	userID := request.GetString("user_id", "")
	if userID == "" {
		return errorResult("user_id is required"), nil
	}

	params := make(map[string]string)
	if raw := request.GetArguments()["params"]; raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return errorResult("params must be an object of string fields"), nil
		}
		for k, v := range obj {
			params[k] = fmt.Sprint(v)
		}
	}

	res := s.agent.Run(ctx, task, params)
	rc := emitter.RunContext{
		UserID:           userID,
		LeadSource:       request.GetString("lead_source", ""),
		CRMStage:         request.GetString("crm_stage", ""),
		OpportunityValue: request.GetFloat("opportunity_value", 0),
	}
	rec, err := s.emitter.Emit(ctx, task, rc, res)
	if err != nil {
		return errorResult(fmt.Sprintf("run logging failed: %v", err)), nil
	}

	return jsonResult(model.TaskResponse{
		RunID:          rec.RunID,
		Response:       res.Response,
		Confidence:     res.Confidence,
		Abstained:      res.Abstained,
		ResolutionTime: res.ResolutionTime.Seconds(),
	}), nil
}
