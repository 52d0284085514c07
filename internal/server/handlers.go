package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/arclight-ai/opsdeck/internal/agent"
	"github.com/arclight-ai/opsdeck/internal/analytics"
	"github.com/arclight-ai/opsdeck/internal/emitter"
	"github.com/arclight-ai/opsdeck/internal/model"
	"github.com/arclight-ai/opsdeck/internal/telemetry"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	analytics   *analytics.Service
	agent       *agent.Client
	emitter     *emitter.Emitter
	instruments *telemetry.Instruments
	logger      *slog.Logger

	version       string
	logPath       string
	maxBodyBytes  int64
	maxAuditLimit int
	startedAt     time.Time
}

// HandlersDeps carries the collaborators for NewHandlers.
type HandlersDeps struct {
	Analytics   *analytics.Service
	Agent       *agent.Client
	Emitter     *emitter.Emitter
	Instruments *telemetry.Instruments
	Logger      *slog.Logger

	Version       string
	LogPath       string
	MaxBodyBytes  int64
	MaxAuditLimit int
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		analytics:     deps.Analytics,
		agent:         deps.Agent,
		emitter:       deps.Emitter,
		instruments:   deps.Instruments,
		logger:        deps.Logger,
		version:       deps.Version,
		logPath:       deps.LogPath,
		maxBodyBytes:  deps.MaxBodyBytes,
		maxAuditLimit: deps.MaxAuditLimit,
		startedAt:     time.Now(),
	}
}

// HandleHealth reports service liveness plus log statistics.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snap, skipped, err := h.analytics.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "run log unavailable")
		return
	}
	defer func() { _ = snap.Close() }()

	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		LogPath: h.logPath,
		Records: snap.Records,
		Skipped: skipped,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// overviewResponse bundles the headline view with the list of available
// report names, which is what the dashboard landing page renders.
type overviewResponse struct {
	Summary analytics.Table `json:"summary"`
	Views   []string        `json:"views"`
	Offline bool            `json:"offline_mode"`
}

// HandleOverview returns the headline metrics and the report catalog.
func (h *Handlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	table, err := h.analytics.View(r.Context(), "summary")
	if err != nil {
		h.logger.Error("overview failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to compute overview")
		return
	}
	writeJSON(w, r, http.StatusOK, overviewResponse{
		Summary: table,
		Views:   analytics.ViewNames(),
		Offline: h.agent.Offline(),
	})
}

// HandleReport computes one named aggregate view.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	table, err := h.analytics.View(r.Context(), name)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownView) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown report view: "+name)
			return
		}
		h.logger.Error("report failed", "view", name, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to compute report")
		return
	}
	h.countReportView(r.Context(), name)
	writeJSON(w, r, http.StatusOK, table)
}

// HandleRuns returns the filtered audit listing of raw run records.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := analytics.AuditFilter{
		TaskType: model.TaskType(q.Get("task_type")),
		Version:  q.Get("version"),
		Outcome:  q.Get("outcome"),
	}
	if f.TaskType != "" && !f.TaskType.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown task_type: "+string(f.TaskType))
		return
	}
	switch f.Outcome {
	case "", analytics.OutcomeAccepted, analytics.OutcomeRejected, analytics.OutcomeEscalated, analytics.OutcomeError:
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown outcome: "+f.Outcome)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		if n > h.maxAuditLimit {
			n = h.maxAuditLimit
		}
		f.Limit = n
	}

	table, err := h.analytics.Audit(r.Context(), f)
	if err != nil {
		h.logger.Error("audit failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list runs")
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// HandleQuery runs one sandboxed ad-hoc query against the run log.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	table, err := h.analytics.Query(r.Context(), req.Query)
	if err != nil {
		var rejected *analytics.RejectedError
		if errors.As(err, &rejected) {
			h.countQueryRejection(r.Context())
			writeError(w, r, http.StatusBadRequest, model.ErrCodeQueryRejected, rejected.Error())
			return
		}
		var execErr *analytics.ExecError
		if errors.As(err, &execErr) {
			writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeQueryFailed, execErr.Error())
			return
		}
		h.logger.Error("query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to run query")
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// HandleTask runs one agent task and logs the outcome as a run record.
func (h *Handlers) HandleTask(w http.ResponseWriter, r *http.Request) {
	var req model.TaskRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if !req.TaskType.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown task_type: "+string(req.TaskType))
		return
	}
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "user_id is required")
		return
	}

	res := h.agent.Run(r.Context(), req.TaskType, req.Params)
	rec, err := h.emitter.Emit(r.Context(), req.TaskType, emitter.RunContext{
		UserID:           req.UserID,
		LeadSource:       req.LeadSource,
		CRMStage:         req.CRMStage,
		OpportunityValue: req.OpportunityValue,
	}, res)
	if err != nil {
		h.logger.Error("run logging failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to log run")
		return
	}
	h.countTaskRun(r.Context(), req.TaskType, res)

	writeJSON(w, r, http.StatusOK, model.TaskResponse{
		RunID:          rec.RunID,
		Response:       res.Response,
		Confidence:     res.Confidence,
		Abstained:      res.Abstained,
		ResolutionTime: res.ResolutionTime.Seconds(),
	})
}

func (h *Handlers) countReportView(ctx context.Context, name string) {
	if h.instruments == nil {
		return
	}
	h.instruments.ReportViews.Add(ctx, 1,
		otelmetric.WithAttributes(attribute.String("view", name)))
}

func (h *Handlers) countQueryRejection(ctx context.Context) {
	if h.instruments == nil {
		return
	}
	h.instruments.QueryRejections.Add(ctx, 1)
}

func (h *Handlers) countTaskRun(ctx context.Context, task model.TaskType, res agent.Result) {
	if h.instruments == nil {
		return
	}
	outcome := "completed"
	switch {
	case res.ErrorOccurred:
		outcome = "error"
	case res.Abstained:
		outcome = "escalated"
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("task_type", string(task)),
		attribute.String("outcome", outcome),
	)
	h.instruments.TaskRuns.Add(ctx, 1, attrs)
	h.instruments.TaskDuration.Record(ctx, res.ResolutionTime.Seconds(), attrs)
}
