package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-ai/opsdeck/internal/agent"
	"github.com/arclight-ai/opsdeck/internal/analytics"
	"github.com/arclight-ai/opsdeck/internal/emitter"
	"github.com/arclight-ai/opsdeck/internal/model"
	"github.com/arclight-ai/opsdeck/internal/ratelimit"
	"github.com/arclight-ai/opsdeck/internal/store"
)

func newTestServer(t *testing.T, limiter ratelimit.Limiter) (*Server, *store.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	logPath := filepath.Join(t.TempDir(), "runs.csv")
	st := store.New(logPath, logger)

	h := NewHandlers(HandlersDeps{
		Analytics:     analytics.NewService(st, logger),
		Agent:         agent.New("", "", "", logger), // offline mode
		Emitter:       emitter.New(st, "v2.1", "v1.3", logger),
		Logger:        logger,
		Version:       "test",
		LogPath:       logPath,
		MaxBodyBytes:  1 << 20,
		MaxAuditLimit: 500,
	})
	return New(ServerConfig{
		Handlers:     h,
		Logger:       logger,
		Limiter:      limiter,
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}), st
}

func seedRecord(t *testing.T, st *store.Store, mutate func(*model.Record)) {
	t.Helper()
	rec := model.Record{
		RunID:            "RUN-seed",
		Timestamp:        time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		UserID:           "sdr_rep_01",
		TaskType:         model.TaskLeadSummary,
		AgentVersion:     "v2.1",
		ResolutionTime:   2.5,
		UserAccepted:     true,
		UserRating:       4,
		LeadSource:       "inbound",
		CRMStage:         "MQL",
		OpportunityValue: 25000,
		WorkflowStage:    model.StagePipelineGeneration,
		TimeSavedMinutes: 14,
		PromptVersion:    "v1.3",
	}
	if mutate != nil {
		mutate(&rec)
	}
	require.NoError(t, st.Append(context.Background(), rec))
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := decodeEnvelope(t, w)
	errObj, ok := envelope["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	return errObj["code"].(string)
}

func TestHealth(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedRecord(t, st, nil)

	w := doRequest(t, s, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.InDelta(t, 1, data["records"], 0.001)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestOverviewListsViews(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doRequest(t, s, "GET", "/v1/overview", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	views := data["views"].([]any)
	assert.Contains(t, views, "summary")
	assert.Contains(t, views, "funnel")
	assert.Equal(t, true, data["offline_mode"])
}

func TestReportKnownView(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedRecord(t, st, nil)
	seedRecord(t, st, func(r *model.Record) {
		r.RunID = "RUN-seed-2"
		r.UserAccepted = false
	})

	w := doRequest(t, s, "GET", "/v1/reports/by_version", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	rows := data["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "v2.1", row["agent_version"])
	assert.InDelta(t, 2, row["total_tasks"], 0.001)
}

func TestReportUnknownView(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doRequest(t, s, "GET", "/v1/reports/nonexistent", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, model.ErrCodeNotFound, errorCode(t, w))
}

func TestRunsFilterValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doRequest(t, s, "GET", "/v1/runs?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, w))

	w = doRequest(t, s, "GET", "/v1/runs?outcome=maybe", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, "GET", "/v1/runs?task_type=unknown_task", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunsFiltered(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedRecord(t, st, nil)
	seedRecord(t, st, func(r *model.Record) {
		r.RunID = "RUN-escalated"
		r.Abstained = true
		r.Timestamp = r.Timestamp.Add(time.Hour)
	})

	w := doRequest(t, s, "GET", "/v1/runs?outcome=escalated", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	rows := data["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "RUN-escalated", rows[0].(map[string]any)["run_id"])
}

func TestQueryHappyPath(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedRecord(t, st, nil)

	w := doRequest(t, s, "POST", "/v1/query", `{"query":"SELECT task_type, COUNT(*) AS n FROM agent_runs GROUP BY task_type"}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	rows := data["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "lead_summary", rows[0].(map[string]any)["task_type"])
}

func TestQueryRejected(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doRequest(t, s, "POST", "/v1/query", `{"query":"DROP TABLE agent_runs"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeQueryRejected, errorCode(t, w))
}

func TestQueryExecFailure(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doRequest(t, s, "POST", "/v1/query", `{"query":"SELECT no_such_column FROM agent_runs"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, model.ErrCodeQueryFailed, errorCode(t, w))
}

func TestTaskValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doRequest(t, s, "POST", "/v1/tasks", `{"task_type":"mind_reading","user_id":"u1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, "POST", "/v1/tasks", `{"task_type":"lead_summary"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, w))
}

func TestTaskRunLoggedOffline(t *testing.T) {
	s, st := newTestServer(t, nil)

	body := `{"task_type":"data_hygiene","user_id":"ops_rep_02","params":{"record_name":"Acme Corp"}}`
	w := doRequest(t, s, "POST", "/v1/tasks", body)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.NotEmpty(t, data["run_id"])
	assert.Equal(t, false, data["abstained"])

	records, _, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StageOnboarding, records[0].WorkflowStage)
	// A clean run lands in the log accepted, so acceptance-rate views see it.
	assert.True(t, records[0].UserAccepted)
	assert.Equal(t, 4, records[0].UserRating)
}

func TestTaskEscalation(t *testing.T) {
	s, st := newTestServer(t, nil)

	body := `{"task_type":"follow_up","user_id":"ae_rep_01","params":{"summary":"asked for a discount"}}`
	w := doRequest(t, s, "POST", "/v1/tasks", body)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, true, data["abstained"])

	records, _, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Abstained)
}

func TestRateLimitOnMutatingRoutes(t *testing.T) {
	s, _ := newTestServer(t, ratelimit.NewClientLimiter(0.001, 1))

	w := doRequest(t, s, "POST", "/v1/query", `{"query":"SELECT 1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, "POST", "/v1/query", `{"query":"SELECT 1"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, model.ErrCodeRateLimited, errorCode(t, w))

	// Reads stay unthrottled.
	w = doRequest(t, s, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
