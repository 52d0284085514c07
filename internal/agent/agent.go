// Package agent runs sales-workflow tasks through a hosted chat-completion
// model, with guardrail checks before any call leaves the process and a
// canned offline mode when no inference token is configured.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arclight-ai/opsdeck/internal/model"
)

// DefaultBaseURL is the chat-completions router used when none is configured.
const DefaultBaseURL = "https://router.huggingface.co/v1"

// DefaultModel is the inference model used when none is configured.
const DefaultModel = "meta-llama/Llama-3.1-8B-Instruct"

// Result is the outcome of a single task run.
type Result struct {
	Response       string
	Confidence     string
	Abstained      bool
	ErrorOccurred  bool
	ResolutionTime time.Duration
}

// Client executes tasks against a chat-completions endpoint. A Client with an
// empty token never performs network calls and serves mock responses instead.
type Client struct {
	baseURL    string
	token      string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a task-running client. An empty token enables offline mode.
func New(baseURL, token, modelName string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		model:   modelName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Offline reports whether the client serves canned responses.
func (c *Client) Offline() bool {
	return c.token == ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Run executes one task. Escalation topics in the parameters short-circuit to
// an abstention before any model call; transport or model failures produce a
// Result with ErrorOccurred set rather than an error, so every run can still
// be logged.
func (c *Client) Run(ctx context.Context, task model.TaskType, params map[string]string) Result {
	start := time.Now()

	if topic, advice, ok := CheckEscalation(params); ok {
		c.logger.Info("task escalated", "task_type", string(task), "topic", topic)
		return Result{
			Response:       EscalationResponse(topic, advice),
			Confidence:     "High",
			Abstained:      true,
			ResolutionTime: time.Since(start),
		}
	}

	if c.Offline() {
		resp := MockResponse(task)
		return Result{
			Response:       resp,
			Confidence:     ExtractConfidence(resp),
			ResolutionTime: time.Since(start),
		}
	}

	content, err := c.complete(ctx, SystemPrompt(task), UserPrompt(task, params))
	if err != nil {
		c.logger.Error("task run failed", "task_type", string(task), "error", err)
		return Result{
			Response:       "Task failed: " + err.Error(),
			Confidence:     "Low",
			ErrorOccurred:  true,
			ResolutionTime: time.Since(start),
		}
	}

	return Result{
		Response:       content,
		Confidence:     ExtractConfidence(content),
		ResolutionTime: time.Since(start),
	}
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("agent: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("agent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("agent: status %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("agent: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("agent: empty completion returned")
	}
	return result.Choices[0].Message.Content, nil
}

// ExtractConfidence pulls the self-reported confidence marker out of a model
// response. Responses without a recognizable marker default to Medium.
func ExtractConfidence(response string) string {
	lower := strings.ToLower(response)
	idx := strings.LastIndex(lower, "confidence")
	if idx == -1 {
		return "Medium"
	}
	tail := lower[idx:]
	if end := strings.IndexByte(tail, '\n'); end != -1 {
		tail = tail[:end]
	}
	switch {
	case strings.Contains(tail, "high"):
		return "High"
	case strings.Contains(tail, "low"):
		return "Low"
	case strings.Contains(tail, "medium"):
		return "Medium"
	}
	return "Medium"
}
