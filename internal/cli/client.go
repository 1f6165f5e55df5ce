package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PipelineTaskResponse — задача pipeline из API.
type PipelineTaskResponse struct {
	Name     string         `json:"name"`
	TaskID   string         `json:"task_id"`
	Title    string         `json:"title"`
	Parents  []string       `json:"parents"`
	HasInput bool           `json:"has_input"`
	Config   map[string]any `json:"config,omitempty"`
}

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title,omitempty"`
	Tasks      []PipelineTaskResponse `json:"tasks"`
	Order      []string               `json:"order"`
	Iterations []string               `json:"iterations,omitempty"`
}

// SubmittedRunResponse — run, созданный запуском.
type SubmittedRunResponse struct {
	RunID     string `json:"run_id"`
	Iteration string `json:"iteration,omitempty"`
	ChainID   string `json:"chain_id,omitempty"`
	Status    string `json:"status"`
}

// SubmissionResponse — результат запуска pipeline.
type SubmissionResponse struct {
	PipelineID string                 `json:"pipeline_id"`
	Runner     string                 `json:"runner"`
	Runs       []SubmittedRunResponse `json:"runs"`
}

// RunResponse — run из API.
type RunResponse struct {
	PipelineID string         `json:"pipeline_id"`
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Runner     string         `json:"runner"`
	Iteration  string         `json:"iteration,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// TaskResultResponse — результат задачи из API.
type TaskResultResponse struct {
	PipelineTask string         `json:"pipeline_task"`
	TaskID       string         `json:"task_id"`
	Status       string         `json:"status"`
	Message      string         `json:"message,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	StartedAt    string         `json:"started_at,omitempty"`
	CompletedAt  string         `json:"completed_at,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
	UpdatedAt    string         `json:"updated_at"`
}

// EventResponse — событие выполнения из WebSocket-потока.
type EventResponse struct {
	Type         string `json:"type"`
	PipelineID   string `json:"pipeline_id"`
	RunID        string `json:"run_id"`
	PipelineTask string `json:"pipeline_task,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// --- Request types ---

// CreateRunRequest — запуск pipeline.
type CreateRunRequest struct {
	Runner string         `json:"runner,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	PipelineID string
	Status     string
	Limit      int
	Offset     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// --- Pipelines ---

// ListPipelines возвращает зарегистрированные pipelines.
func (c *Client) ListPipelines() ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", nil, &pipelines)
	return pipelines, err
}

// GetPipeline возвращает pipeline по ID.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/api/v1/pipelines/"+url.PathEscape(id), &p)
	return &p, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.PipelineID != "" {
		params.Set("pipeline_id", opts.PipelineID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun запускает pipeline.
func (c *Client) CreateRun(pipelineID string, req CreateRunRequest) (*SubmissionResponse, error) {
	var sub SubmissionResponse
	err := c.post(runsPath(pipelineID), req, &sub)
	return &sub, err
}

// GetRun возвращает run.
func (c *Client) GetRun(pipelineID, runID string) (*RunResponse, error) {
	var run RunResponse
	err := c.get(runPath(pipelineID, runID), &run)
	return &run, err
}

// ListTasks возвращает результаты задач run.
func (c *Client) ListTasks(pipelineID, runID string) ([]TaskResultResponse, error) {
	var tasks []TaskResultResponse
	err := c.list(runPath(pipelineID, runID)+"/tasks", nil, &tasks)
	return tasks, err
}

// WatchRun подписывается на события run и вызывает fn для каждого события.
// Возвращает nil, когда сервер закрыл поток после завершения run.
func (c *Client) WatchRun(ctx context.Context, pipelineID, runID string, fn func(EventResponse) error) error {
	wsURL, err := c.wsURL(runPath(pipelineID, runID) + "/events")
	if err != nil {
		return err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := c.checkError(resp); apiErr != nil {
				return apiErr
			}
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var ev EventResponse
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(ev); err != nil {
			if errors.Is(err, errStopWatch) {
				return nil
			}
			return err
		}
	}
}

// errStopWatch останавливает WatchRun без ошибки.
var errStopWatch = errors.New("stop watch")

func runsPath(pipelineID string) string {
	return "/api/v1/pipelines/" + url.PathEscape(pipelineID) + "/runs"
}

func runPath(pipelineID, runID string) string {
	return runsPath(pipelineID) + "/" + url.PathEscape(runID)
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported API URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
