package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/task"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPConfig — конфигурация HTTPRequest.
type HTTPConfig struct {
	task.BaseConfig

	Method          string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD get post put patch delete head"`
	URL             string            `json:"url" validate:"required"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            any               `json:"body,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty"`
	ValidateSSL     *bool             `json:"validate_ssl,omitempty"`
	TimeoutSec      int               `json:"timeout_sec,omitempty" validate:"gte=0"`

	// SaveAs — ключ хранилища run для ответа (status_code, headers, body).
	SaveAs string `json:"save_as,omitempty"`
}

// HTTPRequest выполняет HTTP запрос к внешнему API.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/runs/{{ .RunID }}",
//	    "headers": {"Authorization": "Bearer {{ env \"API_TOKEN\" }}"},
//	    "body": {"message": "{{ value \"message\" }}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "save_as": "response"
//	}
//
// Ответ со статусом >= 400 — ошибка *HTTPError.
type HTTPRequest struct {
	// transport подменяется в тестах; nil — http.Transport по конфигурации.
	transport http.RoundTripper
}

// NewHTTPRequest создаёт HTTPRequest.
func NewHTTPRequest() *HTTPRequest {
	return &HTTPRequest{}
}

// Title реализует task.Titled.
func (*HTTPRequest) Title() string { return "HTTP request" }

// NewConfig реализует task.Implementation.
func (*HTTPRequest) NewConfig() task.Config { return &HTTPConfig{} }

// NewInput реализует task.Implementation.
func (*HTTPRequest) NewInput() any { return nil }

// Run реализует task.Implementation.
func (s *HTTPRequest) Run(ctx context.Context, req *task.Request) error {
	cfg := req.Config.(*HTTPConfig)
	data := NewTemplateData(ctx, req)

	httpReq, err := s.buildRequest(ctx, cfg, data)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.buildClient(cfg).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	result, err := s.parseResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := json.Marshal(result["body"])
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	req.Logger.Debug("http request completed",
		"method", httpReq.Method,
		"url", httpReq.URL.String(),
		"status_code", resp.StatusCode,
	)

	if cfg.SaveAs != "" {
		return req.Values.PutValue(ctx, req.PipelineID, req.RunID, cfg.SaveAs, result)
	}
	return nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func (s *HTTPRequest) buildClient(cfg *HTTPConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if cfg.FollowRedirects != nil && !*cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	transport := s.transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.ValidateSSL != nil && !*cfg.ValidateSSL,
			},
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport:     transport,
	}
}

// buildRequest рендерит шаблоны конфигурации и создаёт запрос.
func (s *HTTPRequest) buildRequest(ctx context.Context, cfg *HTTPConfig, data *TemplateData) (*http.Request, error) {
	url, err := Render(cfg.URL, data)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}

	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		rendered, err := Render(value, data)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", key, err)
		}
		headers[key] = rendered
	}

	var bodyReader io.Reader
	if cfg.Body != nil {
		body, err := RenderValue(cfg.Body, data)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		bodyBytes, err := serializeBody(body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	method := http.MethodGet
	if cfg.Method != "" {
		method = strings.ToUpper(cfg.Method)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse читает ответ: status_code, headers, body
// (распарсенный JSON или строка).
func (s *HTTPRequest) parseResponse(resp *http.Response) (map[string]any, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}

// HTTPError — ответ с кодом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
