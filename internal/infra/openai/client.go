package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsroom/internal/infra/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client выполняет Chat Completions запросы к любому OpenAI-совместимому API.
type Client struct {
	http    *http.Client
	name    string
	baseURL string
	apiKey  string
	headers map[string]string
}

// Options параметры клиента.
type Options struct {
	// Name попадает в метрики как компонент.
	Name    string
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// NewClient создаёт клиента.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	return &Client{
		http:    &http.Client{Timeout: timeout + 5*time.Second},
		name:    name,
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		headers: opts.Headers,
	}
}

// Configured сообщает, задан ли ключ API.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// ChatCompletionRequest описывает тело запроса.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatMessage представляет сообщение в диалоге.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	// RoleSystem системная инструкция.
	RoleSystem = "system"
	// RoleUser сообщение пользователя.
	RoleUser = "user"
)

// ChatCompletionResponse описывает ответ модели.
type ChatCompletionResponse struct {
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
}

// ChatCompletionChoice содержит сообщение модели.
type ChatCompletionChoice struct {
	Message ChatMessage `json:"message"`
}

// ChatCompletionUsage описывает статистику использования токенов.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion вызывает /chat/completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	if c.apiKey == "" {
		return ChatCompletionResponse{}, fmt.Errorf("%s: api key is empty", c.name)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest(c.name, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("%s: do request: %w", c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest(c.name, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("%s: read response: %w", c.name, err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			err = fmt.Errorf("%s: %s", c.name, apiErr.Error.Message)
		} else {
			err = fmt.Errorf("%s: unexpected status %d", c.name, resp.StatusCode)
		}
		metrics.ObserveNetworkRequest(c.name, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, err
	}
	var completion ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		metrics.ObserveNetworkRequest(c.name, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	metrics.ObserveNetworkRequest(c.name, "chat_completions", req.Model, start, nil)
	if completion.Usage != nil {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.TotalTokens)
	}
	return completion, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
