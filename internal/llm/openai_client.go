package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "patchpilot/internal/errors"
	"patchpilot/internal/logging"
)

const defaultOpenAIBaseURL = "https://integrate.api.nvidia.com/v1"

var _ Provider = (*openaiProvider)(nil)

// openaiProvider streams chat completions from any OpenAI-compatible
// endpoint (NVIDIA Build by default). Reasoning deltas arrive through the
// non-standard reasoning_content field some backends emit.
type openaiProvider struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(config Config) Provider {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &openaiProvider{
		model:      config.Model,
		baseURL:    baseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("openai-client"),
	}
}

func (p *openaiProvider) Name() string {
	return "openai:" + p.model
}

type openaiRequest struct {
	Model              string         `json:"model"`
	Messages           []Message      `json:"messages"`
	Temperature        float64        `json:"temperature"`
	MaxTokens          int            `json:"max_tokens,omitempty"`
	Stream             bool           `json:"stream"`
	ChatTemplateKwargs map[string]any `json:"chat_template_kwargs,omitempty"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *openaiProvider) Stream(ctx context.Context, messages []Message, temperature float64, maxTokens int) (<-chan StreamChunk, error) {
	body, err := json.Marshal(openaiRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
		ChatTemplateKwargs: map[string]any{
			"enable_thinking": true,
			"clear_thinking":  false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Debug("chat request failed: %v", err)
		return nil, apperrors.NewTransientError(err, "Connection to model endpoint failed. Retrying.")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		p.logger.Debug("chat request rejected: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		return nil, classifyStatus(resp.StatusCode, resp.Status, string(respBody))
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			if payload == "[DONE]" {
				return
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				p.logger.Debug("failed to decode stream chunk: %v", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta
			if delta.Content == "" && delta.ReasoningContent == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: delta.Content, Reasoning: delta.ReasoningContent}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			p.logger.Debug("stream read error: %v", err)
			select {
			case chunks <- StreamChunk{Err: apperrors.NewTransientError(err, "Model stream dropped. Retrying.")}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// classifyStatus maps an HTTP error response to the retry taxonomy.
func classifyStatus(statusCode int, status, body string) error {
	base := apperrors.NewHTTPStatusError(statusCode, status, body)
	switch statusCode {
	case http.StatusTooManyRequests:
		return apperrors.NewTransientError(base, "API rate limit reached. Retrying with exponential backoff.")
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.NewTransientError(base, fmt.Sprintf("Server error (%d). Retrying request.", statusCode))
	case http.StatusUnauthorized:
		return apperrors.NewPermanentError(base, "Authentication failed. Check your API key configuration.")
	case http.StatusForbidden:
		return apperrors.NewPermanentError(base, "Permission denied. You don't have access to this model.")
	case http.StatusNotFound:
		return apperrors.NewPermanentError(base, "Model or endpoint not found. Verify the model name.")
	case http.StatusBadRequest:
		return apperrors.NewPermanentError(base, "Invalid request. Check the parameters.")
	default:
		return base
	}
}
