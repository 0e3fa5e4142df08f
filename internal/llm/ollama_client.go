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

var _ Provider = (*ollamaProvider)(nil)

// ollamaProvider streams chat completions from a local Ollama server using
// its native JSON-lines protocol.
type ollamaProvider struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewOllamaProvider creates a provider backed by a local Ollama endpoint.
func NewOllamaProvider(config Config) Provider {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ollamaProvider{
		model:      config.Model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("ollama-client"),
	}
}

func (p *ollamaProvider) Name() string {
	return "ollama:" + p.model
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (p *ollamaProvider) Stream(ctx context.Context, messages []Message, temperature float64, maxTokens int) (<-chan StreamChunk, error) {
	options := map[string]any{"temperature": temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	body, err := json.Marshal(ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   true,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Debug("ollama request failed: %v", err)
		return nil, apperrors.NewTransientError(err, "Connection to Ollama failed. Is the server running?")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
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
			if line == "" {
				continue
			}

			var chunk ollamaResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				p.logger.Debug("failed to decode ollama chunk: %v", err)
				continue
			}
			if chunk.Error != "" {
				select {
				case chunks <- StreamChunk{Err: apperrors.NewPermanentError(fmt.Errorf("ollama error: %s", chunk.Error), "")}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Done {
				return
			}
			if chunk.Message.Content == "" && chunk.Message.Thinking == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: chunk.Message.Content, Reasoning: chunk.Message.Thinking}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			p.logger.Debug("ollama stream read error: %v", err)
			select {
			case chunks <- StreamChunk{Err: apperrors.NewTransientError(err, "Ollama stream dropped. Retrying.")}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}
