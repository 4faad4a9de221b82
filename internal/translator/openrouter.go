package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/digestran/internal/postprocess"
)

const (
	DefaultOpenRouterBaseURL       = "https://openrouter.ai/api/v1"
	DefaultOpenRouterPrimaryModel  = "google/gemini-2.5-flash"
	DefaultOpenRouterFallbackModel = "google/gemini-2.0-flash-001"
)

// OpenRouterService talks to any OpenAI-compatible chat completions API.
type OpenRouterService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func NewOpenRouterService(apiKey, baseURL string, timeout time.Duration) *OpenRouterService {
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenRouterService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

func (s *OpenRouterService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name(), Model: cfg.Model}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	apiKey := s.apiKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		result.Error = "OpenRouter API key required"
		return result, fmt.Errorf("openrouter: API key required: %w", ErrRequestFailed)
	}

	jsonData, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(req)},
		},
		MaxTokens: 4096,
	})
	if err != nil {
		result.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return result, fmt.Errorf("openrouter: marshal: %v: %w", err, ErrRequestFailed)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result, fmt.Errorf("openrouter: new request: %v: %w", err, ErrRequestFailed)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("X-Title", "digestran")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, fmt.Errorf("openrouter: %w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(s.Name(), resp)
		result.Error = err.Error()
		return result, err
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		result.Error = fmt.Sprintf("failed to decode response: %v", err)
		return result, fmt.Errorf("openrouter: decode: %v: %w", err, ErrMalformedResponse)
	}

	if len(cr.Choices) == 0 {
		result.Error = "empty response from API"
		return result, fmt.Errorf("openrouter: no choices: %w", ErrMalformedResponse)
	}

	result.TranslatedText = postprocess.Clean(cr.Choices[0].Message.Content)
	if result.TranslatedText == "" {
		result.Error = "empty response from API"
		return result, fmt.Errorf("openrouter: empty content: %w", ErrMalformedResponse)
	}
	result.Metadata = map[string]string{
		"prompt_tokens":     fmt.Sprintf("%d", cr.Usage.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", cr.Usage.CompletionTokens),
	}

	return result, nil
}
