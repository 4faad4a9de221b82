package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valpere/digestran/internal/postprocess"
)

const (
	DefaultGeminiBaseURL       = "https://generativelanguage.googleapis.com"
	DefaultGeminiPrimaryModel  = "gemini-2.5-flash"
	DefaultGeminiFallbackModel = "gemini-2.0-flash"
)

// GeminiService calls the Generative Language API generateContent endpoint.
type GeminiService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func NewGeminiService(apiKey, baseURL string, timeout time.Duration) *GeminiService {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *GeminiService) Name() string {
	return "gemini"
}

func (s *GeminiService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name(), Model: cfg.Model}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	apiKey := s.apiKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		result.Error = "Gemini API key required"
		return result, fmt.Errorf("gemini: API key required: %w", ErrRequestFailed)
	}
	if cfg.Model == "" {
		result.Error = "model required"
		return result, fmt.Errorf("gemini: model required: %w", ErrRequestFailed)
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: buildPrompt(req)}}}},
	})
	if err != nil {
		result.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return result, fmt.Errorf("gemini: marshal: %v: %w", err, ErrRequestFailed)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.baseURL, url.PathEscape(cfg.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result, fmt.Errorf("gemini: new request: %v: %w", err, ErrRequestFailed)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, fmt.Errorf("gemini: %w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		err := statusError(s.Name(), resp)
		result.Error = err.Error()
		return result, err
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		result.Error = fmt.Sprintf("failed to decode response: %v", err)
		return result, fmt.Errorf("gemini: decode: %v: %w", err, ErrMalformedResponse)
	}

	text, err := gr.text()
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("gemini: %w", err)
	}

	result.TranslatedText = postprocess.Clean(text)
	if result.TranslatedText == "" {
		result.Error = "empty response after cleanup"
		return result, fmt.Errorf("gemini: empty response after cleanup: %w", ErrMalformedResponse)
	}
	result.Metadata = map[string]string{
		"prompt_tokens":     fmt.Sprintf("%d", gr.UsageMetadata.PromptTokenCount),
		"completion_tokens": fmt.Sprintf("%d", gr.UsageMetadata.CandidatesTokenCount),
	}
	return result, nil
}

func (r *geminiResponse) text() (string, error) {
	if r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked (%s): %w", r.PromptFeedback.BlockReason, ErrMalformedResponse)
	}
	if len(r.Candidates) == 0 {
		return "", fmt.Errorf("no candidates: %w", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("empty candidate (finish reason %q): %w", r.Candidates[0].FinishReason, ErrMalformedResponse)
	}
	return sb.String(), nil
}
