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
	DefaultOllamaBaseURL       = "http://localhost:11434"
	DefaultOllamaPrimaryModel  = "qwen2.5:14b"
	DefaultOllamaFallbackModel = "qwen2.5:7b"
)

// OllamaService uses a self-hosted Ollama server. It never reports rate
// limits; an overloaded server (503) is a request failure.
type OllamaService struct {
	baseURL string
	client  *http.Client
}

func NewOllamaService(baseURL string, timeout time.Duration) *OllamaService {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *OllamaService) Name() string {
	return "ollama"
}

func (s *OllamaService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name(), Model: cfg.Model}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if cfg.Model == "" {
		result.Error = "model required"
		return result, fmt.Errorf("ollama: model required: %w", ErrRequestFailed)
	}

	jsonData, err := json.Marshal(map[string]interface{}{
		"model":  cfg.Model,
		"prompt": buildPrompt(req),
		"stream": false,
	})
	if err != nil {
		result.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return result, fmt.Errorf("ollama: marshal: %v: %w", err, ErrRequestFailed)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result, fmt.Errorf("ollama: new request: %v: %w", err, ErrRequestFailed)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, fmt.Errorf("ollama: %w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(s.Name(), resp)
		result.Error = err.Error()
		return result, err
	}

	var ollamaResp struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		result.Error = fmt.Sprintf("failed to decode response: %v", err)
		return result, fmt.Errorf("ollama: decode: %v: %w", err, ErrMalformedResponse)
	}

	result.TranslatedText = postprocess.Clean(ollamaResp.Response)
	if result.TranslatedText == "" {
		result.Error = "empty response"
		return result, fmt.Errorf("ollama: empty response: %w", ErrMalformedResponse)
	}
	result.Metadata = map[string]string{"done": fmt.Sprintf("%t", ollamaResp.Done)}

	return result, nil
}
