package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultGooglePrimaryModel  = "nmt"
	DefaultGoogleFallbackModel = "base"
)

// GoogleService uses the Cloud Translation v2 API. The numbered list is sent
// as plain text; the API keeps line structure and leading numbers intact.
// cfg.Model selects the API model ("nmt" or "base").
type GoogleService struct {
	apiKey string
}

func NewGoogleService(apiKey string) *GoogleService {
	return &GoogleService{apiKey: apiKey}
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name(), Model: cfg.Model}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	targetLangTag, err := language.Parse(req.TargetLang)
	if err != nil {
		result.Error = fmt.Sprintf("invalid target language: %v", err)
		return result, fmt.Errorf("google: invalid target language %q: %w", req.TargetLang, ErrRequestFailed)
	}

	var opts []option.ClientOption
	switch {
	case cfg.Credentials != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	case s.apiKey != "":
		opts = append(opts, option.WithAPIKey(s.apiKey))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create client: %v", err)
		return result, fmt.Errorf("google: create client: %v: %w", err, ErrRequestFailed)
	}
	defer client.Close()

	topts := &translate.Options{Format: translate.Text, Model: cfg.Model}
	if req.SourceLang != "" && req.SourceLang != "auto" {
		sourceLangTag, err := language.Parse(req.SourceLang)
		if err != nil {
			result.Error = fmt.Sprintf("invalid source language: %v", err)
			return result, fmt.Errorf("google: invalid source language %q: %w", req.SourceLang, ErrRequestFailed)
		}
		topts.Source = sourceLangTag
	}

	translations, err := client.Translate(ctx, []string{req.Text}, targetLangTag, topts)
	if err != nil {
		result.Error = fmt.Sprintf("translation failed: %v", err)
		return result, classifyGoogleError(err)
	}

	if len(translations) == 0 || strings.TrimSpace(translations[0].Text) == "" {
		result.Error = "no translation returned"
		return result, fmt.Errorf("google: no translation returned: %w", ErrMalformedResponse)
	}

	result.TranslatedText = strings.TrimSpace(translations[0].Text)
	if translations[0].Source != language.Und {
		result.Metadata = map[string]string{"detected_source": translations[0].Source.String()}
	}

	return result, nil
}

func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("google: %v: %w", err, ErrRateLimited)
	}
	return fmt.Errorf("google: %w: %w", ErrRequestFailed, err)
}
