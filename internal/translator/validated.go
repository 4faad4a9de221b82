package translator

import (
	"context"
	"fmt"
)

// LanguageChecker reports whether text is written in lang.
type LanguageChecker interface {
	IsValid(text, lang string) (bool, error)
}

// ValidatedService rejects answers that are not in the target language. A
// model that echoes the source text back is treated like any other
// malformed answer, so the retry policy gets a chance to recover.
type ValidatedService struct {
	next    TranslationService
	checker LanguageChecker
}

func NewValidatedService(next TranslationService, checker LanguageChecker) *ValidatedService {
	return &ValidatedService{next: next, checker: checker}
}

func (s *ValidatedService) Name() string {
	return s.next.Name()
}

func (s *ValidatedService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result, err := s.next.Translate(ctx, cfg, req)
	if err != nil {
		return result, err
	}

	if ok, verr := s.checker.IsValid(result.TranslatedText, req.TargetLang); !ok {
		result.Error = fmt.Sprintf("language check failed: %v", verr)
		return result, fmt.Errorf("%s: language check: %v: %w", s.next.Name(), verr, ErrMalformedResponse)
	}
	return result, nil
}
