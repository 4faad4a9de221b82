// Package validator checks that a translated chunk is in the expected target language.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/valpere/digestran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language
// detection. Shorter texts are accepted without validation.
const minValidationLength = 20

var (
	listNumberRe = regexp.MustCompile(`(?m)^\s*\d+\.\s*`)
	urlTagRe     = regexp.MustCompile(`\[URL:[^\]]*\]`)
)

// Validator checks that translated text is written in the expected target
// language. Building the detector is expensive; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator whose detector distinguishes between langs
// (ISO 639-1). Pass at least the source and target languages.
func New(langs ...string) *Validator {
	return &Validator{det: detector.New(langs...)}
}

// IsValid reports whether translatedText appears to be written in
// targetLang. List numbers and URL tags are ignored. Short texts and texts
// whose language cannot be determined pass.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	text = urlTagRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(listNumberRe.ReplaceAllString(text, ""))

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	want := targetLang
	if i := strings.IndexAny(want, "-_"); i > 0 {
		want = want[:i]
	}
	if !strings.EqualFold(detected, want) {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, strings.ToLower(detected))
	}

	return true, nil
}
