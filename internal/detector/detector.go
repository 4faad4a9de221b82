// Package detector wraps lingua-go language detection.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to the given ISO 639-1 codes. With fewer
// than two recognised codes it falls back to all languages, which is slower
// to build and less accurate on short digest lines.
func New(isoCodes ...string) *Detector {
	var langs []lingua.Language
	for _, code := range isoCodes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(baseCode(code)))
		if lang := lingua.GetLanguageFromIsoCode639_1(iso); lang != lingua.Unknown {
			langs = append(langs, lang)
		}
	}

	builder := lingua.NewLanguageDetectorBuilder()
	var detector lingua.LanguageDetector
	if len(langs) >= 2 {
		detector = builder.FromLanguages(langs...).Build()
	} else {
		detector = builder.FromAllLanguages().Build()
	}

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// baseCode drops a region or script subtag: "zh-CN" -> "zh".
func baseCode(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}
