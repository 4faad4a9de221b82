package translator

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// languageName turns a BCP 47 code into an English language name for the
// prompt ("zh" → "Chinese"). Unknown codes are returned unchanged.
func languageName(code string) string {
	if code == "" || code == "auto" {
		return "the source"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

// buildPrompt renders the instruction sent to generative backends. The
// numbering must survive translation so URLs can be reattached.
func buildPrompt(req TranslateRequest) string {
	return fmt.Sprintf(`Please translate the following %s text to %s, preserving the numbering and format:

%s

Only return the translated content, no additional text.`,
		languageName(req.SourceLang), languageName(req.TargetLang), req.Text)
}
