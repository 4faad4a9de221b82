package digest

import (
	"fmt"
	"regexp"
	"strings"
)

// translatedItemRe matches a translated item line, tolerating a URL suffix
// left over from a previous formatting pass. The suffix accepts any URL the
// parser accepts, brackets included.
var translatedItemRe = regexp.MustCompile(`^(\d+)\.\s*(.*?)(?:\s*\[URL:.*\])?$`)

// Format normalises translated lines to "<n>. <text>" and appends
// "[URL:<url>]" to every line whose number has a mapped URL. Lines without a
// leading number are kept as they are; blank lines are dropped. Formatting
// already formatted text with the same mapping returns it unchanged.
func Format(translated string, urls map[string]string) string {
	var out []string

	for _, line := range strings.Split(translated, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := translatedItemRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}

		number, text := m[1], strings.TrimSpace(m[2])
		formatted := number + "."
		if text != "" {
			formatted += " " + text
		}
		if url, ok := urls[number]; ok {
			formatted += fmt.Sprintf(" [URL:%s]", url)
		}
		out = append(out, formatted)
	}

	return strings.Join(out, "\n")
}

// Render joins a chunk title and its formatted items into the text block
// used in the assembled document.
func Render(title, formatted string) string {
	if formatted == "" {
		return title
	}
	return title + "\n" + formatted
}
