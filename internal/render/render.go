// Package render turns an assembled digest into Markdown and a standalone
// HTML report.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/valpere/digestran/internal/digest"
)

const DefaultTitle = "Translated News Report"

// Section is one platform block of a digest.
type Section struct {
	Title string
	Items []digest.Item
}

// Sections parses an assembled digest back into its blocks.
func Sections(text string) []Section {
	var out []Section
	for _, raw := range digest.Split(text) {
		title, items := digest.Parse(raw)
		if title == "" {
			continue
		}
		out = append(out, Section{Title: title, Items: items})
	}
	return out
}

// mdSpecial are the characters that would otherwise be read as Markdown
// syntax or raw HTML inside item text.
var mdSpecial = regexp.MustCompile("([\\\\`*_\\[\\]()#<>])")

var linkEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29")

func escapeMarkdown(s string) string {
	return mdSpecial.ReplaceAllString(s, `\$1`)
}

// Markdown renders sections as level-two headings followed by ordered
// lists. Items with a URL get a trailing link.
func Markdown(sections []Section) []byte {
	var b bytes.Buffer
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", escapeMarkdown(s.Title))
		for _, it := range s.Items {
			fmt.Fprintf(&b, "%s. %s", it.Number, escapeMarkdown(it.Text))
			if it.URL != "" {
				fmt.Fprintf(&b, " [🔗](%s)", linkEscaper.Replace(it.URL))
			}
			b.WriteString("\n")
		}
	}
	return b.Bytes()
}

// ToHTML converts Markdown to an HTML fragment. Raw HTML in the input is
// dropped and links open in a new tab.
func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank | html.SkipHTML,
	}
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions &^ parser.MathJax
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// Options control the report page.
type Options struct {
	Title       string
	GeneratedAt time.Time
	Footer      string
}

// HTML renders the assembled digest text as a complete HTML page.
func HTML(text string, opts Options) (string, error) {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	body := ToHTML(Markdown(Sections(text)))

	var b strings.Builder
	err := pageTemplate.Execute(&b, struct {
		Options
		Body template.HTML
	}{opts, template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return b.String(), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', system-ui, sans-serif;
            margin: 0;
            padding: 16px;
            background: #fafafa;
            color: #333;
            line-height: 1.5;
        }
        .container {
            max-width: 800px;
            margin: 0 auto;
            background: white;
            border-radius: 12px;
            overflow: hidden;
            box-shadow: 0 2px 16px rgba(0,0,0,0.06);
        }
        .header {
            background: linear-gradient(135deg, #4f46e5 0%, #7c3aed 100%);
            color: white;
            padding: 24px;
            text-align: center;
        }
        .header-title { font-size: 20px; font-weight: 700; margin: 0; }
        .header-meta { font-size: 13px; opacity: 0.85; margin-top: 6px; }
        .content { padding: 24px; }
        .content h2 {
            font-size: 17px;
            font-weight: 600;
            color: #1a1a1a;
            margin: 0 0 16px;
            padding-bottom: 8px;
            border-bottom: 1px solid #f0f0f0;
        }
        .content ol { margin: 0 0 40px; padding-left: 28px; }
        .content li {
            font-size: 15px;
            line-height: 1.4;
            color: #1a1a1a;
            padding: 12px 0;
            border-bottom: 1px solid #f5f5f5;
        }
        .content li:last-child { border-bottom: none; }
        .content li::marker { color: #999; font-size: 13px; font-weight: 600; }
        .content a { color: #2563eb; text-decoration: none; margin-left: 8px; }
        .content a:hover { text-decoration: underline; }
        .footer { padding: 12px 24px; font-size: 12px; color: #999; border-top: 1px solid #f0f0f0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1 class="header-title">{{.Title}}</h1>
            {{- if not .GeneratedAt.IsZero}}
            <div class="header-meta">{{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</div>
            {{- end}}
        </div>
        <div class="content">
{{.Body}}
        </div>
        {{- with .Footer}}
        <div class="footer">{{.}}</div>
        {{- end}}
    </div>
</body>
</html>
`))
