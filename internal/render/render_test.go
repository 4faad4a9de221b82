package render

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assembled = `Weibo | 微博
1. Hello world [URL:https://example.com/a]
2. No link here

Zhihu | 知乎
1. Question (draft) [URL:https://example.com/q?id=1&x=2]`

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestSections(t *testing.T) {
	sections := Sections(assembled)
	require.Len(t, sections, 2)
	assert.Equal(t, "Weibo | 微博", sections[0].Title)
	require.Len(t, sections[0].Items, 2)
	assert.Equal(t, "https://example.com/a", sections[0].Items[0].URL)
	assert.Empty(t, sections[0].Items[1].URL)
	assert.Equal(t, "Question (draft)", sections[1].Items[0].Text)

	assert.Empty(t, Sections(""))
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(Sections(assembled)))

	assert.Contains(t, md, "## Weibo | 微博\n\n")
	assert.Contains(t, md, "1. Hello world [🔗](https://example.com/a)\n")
	assert.Contains(t, md, "2. No link here\n")
	assert.Contains(t, md, `1. Question \(draft\)`)
}

func TestHTML_Structure(t *testing.T) {
	page, err := HTML(assembled, Options{})
	require.NoError(t, err)
	doc := parse(t, page)

	assert.Equal(t, DefaultTitle, doc.Find("title").Text())
	assert.Equal(t, DefaultTitle, doc.Find(".header-title").Text())
	assert.Equal(t, 0, doc.Find(".header-meta").Length())

	headings := doc.Find(".content h2")
	require.Equal(t, 2, headings.Length())
	assert.Equal(t, "Weibo | 微博", headings.First().Text())
	assert.Equal(t, 2, doc.Find(".content ol").Length())
	assert.Equal(t, 3, doc.Find(".content li").Length())

	links := doc.Find(".content a")
	require.Equal(t, 2, links.Length())
	href, _ := links.First().Attr("href")
	assert.Equal(t, "https://example.com/a", href)
	target, _ := links.First().Attr("target")
	assert.Equal(t, "_blank", target)
	href, _ = links.Last().Attr("href")
	assert.Equal(t, "https://example.com/q?id=1&x=2", href)

	assert.Contains(t, doc.Find(".content li").Eq(2).Text(), "Question (draft)")
}

func TestHTML_EscapesItemText(t *testing.T) {
	page, err := HTML("Title <b>bold</b>\n1. <script>alert(1)</script> *not emphasis*", Options{})
	require.NoError(t, err)
	doc := parse(t, page)

	assert.Equal(t, 0, doc.Find("script").Length())
	assert.Equal(t, 0, doc.Find(".content b").Length())
	assert.Equal(t, 0, doc.Find(".content em").Length())
	assert.Contains(t, doc.Find(".content li").Text(), "<script>alert(1)</script>")
	assert.Contains(t, doc.Find(".content li").Text(), "*not emphasis*")
	assert.Contains(t, doc.Find(".content h2").Text(), "<b>bold</b>")
}

func TestHTML_Options(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	page, err := HTML(assembled, Options{Title: "Daily <Digest>", GeneratedAt: at, Footer: "2/2 chunks"})
	require.NoError(t, err)
	doc := parse(t, page)

	assert.Equal(t, "Daily <Digest>", doc.Find("title").Text())
	assert.Equal(t, "2025-03-14 09:30 UTC", doc.Find(".header-meta").Text())
	assert.Equal(t, "2/2 chunks", doc.Find(".footer").Text())
}

func TestHTML_EmptyDigest(t *testing.T) {
	page, err := HTML("", Options{})
	require.NoError(t, err)
	doc := parse(t, page)

	assert.Equal(t, 1, doc.Find(".container").Length())
	assert.Equal(t, 0, doc.Find(".content li").Length())
}
