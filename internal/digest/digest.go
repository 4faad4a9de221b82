// Package digest splits ranked-list digest documents into independently
// translatable chunks and parses each chunk into a title and numbered items.
// It also prepares the URL-free batch text sent to a translator and folds the
// URLs back into the translated lines afterwards.
package digest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// chunkIDPrefix is the prefix of every chunk identifier produced by ChunkID.
const chunkIDPrefix = "chunk_"

var (
	// "12. some text [URL:https://example.com]"
	itemWithURLRe = regexp.MustCompile(`^(\d+)\.\s*(.*?)\s*\[URL:(.*?)\]$`)

	// "12. some text"
	itemRe = regexp.MustCompile(`^(\d+)\.\s*(.*)$`)
)

// Item is one numbered entry of a chunk.
type Item struct {
	Number string
	Text   string
	URL    string
}

// Chunk is one section of a digest: a title line followed by ranked items.
type Chunk struct {
	ID    string
	Index int
	Title string
	Items []Item
}

// Split breaks a document into raw chunk strings on blank-line boundaries.
// Segments are trimmed and whitespace-only segments are dropped; the order of
// the returned slice is the order of the document. An empty document yields
// an empty slice.
func Split(doc string) []string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")

	var chunks []string
	for _, segment := range strings.Split(doc, "\n\n") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		chunks = append(chunks, segment)
	}
	return chunks
}

// ChunkID returns the stable identifier for the chunk at position index.
func ChunkID(index int) string {
	return fmt.Sprintf("%s%03d", chunkIDPrefix, index)
}

// ChunkIndex extracts the position encoded in a chunk identifier.
func ChunkIndex(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, chunkIDPrefix))
	if err != nil || !strings.HasPrefix(id, chunkIDPrefix) {
		return 0, fmt.Errorf("invalid chunk id %q", id)
	}
	return n, nil
}

// Parse extracts the title and the numbered items of a raw chunk. The first
// non-empty line is the title. Lines that do not look like "<n>. <text>" are
// ignored, as are repeated item numbers after their first occurrence.
func Parse(raw string) (string, []Item) {
	var (
		title string
		items []Item
		seen  = make(map[string]bool)
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if title == "" {
			title = line
			continue
		}

		item, ok := parseItem(line)
		if !ok || seen[item.Number] {
			continue
		}
		seen[item.Number] = true
		items = append(items, item)
	}

	return title, items
}

// ParseChunk parses raw and stamps it with the identifier for index.
func ParseChunk(index int, raw string) Chunk {
	title, items := Parse(raw)
	return Chunk{ID: ChunkID(index), Index: index, Title: title, Items: items}
}

func parseItem(line string) (Item, bool) {
	if m := itemWithURLRe.FindStringSubmatch(line); m != nil {
		return Item{
			Number: m[1],
			Text:   strings.TrimSpace(m[2]),
			URL:    strings.TrimSpace(m[3]),
		}, true
	}
	if m := itemRe.FindStringSubmatch(line); m != nil {
		return Item{Number: m[1], Text: strings.TrimSpace(m[2])}, true
	}
	return Item{}, false
}

// PrepareBatch renders items as "<n>. <text>" lines for a translator and
// returns the number → URL mapping needed to restore the links. URLs never
// appear in the batch text.
func PrepareBatch(items []Item) (string, map[string]string) {
	lines := make([]string, 0, len(items))
	urls := make(map[string]string)

	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s. %s", it.Number, it.Text))
		if it.URL != "" {
			urls[it.Number] = it.URL
		}
	}

	return strings.Join(lines, "\n"), urls
}
