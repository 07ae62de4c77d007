package knowledge

import (
	"regexp"
	"strings"
)

// Document is one normalized knowledge-base entry. Documents are
// created once per ingestion run and never mutated afterwards.
type Document struct {
	ID     string
	Title  string
	Source string
	Text   string
}

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// normalizeText collapses whitespace so emptiness checks and substring
// scoring behave the same regardless of how the scraper formatted the
// source page.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	text = strings.Join(lines, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// newDocument builds a Document with normalized text. Returns false
// when the text is empty after normalization; such entries must not
// enter the store.
func newDocument(id, title, source, text string) (Document, bool) {
	normalized := normalizeText(text)
	if normalized == "" {
		return Document{}, false
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled Document"
	}
	return Document{ID: id, Title: title, Source: source, Text: normalized}, true
}
