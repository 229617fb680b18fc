package email

import (
	"html"
	"regexp"
	"strings"
)

var (
	// Blocks whose content is never readable text.
	invisibleBlocks = regexp.MustCompile(`(?is)<(head|style|script)\b.*?</(head|style|script)\s*>`)

	comments = regexp.MustCompile(`(?s)<!--.*?-->`)

	// Tags that end a visual line or separate table cells.
	paragraphEnds = regexp.MustCompile(`(?i)</(p|h[1-6])\s*>`)
	lineEnds      = regexp.MustCompile(`(?i)<br\b[^>]*>|</(div|tr|li|table|ul|ol)\s*>`)
	cellEnds      = regexp.MustCompile(`(?i)</(td|th)\s*>`)

	inlineSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// PlainText derives a plain-text fallback from an HTML body: markup is
// stripped, entities decoded, and blank lines dropped.
//
//	PlainText("<p>Hi <b>Asha</b></p>") == "Hi Asha"
func PlainText(body string) string {
	text := comments.ReplaceAllString(body, "")
	text = invisibleBlocks.ReplaceAllString(text, "")
	text = paragraphEnds.ReplaceAllString(text, "\n\n")
	text = lineEnds.ReplaceAllString(text, "\n")
	text = cellEnds.ReplaceAllString(text, " ")
	text = stripTags(text)
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}

// stripTags drops everything between '<' and the next '>'.
// A '<' with no closing '>' is kept as text.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for {
		start := strings.IndexByte(s, '<')
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '>')
		if end < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		s = s[start+end+1:]
	}

	return b.String()
}
