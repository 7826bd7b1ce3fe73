// Package docparse extracts plain text from persona context documents so it
// can be embedded in system prompts. Only formats the backend can parse
// natively are accepted; binary formats are rejected with a typed error that
// names the supported types.
package docparse

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultMaxBytes is the default per-document size cap.
const DefaultMaxBytes = 1 << 20 // 1 MiB

// DefaultExcerptChars is the default prompt-embedding budget per document.
const DefaultExcerptChars = 2000

// TooLargeError reports a document over the size cap.
type TooLargeError struct {
	Filename string
	Size     int64
	Max      int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("docparse: %s is %d bytes, cap is %d", e.Filename, e.Size, e.Max)
}

// UnsupportedTypeError reports a document in a format the parser cannot read.
type UnsupportedTypeError struct {
	Ext string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("docparse: unsupported file type %q, supported types: %s",
		e.Ext, strings.Join(SupportedExtensions(), ", "))
}

// SupportedExtensions returns the file extensions Parse accepts.
func SupportedExtensions() []string {
	return []string{".md", ".txt"}
}

// Parser extracts text from uploaded documents.
type Parser struct {
	maxBytes int64
}

// Option configures a [Parser].
type Option func(*Parser)

// WithMaxBytes overrides the per-document size cap.
func WithMaxBytes(n int64) Option {
	return func(p *Parser) { p.maxBytes = n }
}

// New creates a Parser with the default size cap.
func New(opts ...Option) *Parser {
	p := &Parser{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the text content of data based on filename's extension.
// Plain text is returned as-is; markdown has its syntax stripped so prompts
// read as prose. Input is treated as UTF-8 with a byte-order mark removed
// and invalid sequences replaced.
func (p *Parser) Parse(filename string, data []byte) (string, error) {
	if int64(len(data)) > p.maxBytes {
		return "", &TooLargeError{Filename: filename, Size: int64(len(data)), Max: p.maxBytes}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return normalizeText(data), nil
	case ".md":
		return stripMarkdown(normalizeText(data)), nil
	default:
		return "", &UnsupportedTypeError{Ext: ext}
	}
}

// Excerpt trims text to at most maxChars runes for prompt embedding,
// preferring to cut at a word boundary. maxChars <= 0 uses the default
// budget.
func Excerpt(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultExcerptChars
	}
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])
	// Cut at the last word boundary unless that would discard most of the
	// budget (e.g. one enormous token).
	if idx := strings.LastIndexFunc(cut, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

// normalizeText decodes data as UTF-8 text: the byte-order mark is dropped,
// invalid sequences are replaced, and line endings are normalised to \n.
func normalizeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	s = strings.ToValidUTF8(s, "�")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBullet  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	mdQuote   = regexp.MustCompile(`(?m)^>\s?`)
	// Images become their alt text, links their label.
	mdLink = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
)

// stripMarkdown reduces markdown to readable prose: fence lines, heading
// markers, bullets, blockquote markers and link syntax are removed while the
// wrapped text is kept. Underscores are left alone since identifiers use
// them more often than emphasis does.
func stripMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	s = mdHeading.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdLink.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}
