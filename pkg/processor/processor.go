package processor

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/xhad/vecdocs/internal/models"
)

var ErrEmptyText = errors.New("no text extracted from document")

type ProcessorConfig struct {
	MaxBlankLines      int
	CollapseWhitespace bool
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxBlankLines == 0 {
		config.MaxBlankLines = 1
	}

	return Processor{
		config: config,
	}
}

// Process cleans the text of every document. A document whose text is empty
// after cleaning fails the whole batch with ErrEmptyText.
func (p *Processor) Process(docs []models.Document) ([]models.Document, error) {
	processed := make([]models.Document, 0, len(docs))

	for _, doc := range docs {
		doc.Title = strings.TrimSpace(sanitizeUTF8(doc.Title))
		doc.Text = p.CleanText(doc.Text)
		if doc.Text == "" {
			return nil, ErrEmptyText
		}
		processed = append(processed, doc)
	}

	return processed, nil
}

// CleanText normalizes exported or scraped text before it is embedded.
func (p *Processor) CleanText(text string) string {
	text = sanitizeUTF8(text)

	// Drive exports text/plain with a leading byte order mark
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if p.config.CollapseWhitespace {
		return strings.Join(strings.Fields(text), " ")
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > p.config.MaxBlankLines {
				continue
			}
		} else {
			blank = 0
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
