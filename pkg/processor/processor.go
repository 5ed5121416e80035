package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/mindvault/internal/models"
)

type ProcessorConfig struct {
	Separator    string // between title, kind and tags
	TagSeparator string
	MaxTitleLen  int // in runes, 0 means unlimited
}

// Processor renders content items into the single line of text that is both
// embedded and shown to the answer model as context.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.Separator == "" {
		config.Separator = " | "
	}
	if config.TagSeparator == "" {
		config.TagSeparator = ", "
	}
	return Processor{
		config: config,
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

// Render joins title, kind and tag names. The tag segment is left out when
// there are no usable tags.
func (p *Processor) Render(title string, kind models.Kind, tags []string) string {
	parts := []string{p.cleanTitle(title), string(kind)}

	var cleanTags []string
	for _, tag := range tags {
		if t := cleanText(tag); t != "" {
			cleanTags = append(cleanTags, t)
		}
	}
	if len(cleanTags) > 0 {
		parts = append(parts, strings.Join(cleanTags, p.config.TagSeparator))
	}

	return strings.Join(parts, p.config.Separator)
}

func (p *Processor) RenderItem(item models.ContentItem) string {
	return p.Render(item.Title, item.Kind, item.TagNames())
}

func (p *Processor) cleanTitle(title string) string {
	title = cleanText(title)
	if p.config.MaxTitleLen > 0 && utf8.RuneCountInString(title) > p.config.MaxTitleLen {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:p.config.MaxTitleLen]))
	}
	return title
}

// cleanText collapses whitespace and drops invalid UTF-8 bytes.
func cleanText(text string) string {
	return strings.Join(strings.Fields(sanitizeUTF8(text)), " ")
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
