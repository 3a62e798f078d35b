package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/distill/template"
)

// MinContentChars is the quality-policy threshold: a site-specific
// template producing fewer non-whitespace content characters than this
// triggers a generic-template retry by the orchestrator.
const MinContentChars = 200

// Executor runs a Template's selector/transform/content-walk pipeline
// against fetched HTML. It holds no state between calls.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

// Run produces an ExtractedDocument from rawHTML using tmpl, resolving
// relative URLs against finalURL. A parse failure never occurs (the HTML5
// parser repairs malformed input); Run only errors when the result fails
// the title/content invariant: a non-empty title and at least one
// content block.
func (e *Executor) Run(rawHTML, finalURL string, tmpl *template.Template) (*ExtractedDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	applyFilters(doc, tmpl.Filters)

	c := &ctx{doc: doc, rawHTML: rawHTML, finalURL: finalURL}

	out := &ExtractedDocument{
		URL:         finalURL,
		TemplateUsed: tmpl.Name,
		RawMetadata: make(map[string]string),
	}

	dateFailed := false
	if spec, ok := tmpl.Selectors["title"]; ok {
		out.Title, _ = c.resolveField(spec)
	}
	if spec, ok := tmpl.Selectors["author"]; ok {
		out.Author, _ = c.resolveField(spec)
	}
	if spec, ok := tmpl.Selectors["date"]; ok {
		var failed bool
		out.PublishTime, failed = c.resolveField(spec)
		dateFailed = failed
	}
	if spec, ok := tmpl.Selectors["source_name"]; ok {
		out.SourceName, _ = c.resolveField(spec)
	}
	if spec, ok := tmpl.Selectors["language"]; ok {
		out.Language, _ = c.resolveField(spec)
	}
	if spec, ok := tmpl.Selectors["images"]; ok {
		out.CoverImageURL, _ = c.resolveField(spec)
	}
	if spec, ok := tmpl.Selectors["categories"]; ok {
		out.Categories = c.resolveFieldList(spec)
	}
	if spec, ok := tmpl.Selectors["tags"]; ok {
		out.Tags = c.resolveFieldList(spec)
	}
	for cleanKey, rawKey := range tmpl.RawMetadataKeys {
		if spec, ok := tmpl.Selectors[rawKey]; ok {
			if v, _ := c.resolveField(spec); v != "" {
				out.RawMetadata[cleanKey] = v
			}
		}
	}
	if dateFailed {
		out.RawMetadata["date_parse_failed"] = "true"
	}

	if spec, ok := tmpl.Selectors["content"]; ok {
		container := c.resolveContentContainer(spec)
		if container != nil {
			out.ContentBlocks, _ = walkContent(container, finalURL, out.Title != "", tmpl.Output.MaxHeadingLevel)
		}
	}

	out.ContentCharCount = countContentChars(out.ContentBlocks)

	if out.Title == "" {
		return out, fmt.Errorf("extract: title is empty")
	}
	if len(out.ContentBlocks) == 0 {
		return out, fmt.Errorf("extract: content_blocks is empty")
	}
	return out, nil
}

// countContentChars sums non-whitespace runes across every block, used by
// the orchestrator's quality policy.
func countContentChars(blocks []ContentBlock) int {
	total := 0
	for _, b := range blocks {
		total += nonWhitespaceCount(b.Text)
		for _, item := range b.Items {
			total += countContentChars([]ContentBlock{item})
		}
		for _, row := range b.Rows {
			for _, cell := range row {
				total += nonWhitespaceCount(cell)
			}
		}
	}
	return total
}

func nonWhitespaceCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
