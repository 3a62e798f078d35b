// Package markdown deterministically serializes an extract.ExtractedDocument
// into Markdown text plus YAML front matter.
package markdown

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/distill/extract"
)

// maxPipeTableColumns is the cutoff past which a table is emitted as
// nested lists instead of pipe syntax.
const maxPipeTableColumns = 10

// frontMatter mirrors the YAML front-matter block's required key order;
// marshaling a struct (not a map) keeps the emitted key order stable
// across runs, which byte-identical output requires.
type frontMatter struct {
	Title       string            `yaml:"title"`
	URL         string            `yaml:"url"`
	Author      string            `yaml:"author,omitempty"`
	PublishTime string            `yaml:"publish_time,omitempty"`
	Source      string            `yaml:"source,omitempty"`
	Language    string            `yaml:"language,omitempty"`
	Categories  []string          `yaml:"categories,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	RawMetadata map[string]string `yaml:"raw_metadata,omitempty"`
}

// Serializer renders ExtractedDocuments to Markdown. It wraps a single
// html-to-markdown converter, reused as the renderer for the inline-HTML
// fragments the executor hands it (bold/em/code/link runs within a
// paragraph) — the block-level structure itself (headings, lists,
// tables, front matter) is walked directly against the block tree, since
// a generic HTML-to-Markdown pass can't guarantee the traversal order
// byte-identical determinism requires.
type Serializer struct {
	conv *converter.Converter
}

func NewSerializer() *Serializer {
	return &Serializer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Serialize converts doc to its final Markdown text.
func (s *Serializer) Serialize(doc *extract.ExtractedDocument) (string, error) {
	var b strings.Builder

	fm := frontMatter{
		Title:       doc.Title,
		URL:         doc.URL,
		Author:      doc.Author,
		PublishTime: doc.PublishTime,
		Source:      doc.SourceName,
		Language:    doc.Language,
		Categories:  doc.Categories,
		Tags:        doc.Tags,
		RawMetadata: sortedCopy(doc.RawMetadata),
	}
	front, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("markdown: marshal front matter: %w", err)
	}
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")

	b.WriteString("# ")
	b.WriteString(doc.Title)
	b.WriteString("\n")

	for _, block := range doc.ContentBlocks {
		if err := s.writeBlock(&b, block, 0); err != nil {
			return "", err
		}
	}

	out := strings.TrimRight(b.String(), "\n") + "\n"
	return out, nil
}

func (s *Serializer) writeBlock(b *strings.Builder, block extract.ContentBlock, depth int) error {
	switch block.Type {
	case extract.BlockHeading:
		level := block.Level
		if level < 2 {
			level = 2
		}
		if level > 6 {
			level = 6
		}
		b.WriteString("\n")
		b.WriteString(strings.Repeat("#", level))
		b.WriteString(" ")
		b.WriteString(block.Text)
		b.WriteString("\n\n")

	case extract.BlockParagraph:
		text, err := s.renderInline(block)
		if err != nil {
			return err
		}
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n\n")

	case extract.BlockList:
		s.writeList(b, block, depth)
		b.WriteString("\n")

	case extract.BlockCodeBlock:
		b.WriteString("\n```")
		b.WriteString(block.Language)
		b.WriteString("\n")
		b.WriteString(block.Text)
		b.WriteString("\n```\n\n")

	case extract.BlockQuote:
		b.WriteString("\n")
		for _, line := range strings.Split(block.Text, "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")

	case extract.BlockImage:
		b.WriteString("\n![")
		b.WriteString(block.Alt)
		b.WriteString("](")
		b.WriteString(block.URL)
		b.WriteString(")\n")
		if block.Caption != "" {
			b.WriteString("*")
			b.WriteString(block.Caption)
			b.WriteString("*\n")
		}
		b.WriteString("\n")

	case extract.BlockTable:
		writeTable(b, block)
	}
	return nil
}

func (s *Serializer) writeList(b *strings.Builder, list extract.ContentBlock, depth int) {
	indent := strings.Repeat("  ", depth)
	for i, item := range list.Items {
		bullet := "-"
		if list.Ordered {
			bullet = fmt.Sprintf("%d.", i+1)
		}
		b.WriteString(indent)
		b.WriteString(bullet)
		b.WriteString(" ")
		b.WriteString(item.Text)
		b.WriteString("\n")
		for _, nested := range item.Items {
			s.writeList(b, nested, depth+1)
		}
	}
}

// renderInline builds an HTML fragment from the paragraph's captured
// inline runs and hands it to the html-to-markdown converter rather than
// reimplementing inline-mark rendering by hand.
func (s *Serializer) renderInline(block extract.ContentBlock) (string, error) {
	if len(block.InlineRuns) == 0 {
		return block.Text, nil
	}

	var fragment strings.Builder
	for _, run := range block.InlineRuns {
		switch run.Kind {
		case extract.InlineBold:
			fragment.WriteString("<strong>" + html.EscapeString(run.Text) + "</strong>")
		case extract.InlineEm:
			fragment.WriteString("<em>" + html.EscapeString(run.Text) + "</em>")
		case extract.InlineCode:
			fragment.WriteString("<code>" + html.EscapeString(run.Text) + "</code>")
		case extract.InlineLink:
			fragment.WriteString(`<a href="` + html.EscapeString(run.Href) + `">` + html.EscapeString(run.Text) + "</a>")
		default:
			fragment.WriteString(html.EscapeString(run.Text))
			fragment.WriteString(" ")
		}
	}

	md, err := s.conv.ConvertString(fragment.String())
	if err != nil {
		return "", fmt.Errorf("markdown: render inline runs: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func writeTable(b *strings.Builder, block extract.ContentBlock) {
	if len(block.Rows) == 0 {
		return
	}
	cols := len(block.Rows[0])
	if cols <= maxPipeTableColumns {
		writePipeTable(b, block)
		return
	}
	writeTableAsNestedList(b, block)
}

func writePipeTable(b *strings.Builder, block extract.ContentBlock) {
	b.WriteString("\n")
	headerRows := block.HeaderRows
	if headerRows == 0 {
		headerRows = 1
	}
	header := block.Rows[0]
	b.WriteString("| " + strings.Join(escapeCells(header), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, row := range block.Rows[headerRows:] {
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	b.WriteString("\n")
}

func escapeCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ReplaceAll(c, "|", "\\|")
	}
	return out
}

func writeTableAsNestedList(b *strings.Builder, block extract.ContentBlock) {
	b.WriteString("\n")
	headerRows := block.HeaderRows
	if headerRows == 0 {
		headerRows = 1
	}
	header := block.Rows[0]
	for _, row := range block.Rows[headerRows:] {
		b.WriteString("- row:\n")
		for i, cell := range row {
			name := fmt.Sprintf("col%d", i+1)
			if i < len(header) && header[i] != "" {
				name = header[i]
			}
			b.WriteString("  - " + name + ": " + cell + "\n")
		}
	}
	b.WriteString("\n")
}

func sortedCopy(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}
