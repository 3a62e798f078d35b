package markdown

import (
	"strings"
	"testing"

	"github.com/use-agent/distill/extract"
)

func TestSerialize_SimpleArticle(t *testing.T) {
	doc := &extract.ExtractedDocument{
		Title: "Hello",
		URL:   "https://www.example.com/article-1",
		ContentBlocks: []extract.ContentBlock{
			{Type: extract.BlockParagraph, Text: "World."},
		},
	}

	out, err := NewSerializer().Serialize(doc)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if !strings.Contains(out, "title: Hello") {
		t.Errorf("front matter missing title: %q", out)
	}
	if !strings.Contains(out, "World.") {
		t.Errorf("body missing paragraph text: %q", out)
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Errorf("expected exactly one trailing newline, got %q", out[len(out)-5:])
	}
}

func TestSerialize_Deterministic(t *testing.T) {
	doc := &extract.ExtractedDocument{
		Title: "T",
		URL:   "https://example.com/",
		RawMetadata: map[string]string{
			"z_key": "1",
			"a_key": "2",
		},
		ContentBlocks: []extract.ContentBlock{
			{Type: extract.BlockHeading, Level: 2, Text: "Section"},
			{Type: extract.BlockParagraph, Text: "Body."},
		},
	}

	s := NewSerializer()
	first, err := s.Serialize(doc)
	if err != nil {
		t.Fatalf("first Serialize error: %v", err)
	}
	second, err := s.Serialize(doc)
	if err != nil {
		t.Fatalf("second Serialize error: %v", err)
	}
	if first != second {
		t.Fatalf("Serialize is not deterministic:\n%q\nvs\n%q", first, second)
	}
}

func TestSerialize_PipeTable(t *testing.T) {
	doc := &extract.ExtractedDocument{
		Title: "T",
		URL:   "https://example.com/",
		ContentBlocks: []extract.ContentBlock{
			{
				Type:       extract.BlockTable,
				HeaderRows: 1,
				Rows: [][]string{
					{"A", "B"},
					{"1", "2"},
				},
			},
		},
	}
	out, err := NewSerializer().Serialize(doc)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if !strings.Contains(out, "| A | B |") || !strings.Contains(out, "| 1 | 2 |") {
		t.Errorf("expected pipe table rows, got %q", out)
	}
}

func TestSerialize_CodeBlock(t *testing.T) {
	doc := &extract.ExtractedDocument{
		Title: "T",
		URL:   "https://example.com/",
		ContentBlocks: []extract.ContentBlock{
			{Type: extract.BlockCodeBlock, Language: "go", Text: `fmt.Println("hi")`},
		},
	}
	out, err := NewSerializer().Serialize(doc)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if !strings.Contains(out, "```go\nfmt.Println(\"hi\")\n```") {
		t.Errorf("expected fenced code block, got %q", out)
	}
}
