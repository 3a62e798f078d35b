package extract

import (
	"strings"
	"testing"

	"github.com/use-agent/distill/template"
)

func css(selector string) template.FieldSpec {
	return template.FieldSpec{Candidates: []template.SelectorRule{
		{Selector: selector, Strategy: template.StrategyCSS, Transform: []string{"strip"}},
	}}
}

func genericTemplate() *template.Template {
	return &template.Template{
		Name: "generic",
		Selectors: map[string]template.FieldSpec{
			"title":   css("h1"),
			"content": css("article"),
		},
		Output: template.Output{MaxHeadingLevel: 6},
	}
}

func TestExecutor_SimpleArticle(t *testing.T) {
	html := `<html><body><h1>Hello</h1><article><p>World.</p></article></body></html>`

	doc, err := NewExecutor().Run(html, "https://www.example.com/article-1", genericTemplate())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if doc.Title != "Hello" {
		t.Errorf("Title = %q, want Hello", doc.Title)
	}
	if len(doc.ContentBlocks) != 1 || doc.ContentBlocks[0].Type != BlockParagraph || doc.ContentBlocks[0].Text != "World." {
		t.Errorf("ContentBlocks = %+v", doc.ContentBlocks)
	}
	if doc.ContentCharCount != 5 {
		t.Errorf("ContentCharCount = %d, want 5", doc.ContentCharCount)
	}
}

func TestExecutor_MissingTitleIsError(t *testing.T) {
	html := `<html><body><article><p>World.</p></article></body></html>`
	_, err := NewExecutor().Run(html, "https://example.com/x", genericTemplate())
	if err == nil {
		t.Fatal("expected an error for empty title")
	}
}

func TestExecutor_HeadingLevelsAndCodeBlock(t *testing.T) {
	html := `<html><body><h1>T</h1><article>
		<h2>Section</h2>
		<pre><code class="language-go">fmt.Println("hi")</code></pre>
	</article></body></html>`

	doc, err := NewExecutor().Run(html, "https://example.com/", genericTemplate())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	var haveHeading, haveCode bool
	for _, b := range doc.ContentBlocks {
		if b.Type == BlockHeading {
			haveHeading = true
			if b.Level != 2 {
				t.Errorf("heading level = %d, want 2", b.Level)
			}
		}
		if b.Type == BlockCodeBlock {
			haveCode = true
			if b.Language != "go" {
				t.Errorf("code language = %q, want go", b.Language)
			}
		}
	}
	if !haveHeading || !haveCode {
		t.Fatalf("expected both a heading and a code block, got %+v", doc.ContentBlocks)
	}
}

func TestExecutor_TableRows(t *testing.T) {
	html := `<html><body><h1>T</h1><article>
		<table><thead><tr><th>A</th><th>B</th></tr></thead>
		<tbody><tr><td>1</td><td>2</td></tr></tbody></table>
	</article></body></html>`

	doc, err := NewExecutor().Run(html, "https://example.com/", genericTemplate())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	var table *ContentBlock
	for i := range doc.ContentBlocks {
		if doc.ContentBlocks[i].Type == BlockTable {
			table = &doc.ContentBlocks[i]
		}
	}
	if table == nil {
		t.Fatalf("expected a table block, got %+v", doc.ContentBlocks)
	}
	if table.HeaderRows != 1 {
		t.Errorf("HeaderRows = %d, want 1", table.HeaderRows)
	}
	if len(table.Rows) != 2 || table.Rows[1][0] != "1" || table.Rows[1][1] != "2" {
		t.Errorf("Rows = %+v", table.Rows)
	}
}

func TestExecutor_FiltersRemoveSelectorsAndIDs(t *testing.T) {
	html := `<html><body><h1>T</h1><article>
		<p>keep</p>
		<div class="navbox">drop</div>
		<div id="comments">drop too</div>
	</article></body></html>`

	tmpl := genericTemplate()
	tmpl.Filters = template.Filters{
		RemoveSelectors: []string{".navbox"},
		IDsToRemove:     []string{"comments"},
	}

	doc, err := NewExecutor().Run(html, "https://example.com/", tmpl)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, b := range doc.ContentBlocks {
		if strings.Contains(b.Text, "drop") {
			t.Errorf("filtered content leaked into blocks: %+v", doc.ContentBlocks)
		}
	}
}

func TestExecutor_ImageAbsolutizedAndDataURLDiscarded(t *testing.T) {
	html := `<html><body><h1>T</h1><article>
		<img src="/photo.png" alt="a photo">
		<img src="data:image/png;base64,` + strings.Repeat("A", 3000) + `">
	</article></body></html>`

	doc, err := NewExecutor().Run(html, "https://example.com/dir/page", genericTemplate())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	var found bool
	for _, b := range doc.ContentBlocks {
		if b.Type == BlockImage {
			found = true
			if b.URL != "https://example.com/photo.png" {
				t.Errorf("image URL = %q, want absolutized", b.URL)
			}
		}
	}
	if !found {
		t.Fatalf("expected one surviving image block, got %+v", doc.ContentBlocks)
	}
}

func TestRunTransforms_ExtractDate(t *testing.T) {
	cases := []struct{ raw, want string }{
		{"2024-03-05", "2024-03-05"},
		{"2024年3月5日", "2024-03-05"},
		{"03/05/2024", "2024-03-05"},
	}
	for _, tc := range cases {
		got, failed := runTransforms(tc.raw, []string{"extract_date"}, "")
		if failed {
			t.Errorf("extract_date failed to parse %q", tc.raw)
		}
		if got != tc.want {
			t.Errorf("extract_date(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestRunTransforms_LimitLength(t *testing.T) {
	got, _ := runTransforms("hello world", []string{"limit_length:5"}, "")
	if got != "hello…" {
		t.Errorf("limit_length:5 = %q, want %q", got, "hello…")
	}
}
