package template

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

const genericYAML = `
name: generic
version: 1.0.0
domains: ["*"]
priority: 0
selectors:
  title: h1
  content: article
`

const wikipediaYAML = `
name: zh-wikipedia
version: 1.0.0
domains: ["zh.wikipedia.org"]
priority: 100
selectors:
  title: "#firstHeading"
  content: "#mw-content-text"
  raw_metadata.toc:
    strategy: css
    selector: "#toc"
filters:
  remove_selectors: [".mw-editsection", "#toc", ".navbox"]
`

func TestStore_LoadsAndMatches(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "generic.yaml", genericYAML)
	writeTemplate(t, dir, "wikipedia.yaml", wikipediaYAML)

	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	got := store.Match("zh.wikipedia.org")
	if got.Name != "zh-wikipedia" {
		t.Errorf("Match(zh.wikipedia.org) = %q, want zh-wikipedia", got.Name)
	}

	generic := store.Match("example.com")
	if generic.Name != "generic" {
		t.Errorf("Match(example.com) = %q, want generic", generic.Name)
	}
}

func TestStore_MissingGenericIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "wikipedia.yaml", wikipediaYAML)

	if _, err := NewStore(dir, nil); err == nil {
		t.Error("expected an error when no generic template is present")
	}
}

func TestStore_InvalidTemplateIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "generic.yaml", genericYAML)
	writeTemplate(t, dir, "broken.yaml", `
name: broken
domains: ["broken.com"]
selectors:
  title:
    strategy: not_a_real_strategy
    selector: h1
`)

	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore should tolerate one broken template: %v", err)
	}
	got := store.Match("broken.com")
	if got.Name != "generic" {
		t.Errorf("broken.com should fall back to generic, got %q", got.Name)
	}
}

func TestFieldSpec_AcceptsStringListAndObjectForms(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "generic.yaml", genericYAML)
	writeTemplate(t, dir, "mixed.yaml", `
name: mixed
domains: ["mixed.example.com"]
priority: 10
selectors:
  title:
    - "h1.headline"
    - selector: "meta[property='og:title']"
      strategy: meta
      attribute: content
  author: ".byline"
`)

	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tmpl := store.Match("mixed.example.com")
	if tmpl.Name != "mixed" {
		t.Fatalf("expected mixed template to match, got %q", tmpl.Name)
	}
	titleSpec := tmpl.Selectors["title"]
	if len(titleSpec.Candidates) != 2 {
		t.Fatalf("expected 2 candidates for title, got %d", len(titleSpec.Candidates))
	}
	if titleSpec.Candidates[0].Selector != "h1.headline" {
		t.Errorf("first candidate selector = %q", titleSpec.Candidates[0].Selector)
	}
	if titleSpec.Candidates[1].Strategy != StrategyMeta {
		t.Errorf("second candidate strategy = %q, want meta", titleSpec.Candidates[1].Strategy)
	}

	authorSpec := tmpl.Selectors["author"]
	if len(authorSpec.Candidates) != 1 || authorSpec.Candidates[0].Selector != ".byline" {
		t.Errorf("author spec not decoded as a single CSS candidate: %+v", authorSpec.Candidates)
	}
}

func TestTemplate_PriorityTieBrokenByDotCountThenName(t *testing.T) {
	templates := []*Template{
		{Name: "b-template", Priority: 10, Domains: []string{"*.example.com"}},
		{Name: "a-template", Priority: 10, Domains: []string{"*.blog.example.com"}},
	}
	idx, err := buildIndex(templates)
	if err != nil {
		t.Fatalf("buildIndex: %v", err)
	}
	if len(idx.globs) != 2 || idx.globs[0].Name != "a-template" {
		t.Errorf("expected a-template (more specific domain) first, got order %v", namesOf(idx.globs))
	}
}

func namesOf(ts []*Template) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}
