package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/distill/template"
)

// applyFilters runs the pre-cleanup pipeline in order: ids, then classes,
// then the selector list, then regex removal of remaining text.
func applyFilters(doc *goquery.Document, f template.Filters) {
	for _, id := range f.IDsToRemove {
		doc.Find(`[id="` + id + `"]`).Remove()
	}

	if len(f.CSSClassesToRemove) > 0 {
		doc.Find("*").Each(func(_ int, s *goquery.Selection) {
			class, ok := s.Attr("class")
			if !ok {
				return
			}
			classes := strings.Fields(class)
			for _, want := range f.CSSClassesToRemove {
				for _, have := range classes {
					if have == want {
						s.Remove()
						return
					}
				}
			}
		})
	}

	for _, sel := range f.RemoveSelectors {
		doc.Find(sel).Remove()
	}

	if len(f.RemovePatterns) == 0 {
		return
	}
	patterns := make([]*regexp.Regexp, 0, len(f.RemovePatterns))
	for _, p := range f.RemovePatterns {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	stripPatternsFromText(doc.Selection, patterns)
}

// stripPatternsFromText rewrites text nodes in place, removing any
// substring matched by one of the compiled remove_patterns.
func stripPatternsFromText(sel *goquery.Selection, patterns []*regexp.Regexp) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			text := node.Text()
			for _, re := range patterns {
				text = re.ReplaceAllString(text, "")
			}
			if text != node.Text() {
				node.ReplaceWithHtml(escapeHTMLText(text))
			}
			return
		}
		stripPatternsFromText(node, patterns)
	})
}

func escapeHTMLText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
