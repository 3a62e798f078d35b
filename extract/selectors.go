package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/use-agent/distill/template"
)

// ctx carries the per-document state every selector strategy needs:
// the parsed goquery tree, the raw HTML (for regex/json_ld), the final
// URL (for absolutize_url) and a lazily-built xpath tree.
type ctx struct {
	doc      *goquery.Document
	rawHTML  string
	finalURL string

	xpathRoot *html.Node // parsed once, shared by every xpath candidate
}

// resolveField tries a FieldSpec's candidates in order, returning the
// first non-empty normalized value; falls back to the first non-empty
// Default among the candidates if every candidate comes up empty.
func (c *ctx) resolveField(spec template.FieldSpec) (string, bool) {
	dateParseFailed := false
	for _, rule := range spec.Candidates {
		raw := c.resolveRule(rule)
		if raw == "" {
			continue
		}
		value, failed := runTransforms(raw, rule.Transform, c.finalURL)
		if failed {
			dateParseFailed = true
		}
		if value != "" {
			return value, dateParseFailed
		}
	}
	for _, rule := range spec.Candidates {
		if rule.Default != "" {
			return rule.Default, dateParseFailed
		}
	}
	return "", dateParseFailed
}

// resolveFieldList is resolveField's counterpart for list-valued fields
// (categories, tags): each CSS match becomes its own transformed list
// item instead of being joined into one string. Non-CSS strategies yield
// at most one item.
func (c *ctx) resolveFieldList(spec template.FieldSpec) []string {
	for _, rule := range spec.Candidates {
		if rule.Strategy != template.StrategyCSS && rule.Strategy != "" {
			if v := c.resolveRule(rule); v != "" {
				value, _ := runTransforms(v, rule.Transform, c.finalURL)
				if value != "" {
					return []string{value}
				}
			}
			continue
		}

		sel := c.doc.Find(rule.Selector)
		if sel.Length() == 0 {
			continue
		}
		var out []string
		sel.Each(func(_ int, s *goquery.Selection) {
			v := extractOne(s, rule.Attribute)
			if v == "" {
				return
			}
			value, _ := runTransforms(v, rule.Transform, c.finalURL)
			if value != "" {
				out = append(out, value)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (c *ctx) resolveRule(rule template.SelectorRule) string {
	switch rule.Strategy {
	case template.StrategyCSS:
		return c.resolveCSS(rule)
	case template.StrategyXPath:
		return c.resolveXPath(rule)
	case template.StrategyRegex:
		return c.resolveRegex(rule)
	case template.StrategyJSONLD:
		return c.resolveJSONLD(rule)
	case template.StrategyMeta:
		return c.resolveMeta(rule)
	default:
		return ""
	}
}

func (c *ctx) resolveCSS(rule template.SelectorRule) string {
	sel := c.doc.Find(rule.Selector)
	if sel.Length() == 0 {
		return ""
	}
	if rule.FirstMatchOnly {
		return extractOne(sel.First(), rule.Attribute)
	}

	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		v := extractOne(s, rule.Attribute)
		if v != "" {
			parts = append(parts, v)
		}
	})
	if len(parts) == 0 {
		return ""
	}
	if rule.Attribute != "" {
		return strings.Join(parts, " ")
	}
	return strings.Join(parts, "\n\n")
}

func extractOne(s *goquery.Selection, attribute string) string {
	if attribute == "" {
		return normalizeText(s.Text())
	}
	name := strings.TrimPrefix(attribute, "@")
	v, _ := s.Attr(name)
	return v
}

// normalizeText strips leading/trailing whitespace and collapses internal
// runs of whitespace within a run, preserving block-boundary newlines the
// caller already joined with "\n\n".
func normalizeText(s string) string {
	return collapseWhitespacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
}

func (c *ctx) resolveXPath(rule template.SelectorRule) string {
	if c.xpathRoot == nil {
		root, err := htmlquery.Parse(strings.NewReader(c.rawHTML))
		if err != nil {
			return ""
		}
		c.xpathRoot = root
	}

	nodes := htmlquery.Find(c.xpathRoot, rule.Selector)
	if len(nodes) == 0 {
		return ""
	}
	if rule.FirstMatchOnly {
		return extractXPathNode(nodes[0], rule.Attribute)
	}
	var parts []string
	for _, n := range nodes {
		v := extractXPathNode(n, rule.Attribute)
		if v != "" {
			parts = append(parts, v)
		}
	}
	sep := "\n\n"
	if rule.Attribute != "" {
		sep = " "
	}
	return strings.Join(parts, sep)
}

func extractXPathNode(n *html.Node, attribute string) string {
	if attribute == "" {
		return normalizeText(htmlquery.InnerText(n))
	}
	name := strings.TrimPrefix(attribute, "@")
	return htmlquery.SelectAttr(n, name)
}

func (c *ctx) resolveRegex(rule template.SelectorRule) string {
	re, err := regexp.Compile(rule.Selector)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(c.rawHTML)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// resolveJSONLD parses every <script type="application/ld+json"> block in
// document order and evaluates a gjson path against each block in turn,
// returning the value from the first block where the path exists. Blocks
// are not merged into one document, so a path never combines values from
// different blocks. Malformed blocks are skipped, not fatal.
func (c *ctx) resolveJSONLD(rule template.SelectorRule) string {
	var blocks []string
	c.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var v interface{}
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return
		}
		blocks = append(blocks, text)
	})
	if len(blocks) == 0 {
		return ""
	}

	path := strings.TrimPrefix(rule.Selector, "$.")
	for _, b := range blocks {
		res := gjson.Get(b, path)
		if res.Exists() {
			return res.String()
		}
	}
	return ""
}

func (c *ctx) resolveMeta(rule template.SelectorRule) string {
	name := strings.ToLower(rule.Selector)
	var found string
	c.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		attrName, _ := s.Attr("name")
		attrProp, _ := s.Attr("property")
		if strings.ToLower(attrName) == name || strings.ToLower(attrProp) == name {
			found, _ = s.Attr("content")
			return false
		}
		return true
	})
	return found
}
