package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/antchfx/htmlquery"
	"github.com/use-agent/distill/template"
)

const maxDataURLBytes = 2048

// resolveContentContainer finds the element(s) the content walk descends
// into, trying each candidate's selector in order and returning the first
// match. Generalizes cleaner/pruning.go's fixed `body.Children()` walk to
// an arbitrary, template-chosen root.
func (c *ctx) resolveContentContainer(spec template.FieldSpec) *goquery.Selection {
	for _, rule := range spec.Candidates {
		switch rule.Strategy {
		case template.StrategyCSS, "":
			sel := c.doc.Find(rule.Selector)
			if sel.Length() > 0 {
				return sel
			}
		case template.StrategyXPath:
			if c.xpathRoot == nil {
				root, err := htmlquery.Parse(strings.NewReader(c.rawHTML))
				if err != nil {
					continue
				}
				c.xpathRoot = root
			}
			nodes := htmlquery.Find(c.xpathRoot, rule.Selector)
			if len(nodes) == 0 {
				continue
			}
			var fragment strings.Builder
			for _, n := range nodes {
				fragment.WriteString(htmlquery.OutputHTML(n, true))
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment.String()))
			if err != nil {
				continue
			}
			return doc.Find("body").Children()
		}
	}
	return nil
}

// walkContent produces the ordered content_blocks list by a single-pass
// recursive walk over container's children. demoteH1 is true when a
// document-level title already exists, so h1 inside the content
// container doesn't duplicate it.
func walkContent(container *goquery.Selection, baseURL string, demoteH1 bool, maxHeadingLevel int) ([]ContentBlock, int) {
	var blocks []ContentBlock
	var imagesDiscarded int

	container.Each(func(_ int, s *goquery.Selection) {
		bs, discarded := walkNode(s, baseURL, demoteH1, maxHeadingLevel)
		blocks = append(blocks, bs...)
		imagesDiscarded += discarded
	})
	return blocks, imagesDiscarded
}

func walkNode(s *goquery.Selection, baseURL string, demoteH1 bool, maxHeadingLevel int) ([]ContentBlock, int) {
	tag := goquery.NodeName(s)
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(tag[1:])
		if tag == "h1" && demoteH1 {
			level = 2
		}
		if level > maxHeadingLevel {
			level = maxHeadingLevel
		}
		return []ContentBlock{{Type: BlockHeading, Level: level, Text: normalizeText(s.Text())}}, 0

	case "p":
		runs, imgs := walkInline(s, baseURL)
		return []ContentBlock{{Type: BlockParagraph, Text: normalizeText(s.Text()), InlineRuns: runs, InlineImages: imgs}}, 0

	case "ul", "ol":
		var items []ContentBlock
		var discarded int
		s.Children().Each(func(_ int, li *goquery.Selection) {
			if goquery.NodeName(li) != "li" {
				return
			}
			nested := li.Find("ul, ol").First()
			if nested.Length() > 0 {
				nestedBlocks, d := walkContent(nested, baseURL, demoteH1, maxHeadingLevel)
				discarded += d
				runs, imgs := walkInline(li, baseURL)
				items = append(items, ContentBlock{
					Type: BlockParagraph, Text: normalizeText(directText(li)),
					InlineRuns: runs, InlineImages: imgs, Items: nestedBlocks,
				})
				return
			}
			runs, imgs := walkInline(li, baseURL)
			items = append(items, ContentBlock{Type: BlockParagraph, Text: normalizeText(li.Text()), InlineRuns: runs, InlineImages: imgs})
		})
		return []ContentBlock{{Type: BlockList, Ordered: tag == "ol", Items: items}}, discarded

	case "pre":
		code := s.Find("code").First()
		language := ""
		text := s.Text()
		if code.Length() > 0 {
			text = code.Text()
			language = languageFromClass(code)
		}
		return []ContentBlock{{Type: BlockCodeBlock, Language: language, Text: strings.TrimRight(text, "\n")}}, 0

	case "blockquote":
		return []ContentBlock{{Type: BlockQuote, Text: normalizeText(s.Text())}}, 0

	case "img":
		block, discarded := imageBlock(s, baseURL)
		if discarded {
			return nil, 1
		}
		return []ContentBlock{block}, 0

	case "table":
		return []ContentBlock{tableBlock(s)}, 0

	case "script", "style", "noscript":
		return nil, 0

	default:
		var blocks []ContentBlock
		var discarded int
		hasElementChildren := false
		s.Children().Each(func(_ int, child *goquery.Selection) {
			hasElementChildren = true
			bs, d := walkNode(child, baseURL, demoteH1, maxHeadingLevel)
			blocks = append(blocks, bs...)
			discarded += d
		})
		if !hasElementChildren {
			if text := normalizeText(s.Text()); text != "" {
				return []ContentBlock{{Type: BlockParagraph, Text: text}}, discarded
			}
			return nil, discarded
		}
		return blocks, discarded
	}
}

// directText returns a list item's own text, excluding any nested list's
// text, so the parent item doesn't duplicate its children's content.
func directText(li *goquery.Selection) string {
	clone := li.Clone()
	clone.Find("ul, ol").Remove()
	return clone.Text()
}

func languageFromClass(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	for _, c := range strings.Fields(class) {
		if strings.HasPrefix(c, "language-") {
			return strings.TrimPrefix(c, "language-")
		}
	}
	return ""
}

func imageBlock(s *goquery.Selection, baseURL string) (ContentBlock, bool) {
	src, _ := s.Attr("src")
	if src == "" {
		return ContentBlock{}, true
	}
	if strings.HasPrefix(src, "data:") && len(src) > maxDataURLBytes {
		return ContentBlock{}, true
	}
	alt, _ := s.Attr("alt")
	caption := ""
	if fig := s.Closest("figure"); fig.Length() > 0 {
		caption = normalizeText(fig.Find("figcaption").First().Text())
	}
	return ContentBlock{Type: BlockImage, URL: absolutizeURL(src, baseURL), Alt: strings.TrimSpace(alt), Caption: caption}, false
}

func tableBlock(s *goquery.Selection) ContentBlock {
	var rows [][]string
	headerRows := 0

	s.Find("thead tr").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, rowCells(tr))
		headerRows++
	})
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("thead").Length() > 0 {
			return
		}
		rows = append(rows, rowCells(tr))
	})
	if headerRows == 0 && len(rows) > 0 {
		// No explicit <thead>; a row made entirely of <th> is the header.
		if allTH(s) {
			headerRows = 1
		}
	}
	return ContentBlock{Type: BlockTable, Rows: rows, HeaderRows: headerRows}
}

func rowCells(tr *goquery.Selection) []string {
	var cells []string
	tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, normalizeText(cell.Text()))
	})
	return cells
}

func allTH(table *goquery.Selection) bool {
	firstRow := table.Find("tr").First()
	if firstRow.Length() == 0 {
		return false
	}
	total := firstRow.Find("th, td").Length()
	ths := firstRow.Find("th").Length()
	return total > 0 && total == ths
}

// walkInline captures inline formatting within a paragraph-like element as
// typed runs plus any inline images, so the Markdown serializer can
// restore both.
func walkInline(s *goquery.Selection, baseURL string) ([]InlineRun, []InlineImage) {
	var runs []InlineRun
	var images []InlineImage

	s.Contents().Each(func(_ int, node *goquery.Selection) {
		switch goquery.NodeName(node) {
		case "#text":
			if text := node.Text(); strings.TrimSpace(text) != "" {
				runs = append(runs, InlineRun{Kind: InlinePlain, Text: normalizeText(text)})
			}
		case "a":
			href, _ := node.Attr("href")
			runs = append(runs, InlineRun{Kind: InlineLink, Text: normalizeText(node.Text()), Href: absolutizeURL(href, baseURL)})
		case "strong", "b":
			runs = append(runs, InlineRun{Kind: InlineBold, Text: normalizeText(node.Text())})
		case "em", "i":
			runs = append(runs, InlineRun{Kind: InlineEm, Text: normalizeText(node.Text())})
		case "code":
			runs = append(runs, InlineRun{Kind: InlineCode, Text: node.Text()})
		case "img":
			src, _ := node.Attr("src")
			if src != "" {
				alt, _ := node.Attr("alt")
				images = append(images, InlineImage{URL: absolutizeURL(src, baseURL), Alt: strings.TrimSpace(alt)})
			}
		default:
			childRuns, childImages := walkInline(node, baseURL)
			runs = append(runs, childRuns...)
			images = append(images, childImages...)
		}
	})
	return runs, images
}
