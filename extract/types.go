// Package extract runs a Template's selector/transform/content-walk
// pipeline over fetched HTML and produces an ExtractedDocument, the
// structured intermediate consumed by the markdown serializer.
package extract

// BlockType discriminates the typed content blocks a content walk
// produces.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockCodeBlock BlockType = "code_block"
	BlockQuote     BlockType = "quote"
	BlockImage     BlockType = "image"
	BlockTable     BlockType = "table"
)

// InlineRunKind discriminates formatted runs within a paragraph's text.
type InlineRunKind string

const (
	InlinePlain InlineRunKind = "plain"
	InlineBold  InlineRunKind = "bold"
	InlineEm    InlineRunKind = "em"
	InlineCode  InlineRunKind = "code"
	InlineLink  InlineRunKind = "link"
)

// InlineRun is one formatted span within a paragraph.
type InlineRun struct {
	Kind InlineRunKind
	Text string
	Href string // only meaningful for InlineLink, already absolutized
}

// InlineImage is an <img> found inside a paragraph, kept alongside the
// paragraph's text rather than promoted to a standalone block.
type InlineImage struct {
	URL string
	Alt string
}

// ContentBlock is one node of the ordered content_blocks list. Exactly one
// of the type-specific fields is meaningful, selected by Type.
type ContentBlock struct {
	Type BlockType

	// heading
	Level int
	Text  string // also used by paragraph/quote (joined run text) and code_block

	// paragraph
	InlineRuns   []InlineRun
	InlineImages []InlineImage

	// list
	Ordered bool
	Items   []ContentBlock // each item is itself a block (usually paragraph); may nest lists

	// code_block
	Language string

	// image
	URL     string
	Alt     string
	Caption string

	// table
	Rows       [][]string
	HeaderRows int
}

// ExtractedDocument is the normalized output of one extraction run.
type ExtractedDocument struct {
	URL            string
	Title          string
	Author         string
	PublishTime    string // ISO 8601 if parseable, else the raw string
	SourceName     string
	Language       string
	ContentBlocks  []ContentBlock
	Categories     []string
	Tags           []string
	CoverImageURL  string
	RawMetadata    map[string]string

	// TemplateUsed and ContentCharCount are orchestrator bookkeeping,
	// cheapest to carry alongside the document they describe.
	TemplateUsed      string
	ContentCharCount  int
}
