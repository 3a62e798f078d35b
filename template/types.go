// Package template loads, validates, matches, and (via extract) is
// executed against declarative per-site and generic extraction rules.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy is how a SelectorRule locates a value within parsed HTML.
type Strategy string

const (
	StrategyCSS    Strategy = "css"
	StrategyXPath  Strategy = "xpath"
	StrategyRegex  Strategy = "regex"
	StrategyJSONLD Strategy = "json_ld"
	StrategyMeta   Strategy = "meta"
)

var validStrategies = map[Strategy]bool{
	StrategyCSS: true, StrategyXPath: true, StrategyRegex: true,
	StrategyJSONLD: true, StrategyMeta: true,
}

var validTransformNames = map[string]bool{
	"strip": true, "collapse_whitespace": true, "extract_date": true,
	"absolutize_url": true,
}

// validateTransform accepts bare names and the parameterized
// "limit_length:N" form.
func validateTransform(t string) error {
	if validTransformNames[t] {
		return nil
	}
	if name, arg, ok := strings.Cut(t, ":"); ok && name == "limit_length" {
		if _, err := strconv.Atoi(arg); err == nil {
			return nil
		}
	}
	return fmt.Errorf("unknown transform %q", t)
}

// SelectorRule is one candidate rule for locating a field's value.
type SelectorRule struct {
	Selector       string   `yaml:"selector"`
	Strategy       Strategy `yaml:"strategy,omitempty"`
	Attribute      string   `yaml:"attribute,omitempty"`
	Transform      []string `yaml:"transform,omitempty"`
	Default        string   `yaml:"default,omitempty"`
	FirstMatchOnly bool     `yaml:"first_match_only,omitempty"`
}

// FieldSpec is a field's full selector spec: one or more candidate rules
// tried in order, the first producing a non-empty normalized value wins.
type FieldSpec struct {
	Candidates []SelectorRule
}

// UnmarshalYAML accepts a bare CSS-selector string, a list of strings
// and/or rule objects, or a single rule object.
func (f *FieldSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var asString string
		if err := value.Decode(&asString); err != nil {
			return err
		}
		f.Candidates = []SelectorRule{{Selector: asString, Strategy: StrategyCSS}}
		return nil

	case yaml.MappingNode:
		var raw rawRule
		if err := value.Decode(&raw); err != nil {
			return err
		}
		f.Candidates = []SelectorRule{raw.toRule()}
		return nil

	case yaml.SequenceNode:
		candidates := make([]SelectorRule, 0, len(value.Content))
		for _, item := range value.Content {
			var li rawListItem
			if err := li.decode(item); err != nil {
				return err
			}
			candidates = append(candidates, li.toRule())
		}
		f.Candidates = candidates
		return nil
	}

	return fmt.Errorf("template: selector spec must be a string, an object, or a list of either")
}

// rawRule mirrors SelectorRule for decoding; kept distinct so UnmarshalYAML
// can attempt string/object/list forms without infinite recursion.
type rawRule struct {
	Selector       string   `yaml:"selector"`
	Strategy       Strategy `yaml:"strategy"`
	Attribute      string   `yaml:"attribute"`
	Transform      []string `yaml:"transform"`
	Default        string   `yaml:"default"`
	FirstMatchOnly bool     `yaml:"first_match_only"`
}

func (r rawRule) toRule() SelectorRule {
	strategy := r.Strategy
	if strategy == "" {
		strategy = StrategyCSS
	}
	return SelectorRule{
		Selector: r.Selector, Strategy: strategy, Attribute: r.Attribute,
		Transform: r.Transform, Default: r.Default, FirstMatchOnly: r.FirstMatchOnly,
	}
}

// rawListItem is either a bare string or a rawRule object, used for list
// entries of a FieldSpec.
type rawListItem struct {
	asString string
	asRule   rawRule
	isString bool
}

func (i *rawListItem) decode(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if err := value.Decode(&i.asString); err != nil {
			return err
		}
		i.isString = true
		return nil
	}
	return value.Decode(&i.asRule)
}

func (i rawListItem) toRule() SelectorRule {
	if i.isString {
		return SelectorRule{Selector: i.asString, Strategy: StrategyCSS}
	}
	return i.asRule.toRule()
}

// Filters are the pre-cleanup removals applied before any selector runs.
type Filters struct {
	RemoveSelectors    []string `yaml:"remove_selectors,omitempty"`
	CSSClassesToRemove []string `yaml:"css_classes_to_remove,omitempty"`
	IDsToRemove        []string `yaml:"ids_to_remove,omitempty"`
	RemovePatterns     []string `yaml:"remove_patterns,omitempty"`
}

// Output directs the Markdown serializer.
type Output struct {
	MaxHeadingLevel int  `yaml:"max_heading_level,omitempty"`
	IncludeTOC      bool `yaml:"include_toc,omitempty"`
}

// Template is one loaded, validated extraction template.
type Template struct {
	Name     string               `yaml:"name"`
	Version  string               `yaml:"version"`
	Domains  []string             `yaml:"domains"`
	Priority int                  `yaml:"priority"`
	Selectors map[string]FieldSpec `yaml:"selectors"`
	Filters  Filters              `yaml:"filters"`
	Output   Output               `yaml:"output"`

	// RawMetadataKeys are the Selectors entries whose key is prefixed
	// "raw_metadata." — everything else is a first-class field.
	RawMetadataKeys map[string]string // stripped key -> original selectors key
}

const genericSentinelDomain = "*"

// IsGeneric reports whether t is the fallback template.
func (t *Template) IsGeneric() bool {
	for _, d := range t.Domains {
		if d == genericSentinelDomain {
			return true
		}
	}
	return false
}
