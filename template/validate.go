package template

import (
	"fmt"
	"regexp"
	"strings"
)

// validate checks a decoded Template: transforms must be known, domains
// non-empty, regex filters well-formed. It also records raw_metadata.<key>
// selector entries in RawMetadataKeys; they stay in Selectors.
func (t *Template) validate() error {
	if t.Name == "" {
		return fmt.Errorf("template: missing name")
	}
	if len(t.Domains) == 0 {
		return fmt.Errorf("template %q: domains must be non-empty", t.Name)
	}

	t.RawMetadataKeys = make(map[string]string)
	for key := range t.Selectors {
		if strings.HasPrefix(key, "raw_metadata.") {
			stripped := strings.TrimPrefix(key, "raw_metadata.")
			t.RawMetadataKeys[stripped] = key
		}
	}

	for field, spec := range t.Selectors {
		for _, rule := range spec.Candidates {
			if !validStrategies[rule.Strategy] {
				return fmt.Errorf("template %q: field %q: invalid strategy %q", t.Name, field, rule.Strategy)
			}
			for _, tr := range rule.Transform {
				if err := validateTransform(tr); err != nil {
					return fmt.Errorf("template %q: field %q: %w", t.Name, field, err)
				}
			}
			if rule.Strategy == StrategyRegex {
				if _, err := regexp.Compile(rule.Selector); err != nil {
					return fmt.Errorf("template %q: field %q: invalid regex selector: %w", t.Name, field, err)
				}
			}
		}
	}

	for _, pattern := range t.Filters.RemovePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("template %q: invalid remove_patterns entry %q: %w", t.Name, pattern, err)
		}
	}

	if t.Output.MaxHeadingLevel == 0 {
		t.Output.MaxHeadingLevel = 6
	}

	return nil
}
