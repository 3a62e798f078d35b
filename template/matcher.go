package template

import "strings"

// index is a two-shape lookup structure: an exact domain map plus an
// ordered list of glob templates, with the generic template addressable
// separately.
type index struct {
	exact   map[string]*Template
	globs   []*Template // sorted priority desc, then dot count desc, then name asc
	generic *Template
}

func buildIndex(templates []*Template) (*index, error) {
	idx := &index{exact: make(map[string]*Template)}

	for _, t := range templates {
		if t.IsGeneric() {
			idx.generic = t
			continue
		}
		for _, d := range t.Domains {
			if strings.HasPrefix(d, "*.") {
				idx.globs = append(idx.globs, t)
			} else {
				idx.exact[normalizeHost(d)] = t
			}
		}
	}

	sortTemplatesByPriority(idx.globs)
	return idx, nil
}

func sortTemplatesByPriority(ts []*Template) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && less(ts[j], ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// less orders by priority descending, then by dot-count descending (more
// specific domain wins a tie), then lexicographic name, per §3/§4.5.
func less(a, b *Template) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if dc := maxDotCount(a) - maxDotCount(b); dc != 0 {
		return dc > 0
	}
	return a.Name < b.Name
}

func maxDotCount(t *Template) int {
	max := 0
	for _, d := range t.Domains {
		if n := strings.Count(d, "."); n > max {
			max = n
		}
	}
	return max
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Match selects the best template for a URL's host, per §4.5: exact match
// first, then the highest-priority matching glob, falling back to generic.
func (idx *index) Match(host string) *Template {
	host = normalizeHost(host)

	if t, ok := idx.exact[host]; ok {
		return t
	}

	for _, t := range idx.globs {
		for _, d := range t.Domains {
			if globMatches(d, host) {
				return t
			}
		}
	}

	return idx.generic
}

func globMatches(glob, host string) bool {
	if !strings.HasPrefix(glob, "*.") {
		return glob == host
	}
	suffix := glob[1:]
	return host == glob[2:] || strings.HasSuffix(host, suffix)
}
