package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

// cjkDatePattern matches "YYYY年MM月DD日" and similar CJK-labeled dates.
var cjkDatePattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)

// lastRevisedPattern matches MediaWiki-style "本页面最后修订于" footers,
// which carry a standard-looking date right after the label.
var lastRevisedPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日\s*\(\S*\)\s*\d{1,2}:\d{2}`)

// collapseWhitespacePattern folds runs of whitespace (including newlines)
// down to a single space.
var collapseWhitespacePattern = regexp.MustCompile(`\s+`)

// runTransforms applies the named pipeline left to right against value,
// absolutizing against baseURL where relevant. It returns the transformed
// value and, when extract_date fails to parse, true for the second return
// so the caller can set the date_parse_failed raw_metadata flag.
func runTransforms(value string, transforms []string, baseURL string) (string, bool) {
	dateParseFailed := false
	for _, t := range transforms {
		switch {
		case t == "strip":
			value = strings.TrimSpace(value)
		case t == "collapse_whitespace":
			value = collapseWhitespacePattern.ReplaceAllString(strings.TrimSpace(value), " ")
		case t == "extract_date":
			parsed, ok := parseDate(value)
			if ok {
				value = parsed
			} else {
				dateParseFailed = true
			}
		case t == "absolutize_url":
			value = absolutizeURL(value, baseURL)
		case strings.HasPrefix(t, "limit_length:"):
			n, err := strconv.Atoi(strings.TrimPrefix(t, "limit_length:"))
			if err == nil {
				value = limitLength(value, n)
			}
		}
	}
	return value, dateParseFailed
}

// parseDate tries the CJK-labeled forms first (dateparse doesn't
// understand "年"/"月"/"日"), then falls back to dateparse.ParseAny for
// YYYY-MM-DD, MM/DD/YYYY, ISO 8601 and the rest.
func parseDate(raw string) (string, bool) {
	if m := lastRevisedPattern.FindStringSubmatch(raw); m != nil {
		return normalizeCJKDate(m), true
	}
	if m := cjkDatePattern.FindStringSubmatch(raw); m != nil {
		return normalizeCJKDate(m), true
	}
	t, err := dateparse.ParseAny(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func normalizeCJKDate(m []string) string {
	year := m[1]
	month := m[2]
	if len(month) == 1 {
		month = "0" + month
	}
	day := m[3]
	if len(day) == 1 {
		day = "0" + day
	}
	return year + "-" + month + "-" + day
}

func absolutizeURL(raw, baseURL string) string {
	if raw == "" || baseURL == "" {
		return raw
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return raw
	}
	resolved, err := base.Parse(raw)
	if err != nil {
		return raw
	}
	return resolved.String()
}

func limitLength(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
