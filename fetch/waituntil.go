package fetch

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// waitKind is the parsed form of a routing.Action.WaitUntil string, which
// may be a bare keyword (dom_loaded, network_idle) or a prefixed form
// (selector_visible:<css>, custom_delay_ms:<n>).
type waitKind struct {
	keyword  string
	selector string
	delayMs  int
}

func parseWaitUntil(raw string) waitKind {
	switch {
	case raw == "" || raw == "dom_loaded":
		return waitKind{keyword: "dom_loaded"}
	case raw == "network_idle":
		return waitKind{keyword: "network_idle"}
	case strings.HasPrefix(raw, "selector_visible:"):
		return waitKind{keyword: "selector_visible", selector: strings.TrimPrefix(raw, "selector_visible:")}
	case strings.HasPrefix(raw, "custom_delay_ms:"):
		n, _ := strconv.Atoi(strings.TrimPrefix(raw, "custom_delay_ms:"))
		return waitKind{keyword: "custom_delay_ms", delayMs: n}
	default:
		return waitKind{keyword: "dom_loaded"}
	}
}

// applyWaitStrategy executes the named wait on page. network_idle falls
// back to WaitDOMStable because WaitRequestIdle's Fetch-domain listener
// conflicts with hijack-based request interception, the same tradeoff the
// original scraper made.
func applyWaitStrategy(page *rod.Page, w waitKind) {
	switch w.keyword {
	case "network_idle":
		_ = page.WaitDOMStable(300*time.Millisecond, 0.1)
	case "selector_visible":
		if w.selector != "" {
			_, _ = page.Timeout(10 * time.Second).Element(w.selector)
		}
	case "custom_delay_ms":
		d := time.Duration(w.delayMs) * time.Millisecond
		select {
		case <-time.After(d):
		case <-page.GetContext().Done():
		}
	default: // dom_loaded
		_ = page.WaitLoad()
	}
}
