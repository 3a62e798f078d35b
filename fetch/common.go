package fetch

import "strings"

// DefaultMaxBodyBytes is the truncation cap applied when a caller doesn't
// configure one explicitly (10 MiB).
const DefaultMaxBodyBytes = 10 << 20

// truncate caps body at max bytes, reporting whether it cut anything.
func truncate(body []byte, max int64) ([]byte, bool) {
	if max <= 0 || int64(len(body)) <= max {
		return body, false
	}
	return body[:max], true
}

// wantsEncoding reports whether acceptEncoding (an Accept-Encoding header
// value) permits the given content-coding.
func wantsEncoding(acceptEncoding, coding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		if strings.TrimSpace(strings.SplitN(part, ";", 2)[0]) == coding {
			return true
		}
	}
	return false
}

// registrableDomain returns a coarse eTLD+1 approximation: the last two
// labels of the host, which is enough to decide whether two hosts share a
// cookie jar for the public-suffix-list-free redirect hops this fetcher
// follows (§4.4.1).
func registrableDomain(host string) string {
	host = strings.TrimSuffix(host, ".")
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
