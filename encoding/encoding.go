// Package encoding decides the character set of a fetched byte stream and
// decodes it to UTF-8 text, trying in order: HTTP header, HTML meta
// sniff, CJK confidence chain, UTF-8 lossy fallback.
package encoding

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// sniffWindow is how much of the body the meta-sniff step scans for a
// <meta charset> declaration.
const sniffWindow = 8192

// metaCharsetRe matches <meta charset="X"> (and the single/no-quote forms).
var metaCharsetRe = regexp.MustCompile(`(?is)<meta[^>]+charset\s*=\s*["']?([\w-]+)`)

// metaHTTPEquivRe matches <meta http-equiv="Content-Type" content="...;
// charset=X">.
var metaHTTPEquivRe = regexp.MustCompile(`(?is)<meta[^>]+http-equiv\s*=\s*["']?content-type["']?[^>]*content\s*=\s*["'][^"']*charset=([\w-]+)`)

// Result is the outcome of Decode.
type Result struct {
	Text      string
	Encoding  string // canonical lowercase name, or "utf-8-lossy"
	Truncated bool   // set by the caller if the body had already been capped
}

// cjkChain is the ordered fallback chain tried when the body looks CJK but
// neither the header nor the meta sniff yielded an encoding.
var cjkChain = []string{"gb18030", "gbk", "gb2312", "big5", "utf-8"}

// Decode implements the four-step algorithm. It only returns an error if
// every step fails to produce any text at all, which in practice never
// happens since step 4 is an unconditional fallback.
func Decode(body []byte, headers http.Header) (Result, error) {
	if name, ok := fromHeader(headers); ok {
		if text, ok := decodeAs(body, name); ok {
			return Result{Text: text, Encoding: name}, nil
		}
	}

	if name, ok := fromMetaSniff(body); ok {
		if text, ok := decodeAs(body, name); ok {
			return Result{Text: text, Encoding: name}, nil
		}
	}

	if looksCJK(body) {
		for _, name := range cjkChain {
			if text, ok := decodeAs(body, name); ok {
				// A successful decode attempt against an early link in the
				// chain isn't enough on its own: gbk/gb2312/big5 accept
				// most byte sequences. Use chardet's confidence score to
				// pick the best candidate instead of the first "valid" one.
				if name == "utf-8" || confidentGuess(body) == name {
					return Result{Text: text, Encoding: name}, nil
				}
			}
		}
		// No chain member won on confidence; use chardet's own best guess.
		if best, ok := confidentGuessOK(body); ok {
			if text, ok := decodeAs(body, best); ok {
				return Result{Text: text, Encoding: best}, nil
			}
		}
	}

	// Step 4: UTF-8 with replacement. strings.ToValidUTF8 never fails.
	return Result{
		Text:     strings.ToValidUTF8(string(body), "�"),
		Encoding: "utf-8-lossy",
	}, nil
}

func fromHeader(headers http.Header) (string, bool) {
	if headers == nil {
		return "", false
	}
	ct := headers.Get("Content-Type")
	if ct == "" {
		return "", false
	}
	_, params, err := parseContentType(ct)
	if err != nil {
		return "", false
	}
	if cs, ok := params["charset"]; ok && cs != "" {
		return normalize(cs), true
	}
	return "", false
}

// parseContentType is a narrow stand-in for mime.ParseMediaType that never
// errors on the minor malformed headers real servers send.
func parseContentType(ct string) (string, map[string]string, error) {
	parts := strings.Split(ct, ";")
	mediaType := strings.TrimSpace(parts[0])
	params := make(map[string]string)
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		params[key] = val
	}
	return mediaType, params, nil
}

func fromMetaSniff(body []byte) (string, bool) {
	window := body
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	if m := metaCharsetRe.FindSubmatch(window); m != nil {
		return normalize(string(m[1])), true
	}
	if m := metaHTTPEquivRe.FindSubmatch(window); m != nil {
		return normalize(string(m[1])), true
	}
	return "", false
}

// looksCJK reports whether the body contains enough high-range bytes to be
// worth running through the CJK confidence chain.
func looksCJK(body []byte) bool {
	sample := body
	if len(sample) > sniffWindow {
		sample = sample[:sniffWindow]
	}
	highBytes := 0
	for _, b := range sample {
		if b >= 0x80 {
			highBytes++
		}
	}
	if len(sample) == 0 {
		return false
	}
	return float64(highBytes)/float64(len(sample)) > 0.05
}

// confidentGuess runs chardet and returns its best-guess canonical charset
// name, or "" if chardet has nothing useful to say.
func confidentGuess(body []byte) string {
	name, _ := confidentGuessOK(body)
	return name
}

func confidentGuessOK(body []byte) (string, bool) {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(body)
	if err != nil || result == nil {
		return "", false
	}
	return normalize(result.Charset), true
}

// normalize lowercases and aliases a charset name to the canonical forms
// this package decodes (gb2312, gbk, gb18030, utf-8, iso-8859-1, ...).
func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "gb_2312-80", "euc-cn", "csgb2312":
		return "gb2312"
	case "x-gbk":
		return "gbk"
	case "utf8":
		return "utf-8"
	case "latin1", "l1", "iso_8859-1", "iso8859-1":
		return "iso-8859-1"
	default:
		return name
	}
}

// decodeAs decodes body as the named charset. It returns ok=false when the
// charset is unknown or the decode round-trip produces the Unicode
// replacement character at a rate high enough to indicate a mismatch.
func decodeAs(body []byte, name string) (string, bool) {
	if name == "utf-8" || name == "" {
		if utf8.Valid(body) {
			return string(body), true
		}
		return "", false
	}

	enc, ok := lookupEncoding(name)
	if !ok {
		return "", false
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	text := string(decoded)
	if replacementRate(text) > 0.02 {
		return "", false
	}
	return text, true
}

func replacementRate(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	count := strings.Count(s, "�")
	return float64(count) / float64(len([]rune(s)))
}

func lookupEncoding(name string) (encoding.Encoding, bool) {
	switch name {
	case "gb2312", "gbk":
		return simplifiedchinese.GBK, true
	case "gb18030":
		return simplifiedchinese.GB18030, true
	case "big5":
		return traditionalchinese.Big5, true
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, true
	}
	return nil, false
}
