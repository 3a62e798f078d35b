package encoding

import (
	"net/http"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecode_HeaderCharsetShortCircuits(t *testing.T) {
	gbkBytes, err := simplifiedchinese.GBK.NewEncoder().String("你好世界")
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "text/html; charset=GB2312")

	result, err := Decode([]byte(gbkBytes), headers)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Encoding != "gb2312" {
		t.Errorf("Encoding = %q, want gb2312", result.Encoding)
	}
	if !strings.Contains(result.Text, "你好") {
		t.Errorf("Text = %q, want it to contain 你好", result.Text)
	}
}

func TestDecode_MetaSniff(t *testing.T) {
	gbkBytes, err := simplifiedchinese.GBK.NewEncoder().String("<html><head><meta charset=\"gbk\"></head><body>你好</body></html>")
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	result, err := Decode([]byte(gbkBytes), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Encoding != "gbk" {
		t.Errorf("Encoding = %q, want gbk", result.Encoding)
	}
	if !strings.Contains(result.Text, "你好") {
		t.Errorf("Text = %q, want it to contain 你好", result.Text)
	}
}

func TestDecode_HTTPEquivMeta(t *testing.T) {
	body := []byte(`<html><head><meta http-equiv="Content-Type" content="text/html; charset=utf-8"></head><body>hello</body></html>`)

	result, err := Decode(body, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", result.Encoding)
	}
}

func TestDecode_PlainUTF8NeverReachesCJKChain(t *testing.T) {
	result, err := Decode([]byte("<html><body>plain ascii text</body></html>"), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", result.Encoding)
	}
	if result.Text == "" {
		t.Error("Text should not be empty")
	}
}

func TestDecode_LossyFallbackNeverFails(t *testing.T) {
	// Invalid UTF-8 byte sequence with no header or meta hint and too few
	// high-range bytes to trip the CJK heuristic.
	body := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 0xfe, ' ', 'w', 'o', 'r', 'l', 'd'}

	result, err := Decode(body, nil)
	if err != nil {
		t.Fatalf("Decode returned an error, want nil: %v", err)
	}
	if result.Encoding != "utf-8-lossy" {
		t.Errorf("Encoding = %q, want utf-8-lossy", result.Encoding)
	}
	if result.Text == "" {
		t.Error("Text should not be empty even on the lossy fallback")
	}
}

func TestDecode_EmptyBodyNeverErrors(t *testing.T) {
	result, err := Decode(nil, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Encoding == "" {
		t.Error("Encoding should always be set")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"GB2312":     "gb2312",
		"gb_2312-80": "gb2312",
		"X-GBK":      "gbk",
		"UTF8":       "utf-8",
		"Latin1":     "iso-8859-1",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLooksCJK(t *testing.T) {
	if looksCJK([]byte("hello world, this is plain ascii text")) {
		t.Error("plain ASCII should not look CJK")
	}
	gbkBytes, err := simplifiedchinese.GBK.NewEncoder().String(strings.Repeat("你好", 50))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	if !looksCJK([]byte(gbkBytes)) {
		t.Error("GBK-encoded Chinese text should look CJK")
	}
}
