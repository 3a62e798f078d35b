package fetch

import "testing"

func TestTruncate(t *testing.T) {
	body := []byte("0123456789")

	out, truncated := truncate(body, 5)
	if truncated != true || string(out) != "01234" {
		t.Fatalf("truncate(5) = %q, %v", out, truncated)
	}

	out, truncated = truncate(body, 100)
	if truncated {
		t.Fatalf("truncate(100) reported truncation for a shorter body")
	}
	if string(out) != string(body) {
		t.Fatalf("truncate(100) changed the body: %q", out)
	}

	out, truncated = truncate(body, 0)
	if truncated {
		t.Fatalf("truncate(0) should mean unbounded, not truncation")
	}
	if string(out) != string(body) {
		t.Fatalf("truncate(0) changed the body")
	}
}

func TestRegistrableDomain(t *testing.T) {
	cases := []struct{ host, want string }{
		{"www.example.com", "example.com"},
		{"blog.news.example.co.uk", "co.uk"}, // last-two-labels heuristic, no PSL
		{"example.com", "example.com"},
		{"localhost", "localhost"},
		{"a.b.example.com.", "example.com"}, // trailing dot stripped first, then split
	}
	for _, tc := range cases {
		got := registrableDomain(tc.host)
		if got != tc.want {
			t.Errorf("registrableDomain(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}

func TestWantsEncoding(t *testing.T) {
	if !wantsEncoding("gzip, deflate, br", "br") {
		t.Errorf("expected br to be wanted")
	}
	if wantsEncoding("gzip", "br") {
		t.Errorf("br should not be wanted when absent")
	}
	if !wantsEncoding("gzip;q=1.0, br;q=0.5", "gzip") {
		t.Errorf("expected gzip to be wanted despite q-value suffix")
	}
}

func TestParseWaitUntil(t *testing.T) {
	cases := []struct {
		raw  string
		want waitKind
	}{
		{"", waitKind{keyword: "dom_loaded"}},
		{"dom_loaded", waitKind{keyword: "dom_loaded"}},
		{"network_idle", waitKind{keyword: "network_idle"}},
		{"selector_visible:#main", waitKind{keyword: "selector_visible", selector: "#main"}},
		{"custom_delay_ms:250", waitKind{keyword: "custom_delay_ms", delayMs: 250}},
		{"nonsense", waitKind{keyword: "dom_loaded"}},
	}
	for _, tc := range cases {
		got := parseWaitUntil(tc.raw)
		if got != tc.want {
			t.Errorf("parseWaitUntil(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}
