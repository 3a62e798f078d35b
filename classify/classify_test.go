package classify

import (
	"context"
	"testing"
)

func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{404, NotFound404},
		{401, HTTP4xxBlock},
		{403, HTTP4xxBlock},
		{429, HTTP4xxBlock},
		{500, HTTP5xx},
		{503, HTTP5xx},
	}

	for _, tc := range cases {
		got := Classify(Input{StatusCode: tc.status})
		if got != tc.want {
			t.Errorf("status %d: got %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestClassify_RedirectLoop(t *testing.T) {
	got := Classify(Input{RedirectCount: 11})
	if got != RedirectLoop {
		t.Errorf("11 redirects: got %s, want %s", got, RedirectLoop)
	}

	got = Classify(Input{RedirectCount: 10, StatusCode: 200})
	if got == RedirectLoop {
		t.Errorf("exactly 10 redirects should not trip the loop detector")
	}
}

func TestClassify_Captcha(t *testing.T) {
	got := Classify(Input{StatusCode: 200, Body: []byte("<html>Please verify you are human</html>")})
	if got != CaptchaDetected {
		t.Errorf("got %s, want %s", got, CaptchaDetected)
	}
}

func TestClassify_JavaScriptRequired(t *testing.T) {
	jsDomains := map[string]struct{}{"react.dev": {}}
	in := Input{
		StatusCode:        200,
		Body:              []byte("<html><div id=\"root\"></div></html>"),
		Domain:            "react.dev",
		JSRenderedDomains: jsDomains,
		HasArticleOrMain:  false,
	}
	got := Classify(in)
	if got != JavaScriptRequired {
		t.Errorf("got %s, want %s", got, JavaScriptRequired)
	}

	// An <article> tag present should suppress the heuristic.
	in.HasArticleOrMain = true
	got = Classify(in)
	if got == JavaScriptRequired {
		t.Errorf("article present should not trigger JAVASCRIPT_REQUIRED")
	}
}

func TestClassify_ContextErrors(t *testing.T) {
	got := Classify(Input{Err: context.DeadlineExceeded})
	if got != NetworkTimeout {
		t.Errorf("got %s, want %s", got, NetworkTimeout)
	}

	got = Classify(Input{Err: context.Canceled})
	if got != NetworkTimeout {
		t.Errorf("got %s, want %s", got, NetworkTimeout)
	}
}

func TestClassify_FallbackInternal(t *testing.T) {
	got := Classify(Input{})
	if got != FetcherInternal {
		t.Errorf("got %s, want %s", got, FetcherInternal)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(BudgetExceeded) {
		t.Error("BUDGET_EXCEEDED should not be retryable")
	}
	if !IsRetryable(NetworkTimeout) {
		t.Error("NETWORK_TIMEOUT should be retryable")
	}
}
