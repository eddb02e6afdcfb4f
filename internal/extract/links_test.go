package extract

import (
	"net/url"
	"testing"
)

const articleHTML = `<html><body>
<p>Acme <a href="/about">about us</a> said the
<a href="https://www.sec.gov/filing/123">SEC filing</a> shows otherwise.
See <a class="reference" href="https://reuters.com/acme">Reuters <b>report</b></a>.</p>
<a href="#top">top</a>
<a href="javascript:void(0)">js</a>
<a href="mailto:pr@acme.example">mail</a>
<a href="https://www.sec.gov/filing/123#section">duplicate</a>
</body></html>`

func TestLinks_ResolveAndDedupe(t *testing.T) {
	links, err := Links(articleHTML, "https://news.example/story")
	if err != nil {
		t.Fatalf("Links failed: %v", err)
	}

	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d: %+v", len(links), links)
	}
	if links[0].URL != "https://news.example/about" || !links[0].SameHost {
		t.Errorf("expected resolved same-host link, got %+v", links[0])
	}
	if links[1].Host != "www.sec.gov" || links[1].Text != "SEC filing" {
		t.Errorf("unexpected second link %+v", links[1])
	}
	if !links[2].Citation || links[2].Text != "Reuters report" {
		t.Errorf("expected citation with nested text, got %+v", links[2])
	}
}

func TestCitedEvidence_ExternalCitationsFirst(t *testing.T) {
	items, err := CitedEvidence(articleHTML, "https://news.example/story", 0)
	if err != nil {
		t.Fatalf("CitedEvidence failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 external items, got %+v", items)
	}
	if items[0].URL != "https://reuters.com/acme" {
		t.Errorf("expected citation first, got %s", items[0].URL)
	}

	limited, _ := CitedEvidence(articleHTML, "https://news.example/story", 1)
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b")

	tests := []struct {
		href string
		want string
	}{
		{"https://other.com/x", "https://other.com/x"},
		{"../c", "https://example.com/c"},
		{"/root", "https://example.com/root"},
		{"#frag", ""},
		{"javascript:alert(1)", ""},
		{"mailto:x@example.com", ""},
		{"ftp://example.com/file", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := resolveURL(base, tt.href); got != tt.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestLinks_EmptyDocument(t *testing.T) {
	links, err := Links("", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links, got %d", len(links))
	}
}
