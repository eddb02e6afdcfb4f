package extract

import (
	"strings"
	"testing"
)

func TestVisibleText_SkipsScripts(t *testing.T) {
	doc := `
	<html>
	<head><style>body { color: red; }</style></head>
	<body>
		<script>var tracking = true;</script>
		<p>Acme announced record revenue.</p>
		<p>Shares   rose
		sharply.</p>
	</body>
	</html>
	`

	text, err := VisibleText(doc)
	if err != nil {
		t.Fatalf("VisibleText failed: %v", err)
	}
	if strings.Contains(text, "tracking") || strings.Contains(text, "color") {
		t.Errorf("expected script and style to be skipped, got %q", text)
	}
	if text != "Acme announced record revenue. Shares rose sharply." {
		t.Errorf("unexpected text %q", text)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain title", "plain title"},
		{"<b>Acme</b> faces &amp; fights lawsuit", "Acme faces & fights lawsuit"},
		{`<a href="https://x.test">Acme outage</a>&nbsp;<font color="#6f6f6f">Reuters</font>`, "Acme outage Reuters"},
		{"  spaced\n\tout  ", "spaced out"},
		{`<a href="https://hackernoon.example/acme">Acme posts record quarter</a>&nbsp;<font color="#6f6f6f">Reuters</font>`, "Acme posts record quarter Reuters"},
		{"Acme &lt;b&gt; &quot;quoted&quot;", `Acme <b> "quoted"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<a href="https://hack.example">Acme</a> &amp; co`, "Acme & co"},
		{"<script>var breach = 1</script>quiet day", "quiet day"},
		{"<p>unclosed <b>tags", "unclosed tags"},
	}
	for _, tt := range tests {
		if got := tokenText(tt.in); got != tt.want {
			t.Errorf("tokenText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	if got := Truncate("héllo wörld", 4); got != "héll" {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := Truncate("short", 200); got != "short" {
		t.Errorf("short strings must pass through, got %q", got)
	}
	if got := Truncate("x", 0); got != "" {
		t.Errorf("zero length must be empty, got %q", got)
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("Acme was fined. Is it true? Yes! e.g.this stays", 1)
	want := []string{"Acme was fined.", "Is it true?", "Yes!", "e.g.this stays"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := Sentences("Tiny. This sentence is long enough to keep.", 10); len(got) != 1 {
		t.Errorf("expected short fragment to be dropped, got %v", got)
	}
}

func TestExcerpt(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	if got := Excerpt(text, 45); got != "First sentence here. Second sentence here." {
		t.Errorf("unexpected excerpt %q", got)
	}
	if got := Excerpt(strings.Repeat("a", 50), 10); got != strings.Repeat("a", 10) {
		t.Errorf("expected hard cut, got %q", got)
	}
}
