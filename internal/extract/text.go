package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// VisibleText returns the readable text of an HTML document, skipping
// scripts, styles and embedded frames
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	return NormalizeSpace(visibleText(doc)), nil
}

func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "nav", "footer":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

// StripHTML removes markup and decodes entities in a short fragment such as
// a feed title or search snippet. Plain text passes through unchanged.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return NormalizeSpace(s)
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return tokenText(s)
	}
	var buf strings.Builder
	for _, n := range nodes {
		buf.WriteString(visibleText(n))
	}
	return NormalizeSpace(buf.String())
}

// tokenText keeps only the text tokens of s. Markup never survives, even
// when the fragment cannot be parsed into a tree.
func tokenText(s string) string {
	var buf strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return NormalizeSpace(buf.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); skippedTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); skippedTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
				buf.WriteString(" ")
			}
		}
	}
}

func skippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "iframe", "svg":
		return true
	}
	return false
}

// NormalizeSpace collapses runs of whitespace into single spaces
func NormalizeSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Truncate shortens s to at most n runes without splitting a character
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Sentences splits text on terminal punctuation followed by whitespace.
// Fragments shorter than minLen runes are dropped.
func Sentences(text string, minLen int) []string {
	text = NormalizeSpace(text)

	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		if sentence != "" && utf8.RuneCountInString(sentence) >= minLen {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && runes[i+1] == ' ' {
			flush()
		}
	}
	flush()

	return sentences
}

// Excerpt returns the leading sentences of text up to roughly maxRunes,
// falling back to a hard cut when the first sentence alone is too long
func Excerpt(text string, maxRunes int) string {
	var out strings.Builder
	for _, s := range Sentences(text, 1) {
		if out.Len() > 0 && utf8.RuneCountInString(out.String())+1+utf8.RuneCountInString(s) > maxRunes {
			break
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(s)
	}
	if out.Len() == 0 || utf8.RuneCountInString(out.String()) > maxRunes {
		return Truncate(NormalizeSpace(text), maxRunes)
	}
	return out.String()
}
