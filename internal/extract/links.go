package extract

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/claimwatch/internal/model"
)

// Link is an outbound hyperlink found in an article
type Link struct {
	URL      string
	Host     string
	Text     string
	Citation bool
	SameHost bool
}

// Links extracts http(s) links from htmlContent, resolved against sourceURL
// and deduplicated in document order
func Links(htmlContent string, sourceURL string) ([]Link, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []Link
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := ""
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = strings.TrimSpace(attr.Val)
				}
			}

			if resolved := resolveURL(baseURL, href); resolved != "" && !seen[resolved] {
				seen[resolved] = true
				parsed, _ := url.Parse(resolved)
				host := ""
				if parsed != nil {
					host = parsed.Host
				}
				links = append(links, Link{
					URL:      resolved,
					Host:     host,
					Text:     NormalizeSpace(visibleText(n)),
					Citation: isCitation(href, n),
					SameHost: host == baseURL.Host,
				})
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return links, nil
}

// CitedEvidence turns an article's off-site links into evidence items,
// citations first, at most limit items (limit <= 0 means all)
func CitedEvidence(htmlContent, sourceURL string, limit int) ([]model.EvidenceItem, error) {
	links, err := Links(htmlContent, sourceURL)
	if err != nil {
		return nil, err
	}

	var external []Link
	for _, l := range links {
		if !l.SameHost {
			external = append(external, l)
		}
	}
	sort.SliceStable(external, func(i, j int) bool {
		return external[i].Citation && !external[j].Citation
	})

	var items []model.EvidenceItem
	for _, l := range external {
		if limit > 0 && len(items) >= limit {
			break
		}
		title := l.Text
		if title == "" {
			title = l.Host
		}
		items = append(items, model.EvidenceItem{
			Title:   title,
			Snippet: "Cited by the article",
			URL:     l.URL,
		})
	}
	return items, nil
}

// resolveURL resolves a relative URL against a base URL
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""

	return resolved.String()
}

// isCitation reports whether a link looks like a reference or footnote
func isCitation(href string, n *html.Node) bool {
	lower := strings.ToLower(href)
	if strings.Contains(lower, "cite") || strings.Contains(lower, "#ref") ||
		strings.Contains(lower, "reference") || strings.Contains(lower, "footnote") {
		return true
	}

	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, "reference") {
			return true
		}
		if attr.Key == "rel" && strings.Contains(attr.Val, "cite") {
			return true
		}
	}
	return false
}
