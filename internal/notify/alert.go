package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/russross/blackfriday/v2"

	"github.com/ppiankov/claimwatch/internal/model"
)

// ManualEntryURL stands in for the post URL of manually submitted text
const ManualEntryURL = "Manual Entry"

// ShouldNotify is the notification gate: only adverse verdicts alert the brand
func ShouldNotify(v model.Verdict) bool {
	return v.Adverse()
}

// Alert is the message sent to a brand contact about one debunk
type Alert struct {
	To          string        `json:"to"`
	Brand       string        `json:"brand"`
	PostURL     string        `json:"post_url"`
	Claim       string        `json:"claim"`
	Verdict     model.Verdict `json:"verdict"`
	Confidence  int           `json:"confidence"`
	Explanation string        `json:"explanation"`
	PRResponse  string        `json:"pr_response"`
}

// NewAlert builds the alert for debunk about post, addressed to to
func NewAlert(to string, d *model.Debunk, post *model.Post) Alert {
	brand := ""
	if post != nil {
		brand = post.Brand
	}
	return Alert{
		To:          to,
		Brand:       brand,
		PostURL:     post.URLOr(ManualEntryURL),
		Claim:       d.ClaimText,
		Verdict:     d.Verdict,
		Confidence:  d.Confidence,
		Explanation: d.Explanation,
		PRResponse:  d.PRResponse,
	}
}

// Subject returns the email subject line
func (a Alert) Subject() string {
	return fmt.Sprintf("🚨 Claimwatch Alert: %s Claim Detected for %s", a.Verdict, a.Brand)
}

// Markdown renders the alert body. Field values are HTML-escaped so post
// content cannot inject markup into the rendered email.
func (a Alert) Markdown() string {
	var b strings.Builder
	b.WriteString("## Claimwatch Intelligence Report\n\n")
	fmt.Fprintf(&b, "**Company:** %s\n\n", esc(a.Brand))
	if a.PostURL == ManualEntryURL {
		fmt.Fprintf(&b, "**Detected Post:** %s\n\n", ManualEntryURL)
	} else {
		fmt.Fprintf(&b, "**Detected Post:** <%s>\n\n", a.PostURL)
	}
	b.WriteString("---\n\n### Analysis\n\n")
	fmt.Fprintf(&b, "* **Claim:** %s\n", esc(a.Claim))
	fmt.Fprintf(&b, "* **Verdict:** %s\n", esc(string(a.Verdict)))
	fmt.Fprintf(&b, "* **Confidence:** %d%%\n\n", a.Confidence)
	fmt.Fprintf(&b, "**Explanation:**\n\n%s\n\n", esc(a.Explanation))
	b.WriteString("---\n\n### Recommended Response\n\n")
	for _, line := range strings.Split(esc(a.PRResponse), "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	return b.String()
}

// HTML renders the Markdown body to an HTML document
func (a Alert) HTML() string {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags,
	})
	body := blackfriday.Run([]byte(a.Markdown()),
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.Autolink))
	return "<html><body>\n" + string(body) + "</body></html>\n"
}

func esc(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
