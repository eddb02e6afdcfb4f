package model

import "time"

// RawItem is the uniform shape every source collaborator produces.
// Nil engagement counters mean the source did not report them.
type RawItem struct {
	Platform  Platform  `json:"platform"`
	Brand     string    `json:"brand"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Likes     *int      `json:"likes,omitempty"`
	Comments  *int      `json:"comments,omitempty"`
	Shares    *int      `json:"shares,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Count returns the value of an optional counter, treating nil and negative as zero
func Count(n *int) int {
	if n == nil || *n < 0 {
		return 0
	}
	return *n
}

// IntPtr is a small helper for building RawItems
func IntPtr(n int) *int {
	return &n
}

// EvidenceItem is one search hit gathered for a claim
type EvidenceItem struct {
	Title     string        `json:"title"`
	Snippet   string        `json:"snippet"`
	URL       string        `json:"url,omitempty"`
	Authority AuthorityTier `json:"authority,omitempty"`
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	AuthorityUnknown   AuthorityTier = 0 // Not yet classified
	AuthorityPrimary   AuthorityTier = 1 // Regulators, courts, filings, official statements
	AuthoritySecondary AuthorityTier = 2 // Wire services and major publishers
	AuthorityTertiary  AuthorityTier = 3 // Blogs, forums, aggregators
)

func (t AuthorityTier) String() string {
	switch t {
	case AuthorityPrimary:
		return "primary"
	case AuthoritySecondary:
		return "secondary"
	case AuthorityTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Analysis is the claim pipeline's normalised result for one post
type Analysis struct {
	Claim       string         `json:"claim"`
	Verdict     Verdict        `json:"verdict"`
	Confidence  int            `json:"confidence"`
	Explanation string         `json:"explanation"`
	Sources     []string       `json:"sources"`
	PRResponse  string         `json:"pr_response"`
	Evidence    []EvidenceItem `json:"evidence,omitempty"`
}

const (
	// NoClaimText is recorded when no claim could be attached to a result
	NoClaimText = "No Claim Extracted"

	// NoClaimSentinel is the token the oracle returns for uncheckable text
	NoClaimSentinel = "NO_CLAIM"
)

// SkippedAnalysis is the outcome for text with no checkable claim
func SkippedAnalysis() Analysis {
	return Analysis{
		Claim:       NoClaimText,
		Verdict:     VerdictSkipped,
		Confidence:  0,
		Explanation: "No claim extracted",
		Sources:     []string{},
	}
}

// FailedAnalysis is the safe default substituted when adjudication fails
func FailedAnalysis(claim string) Analysis {
	if claim == "" {
		claim = NoClaimText
	}
	return Analysis{
		Claim:       claim,
		Verdict:     VerdictUnclear,
		Confidence:  0,
		Explanation: "Analysis failed or returned invalid format.",
		Sources:     []string{},
		PRResponse:  "Error in analysis.",
	}
}
