package evidence

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ppiankov/claimwatch/internal/model"
)

// AuthorityClassifier classifies evidence links into authority tiers
type AuthorityClassifier struct {
	domainMap    map[string]model.AuthorityTier
	primaryMap   map[string]bool
	secondaryMap map[string]bool
}

// NewAuthorityClassifier creates a new authority classifier
func NewAuthorityClassifier(config model.AuthorityConfig) *AuthorityClassifier {
	classifier := &AuthorityClassifier{
		domainMap:    make(map[string]model.AuthorityTier),
		primaryMap:   make(map[string]bool),
		secondaryMap: make(map[string]bool),
	}

	for _, domain := range config.PrimaryDomains {
		classifier.primaryMap[normalizeDomain(domain)] = true
	}
	for _, domain := range config.SecondaryDomains {
		classifier.secondaryMap[normalizeDomain(domain)] = true
	}
	for domain, tier := range config.DomainMap {
		classifier.domainMap[normalizeDomain(domain)] = parseTierString(tier)
	}

	return classifier
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	if rawURL == "" {
		return model.AuthorityUnknown
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return model.AuthorityUnknown
	}

	host := normalizeDomain(parsed.Hostname())

	// explicit mappings win
	if tier, ok := a.domainMap[host]; ok {
		return tier
	}

	if matchesDomain(host, a.primaryMap) {
		return model.AuthorityPrimary
	}
	if matchesDomain(host, a.secondaryMap) {
		return model.AuthoritySecondary
	}

	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return model.AuthorityPrimary
	}

	return model.AuthorityTertiary
}

// Annotate classifies every item and orders the slice by authority, keeping
// search rank within a tier. Unclassifiable items sort last.
func (a *AuthorityClassifier) Annotate(items []model.EvidenceItem) []model.EvidenceItem {
	out := make([]model.EvidenceItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].Authority = a.Classify(out[i].URL)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Authority) < rank(out[j].Authority)
	})
	return out
}

func rank(t model.AuthorityTier) int {
	if t == model.AuthorityUnknown {
		return int(model.AuthorityTertiary) + 1
	}
	return int(t)
}

func matchesDomain(host string, domains map[string]bool) bool {
	if domains[host] {
		return true
	}
	// foo.gov.uk matches gov.uk
	for domain := range domains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
}

// parseTierString converts a tier string to AuthorityTier
func parseTierString(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.AuthorityPrimary
	case "secondary", "2":
		return model.AuthoritySecondary
	default:
		return model.AuthorityTertiary
	}
}
