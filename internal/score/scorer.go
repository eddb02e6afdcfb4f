package score

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimwatch/internal/model"
)

// Engagement weights
const (
	LikeWeight    = 1
	CommentWeight = 2
	ShareWeight   = 3
)

// MaxCount caps each engagement counter so the weighted sum fits a 32-bit int
const MaxCount = 100_000_000

// Scorer assigns a priority tier from engagement counters and post text
type Scorer struct {
	keywords []string
	bonus    int
	high     int
	medium   int
}

// Breakdown is the transparent record of how a tier was reached
type Breakdown struct {
	Likes       int        `json:"likes"`
	Comments    int        `json:"comments"`
	Shares      int        `json:"shares"`
	Engagement  int        `json:"engagement"`
	KeywordHits []string   `json:"keyword_hits,omitempty"`
	Bonus       int        `json:"bonus"`
	Total       int        `json:"total"`
	Tier        model.Tier `json:"tier"`
	Formula     string     `json:"formula"`
}

// NewScorer creates a scorer from the priority policy
func NewScorer(cfg model.PriorityConfig) (*Scorer, error) {
	if cfg.MediumThreshold <= 0 || cfg.HighThreshold <= cfg.MediumThreshold {
		return nil, fmt.Errorf("invalid thresholds: medium=%d high=%d", cfg.MediumThreshold, cfg.HighThreshold)
	}
	if cfg.KeywordBonus < cfg.HighThreshold {
		return nil, fmt.Errorf("keyword bonus %d is below high threshold %d", cfg.KeywordBonus, cfg.HighThreshold)
	}

	keywords := make([]string, 0, len(cfg.RiskKeywords))
	for _, k := range cfg.RiskKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}

	return &Scorer{
		keywords: keywords,
		bonus:    cfg.KeywordBonus,
		high:     cfg.HighThreshold,
		medium:   cfg.MediumThreshold,
	}, nil
}

// Default returns a scorer with the built-in policy
func Default() *Scorer {
	s, err := NewScorer(model.DefaultConfig().Priority)
	if err != nil {
		panic(err)
	}
	return s
}

// Score returns the tier for the given counters and text
func (s *Scorer) Score(likes, comments, shares int, text string) model.Tier {
	return s.Explain(likes, comments, shares, text).Tier
}

// ScoreItem scores a collected item, treating absent counters as zero
func (s *Scorer) ScoreItem(item model.RawItem) model.Tier {
	return s.Score(model.Count(item.Likes), model.Count(item.Comments), model.Count(item.Shares), item.Text)
}

// Explain scores and returns every intermediate value
func (s *Scorer) Explain(likes, comments, shares int, text string) Breakdown {
	likes, comments, shares = clamp(likes), clamp(comments), clamp(shares)

	b := Breakdown{
		Likes:      likes,
		Comments:   comments,
		Shares:     shares,
		Engagement: likes*LikeWeight + comments*CommentWeight + shares*ShareWeight,
		Formula:    fmt.Sprintf("likes*%d + comments*%d + shares*%d + (%d if any risk keyword)", LikeWeight, CommentWeight, ShareWeight, s.bonus),
	}

	lower := strings.ToLower(text)
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			b.KeywordHits = append(b.KeywordHits, k)
		}
	}
	if len(b.KeywordHits) > 0 {
		b.Bonus = s.bonus
	}

	b.Total = b.Engagement + b.Bonus
	b.Tier = s.tier(b.Total)
	return b
}

func (s *Scorer) tier(total int) model.Tier {
	switch {
	case total >= s.high:
		return model.TierHigh
	case total >= s.medium:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// clamp bounds a counter to [0, MaxCount]
func clamp(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxCount:
		return MaxCount
	}
	return n
}
