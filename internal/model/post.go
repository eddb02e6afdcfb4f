package model

import (
	"strings"
	"time"
)

// Platform identifies where a post was observed
type Platform string

const (
	PlatformNews    Platform = "news"
	PlatformReddit  Platform = "reddit"
	PlatformYouTube Platform = "youtube"
	PlatformWeb     Platform = "web"
	PlatformManual  Platform = "manual"
)

// Valid reports whether p is one of the known platforms
func (p Platform) Valid() bool {
	switch p {
	case PlatformNews, PlatformReddit, PlatformYouTube, PlatformWeb, PlatformManual:
		return true
	}
	return false
}

// Tier is the coarse priority classification assigned to a post
type Tier string

const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// Badge returns the dashboard label for a tier. Unknown tiers render as Low.
func (t Tier) Badge() string {
	switch t {
	case TierHigh:
		return "🔥 High"
	case TierMedium:
		return "⚠️ Medium"
	default:
		return "ℹ️ Low"
	}
}

// ParseTier parses a tier name case-insensitively
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh, true
	case "medium":
		return TierMedium, true
	case "low":
		return TierLow, true
	}
	return "", false
}

// Post is one observed mention of a tracked brand.
//
// URL is nullable; the unique index only constrains non-null values so
// manual entries without a URL are never deduplicated.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Platform  Platform  `gorm:"type:varchar(16);not null;index" json:"platform"`
	Brand     string    `gorm:"type:varchar(255);not null;index:idx_posts_pending,priority:1" json:"brand"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	URL       *string   `gorm:"type:varchar(2048);uniqueIndex" json:"url,omitempty"`
	Likes     int       `gorm:"not null;default:0" json:"likes"`
	Comments  int       `gorm:"not null;default:0" json:"comments"`
	Shares    int       `gorm:"not null;default:0" json:"shares"`
	Priority  Tier      `gorm:"type:varchar(8);not null;index:idx_posts_pending,priority:3" json:"priority"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	Analysed  bool      `gorm:"not null;default:false;index:idx_posts_pending,priority:2" json:"analysed"`

	Debunk *Debunk `gorm:"foreignKey:PostID" json:"debunk,omitempty"`
}

// TableName sets the table name for Post
func (Post) TableName() string {
	return "posts"
}

// URLOr returns the post URL, or fallback when the post has none
func (p *Post) URLOr(fallback string) string {
	if p == nil || p.URL == nil || *p.URL == "" {
		return fallback
	}
	return *p.URL
}

// Company is a tracked brand and its notification target
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Email     string    `gorm:"type:varchar(320);not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name for Company
func (Company) TableName() string {
	return "companies"
}

// ManualBrand is the brand recorded for operator-submitted text without one
const ManualBrand = "Manual"

// ManualPost builds an operator-submitted post. Manual posts are always
// High priority; an empty url leaves the post undeduplicated.
func ManualPost(text, url, brand string, now time.Time) *Post {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		brand = ManualBrand
	}
	p := &Post{
		Platform:  PlatformManual,
		Brand:     brand,
		Text:      strings.TrimSpace(text),
		Priority:  TierHigh,
		CreatedAt: now,
	}
	if u := strings.TrimSpace(url); u != "" {
		p.URL = &u
	}
	return p
}
