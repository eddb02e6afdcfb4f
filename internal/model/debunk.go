package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Verdict is the adjudicated truth classification of a claim
type Verdict string

const (
	VerdictTrue       Verdict = "True"
	VerdictMisleading Verdict = "Misleading"
	VerdictFalse      Verdict = "False"
	VerdictUnclear    Verdict = "Unclear"
	VerdictSkipped    Verdict = "Skipped"
)

// ParseVerdict normalises an oracle-supplied verdict. Only the four
// adjudication outcomes are accepted; Skipped is never produced by the oracle.
func ParseVerdict(s string) (Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return VerdictTrue, true
	case "misleading":
		return VerdictMisleading, true
	case "false":
		return VerdictFalse, true
	case "unclear":
		return VerdictUnclear, true
	}
	return "", false
}

// Adverse reports whether the verdict warrants alerting the brand
func (v Verdict) Adverse() bool {
	return v == VerdictFalse || v == VerdictMisleading
}

// Debunk is the persisted outcome of analysing one post.
// Everything except NotificationSent is immutable after creation.
type Debunk struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	PostID           uint                        `gorm:"not null;uniqueIndex" json:"post_id"`
	ClaimText        string                      `gorm:"type:text" json:"claim"`
	Verdict          Verdict                     `gorm:"type:varchar(16);not null;index" json:"verdict"`
	Confidence       int                         `gorm:"not null;default:0" json:"confidence"`
	Explanation      string                      `gorm:"type:text" json:"explanation"`
	Sources          datatypes.JSONSlice[string] `gorm:"type:text" json:"sources"`
	PRResponse       string                      `gorm:"type:text" json:"pr_response"`
	NotificationSent bool                        `gorm:"not null;default:false" json:"notification_sent"`
	CreatedAt        time.Time                   `gorm:"not null;index" json:"created_at"`

	Post *Post `gorm:"foreignKey:PostID" json:"post,omitempty"`
}

// TableName sets the table name for Debunk
func (Debunk) TableName() string {
	return "debunks"
}

// LedgerEntry is the tamper-evident record of one debunk's existence.
// Payload holds the canonical JSON that was hashed, so the chain can be
// re-verified without trusting the debunk rows.
type LedgerEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Sequence  uint64    `gorm:"not null;uniqueIndex" json:"sequence"`
	DebunkID  uint      `gorm:"not null;uniqueIndex" json:"debunk_id"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	Hash      string    `gorm:"type:char(64);not null;uniqueIndex" json:"hash"`
	PrevHash  string    `gorm:"type:char(64);not null" json:"prev_hash"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	Debunk *Debunk `gorm:"foreignKey:DebunkID" json:"-"`
}

// TableName sets the table name for LedgerEntry
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// AllModels returns every persisted type, in migration order
func AllModels() []interface{} {
	return []interface{}{
		&Company{},
		&Post{},
		&Debunk{},
		&LedgerEntry{},
	}
}
