package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/claimwatch/internal/model"
)

// GenesisHash is the PrevHash of the first entry in the chain
var GenesisHash = strings.Repeat("0", 64)

// ErrTampered is wrapped by every IntegrityError
var ErrTampered = errors.New("ledger integrity violated")

// IntegrityError reports the first entry at which the chain breaks
type IntegrityError struct {
	Sequence uint64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger entry %d: %s", e.Sequence, e.Reason)
}

// Unwrap lets errors.Is match ErrTampered
func (e *IntegrityError) Unwrap() error {
	return ErrTampered
}

// CanonicalJSON renders content with sorted keys and every value as a string.
// 80 and "80" therefore hash identically.
func CanonicalJSON(content map[string]any) []byte {
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(quote(k))
		b.WriteByte(':')
		b.Write(quote(stringify(content[k])))
	}
	b.WriteByte('}')
	return []byte(b.String())
}

func quote(s string) []byte {
	// json.Marshal of a string cannot fail
	out, _ := json.Marshal(s)
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(out)
	}
}

// ComputeHash returns hex(SHA-256(prev || payload))
func ComputeHash(prev string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Content returns the hashed mapping for a debunk.
// The notification flag is mutable and therefore excluded. A skipped
// debunk carries only the skip marker.
func Content(d *model.Debunk) map[string]any {
	if d.Verdict == model.VerdictSkipped {
		return map[string]any{
			"debunk_id":   d.ID,
			"post_id":     d.PostID,
			"verdict":     string(d.Verdict),
			"explanation": d.Explanation,
		}
	}

	sources := []string(d.Sources)
	if sources == nil {
		sources = []string{}
	}
	return map[string]any{
		"debunk_id":   d.ID,
		"post_id":     d.PostID,
		"claim":       d.ClaimText,
		"verdict":     string(d.Verdict),
		"confidence":  d.Confidence,
		"explanation": d.Explanation,
		"sources":     sources,
		"pr_response": d.PRResponse,
	}
}

// Next builds the entry that follows tail. A nil tail starts the chain.
func Next(tail *model.LedgerEntry, debunkID uint, content map[string]any) model.LedgerEntry {
	prev := GenesisHash
	seq := uint64(1)
	if tail != nil {
		prev = tail.Hash
		seq = tail.Sequence + 1
	}
	payload := CanonicalJSON(content)
	return model.LedgerEntry{
		Sequence: seq,
		DebunkID: debunkID,
		Payload:  string(payload),
		Hash:     ComputeHash(prev, payload),
		PrevHash: prev,
	}
}

// Verify walks entries in sequence order from genesis and returns the first
// violation as an *IntegrityError
func Verify(entries []model.LedgerEntry) error {
	prev := GenesisHash
	var expected uint64 = 1

	for _, e := range entries {
		if e.Sequence != expected {
			return &IntegrityError{Sequence: e.Sequence, Reason: fmt.Sprintf("sequence gap: expected %d", expected)}
		}
		if e.PrevHash != prev {
			return &IntegrityError{Sequence: e.Sequence, Reason: "prev_hash does not match preceding entry"}
		}
		if got := ComputeHash(e.PrevHash, []byte(e.Payload)); got != e.Hash {
			return &IntegrityError{Sequence: e.Sequence, Reason: "stored hash does not match recomputed hash"}
		}
		prev = e.Hash
		expected++
	}
	return nil
}

// Report summarises a verification walk
type Report struct {
	Entries  int    `json:"entries"`
	TailHash string `json:"tail_hash"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
	Sequence uint64 `json:"failed_sequence,omitempty"`
}

// NewReport builds a Report from entries and the verification result
func NewReport(entries []model.LedgerEntry, err error) Report {
	r := Report{Entries: len(entries), TailHash: GenesisHash, Valid: err == nil}
	if len(entries) > 0 {
		r.TailHash = entries[len(entries)-1].Hash
	}
	if err != nil {
		r.Error = err.Error()
		var ie *IntegrityError
		if errors.As(err, &ie) {
			r.Sequence = ie.Sequence
		}
	}
	return r
}
