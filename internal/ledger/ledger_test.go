package ledger

import (
	"errors"
	"testing"

	"github.com/ppiankov/claimwatch/internal/model"
)

func TestCanonicalJSON_SortedAndStringified(t *testing.T) {
	got := string(CanonicalJSON(map[string]any{
		"verdict":    "False",
		"confidence": 80,
		"claim":      "x",
		"sources":    []string{"a", "b"},
	}))
	want := `{"claim":"x","confidence":"80","sources":"[\"a\",\"b\"]","verdict":"False"}`
	if got != want {
		t.Errorf("CanonicalJSON =\n%s\nwant\n%s", got, want)
	}
}

func TestCanonicalJSON_NumberAndStringHashEqual(t *testing.T) {
	a := CanonicalJSON(map[string]any{"confidence": 80})
	b := CanonicalJSON(map[string]any{"confidence": "80"})
	if ComputeHash(GenesisHash, a) != ComputeHash(GenesisHash, b) {
		t.Error("expected 80 and \"80\" to hash identically")
	}
}

func TestComputeHash_KnownValue(t *testing.T) {
	// sha256("") of the concatenation of two empty inputs
	if got := ComputeHash("", nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected empty hash %s", got)
	}
	if len(GenesisHash) != 64 {
		t.Errorf("genesis hash must be 64 chars, got %d", len(GenesisHash))
	}
}

func buildChain(t *testing.T, n int) []model.LedgerEntry {
	t.Helper()
	var entries []model.LedgerEntry
	var tail *model.LedgerEntry
	for i := 1; i <= n; i++ {
		d := &model.Debunk{
			ID:          uint(i),
			PostID:      uint(100 + i),
			ClaimText:   "claim",
			Verdict:     model.VerdictFalse,
			Confidence:  80,
			Explanation: "because",
			Sources:     []string{"https://example.com"},
			PRResponse:  "statement",
		}
		e := Next(tail, d.ID, Content(d))
		entries = append(entries, e)
		tail = &entries[len(entries)-1]
	}
	return entries
}

func TestNext_Genesis(t *testing.T) {
	entries := buildChain(t, 1)
	if entries[0].PrevHash != GenesisHash {
		t.Errorf("first entry must link to genesis, got %s", entries[0].PrevHash)
	}
	if entries[0].Sequence != 1 {
		t.Errorf("first sequence must be 1, got %d", entries[0].Sequence)
	}
}

func TestVerify_ValidChain(t *testing.T) {
	entries := buildChain(t, 5)
	if err := Verify(entries); err != nil {
		t.Fatalf("expected valid chain, got %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("entry %d not linked to predecessor", i)
		}
	}
	if err := Verify(nil); err != nil {
		t.Errorf("empty ledger should verify, got %v", err)
	}
}

func TestVerify_DetectsPayloadTamper(t *testing.T) {
	entries := buildChain(t, 4)
	entries[2].Payload = `{"verdict":"True"}`

	err := Verify(entries)
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ie.Sequence != 3 {
		t.Errorf("expected failure at sequence 3, got %d", ie.Sequence)
	}
	if !errors.Is(err, ErrTampered) {
		t.Error("expected errors.Is ErrTampered")
	}
}

func TestVerify_DetectsRehashedEntry(t *testing.T) {
	// Rewriting an entry and recomputing its own hash still breaks the successor
	entries := buildChain(t, 3)
	entries[1].Payload = `{"verdict":"True"}`
	entries[1].Hash = ComputeHash(entries[1].PrevHash, []byte(entries[1].Payload))

	var ie *IntegrityError
	if !errors.As(Verify(entries), &ie) {
		t.Fatal("expected IntegrityError")
	}
	if ie.Sequence != 3 {
		t.Errorf("expected failure at sequence 3, got %d", ie.Sequence)
	}
}

func TestVerify_DetectsGapAndBrokenGenesis(t *testing.T) {
	entries := buildChain(t, 3)
	gapped := []model.LedgerEntry{entries[0], entries[2]}

	var ie *IntegrityError
	if !errors.As(Verify(gapped), &ie) || ie.Sequence != 3 {
		t.Errorf("expected gap at sequence 3, got %v", ie)
	}

	entries = buildChain(t, 2)
	entries[0].PrevHash = "abc"
	if !errors.As(Verify(entries), &ie) || ie.Sequence != 1 {
		t.Errorf("expected genesis failure at 1, got %v", ie)
	}
}

func TestContent_ExcludesNotificationFlag(t *testing.T) {
	d := &model.Debunk{ID: 1, PostID: 2, Verdict: model.VerdictSkipped}
	before := CanonicalJSON(Content(d))
	d.NotificationSent = true
	after := CanonicalJSON(Content(d))
	if string(before) != string(after) {
		t.Error("notification flag must not affect hashed content")
	}
	if _, ok := Content(d)["notification_sent"]; ok {
		t.Error("content must not include notification_sent")
	}
}

func TestContent_SkippedCarriesOnlyMarker(t *testing.T) {
	d := &model.Debunk{ID: 3, PostID: 4, Verdict: model.VerdictSkipped, Explanation: "No claim extracted", ClaimText: "No Claim Extracted"}
	got := string(CanonicalJSON(Content(d)))
	want := `{"debunk_id":"3","explanation":"No claim extracted","post_id":"4","verdict":"Skipped"}`
	if got != want {
		t.Errorf("skipped content =\n%s\nwant\n%s", got, want)
	}
}

func TestNewReport(t *testing.T) {
	entries := buildChain(t, 2)
	r := NewReport(entries, nil)
	if !r.Valid || r.Entries != 2 || r.TailHash != entries[1].Hash {
		t.Errorf("unexpected report %+v", r)
	}

	r = NewReport(entries, &IntegrityError{Sequence: 2, Reason: "x"})
	if r.Valid || r.Sequence != 2 || r.Error == "" {
		t.Errorf("unexpected failure report %+v", r)
	}
}
