package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimwatch/internal/ledger"
	"github.com/ppiankov/claimwatch/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(model.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, "error", nil)
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func newPost(brand, text string, url *string, tier model.Tier) *model.Post {
	return &model.Post{
		Platform: model.PlatformNews,
		Brand:    brand,
		Text:     text,
		URL:      url,
		Priority: tier,
	}
}

func falseAnalysis() model.Analysis {
	return model.Analysis{
		Claim:       "Acme leaked customer data",
		Verdict:     model.VerdictFalse,
		Confidence:  80,
		Explanation: "No evidence of a leak",
		Sources:     []string{"https://example.com/statement"},
		PRResponse:  "We have found no breach.",
	}
}

func TestAddCompany_IdempotentByName(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c1, created, err := s.AddCompany(ctx, "Acme", "pr@acme.test")
	require.NoError(t, err)
	assert.True(t, created)

	c2, created, err := s.AddCompany(ctx, " Acme ", "other@acme.test")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "pr@acme.test", c2.Email)

	_, _, err = s.AddCompany(ctx, "  ", "x@y.z")
	assert.Error(t, err)

	companies, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Len(t, companies, 1)
}

func TestDeleteCompany(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c, _, err := s.AddCompany(ctx, "Acme", "pr@acme.test")
	require.NoError(t, err)

	require.NoError(t, s.DeleteCompany(ctx, c.ID))
	assert.ErrorIs(t, s.DeleteCompany(ctx, c.ID), ErrNotFound)

	_, err = s.GetCompany(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchCompany(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, _, _ = s.AddCompany(ctx, "Acme", "pr@acme.test")
	_, _, _ = s.AddCompany(ctx, "Globex Corporation", "press@globex.test")

	c, err := s.MatchCompany(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)

	c, err = s.MatchCompany(ctx, "Acme Industries")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)

	c, err = s.MatchCompany(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, "Globex Corporation", c.Name)

	_, err = s.MatchCompany(ctx, "Initech")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePost_DedupByURL(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p1, created, err := s.CreatePost(ctx, newPost("Acme", "first", strPtr("https://news.test/a"), model.TierLow))
	require.NoError(t, err)
	assert.True(t, created)

	p2, created, err := s.CreatePost(ctx, newPost("Acme", "second copy", strPtr("https://news.test/a"), model.TierHigh))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "first", p2.Text)

	_, created, err = s.CreatePost(ctx, newPost("Acme", "different url", strPtr("https://news.test/b"), model.TierLow))
	require.NoError(t, err)
	assert.True(t, created)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Posts)
}

func TestCreatePost_NoURLNeverDeduplicated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, created1, err := s.CreatePost(ctx, newPost("Acme", "same text", nil, model.TierLow))
	require.NoError(t, err)
	_, created2, err := s.CreatePost(ctx, newPost("Acme", "same text", strPtr(""), model.TierLow))
	require.NoError(t, err)

	assert.True(t, created1)
	assert.True(t, created2)

	posts, err := s.UnanalysedPosts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	for _, p := range posts {
		assert.Nil(t, p.URL)
	}
}

func TestUnanalysedPosts_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	old := newPost("Acme", "old", nil, model.TierLow)
	old.CreatedAt = time.Now().Add(-time.Hour)
	_, _, err := s.CreatePost(ctx, old)
	require.NoError(t, err)

	_, _, err = s.CreatePost(ctx, newPost("Acme", "new", nil, model.TierLow))
	require.NoError(t, err)

	posts, err := s.UnanalysedPosts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "new", posts[0].Text)

	posts, err = s.UnanalysedPosts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestPendingPosts_FiltersBrandTierAndAnalysed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	high, _, _ := s.CreatePost(ctx, newPost("Acme", "high", nil, model.TierHigh))
	_, _, _ = s.CreatePost(ctx, newPost("Acme", "medium", nil, model.TierMedium))
	_, _, _ = s.CreatePost(ctx, newPost("Globex", "other brand", nil, model.TierHigh))
	done, _, _ := s.CreatePost(ctx, newPost("Acme", "done", nil, model.TierHigh))

	_, _, err := s.CommitAnalysis(ctx, done.ID, falseAnalysis())
	require.NoError(t, err)

	posts, err := s.PendingPosts(ctx, "Acme", model.TierHigh)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, high.ID, posts[0].ID)
}

func TestCommitAnalysis_AtomicUnit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post, _, err := s.CreatePost(ctx, newPost("Acme", "Acme faces lawsuit over data breach", nil, model.TierHigh))
	require.NoError(t, err)

	debunk, entry, err := s.CommitAnalysis(ctx, post.ID, falseAnalysis())
	require.NoError(t, err)

	assert.Equal(t, model.VerdictFalse, debunk.Verdict)
	assert.Equal(t, []string{"https://example.com/statement"}, []string(debunk.Sources))
	assert.EqualValues(t, 1, entry.Sequence)
	assert.Equal(t, ledger.GenesisHash, entry.PrevHash)
	assert.Equal(t, debunk.ID, entry.DebunkID)
	assert.Equal(t, ledger.ComputeHash(ledger.GenesisHash, []byte(entry.Payload)), entry.Hash)

	reloaded, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Analysed)
	require.NotNil(t, reloaded.Debunk)
	assert.Equal(t, debunk.ID, reloaded.Debunk.ID)

	_, _, err = s.CommitAnalysis(ctx, post.ID, falseAnalysis())
	assert.ErrorIs(t, err, ErrAlreadyAnalysed)

	_, _, err = s.CommitAnalysis(ctx, 9999, falseAnalysis())
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Debunks)
	assert.EqualValues(t, 1, st.LedgerEntries)
	assert.EqualValues(t, 0, st.Unanalysed)
}

func TestCommitAnalysis_DefaultsClaim(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post, _, _ := s.CreatePost(ctx, newPost("Acme", "text", nil, model.TierHigh))
	debunk, _, err := s.CommitAnalysis(ctx, post.ID, model.FailedAnalysis(""))
	require.NoError(t, err)
	assert.Equal(t, model.NoClaimText, debunk.ClaimText)
	assert.Equal(t, model.VerdictUnclear, debunk.Verdict)
}

func TestCommitAnalysis_ConcurrentAppendsStayLinked(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const n = 12
	ids := make([]uint, n)
	for i := 0; i < n; i++ {
		p, _, err := s.CreatePost(ctx, newPost("Acme", fmt.Sprintf("post %d", i), nil, model.TierHigh))
		require.NoError(t, err)
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for _, id := range ids {
		// two actors race for every post
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(id uint) {
				defer wg.Done()
				_, _, err := s.CommitAnalysis(ctx, id, falseAnalysis())
				if err != nil && !errors.Is(err, ErrAlreadyAnalysed) {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected commit error: %v", err)
	}

	report, err := s.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, n, report.Entries)

	entries, err := s.LedgerEntries(ctx, 0)
	require.NoError(t, err)
	for i, e := range entries {
		assert.EqualValues(t, i+1, e.Sequence)
	}
}

func TestVerifyLedger_EmptyAndValid(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	report, err := s.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, ledger.GenesisHash, report.TailHash)

	for i := 0; i < 3; i++ {
		p, _, _ := s.CreatePost(ctx, newPost("Acme", fmt.Sprintf("p%d", i), nil, model.TierHigh))
		_, _, err := s.CommitAnalysis(ctx, p.ID, falseAnalysis())
		require.NoError(t, err)
	}

	report, err = s.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Entries)

	tail, err := s.LedgerTail(ctx)
	require.NoError(t, err)
	assert.Equal(t, tail.Hash, report.TailHash)
}

func TestVerifyLedger_NotificationFlagDoesNotBreakChain(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, _, _ := s.CreatePost(ctx, newPost("Acme", "p", nil, model.TierHigh))
	d, _, err := s.CommitAnalysis(ctx, p.ID, falseAnalysis())
	require.NoError(t, err)

	require.NoError(t, s.MarkNotified(ctx, d.ID))
	assert.ErrorIs(t, s.MarkNotified(ctx, 4242), ErrNotFound)

	reloaded, err := s.GetDebunk(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.NotificationSent)

	_, err = s.VerifyLedger(ctx)
	assert.NoError(t, err)
}

func TestVerifyLedger_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, s *Store)
		atSeq  uint64
	}{
		{
			name: "debunk verdict rewritten",
			mutate: func(t *testing.T, s *Store) {
				require.NoError(t, s.DB().Exec("UPDATE debunks SET verdict = ? WHERE id = ?", "True", 2).Error)
			},
			atSeq: 2,
		},
		{
			name: "ledger payload rewritten",
			mutate: func(t *testing.T, s *Store) {
				require.NoError(t, s.DB().Exec("UPDATE ledger_entries SET payload = ? WHERE sequence = ?", "{}", 2).Error)
			},
			atSeq: 2,
		},
		{
			name: "ledger hash rewritten",
			mutate: func(t *testing.T, s *Store) {
				require.NoError(t, s.DB().Exec("UPDATE ledger_entries SET hash = ? WHERE sequence = ?", ledger.GenesisHash, 1).Error)
			},
			atSeq: 1,
		},
		{
			name: "entry removed",
			mutate: func(t *testing.T, s *Store) {
				require.NoError(t, s.DB().Exec("DELETE FROM ledger_entries WHERE sequence = ?", 3).Error)
			},
			atSeq: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t)
			ctx := context.Background()

			for i := 0; i < 4; i++ {
				p, _, _ := s.CreatePost(ctx, newPost("Acme", fmt.Sprintf("p%d", i), nil, model.TierHigh))
				_, _, err := s.CommitAnalysis(ctx, p.ID, falseAnalysis())
				require.NoError(t, err)
			}

			tt.mutate(t, s)

			report, err := s.VerifyLedger(ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrTampered)
			assert.False(t, report.Valid)

			var ie *ledger.IntegrityError
			require.True(t, errors.As(err, &ie))
			assert.GreaterOrEqual(t, ie.Sequence, tt.atSeq)
		})
	}
}

func TestHistory_NewestFirstWithPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, _, _ := s.CreatePost(ctx, newPost("Acme", fmt.Sprintf("p%d", i), strPtr(fmt.Sprintf("https://news.test/%d", i)), model.TierHigh))
		_, _, err := s.CommitAnalysis(ctx, p.ID, falseAnalysis())
		require.NoError(t, err)
	}

	history, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Greater(t, history[0].ID, history[2].ID)
	require.NotNil(t, history[0].Post)
	assert.Equal(t, "Acme", history[0].Post.Brand)

	d, err := s.DebunkForPost(ctx, history[0].PostID)
	require.NoError(t, err)
	assert.Equal(t, history[0].ID, d.ID)
}
