package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/store"
)

type verdictRecorder struct {
	verdicts []model.Verdict
}

func (r *verdictRecorder) DebunkCreated(_ context.Context, v model.Verdict) {
	r.verdicts = append(r.verdicts, v)
}

func TestProcessor_CommitsOnceAndRecords(t *testing.T) {
	s, err := store.Open(model.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, "error", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	post, _, err := s.CreatePost(ctx, &model.Post{Platform: model.PlatformNews, Brand: "Acme", Text: "Acme leaked data", Priority: model.TierHigh})
	require.NoError(t, err)

	oracle := &stubOracle{claim: "Acme leaked data", raw: `{"verdict":"False","confidence":80,"explanation":"e","sources":[],"pr_response":"r"}`}
	recorder := &verdictRecorder{}
	proc := NewProcessor(NewClaimPipeline(oracle, nil, time.Second, nil), s, nil).WithRecorder(recorder)

	out, err := proc.Process(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictFalse, out.Debunk.Verdict)
	assert.Equal(t, uint64(1), out.Entry.Sequence)
	assert.Equal(t, []model.Verdict{model.VerdictFalse}, recorder.verdicts)

	_, err = proc.Process(ctx, post)
	assert.ErrorIs(t, err, store.ErrAlreadyAnalysed)
	assert.Len(t, recorder.verdicts, 1)
}
