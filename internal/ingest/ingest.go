package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/score"
)

// ErrEmptyText is returned for items with no text after trimming
var ErrEmptyText = errors.New("item has no text")

// PostStore is the persistence the normalizer needs
type PostStore interface {
	CreatePost(ctx context.Context, p *model.Post) (*model.Post, bool, error)
}

// Recorder receives ingestion counts; telemetry implements it
type Recorder interface {
	PostIngested(ctx context.Context, platform model.Platform, tier model.Tier)
}

// Normalizer turns collected items into scored, deduplicated posts
type Normalizer struct {
	store    PostStore
	scorer   *score.Scorer
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// NewNormalizer creates a normalizer
func NewNormalizer(store PostStore, scorer *score.Scorer, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		store:  store,
		scorer: scorer,
		logger: logger,
		now:    time.Now,
	}
}

// WithRecorder attaches a metrics recorder
func (n *Normalizer) WithRecorder(r Recorder) *Normalizer {
	n.recorder = r
	return n
}

// Ingest scores and persists one item. created is false when a post with the
// same URL already existed; the existing post is returned unchanged.
func (n *Normalizer) Ingest(ctx context.Context, item model.RawItem) (*model.Post, bool, error) {
	post, err := n.Normalize(item)
	if err != nil {
		return nil, false, err
	}

	stored, created, err := n.store.CreatePost(ctx, post)
	if err != nil {
		return nil, false, fmt.Errorf("store post: %w", err)
	}
	if created && n.recorder != nil {
		n.recorder.PostIngested(ctx, stored.Platform, stored.Priority)
	}
	return stored, created, nil
}

// Normalize shapes an item into an unsaved post with its priority attached
func (n *Normalizer) Normalize(item model.RawItem) (*model.Post, error) {
	text := strings.TrimSpace(item.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	platform := item.Platform
	if !platform.Valid() {
		platform = model.PlatformWeb
	}

	post := &model.Post{
		Platform: platform,
		Brand:    strings.TrimSpace(item.Brand),
		Text:     text,
		Likes:    model.Count(item.Likes),
		Comments: model.Count(item.Comments),
		Shares:   model.Count(item.Shares),
	}
	if u := strings.TrimSpace(item.URL); u != "" {
		post.URL = &u
	}
	post.Priority = n.scorer.Score(post.Likes, post.Comments, post.Shares, post.Text)

	post.CreatedAt = item.CreatedAt
	if post.CreatedAt.IsZero() {
		post.CreatedAt = n.now()
	}
	return post, nil
}

// Summary counts the outcome of a batch
type Summary struct {
	Seen      int `json:"seen"`
	Created   int `json:"created"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
	High      int `json:"high"`
}

// Add folds another summary into s
func (s *Summary) Add(o Summary) {
	s.Seen += o.Seen
	s.Created += o.Created
	s.Duplicate += o.Duplicate
	s.Failed += o.Failed
	s.High += o.High
}

// IngestAll ingests a batch. A failing item is logged and skipped.
func (n *Normalizer) IngestAll(ctx context.Context, items []model.RawItem) Summary {
	var sum Summary
	for _, item := range items {
		sum.Seen++
		post, created, err := n.Ingest(ctx, item)
		if err != nil {
			sum.Failed++
			n.logger.Warn("Skipping item",
				zap.String("platform", string(item.Platform)),
				zap.String("brand", item.Brand),
				zap.String("url", item.URL),
				zap.Error(err))
			continue
		}
		if !created {
			sum.Duplicate++
			continue
		}
		sum.Created++
		if post.Priority == model.TierHigh {
			sum.High++
		}
	}
	return sum
}
