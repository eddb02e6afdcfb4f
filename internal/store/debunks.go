package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ppiankov/claimwatch/internal/ledger"
	"github.com/ppiankov/claimwatch/internal/model"
)

// commitAttempts bounds retries when another process appended to the
// ledger between our tail read and insert
const commitAttempts = 3

// errLedgerConflict marks a lost race for the next ledger sequence
var errLedgerConflict = errors.New("ledger tail moved")

// CommitAnalysis records the outcome for a post as one unit: the post is
// marked analysed, the debunk is inserted and a ledger entry is appended.
// Nothing is written if any step fails.
func (s *Store) CommitAnalysis(ctx context.Context, postID uint, a model.Analysis) (*model.Debunk, *model.LedgerEntry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		var debunk *model.Debunk
		var entry *model.LedgerEntry
		debunk, entry, err = s.commitOnce(ctx, postID, a)
		if !errors.Is(err, errLedgerConflict) {
			return debunk, entry, err
		}
		s.logger.Debug("ledger append conflict, retrying", zap.Uint("post_id", postID), zap.Int("attempt", attempt))
	}
	return nil, nil, err
}

func (s *Store) commitOnce(ctx context.Context, postID uint, a model.Analysis) (*model.Debunk, *model.LedgerEntry, error) {
	claim := a.Claim
	if claim == "" {
		claim = model.NoClaimText
	}
	sources := a.Sources
	if sources == nil {
		sources = []string{}
	}

	var debunk *model.Debunk
	var entry *model.LedgerEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Post{}).
			Where("id = ? AND analysed = ?", postID, false).
			Update("analysed", true)
		if res.Error != nil {
			return fmt.Errorf("mark post analysed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
				return fmt.Errorf("lookup post: %w", err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrAlreadyAnalysed
		}

		debunk = &model.Debunk{
			PostID:      postID,
			ClaimText:   claim,
			Verdict:     a.Verdict,
			Confidence:  a.Confidence,
			Explanation: a.Explanation,
			Sources:     datatypes.JSONSlice[string](sources),
			PRResponse:  a.PRResponse,
		}
		if err := tx.Create(debunk).Error; err != nil {
			return fmt.Errorf("create debunk: %w", err)
		}

		tail, err := ledgerTail(tx)
		if err != nil {
			return err
		}
		next := ledger.Next(tail, debunk.ID, ledger.Content(debunk))
		if err := tx.Create(&next).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("append ledger entry: %w", errLedgerConflict)
			}
			return fmt.Errorf("append ledger entry: %w", err)
		}
		entry = &next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return debunk, entry, nil
}

// MarkNotified sets the notification flag, the only mutable debunk field
func (s *Store) MarkNotified(ctx context.Context, debunkID uint) error {
	res := s.db.WithContext(ctx).Model(&model.Debunk{}).
		Where("id = ?", debunkID).
		Update("notification_sent", true)
	if res.Error != nil {
		return fmt.Errorf("mark notified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDebunk loads a debunk with its post
func (s *Store) GetDebunk(ctx context.Context, id uint) (*model.Debunk, error) {
	var d model.Debunk
	if err := s.db.WithContext(ctx).Preload("Post").First(&d, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// DebunkForPost loads the debunk recorded for a post
func (s *Store) DebunkForPost(ctx context.Context, postID uint) (*model.Debunk, error) {
	var d model.Debunk
	if err := s.db.WithContext(ctx).Preload("Post").Where("post_id = ?", postID).First(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// History lists debunks newest first with their posts.
// A non-positive limit returns all of them.
func (s *Store) History(ctx context.Context, limit int) ([]model.Debunk, error) {
	q := s.db.WithContext(ctx).Preload("Post").Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var debunks []model.Debunk
	if err := q.Find(&debunks).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return debunks, nil
}
