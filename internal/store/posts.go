package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ppiankov/claimwatch/internal/model"
)

// CreatePost inserts p unless a post with the same non-null URL exists, in
// which case the existing row is returned and created is false.
func (s *Store) CreatePost(ctx context.Context, p *model.Post) (*model.Post, bool, error) {
	db := s.db.WithContext(ctx)

	if p.URL != nil && *p.URL == "" {
		p.URL = nil
	}

	if p.URL != nil {
		existing, err := s.postByURL(db, *p.URL)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("dedup lookup: %w", err)
		}
	}

	if err := db.Create(p).Error; err != nil {
		// lost a race with a concurrent insert of the same URL
		if errors.Is(err, gorm.ErrDuplicatedKey) && p.URL != nil {
			if existing, lookupErr := s.postByURL(db, *p.URL); lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create post: %w", err)
	}
	return p, true, nil
}

func (s *Store) postByURL(db *gorm.DB, url string) (*model.Post, error) {
	var existing model.Post
	if err := db.Where("url = ?", url).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetPost loads one post with its debunk, if any
func (s *Store) GetPost(ctx context.Context, id uint) (*model.Post, error) {
	var p model.Post
	if err := s.db.WithContext(ctx).Preload("Debunk").First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// UnanalysedPosts lists posts awaiting analysis, newest first.
// A non-positive limit returns all of them.
func (s *Store) UnanalysedPosts(ctx context.Context, limit int) ([]model.Post, error) {
	q := s.db.WithContext(ctx).
		Where("analysed = ?", false).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var posts []model.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list unanalysed posts: %w", err)
	}
	return posts, nil
}

// PendingPosts lists unanalysed posts of one brand and tier, oldest first
func (s *Store) PendingPosts(ctx context.Context, brand string, tier model.Tier) ([]model.Post, error) {
	var posts []model.Post
	err := s.db.WithContext(ctx).
		Where("brand = ? AND analysed = ? AND priority = ?", brand, false, tier).
		Order("id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list pending posts: %w", err)
	}
	return posts, nil
}
